// dynamo binds the Storage Port to DynamoDB.
//
// Each Keyspace is one table hashed on "pk". A global secondary index hashed on "agg" serves
// aggregation queries; DynamoDB only ever reads a GSI with eventual consistency, which is
// exactly the weakness the reconciliation engine is built to tolerate.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

const DefaultAggregationIndex = "agg-index"

// Cancellation reason codes of TransactWriteItems
const (
	conditionalCheckFailed = "ConditionalCheckFailed"
	transactionConflict    = "TransactionConflict"
)

const (
	pkAttribute  = "pk"
	aggAttribute = "agg"
	ttlAttribute = "ttl"
)

// API is the subset of the DynamoDB client used here
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NewClient returns a DynamoDB client for the given conf
func NewClient(ctx context.Context, conf config.DynamoDB) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if conf.Region != "" {
		opts = append(opts, awsconfig.WithRegion(conf.Region))
	}
	if conf.StaticCredentials != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.StaticCredentials.AccessKeyID, conf.StaticCredentials.SecretAccessKey, ""),
		))
	}
	awsConf, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsConf, func(o *dynamodb.Options) {
		if conf.Endpoint != nil {
			o.BaseEndpoint = conf.Endpoint
		}
	}), nil
}

type Store struct {
	client           API
	aggregationIndex string
	tables           map[string]string
	getUTC           func() time.Time // for mocking
}

// For testing
func (s *Store) SetUTCGetter(getter func() time.Time) {
	s.getUTC = getter
}

func NewStore(client API, conf config.DynamoDB) *Store {
	index := conf.AggregationIndex
	if index == "" {
		index = DefaultAggregationIndex
	}
	return &Store{
		client:           client,
		aggregationIndex: index,
		tables:           conf.Tables,
		getUTC: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// TableName returns the table backing a Keyspace
func (s *Store) TableName(keyspace record.Keyspace) string {
	if name, ok := s.tables[string(keyspace)]; ok {
		return name
	}
	return string(keyspace)
}

func (s *Store) Get(ctx context.Context, keyspace record.Keyspace, key record.Key, consistency record.Consistency) (*record.Record, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TableName(keyspace)),
		Key:            primaryKey(key),
		ConsistentRead: aws.Bool(consistency == record.Strong),
	})
	if err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	if resp.Item == nil {
		return nil, record.NotFound{Keyspace: keyspace, Key: key}
	}
	r, err := fromAttributeValues(keyspace, resp.Item)
	if err != nil {
		return nil, err
	}
	if r.IsExpired(s.getUTC()) {
		// not reaped yet
		return nil, record.NotFound{Keyspace: keyspace, Key: key}
	}
	return r, nil
}

// QueryByAggregationKey pages through the aggregation index. consistency is ignored: GSIs
// cannot be read consistently.
func (s *Store) QueryByAggregationKey(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, consistency record.Consistency) ([]record.Record, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.TableName(keyspace)),
		IndexName:              aws.String(s.aggregationIndex),
		KeyConditionExpression: aws.String("agg = :agg"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":agg": &types.AttributeValueMemberS{Value: string(aggregationKey)},
		},
	})
	now := s.getUTC()
	var found []record.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, record.Unavailable{Underlying: err}
		}
		for _, av := range page.Items {
			r, err := fromAttributeValues(keyspace, av)
			if err != nil {
				return nil, err
			}
			if !r.IsExpired(now) {
				found = append(found, *r)
			}
		}
	}
	record.SortByKey(found)
	return found, nil
}

func (s *Store) ConditionalWrite(ctx context.Context, keyspace record.Keyspace, rec *record.Record, predicate record.Predicate) error {
	av, err := toAttributeValues(rec)
	if err != nil {
		return err
	}
	condition, values := s.conditionFor(predicate)
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.TableName(keyspace)),
		Item:                      av,
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return record.PredicateFailed{Keyspace: keyspace, Key: rec.Key}
		}
		return record.Unavailable{Underlying: err}
	}
	return nil
}

func (s *Store) AtomicMultiWrite(ctx context.Context, writes []record.Write) error {
	items := make([]types.TransactWriteItem, 0, len(writes))
	for i := range writes {
		w := &writes[i]
		av, err := toAttributeValues(&w.Record)
		if err != nil {
			return err
		}
		condition, values := s.conditionFor(w.Predicate)
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(s.TableName(w.Keyspace)),
				Item:                      av,
				ConditionExpression:       aws.String(condition),
				ExpressionAttributeValues: values,
			},
		})
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		var violations []record.KeyRef
		lostRace := false
		for i, reason := range cancelled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case conditionalCheckFailed:
				if i < len(writes) {
					violations = append(violations, writes[i].Ref())
				}
			case transactionConflict:
				lostRace = true
			}
		}
		if len(violations) > 0 {
			return record.TransactionRejected{Violations: violations}
		}
		if lostRace {
			// A concurrent transaction held some of the items; the caller reads back which
			log.Debug().Err(err).Msg("Transaction cancelled by a concurrent transaction")
			return record.TransactionRejected{}
		}
		log.Debug().Err(err).Msg("Transaction cancelled without a failed condition")
	}
	return record.Unavailable{Underlying: err}
}

// conditionFor renders a Predicate as a ConditionExpression. Items past their expiry count
// as absent, since the TTL reaper may not have removed them yet.
func (s *Store) conditionFor(predicate record.Predicate) (string, map[string]types.AttributeValue) {
	values := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(metadata.TimestampFromTime(s.getUTC())), 10)},
	}
	condition := "attribute_not_exists(pk) OR expires_at <= :now"
	if olderThan, ok := predicate.OlderThan(); ok {
		values[":ts"] = &types.AttributeValueMemberN{Value: olderThan.String()}
		condition = condition + " OR ts < :ts"
	}
	return condition, values
}

func primaryKey(key record.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkAttribute: &types.AttributeValueMemberS{Value: string(key)},
	}
}

type item struct {
	PK string `dynamodbav:"pk"`
	// Omitted when empty so such records stay out of the sparse aggregation index
	Agg     string            `dynamodbav:"agg,omitempty"`
	Ts      int64             `dynamodbav:"ts"`
	Deleted bool              `dynamodbav:"deleted"`
	Attrs   map[string]string `dynamodbav:"attrs,omitempty"`
	// Epoch millis, for reads
	ExpiresAt *int64 `dynamodbav:"expires_at,omitempty"`
	// Epoch seconds, for the TTL reaper
	TTL *int64 `dynamodbav:"ttl,omitempty"`
}

func toAttributeValues(rec *record.Record) (map[string]types.AttributeValue, error) {
	i := item{
		PK:      string(rec.Key),
		Agg:     string(rec.AggregationKey),
		Ts:      int64(rec.Timestamp),
		Deleted: bool(rec.IsDeleted),
		Attrs:   rec.Attributes,
	}
	if rec.ExpiresAt != nil {
		at := time.Time(*rec.ExpiresAt)
		millis := int64(metadata.TimestampFromTime(at))
		seconds := at.Unix()
		i.ExpiresAt = &millis
		i.TTL = &seconds
	}
	av, err := attributevalue.MarshalMap(i)
	if err != nil {
		return nil, record.InvalidInput{Reason: fmt.Sprintf("cannot encode record [%v]: %v", rec.Key, err)}
	}
	return av, nil
}

func fromAttributeValues(keyspace record.Keyspace, av map[string]types.AttributeValue) (*record.Record, error) {
	var i item
	if err := attributevalue.UnmarshalMap(av, &i); err != nil {
		key := ""
		if pk, ok := av[pkAttribute].(*types.AttributeValueMemberS); ok {
			key = pk.Value
		}
		return nil, record.CorruptRecord{Keyspace: keyspace, Key: record.Key(key), Reason: err.Error()}
	}
	if i.PK == "" {
		return nil, record.CorruptRecord{Keyspace: keyspace, Reason: "missing pk"}
	}
	r := record.Record{
		Key:            record.Key(i.PK),
		AggregationKey: record.AggregationKey(i.Agg),
		Attributes:     record.Attributes(i.Attrs),
		Timestamp:      metadata.Timestamp(i.Ts),
		IsDeleted:      metadata.IsDeleted(i.Deleted),
	}
	if i.ExpiresAt != nil {
		e := metadata.ExpiresAt(metadata.Timestamp(*i.ExpiresAt).Time())
		r.ExpiresAt = &e
	}
	return &r, nil
}
