package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

var ctx = context.Background()

var now = time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

type mockAPI struct {
	getItemCalled            uint
	getItemOverride          func(params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	queryCalled              uint
	queryOverride            func(params *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	putItemCalled            uint
	putItemOverride          func(params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	transactWriteItemsCalled uint
	transactWriteOverride    func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (m *mockAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.getItemCalled++
	if m.getItemOverride != nil {
		return m.getItemOverride(params)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryCalled++
	if m.queryOverride != nil {
		return m.queryOverride(params)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putItemCalled++
	if m.putItemOverride != nil {
		return m.putItemOverride(params)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.transactWriteItemsCalled++
	if m.transactWriteOverride != nil {
		return m.transactWriteOverride(params)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func newTestStore(api *mockAPI) *Store {
	s := NewStore(api, config.DynamoDB{Tables: map[string]string{"vendor": "prod-vendors"}})
	s.SetUTCGetter(func() time.Time { return now })
	return s
}

func mustEncode(t *testing.T, r record.Record) map[string]types.AttributeValue {
	av, err := toAttributeValues(&r)
	require.NoError(t, err)
	return av
}

var stored = record.Record{
	Key:            "v1<<>>gk",
	AggregationKey: "poid",
	Attributes:     record.Attributes{"vendor": "v1", "gk": "gk"},
	Timestamp:      1500,
}

func TestStore_TableName(t *testing.T) {
	s := newTestStore(&mockAPI{})
	assert.Equal(t, "prod-vendors", s.TableName("vendor"))
	assert.Equal(t, "other", s.TableName("other"))
	assert.Equal(t, DefaultAggregationIndex, s.aggregationIndex)
}

func TestStore_Get(t *testing.T) {
	t.Run("strong reads are consistent reads", func(t *testing.T) {
		api := &mockAPI{
			getItemOverride: func(params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				assert.Equal(t, "prod-vendors", aws.ToString(params.TableName))
				assert.True(t, aws.ToBool(params.ConsistentRead))
				assert.Equal(t, primaryKey(stored.Key), params.Key)
				return &dynamodb.GetItemOutput{Item: mustEncode(t, stored)}, nil
			},
		}
		got, err := newTestStore(api).Get(ctx, "vendor", stored.Key, record.Strong)
		require.NoError(t, err)
		assert.Equal(t, stored, *got)
	})
	t.Run("missing", func(t *testing.T) {
		_, err := newTestStore(&mockAPI{}).Get(ctx, "vendor", "nope", record.Eventual)
		assert.Equal(t, record.NotFound{Keyspace: "vendor", Key: "nope"}, err)
	})
	t.Run("expired but not reaped", func(t *testing.T) {
		expired := stored.Copy()
		at := metadata.ExpiresAt(now.Add(-time.Second))
		expired.ExpiresAt = &at
		api := &mockAPI{
			getItemOverride: func(params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				return &dynamodb.GetItemOutput{Item: mustEncode(t, expired)}, nil
			},
		}
		_, err := newTestStore(api).Get(ctx, "vendor", stored.Key, record.Strong)
		assert.IsType(t, record.NotFound{}, err)
	})
	t.Run("corrupt timestamp", func(t *testing.T) {
		api := &mockAPI{
			getItemOverride: func(params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				item := mustEncode(t, stored)
				item["ts"] = &types.AttributeValueMemberS{Value: "yesterday"}
				return &dynamodb.GetItemOutput{Item: item}, nil
			},
		}
		_, err := newTestStore(api).Get(ctx, "vendor", stored.Key, record.Strong)
		require.IsType(t, record.CorruptRecord{}, err)
		assert.Equal(t, stored.Key, err.(record.CorruptRecord).Key)
	})
	t.Run("fault", func(t *testing.T) {
		api := &mockAPI{
			getItemOverride: func(params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				return nil, errors.New("throttled")
			},
		}
		_, err := newTestStore(api).Get(ctx, "vendor", stored.Key, record.Strong)
		assert.IsType(t, record.Unavailable{}, err)
	})
}

func TestStore_QueryByAggregationKey_pages(t *testing.T) {
	first := stored.Copy()
	first.Key = "b"
	second := stored.Copy()
	second.Key = "a"
	lastKey := primaryKey("b")
	api := &mockAPI{
		queryOverride: func(params *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			assert.Equal(t, DefaultAggregationIndex, aws.ToString(params.IndexName))
			assert.Equal(t, "agg = :agg", aws.ToString(params.KeyConditionExpression))
			assert.Equal(t, &types.AttributeValueMemberS{Value: "poid"}, params.ExpressionAttributeValues[":agg"])
			if params.ExclusiveStartKey == nil {
				return &dynamodb.QueryOutput{
					Items:            []map[string]types.AttributeValue{mustEncode(t, first)},
					LastEvaluatedKey: lastKey,
				}, nil
			}
			assert.Equal(t, lastKey, params.ExclusiveStartKey)
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{mustEncode(t, second)}}, nil
		},
	}
	found, err := newTestStore(api).QueryByAggregationKey(ctx, "vendor", "poid", record.Strong)
	require.NoError(t, err)
	assert.Equal(t, []record.Record{second, first}, found)
	assert.EqualValues(t, 2, api.queryCalled)
}

func TestStore_ConditionalWrite(t *testing.T) {
	t.Run("not exists", func(t *testing.T) {
		api := &mockAPI{
			putItemOverride: func(params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
				assert.Equal(t, "attribute_not_exists(pk) OR expires_at <= :now", aws.ToString(params.ConditionExpression))
				assert.Equal(t, &types.AttributeValueMemberN{Value: "1583064000000"}, params.ExpressionAttributeValues[":now"])
				assert.NotContains(t, params.ExpressionAttributeValues, ":ts")
				assert.Equal(t, mustEncode(t, stored), params.Item)
				return &dynamodb.PutItemOutput{}, nil
			},
		}
		assert.NoError(t, newTestStore(api).ConditionalWrite(ctx, "vendor", &stored, record.NotExists()))
		assert.EqualValues(t, 1, api.putItemCalled)
	})
	t.Run("not exists or older", func(t *testing.T) {
		api := &mockAPI{
			putItemOverride: func(params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
				assert.Equal(t, "attribute_not_exists(pk) OR expires_at <= :now OR ts < :ts", aws.ToString(params.ConditionExpression))
				assert.Equal(t, &types.AttributeValueMemberN{Value: "1500"}, params.ExpressionAttributeValues[":ts"])
				return &dynamodb.PutItemOutput{}, nil
			},
		}
		assert.NoError(t, newTestStore(api).ConditionalWrite(ctx, "vendor", &stored, record.NotExistsOrOlderThan(1500)))
	})
	t.Run("condition failed", func(t *testing.T) {
		api := &mockAPI{
			putItemOverride: func(params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{Message: aws.String("nope")}
			},
		}
		err := newTestStore(api).ConditionalWrite(ctx, "vendor", &stored, record.NotExists())
		assert.Equal(t, record.PredicateFailed{Keyspace: "vendor", Key: stored.Key}, err)
	})
	t.Run("fault", func(t *testing.T) {
		api := &mockAPI{
			putItemOverride: func(params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
				return nil, errors.New("connection reset")
			},
		}
		err := newTestStore(api).ConditionalWrite(ctx, "vendor", &stored, record.NotExists())
		assert.IsType(t, record.Unavailable{}, err)
	})
}

func TestStore_AtomicMultiWrite(t *testing.T) {
	writes := []record.Write{
		{Keyspace: "vendor", Record: stored, Predicate: record.NotExists()},
		{Keyspace: "poid", Record: stored, Predicate: record.NotExists()},
	}

	t.Run("ok", func(t *testing.T) {
		api := &mockAPI{
			transactWriteOverride: func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				require.Len(t, params.TransactItems, 2)
				assert.Equal(t, "prod-vendors", aws.ToString(params.TransactItems[0].Put.TableName))
				assert.Equal(t, "poid", aws.ToString(params.TransactItems[1].Put.TableName))
				for _, i := range params.TransactItems {
					assert.Equal(t, "attribute_not_exists(pk) OR expires_at <= :now", aws.ToString(i.Put.ConditionExpression))
				}
				return &dynamodb.TransactWriteItemsOutput{}, nil
			},
		}
		assert.NoError(t, newTestStore(api).AtomicMultiWrite(ctx, writes))
	})
	t.Run("condition failures name the violating writes", func(t *testing.T) {
		api := &mockAPI{
			transactWriteOverride: func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, &types.TransactionCanceledException{
					CancellationReasons: []types.CancellationReason{
						{Code: aws.String("None")},
						{Code: aws.String("ConditionalCheckFailed")},
					},
				}
			},
		}
		err := newTestStore(api).AtomicMultiWrite(ctx, writes)
		assert.Equal(t, record.TransactionRejected{Violations: []record.KeyRef{{Keyspace: "poid", Key: stored.Key}}}, err)
	})
	t.Run("losing to a concurrent transaction is a rejection without named keys", func(t *testing.T) {
		api := &mockAPI{
			transactWriteOverride: func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, &types.TransactionCanceledException{
					CancellationReasons: []types.CancellationReason{
						{Code: aws.String("TransactionConflict")},
						{Code: aws.String("None")},
					},
				}
			},
		}
		err := newTestStore(api).AtomicMultiWrite(ctx, writes)
		assert.Equal(t, record.TransactionRejected{}, err)
	})
	t.Run("failed conditions win over conflicts", func(t *testing.T) {
		api := &mockAPI{
			transactWriteOverride: func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, &types.TransactionCanceledException{
					CancellationReasons: []types.CancellationReason{
						{Code: aws.String("ConditionalCheckFailed")},
						{Code: aws.String("TransactionConflict")},
					},
				}
			},
		}
		err := newTestStore(api).AtomicMultiWrite(ctx, writes)
		assert.Equal(t, record.TransactionRejected{Violations: []record.KeyRef{{Keyspace: "vendor", Key: stored.Key}}}, err)
	})
	t.Run("other cancellations are faults", func(t *testing.T) {
		api := &mockAPI{
			transactWriteOverride: func(params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, &types.TransactionCanceledException{
					CancellationReasons: []types.CancellationReason{
						{Code: aws.String("ThrottlingError")},
						{Code: aws.String("None")},
					},
				}
			},
		}
		err := newTestStore(api).AtomicMultiWrite(ctx, writes)
		assert.IsType(t, record.Unavailable{}, err)
	})
}

func Test_attributeValues_expiry(t *testing.T) {
	r := stored.Copy()
	at := metadata.ExpiresAt(time.Date(2021, 1, 1, 0, 0, 0, 5000000, time.UTC))
	r.ExpiresAt = &at
	av := mustEncode(t, r)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1609459200"}, av["ttl"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1609459200005"}, av["expires_at"])

	decoded, err := fromAttributeValues("vendor", av)
	require.NoError(t, err)
	assert.Equal(t, r, *decoded)
}

func Test_attributeValues_no_aggregation_key(t *testing.T) {
	r := stored.Copy()
	r.AggregationKey = ""
	av := mustEncode(t, r)
	assert.NotContains(t, av, "agg")
}

func Test_fromAttributeValues_missing_pk(t *testing.T) {
	av := mustEncode(t, stored)
	delete(av, "pk")
	_, err := fromAttributeValues("vendor", av)
	assert.IsType(t, record.CorruptRecord{}, err)
}
