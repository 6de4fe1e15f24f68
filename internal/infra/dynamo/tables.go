package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/record"
)

// TablesAPI is the subset of the DynamoDB client used to manage tables
type TablesAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// TablesSetup creates the table, and its aggregation index, backing each Keyspace
type TablesSetup struct {
	client           TablesAPI
	aggregationIndex string
	Tables           []string
}

func NewTablesSetup(client TablesAPI, conf config.DynamoDB, keyspaces []record.Keyspace) TablesSetup {
	naming := NewStore(nil, conf)
	tables := make([]string, 0, len(keyspaces))
	for _, keyspace := range keyspaces {
		tables = append(tables, naming.TableName(keyspace))
	}
	return TablesSetup{
		client:           client,
		aggregationIndex: naming.aggregationIndex,
		Tables:           tables,
	}
}

// Check returns TablesNotCreated naming every missing table
func (s *TablesSetup) Check(ctx context.Context) error {
	var missing []string
	for _, table := range s.Tables {
		exists, err := s.exists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) != 0 {
		return TablesNotCreated{NotCreated: missing}
	}
	return nil
}

// Run creates the missing tables and enables expiry on the ttl attribute
func (s *TablesSetup) Run(ctx context.Context) error {
	for _, table := range s.Tables {
		exists, err := s.exists(ctx, table)
		if err != nil {
			return err
		}
		if exists {
			log.Info().Str("table", table).Msg("Table already exists")
			continue
		}
		if err := s.create(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (s *TablesSetup) exists(ctx context.Context, table string) (bool, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *TablesSetup) create(ctx context.Context, table string) error {
	log.Info().Str("table", table).Str("aggregation_index", s.aggregationIndex).Msg("Creating table")
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(pkAttribute), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(aggAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(pkAttribute), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(s.aggregationIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(aggAttribute), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not create table [%s]: %w", table, err)
	}
	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("could not enable expiry on table [%s]: %w", table, err)
	}
	return nil
}

type TablesNotCreated struct {
	NotCreated []string
}

func (t TablesNotCreated) Error() string {
	return fmt.Sprintf("One or more tables do not exist. Please run the setup command to create them [%v]", t.NotCreated)
}
