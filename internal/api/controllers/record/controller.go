package record

import (
	"context"

	"github.com/lloydmeta/settle/internal/api/controllers/apierr"
	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/api/models/record"
	domainRecord "github.com/lloydmeta/settle/internal/domain/record"
)

// Controller is an interface that defines the methods that are available to the routing
// layer. It is framework-agnostic
type Controller interface {

	// Get returns a single record, including soft-deleted ones
	Get(ctx context.Context, keyspace domainRecord.Keyspace, key domainRecord.Key, consistent bool) (*record.Record, *common.ApiError)

	// ListAggregation returns the records the aggregation index holds for aggregationKey
	ListAggregation(ctx context.Context, keyspace domainRecord.Keyspace, aggregationKey domainRecord.AggregationKey, consistent bool) ([]record.Record, *common.ApiError)
}

func New(store domainRecord.Store, schema domainRecord.Schema) Controller {
	return &impl{store: store, schema: schema}
}

type impl struct {
	store  domainRecord.Store
	schema domainRecord.Schema
}

func (c *impl) Get(ctx context.Context, keyspace domainRecord.Keyspace, key domainRecord.Key, consistent bool) (*record.Record, *common.ApiError) {
	if _, err := c.schema.Derivation(keyspace); err != nil {
		return nil, apierr.Handle(err)
	}
	result, err := c.store.Get(ctx, keyspace, key, consistency(consistent))
	if err != nil {
		return nil, apierr.Handle(err)
	}
	r := record.FromDomainRecord(keyspace, result)
	return &r, nil
}

func (c *impl) ListAggregation(ctx context.Context, keyspace domainRecord.Keyspace, aggregationKey domainRecord.AggregationKey, consistent bool) ([]record.Record, *common.ApiError) {
	if _, err := c.schema.Derivation(keyspace); err != nil {
		return nil, apierr.Handle(err)
	}
	result, err := c.store.QueryByAggregationKey(ctx, keyspace, aggregationKey, consistency(consistent))
	if err != nil {
		return nil, apierr.Handle(err)
	}
	return record.FromDomainRecords(keyspace, result), nil
}

func consistency(consistent bool) domainRecord.Consistency {
	if consistent {
		return domainRecord.Strong
	}
	return domainRecord.Eventual
}
