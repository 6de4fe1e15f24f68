package reconcile

import (
	"context"

	"github.com/lloydmeta/settle/internal/api/controllers/apierr"
	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/api/models/reconcile"
	domainReconcile "github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
)

// Controller is an interface that defines the methods that are available to the routing
// layer. It is framework-agnostic
type Controller interface {

	// Reconcile makes the children of aggregationKey in keyspace match the snapshot, as of its
	// event timestamp
	Reconcile(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, snapshot *reconcile.Snapshot) (*reconcile.Report, *common.ApiError)
}

// New returns a Controller dispatching to one Engine per keyspace
func New(engines []domainReconcile.Engine, schema record.Schema) Controller {
	byKeyspace := make(map[record.Keyspace]domainReconcile.Engine, len(engines))
	for _, e := range engines {
		byKeyspace[e.Keyspace()] = e
	}
	return &impl{engines: byKeyspace, schema: schema}
}

type impl struct {
	engines map[record.Keyspace]domainReconcile.Engine
	schema  record.Schema
}

func (c *impl) Reconcile(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, snapshot *reconcile.Snapshot) (*reconcile.Report, *common.ApiError) {
	engine, ok := c.engines[keyspace]
	if !ok {
		return nil, apierr.Handle(record.UnknownKeyspace{Keyspace: keyspace})
	}
	desired := make([]record.Record, 0, len(snapshot.Records))
	for _, d := range snapshot.Records {
		r, err := d.ToDomainRecord(c.deriver(keyspace))
		if err != nil {
			return nil, apierr.Handle(err)
		}
		desired = append(desired, r)
	}
	report, err := engine.Reconcile(ctx, aggregationKey, desired, snapshot.DomainEventTimestamp())
	if err != nil {
		return nil, apierr.Handle(err)
	}
	apiReport := reconcile.FromDomainReport(report)
	return &apiReport, nil
}

func (c *impl) deriver(keyspace record.Keyspace) func(record.Attributes) (record.Key, error) {
	return func(attributes record.Attributes) (record.Key, error) {
		derivation, err := c.schema.Derivation(keyspace)
		if err != nil {
			return "", err
		}
		return derivation.Derive(attributes)
	}
}
