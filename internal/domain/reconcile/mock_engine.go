package reconcile

import (
	"context"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

type MockEngine struct {
	KeyspaceName      record.Keyspace
	ReconcileCalled   uint
	ReconcileOverride func(aggregationKey record.AggregationKey, desired []record.Record, eventTimestamp metadata.Timestamp) (*Report, error)
}

func (m *MockEngine) Reconcile(ctx context.Context, aggregationKey record.AggregationKey, desired []record.Record, eventTimestamp metadata.Timestamp) (*Report, error) {
	m.ReconcileCalled++
	if m.ReconcileOverride != nil {
		return m.ReconcileOverride(aggregationKey, desired, eventTimestamp)
	} else {
		report := Report{Keyspace: m.KeyspaceName, AggregationKey: aggregationKey, EventTimestamp: eventTimestamp}
		for _, r := range desired {
			report.Records = append(report.Records, RecordReport{Key: r.Key, Mutation: Add, Outcome: Committed, Attempts: 1})
		}
		return &report, nil
	}
}

func (m *MockEngine) Keyspace() record.Keyspace {
	return m.KeyspaceName
}
