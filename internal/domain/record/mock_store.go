package record

import (
	"context"
	"sync"

	"github.com/lloydmeta/settle/internal/domain/metadata"
)

var MockTimestamp = metadata.Timestamp(1000)

var MockRecord = Record{
	Key:            "mock",
	AggregationKey: "parent",
	Attributes: Attributes{
		"config": "c",
	},
	Timestamp: MockTimestamp,
	IsDeleted: false,
}

// MockStore is a TransactionalStore whose behaviour is driven by overrides.
//
// Calls are counted under a lock so it can be shared by concurrent reconciliation workers.
type MockStore struct {
	mu sync.Mutex

	GetCalled                uint
	GetOverride              func(keyspace Keyspace, key Key, consistency Consistency) (*Record, error)
	QueryCalled              uint
	QueryOverride            func(keyspace Keyspace, aggregationKey AggregationKey, consistency Consistency) ([]Record, error)
	ConditionalWriteCalled   uint
	ConditionalWriteOverride func(keyspace Keyspace, rec *Record, predicate Predicate) error
	AtomicMultiWriteCalled   uint
	AtomicMultiWriteOverride func(writes []Write) error

	Written []Write
}

func (m *MockStore) Get(ctx context.Context, keyspace Keyspace, key Key, consistency Consistency) (*Record, error) {
	m.mu.Lock()
	m.GetCalled++
	m.mu.Unlock()
	if m.GetOverride != nil {
		return m.GetOverride(keyspace, key, consistency)
	} else {
		r := MockRecord.Copy()
		return &r, nil
	}
}

func (m *MockStore) QueryByAggregationKey(ctx context.Context, keyspace Keyspace, aggregationKey AggregationKey, consistency Consistency) ([]Record, error) {
	m.mu.Lock()
	m.QueryCalled++
	m.mu.Unlock()
	if m.QueryOverride != nil {
		return m.QueryOverride(keyspace, aggregationKey, consistency)
	} else {
		return []Record{MockRecord.Copy()}, nil
	}
}

func (m *MockStore) ConditionalWrite(ctx context.Context, keyspace Keyspace, rec *Record, predicate Predicate) error {
	m.mu.Lock()
	m.ConditionalWriteCalled++
	m.mu.Unlock()
	var err error
	if m.ConditionalWriteOverride != nil {
		err = m.ConditionalWriteOverride(keyspace, rec, predicate)
	}
	if err == nil {
		m.mu.Lock()
		m.Written = append(m.Written, Write{Keyspace: keyspace, Record: rec.Copy(), Predicate: predicate})
		m.mu.Unlock()
	}
	return err
}

func (m *MockStore) AtomicMultiWrite(ctx context.Context, writes []Write) error {
	m.mu.Lock()
	m.AtomicMultiWriteCalled++
	m.mu.Unlock()
	var err error
	if m.AtomicMultiWriteOverride != nil {
		err = m.AtomicMultiWriteOverride(writes)
	}
	if err == nil {
		m.mu.Lock()
		m.Written = append(m.Written, writes...)
		m.mu.Unlock()
	}
	return err
}
