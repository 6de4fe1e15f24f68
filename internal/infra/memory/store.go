// memory is an in-process Storage Port. Every write is serialized under one lock, which gives
// it per-key atomicity and all-or-nothing multi-writes. Aggregation queries read a secondary
// index that can be made to lag behind the primary data, to behave like an eventually
// consistent store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

type table map[record.Key]record.Record

type pendingIndexUpdate struct {
	keyspace record.Keyspace
	rec      record.Record
}

type Store struct {
	mu sync.Mutex

	tables  map[record.Keyspace]table
	indexed map[record.Keyspace]table
	pending []pendingIndexUpdate
	history map[record.KeyRef][]metadata.Timestamp

	indexLag uint
	getUTC   func() time.Time // for mocking
}

// NewStore returns an empty Store.
//
// indexLag is how many writes eventual aggregation queries trail behind; 0 makes them
// consistent.
func NewStore(indexLag uint) *Store {
	return &Store{
		tables:   make(map[record.Keyspace]table),
		indexed:  make(map[record.Keyspace]table),
		history:  make(map[record.KeyRef][]metadata.Timestamp),
		indexLag: indexLag,
		getUTC: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Store) SetUTCGetter(getter func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getUTC = getter
}

func (s *Store) Get(ctx context.Context, keyspace record.Keyspace, key record.Key, consistency record.Consistency) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source := s.tables
	if consistency == record.Eventual {
		source = s.indexed
	}
	if existing := s.live(source, keyspace, key); existing != nil {
		r := existing.Copy()
		return &r, nil
	}
	return nil, record.NotFound{Keyspace: keyspace, Key: key}
}

func (s *Store) QueryByAggregationKey(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, consistency record.Consistency) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source := s.tables
	if consistency == record.Eventual {
		source = s.indexed
	}
	now := s.getUTC()
	var found []record.Record
	for _, r := range source[keyspace] {
		if r.AggregationKey == aggregationKey && !r.IsExpired(now) {
			found = append(found, r.Copy())
		}
	}
	record.SortByKey(found)
	return found, nil
}

func (s *Store) ConditionalWrite(ctx context.Context, keyspace record.Keyspace, rec *record.Record, predicate record.Predicate) error {
	if err := ctx.Err(); err != nil {
		return record.Unavailable{Underlying: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !predicate.Holds(s.live(s.tables, keyspace, rec.Key)) {
		return record.PredicateFailed{Keyspace: keyspace, Key: rec.Key}
	}
	s.put(keyspace, rec)
	return nil
}

func (s *Store) AtomicMultiWrite(ctx context.Context, writes []record.Write) error {
	if err := ctx.Err(); err != nil {
		return record.Unavailable{Underlying: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var violations []record.KeyRef
	for i := range writes {
		w := &writes[i]
		if !w.Predicate.Holds(s.live(s.tables, w.Keyspace, w.Record.Key)) {
			violations = append(violations, w.Ref())
		}
	}
	if len(violations) > 0 {
		return record.TransactionRejected{Violations: violations}
	}
	for i := range writes {
		s.put(writes[i].Keyspace, &writes[i].Record)
	}
	return nil
}

// Purge physically removes a record, the way a store's TTL reaper would
func (s *Store) Purge(keyspace record.Keyspace, key record.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[keyspace]; ok {
		delete(t, key)
	}
	if t, ok := s.indexed[keyspace]; ok {
		delete(t, key)
	}
}

// FlushIndex brings the aggregation index fully up to date
func (s *Store) FlushIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		s.applyOldestIndexUpdate()
	}
}

// All returns every record in a keyspace, sorted by key
func (s *Store) All(keyspace record.Keyspace) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []record.Record
	for _, r := range s.tables[keyspace] {
		all = append(all, r.Copy())
	}
	record.SortByKey(all)
	return all
}

// History returns every timestamp ever successfully written to a key, in write order
func (s *Store) History(keyspace record.Keyspace, key record.Key) []metadata.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[record.KeyRef{Keyspace: keyspace, Key: key}]
	return append([]metadata.Timestamp(nil), h...)
}

// live returns the stored record, dropping it first if it has expired. Must hold mu.
func (s *Store) live(source map[record.Keyspace]table, keyspace record.Keyspace, key record.Key) *record.Record {
	t, ok := source[keyspace]
	if !ok {
		return nil
	}
	existing, ok := t[key]
	if !ok {
		return nil
	}
	if existing.IsExpired(s.getUTC()) {
		delete(t, key)
		return nil
	}
	return &existing
}

// put stores a copy and schedules the index update. Must hold mu.
func (s *Store) put(keyspace record.Keyspace, rec *record.Record) {
	t, ok := s.tables[keyspace]
	if !ok {
		t = make(table)
		s.tables[keyspace] = t
	}
	stored := rec.Copy()
	t[rec.Key] = stored
	ref := record.KeyRef{Keyspace: keyspace, Key: rec.Key}
	s.history[ref] = append(s.history[ref], rec.Timestamp)

	s.pending = append(s.pending, pendingIndexUpdate{keyspace: keyspace, rec: stored.Copy()})
	for uint(len(s.pending)) > s.indexLag {
		s.applyOldestIndexUpdate()
	}
}

func (s *Store) applyOldestIndexUpdate() {
	update := s.pending[0]
	s.pending = s.pending[1:]
	t, ok := s.indexed[update.keyspace]
	if !ok {
		t = make(table)
		s.indexed[update.keyspace] = t
	}
	t[update.rec.Key] = update.rec
}
