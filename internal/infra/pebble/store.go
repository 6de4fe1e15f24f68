// pebble binds the Storage Port to an embedded Pebble LSM.
//
// Records live under "r\x00<keyspace>\x00<key>" and the aggregation index under
// "a\x00<keyspace>\x00<aggregation key>\x00<key>". Every write reads the current state,
// evaluates its predicates and commits the record and index changes in one batch, under a
// single writer lock. Reads always see the latest committed batch.
package pebble

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog/log"
	"github.com/ugorji/go/codec"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

const (
	recordPrefix = 'r'
	indexPrefix  = 'a'
	sep          = 0
)

type Store struct {
	db *pebble.DB
	// the single writer
	mu     sync.Mutex
	mh     codec.MsgpackHandle
	getUTC func() time.Time // for mocking
}

// Open opens, or creates, the store described by conf
func Open(conf config.Pebble) (*Store, error) {
	opts := pebble.Options{}
	dir := conf.Dir
	if conf.InMemory {
		opts.FS = vfs.NewMem()
		if dir == "" {
			dir = "settle"
		}
	}
	return OpenWithOptions(dir, &opts)
}

func OpenWithOptions(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", dir).Msg("Opened pebble store")
	return &Store{
		db: db,
		getUTC: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// For testing
func (s *Store) SetUTCGetter(getter func() time.Time) {
	s.getUTC = getter
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get ignores consistency: an embedded engine always reads its latest state
func (s *Store) Get(ctx context.Context, keyspace record.Keyspace, key record.Key, consistency record.Consistency) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	r, err := s.load(keyspace, key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, record.NotFound{Keyspace: keyspace, Key: key}
	}
	return r, nil
}

func (s *Store) QueryByAggregationKey(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, consistency record.Consistency) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	prefix := indexKeyPrefix(keyspace, aggregationKey)
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	var keys []record.Key
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, record.Key(iter.Key()[len(prefix):]))
	}
	if err := iter.Close(); err != nil {
		return nil, record.Unavailable{Underlying: err}
	}

	var found []record.Record
	for _, key := range keys {
		r, err := s.load(keyspace, key)
		if err != nil {
			return nil, err
		}
		// moved or expired since the iterator was opened
		if r != nil && r.AggregationKey == aggregationKey {
			found = append(found, *r)
		}
	}
	return found, nil
}

func (s *Store) ConditionalWrite(ctx context.Context, keyspace record.Keyspace, rec *record.Record, predicate record.Predicate) error {
	err := s.AtomicMultiWrite(ctx, []record.Write{{Keyspace: keyspace, Record: *rec, Predicate: predicate}})
	if rejected, ok := err.(record.TransactionRejected); ok && len(rejected.Violations) == 1 {
		return record.PredicateFailed{Keyspace: keyspace, Key: rec.Key}
	}
	return err
}

func (s *Store) AtomicMultiWrite(ctx context.Context, writes []record.Write) error {
	if err := ctx.Err(); err != nil {
		return record.Unavailable{Underlying: err}
	}
	for i := range writes {
		if err := validateComponents(&writes[i]); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	var violations []record.KeyRef
	for i := range writes {
		w := &writes[i]
		existing, err := s.load(w.Keyspace, w.Record.Key)
		if err != nil {
			return err
		}
		if !w.Predicate.Holds(existing) {
			violations = append(violations, w.Ref())
			continue
		}
		if err := s.stage(batch, w, existing); err != nil {
			return err
		}
	}
	if len(violations) > 0 {
		return record.TransactionRejected{Violations: violations}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return record.Unavailable{Underlying: err}
	}
	return nil
}

// stage adds the record, and the move of its index entry, to the batch
func (s *Store) stage(batch *pebble.Batch, w *record.Write, existing *record.Record) error {
	value, err := s.encode(&w.Record)
	if err != nil {
		return err
	}
	if err := batch.Set(recordKey(w.Keyspace, w.Record.Key), value, nil); err != nil {
		return record.Unavailable{Underlying: err}
	}
	if existing != nil && existing.AggregationKey != "" && existing.AggregationKey != w.Record.AggregationKey {
		if err := batch.Delete(indexKey(w.Keyspace, existing.AggregationKey, w.Record.Key), nil); err != nil {
			return record.Unavailable{Underlying: err}
		}
	}
	if w.Record.AggregationKey != "" {
		if err := batch.Set(indexKey(w.Keyspace, w.Record.AggregationKey, w.Record.Key), nil, nil); err != nil {
			return record.Unavailable{Underlying: err}
		}
	}
	return nil
}

// load returns nil when nothing live is stored under the key. Expired records count as
// absent; their bytes stay until overwritten.
func (s *Store) load(keyspace record.Keyspace, key record.Key) (*record.Record, error) {
	value, closer, err := s.db.Get(recordKey(keyspace, key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, record.Unavailable{Underlying: err}
	}
	defer closer.Close()
	r, err := s.decode(keyspace, key, value)
	if err != nil {
		return nil, err
	}
	if r.IsExpired(s.getUTC()) {
		return nil, nil
	}
	return r, nil
}

type persistedRecord struct {
	AggregationKey string            `codec:"agg"`
	Attributes     map[string]string `codec:"attrs,omitempty"`
	Timestamp      int64             `codec:"ts"`
	IsDeleted      bool              `codec:"del"`
	// epoch millis
	ExpiresAt *int64 `codec:"exp,omitempty"`
}

func (s *Store) encode(rec *record.Record) ([]byte, error) {
	p := persistedRecord{
		AggregationKey: string(rec.AggregationKey),
		Attributes:     rec.Attributes,
		Timestamp:      int64(rec.Timestamp),
		IsDeleted:      bool(rec.IsDeleted),
	}
	if rec.ExpiresAt != nil {
		millis := int64(metadata.TimestampFromTime(time.Time(*rec.ExpiresAt)))
		p.ExpiresAt = &millis
	}
	var encoded []byte
	enc := codec.NewEncoderBytes(&encoded, &s.mh)
	if err := enc.Encode(&p); err != nil {
		return nil, record.InvalidInput{Reason: fmt.Sprintf("cannot encode record [%v]: %v", rec.Key, err)}
	}
	return encoded, nil
}

func (s *Store) decode(keyspace record.Keyspace, key record.Key, value []byte) (*record.Record, error) {
	var p persistedRecord
	dec := codec.NewDecoderBytes(value, &s.mh)
	if err := dec.Decode(&p); err != nil {
		return nil, record.CorruptRecord{Keyspace: keyspace, Key: key, Reason: err.Error()}
	}
	r := record.Record{
		Key:            key,
		AggregationKey: record.AggregationKey(p.AggregationKey),
		Attributes:     record.Attributes(p.Attributes),
		Timestamp:      metadata.Timestamp(p.Timestamp),
		IsDeleted:      metadata.IsDeleted(p.IsDeleted),
	}
	if p.ExpiresAt != nil {
		e := metadata.ExpiresAt(metadata.Timestamp(*p.ExpiresAt).Time())
		r.ExpiresAt = &e
	}
	return &r, nil
}

func validateComponents(w *record.Write) error {
	for _, component := range []string{string(w.Keyspace), string(w.Record.Key), string(w.Record.AggregationKey)} {
		if strings.IndexByte(component, sep) >= 0 {
			return record.InvalidInput{Reason: fmt.Sprintf("[%q] contains a NUL byte", component)}
		}
	}
	if w.Keyspace == "" || w.Record.Key == "" {
		return record.InvalidInput{Reason: "keyspace and key are required"}
	}
	return nil
}

func recordKey(keyspace record.Keyspace, key record.Key) []byte {
	var b bytes.Buffer
	b.WriteByte(recordPrefix)
	b.WriteByte(sep)
	b.WriteString(string(keyspace))
	b.WriteByte(sep)
	b.WriteString(string(key))
	return b.Bytes()
}

func indexKeyPrefix(keyspace record.Keyspace, aggregationKey record.AggregationKey) []byte {
	var b bytes.Buffer
	b.WriteByte(indexPrefix)
	b.WriteByte(sep)
	b.WriteString(string(keyspace))
	b.WriteByte(sep)
	b.WriteString(string(aggregationKey))
	b.WriteByte(sep)
	return b.Bytes()
}

func indexKey(keyspace record.Keyspace, aggregationKey record.AggregationKey, key record.Key) []byte {
	return append(indexKeyPrefix(keyspace, aggregationKey), key...)
}

// prefixUpperBound returns the smallest key greater than every key starting with prefix.
// prefix always ends with the separator, so bumping the last byte is enough.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	return upper
}
