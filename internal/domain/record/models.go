package record

import (
	"sort"
	"time"

	"github.com/lloydmeta/settle/internal/domain/metadata"
)

// Keyspace is an independently primary-keyed collection of Records
type Keyspace string

// Key is a primary key, unique within its Keyspace
type Key string

// AggregationKey is a non-unique attribute used to retrieve all children of one parent.
//
// Reads by AggregationKey are only eventually consistent.
type AggregationKey string

// Attributes are the named scalar attributes of a Record
type Attributes map[string]string

// Record is a single named entity instance as persisted in one Keyspace.
//
// Records are never physically removed by this codebase: deletion is represented
// by IsDeleted plus a newer Timestamp, so that the timestamp survives for later
// conflict comparisons.
type Record struct {
	Key            Key
	AggregationKey AggregationKey
	Attributes     Attributes
	Timestamp      metadata.Timestamp
	IsDeleted      metadata.IsDeleted
	ExpiresAt      *metadata.ExpiresAt
}

// KeyRef names one Record across Keyspaces
type KeyRef struct {
	Keyspace Keyspace
	Key      Key
}

// Copy returns a deep copy so callers can mutate the result without sharing attribute maps
func (r *Record) Copy() Record {
	c := *r
	if r.Attributes != nil {
		c.Attributes = make(Attributes, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	if r.ExpiresAt != nil {
		e := *r.ExpiresAt
		c.ExpiresAt = &e
	}
	return c
}

// IsExpired returns true if the Record has an expiry that is not after now
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !time.Time(*r.ExpiresAt).After(now)
}

// IntoDeleted turns the Record into its soft-deleted form at the given Timestamp,
// leaving every other attribute untouched.
func (r *Record) IntoDeleted(at metadata.Timestamp) {
	r.IsDeleted = true
	r.Timestamp = at
}

// SortByKey sorts Records in place by Key
func SortByKey(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
}

// Consistency selects how fresh a read must be
type Consistency uint8

const (
	// Eventual reads may miss recent writes
	Eventual Consistency = iota
	// Strong reads reflect every write acknowledged before the read started
	Strong
)

func (c Consistency) String() string {
	switch c {
	case Strong:
		return "strong"
	default:
		return "eventual"
	}
}
