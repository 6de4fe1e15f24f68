package record

import (
	"context"
	"fmt"
	"strings"
)

// Store is the minimal capability the coordination algorithms need from a key-value store.
//
// Expected outcomes (a miss, a failed predicate) come back as the typed errors below;
// faults of the underlying store come back as Unavailable, and records that cannot be
// decoded as CorruptRecord.
type Store interface {

	// Get retrieves a single Record, including soft-deleted ones.
	//
	// Errors with NotFound if nothing is stored under the key
	Get(ctx context.Context, keyspace Keyspace, key Key, consistency Consistency) (*Record, error)

	// QueryByAggregationKey returns the Records currently believed to belong to one parent,
	// including soft-deleted ones.
	//
	// The result may be stale or incomplete when read with Eventual consistency; callers
	// must not assume completeness.
	QueryByAggregationKey(ctx context.Context, keyspace Keyspace, aggregationKey AggregationKey, consistency Consistency) ([]Record, error)

	// ConditionalWrite writes the Record if, and only if, the predicate holds against what
	// is currently stored under its key.
	//
	// Errors with PredicateFailed if the predicate does not hold
	ConditionalWrite(ctx context.Context, keyspace Keyspace, rec *Record, predicate Predicate) error
}

// Transactor writes several independently-keyed Records all-or-nothing.
type Transactor interface {

	// AtomicMultiWrite commits every Write, or none of them.
	//
	// Errors with TransactionRejected, naming the Writes whose predicates failed, if any
	// predicate does not hold
	AtomicMultiWrite(ctx context.Context, writes []Write) error
}

// TransactionalStore is a Store that can also do atomic multi-writes
type TransactionalStore interface {
	Store
	Transactor
}

// <-- Domain Errors

// NotFound is returned when nothing is stored under a key
type NotFound struct {
	Keyspace Keyspace
	Key      Key
}

func (e NotFound) Error() string {
	return fmt.Sprintf("Could not find [%v] in [%v]", e.Key, e.Keyspace)
}

// PredicateFailed is returned when a conditional write's predicate does not hold.
//
// This is an expected conflict, not a fault.
type PredicateFailed struct {
	Keyspace Keyspace
	Key      Key
}

func (e PredicateFailed) Error() string {
	return fmt.Sprintf("Condition failed for [%v] in [%v]", e.Key, e.Keyspace)
}

// TransactionRejected is returned when an atomic multi-write did not commit because
// one or more predicates did not hold. Nothing was written.
//
// Violations is empty when the store only knows the write lost to a concurrent one; the
// caller has to read the keys back to find which are taken.
type TransactionRejected struct {
	Violations []KeyRef
}

func (e TransactionRejected) Error() string {
	refs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		refs = append(refs, fmt.Sprintf("%v/%v", v.Keyspace, v.Key))
	}
	return fmt.Sprintf("Transaction rejected, conditions failed for [%s]", strings.Join(refs, ", "))
}

// Unavailable is returned when the store could not complete an operation. The whole
// creation or reconciliation call can be retried from scratch.
type Unavailable struct {
	Underlying error
}

func (e Unavailable) Error() string {
	return fmt.Sprintf("Store unavailable: %v", e.Underlying)
}

func (e Unavailable) Unwrap() error {
	return e.Underlying
}

// CorruptRecord is returned when persisted data cannot be interpreted. It is fatal: acting
// on it could break the monotonic timestamp invariant.
type CorruptRecord struct {
	Keyspace Keyspace
	Key      Key
	Reason   string
}

func (e CorruptRecord) Error() string {
	return fmt.Sprintf("Corrupt record [%v] in [%v]: %s", e.Key, e.Keyspace, e.Reason)
}

// InvalidInput is returned when a caller passes something that can never succeed
type InvalidInput struct {
	Reason string
}

func (e InvalidInput) Error() string {
	return fmt.Sprintf("Invalid input: %s", e.Reason)
}

// UnknownKeyspace is returned when a Keyspace has no configured schema
type UnknownKeyspace struct {
	Keyspace Keyspace
}

func (e UnknownKeyspace) Error() string {
	return fmt.Sprintf("Unknown keyspace [%v]", e.Keyspace)
}

// UnsupportedCapability is returned when a binding cannot provide an operation
type UnsupportedCapability struct {
	Backend    string
	Capability string
}

func (e UnsupportedCapability) Error() string {
	return fmt.Sprintf("Backend [%s] does not support [%s]", e.Backend, e.Capability)
}

//     Errors -->
