package record

import (
	"fmt"

	"github.com/lloydmeta/settle/internal/domain/metadata"
)

type predicateKind uint8

const (
	notExists predicateKind = iota
	notExistsOrOlderThan
)

// Predicate is a condition over the currently stored state of one primary key.
//
// Only the two conditions the coordination algorithms need are expressible, so that every
// binding can translate them natively (a DynamoDB ConditionExpression, an ES op_type or
// external version, or an in-process check).
type Predicate struct {
	kind      predicateKind
	olderThan metadata.Timestamp
}

// NotExists holds only if nothing is stored under the key
func NotExists() Predicate {
	return Predicate{kind: notExists}
}

// NotExistsOrOlderThan holds if nothing is stored under the key, or if the stored
// timestamp is strictly lower than ts
func NotExistsOrOlderThan(ts metadata.Timestamp) Predicate {
	return Predicate{kind: notExistsOrOlderThan, olderThan: ts}
}

// RequiresAbsence returns true for NotExists predicates
func (p Predicate) RequiresAbsence() bool {
	return p.kind == notExists
}

// OlderThan returns the Timestamp a stored record must be strictly older than,
// and false for NotExists predicates
func (p Predicate) OlderThan() (metadata.Timestamp, bool) {
	return p.olderThan, p.kind == notExistsOrOlderThan
}

// Holds evaluates the predicate against what is currently stored. existing is nil when
// nothing is stored.
func (p Predicate) Holds(existing *Record) bool {
	if existing == nil {
		return true
	}
	switch p.kind {
	case notExistsOrOlderThan:
		return existing.Timestamp.Before(p.olderThan)
	default:
		return false
	}
}

func (p Predicate) String() string {
	switch p.kind {
	case notExistsOrOlderThan:
		return fmt.Sprintf("not_exists OR timestamp < %v", p.olderThan)
	default:
		return "not_exists"
	}
}

// Write is one member of an atomic multi-write
type Write struct {
	Keyspace  Keyspace
	Record    Record
	Predicate Predicate
}

func (w *Write) Ref() KeyRef {
	return KeyRef{Keyspace: w.Keyspace, Key: w.Record.Key}
}
