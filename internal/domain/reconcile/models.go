package reconcile

import (
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

// Mutation is what a reconciliation pass wants to do to one Record
type Mutation string

const (
	Add    Mutation = "add"
	Update Mutation = "update"
	Delete Mutation = "delete"
)

// Outcome is where a Record's mutation ended up.
//
// Every mutation starts out pending and finishes in exactly one of these.
type Outcome string

const (
	// The conditional write succeeded
	Committed Outcome = "committed"
	// A write carrying an equal or newer event timestamp is already stored
	Superseded Outcome = "superseded"
	// The mutation was dropped: the record vanished mid-retry, or retries ran out
	Abandoned Outcome = "abandoned"
)

// Reason qualifies an Abandoned outcome
type Reason string

const (
	NoReason         Reason = ""
	Vanished         Reason = "vanished"
	RetriesExhausted Reason = "retries_exhausted"
)

// VanishedPolicy decides what happens when a record is found absent after its conditional
// write failed (a concurrent deletion, reassignment, or expiry raced the pass)
type VanishedPolicy string

const (
	// Drop the mutation
	AbandonVanished VanishedPolicy = "abandon"
	// Retry adds and updates as if the record had never existed. Deletions are still dropped.
	ResurrectVanished VanishedPolicy = "resurrect"
)

type RecordReport struct {
	Key      record.Key
	Mutation Mutation
	Outcome  Outcome
	Attempts uint
	Reason   Reason
}

// Report holds the per-record outcomes of one reconciliation pass, sorted by Key
type Report struct {
	Keyspace       record.Keyspace
	AggregationKey record.AggregationKey
	EventTimestamp metadata.Timestamp
	Records        []RecordReport
}

// Count returns how many records ended in the given Outcome
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, rr := range r.Records {
		if rr.Outcome == outcome {
			n++
		}
	}
	return n
}

// Outcomes indexes the report by Key
func (r *Report) Outcomes() map[record.Key]Outcome {
	m := make(map[record.Key]Outcome, len(r.Records))
	for _, rr := range r.Records {
		m[rr.Key] = rr.Outcome
	}
	return m
}

// Settings tune the apply loop
type Settings struct {
	// Upper bound on conditional write attempts per record
	MaxAttempts uint
	OnVanished  VanishedPolicy
	// How many records are applied concurrently
	Parallelism uint
}

func DefaultSettings() Settings {
	return Settings{
		MaxAttempts: 5,
		OnVanished:  AbandonVanished,
		Parallelism: 1,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxAttempts == 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.OnVanished == "" {
		s.OnVanished = d.OnVanished
	}
	if s.Parallelism == 0 {
		s.Parallelism = d.Parallelism
	}
	return s
}

// Observer is told about every finished record and every finished pass
type Observer interface {
	ObserveRecord(keyspace record.Keyspace, report *RecordReport)
	ObservePass(keyspace record.Keyspace, report *Report, err error)
}
