// reconcile holds the API models of a reconciliation pass: the snapshot of children a parent
// should have as of an event, and the per-record report
package reconcile

import (
	"time"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
)

type Snapshot struct {
	// Epoch millis of the event that produced this snapshot
	EventTimestamp int64 `json:"event_timestamp" binding:"required,gt=0" example:"1583064000000"`
	// An empty list deletes every child
	Records []DesiredRecord `json:"records" binding:"dive"`
}

// DesiredRecord without a Key has it derived from its attributes through the keyspace schema
type DesiredRecord struct {
	Key        string            `json:"key,omitempty" example:"v1<<>>g1"`
	Attributes map[string]string `json:"attributes,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty" format:"date-time"`
}

type RecordReport struct {
	Key      string `json:"key"`
	Mutation string `json:"mutation" example:"add"`
	Outcome  string `json:"outcome" example:"committed"`
	Attempts uint   `json:"attempts"`
	Reason   string `json:"reason,omitempty" example:"vanished"`
}

type Report struct {
	Keyspace       string         `json:"keyspace"`
	AggregationKey string         `json:"aggregation_key"`
	EventTimestamp int64          `json:"event_timestamp"`
	Records        []RecordReport `json:"records"`
	Committed      int            `json:"committed"`
	Superseded     int            `json:"superseded"`
	Abandoned      int            `json:"abandoned"`
}

func (s *Snapshot) DomainEventTimestamp() metadata.Timestamp {
	return metadata.Timestamp(s.EventTimestamp)
}

// ToDomainRecord builds the desired record, deriving its key with derive when none is given
func (d *DesiredRecord) ToDomainRecord(derive func(record.Attributes) (record.Key, error)) (record.Record, error) {
	r := record.Record{
		Key:        record.Key(d.Key),
		Attributes: record.Attributes(d.Attributes),
	}
	if r.Key == "" {
		key, err := derive(r.Attributes)
		if err != nil {
			return r, err
		}
		r.Key = key
	}
	if d.ExpiresAt != nil {
		expiresAt := metadata.ExpiresAt(d.ExpiresAt.UTC())
		r.ExpiresAt = &expiresAt
	}
	return r, nil
}

func FromDomainReport(report *reconcile.Report) Report {
	records := make([]RecordReport, 0, len(report.Records))
	for _, rr := range report.Records {
		records = append(records, RecordReport{
			Key:      string(rr.Key),
			Mutation: string(rr.Mutation),
			Outcome:  string(rr.Outcome),
			Attempts: rr.Attempts,
			Reason:   string(rr.Reason),
		})
	}
	return Report{
		Keyspace:       string(report.Keyspace),
		AggregationKey: string(report.AggregationKey),
		EventTimestamp: int64(report.EventTimestamp),
		Records:        records,
		Committed:      report.Count(reconcile.Committed),
		Superseded:     report.Count(reconcile.Superseded),
		Abandoned:      report.Count(reconcile.Abandoned),
	}
}
