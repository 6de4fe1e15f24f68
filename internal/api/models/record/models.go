// record holds the API model of a persisted record
package record

import (
	"time"

	"github.com/lloydmeta/settle/internal/domain/record"
)

type Record struct {
	Keyspace       string            `json:"keyspace"`
	Key            string            `json:"key"`
	AggregationKey string            `json:"aggregation_key,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	// Epoch millis of the event that last wrote the record
	Timestamp int64      `json:"timestamp"`
	IsDeleted bool       `json:"is_deleted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" format:"date-time"`
}

func FromDomainRecord(keyspace record.Keyspace, r *record.Record) Record {
	var expiresAt *time.Time
	if r.ExpiresAt != nil {
		t := time.Time(*r.ExpiresAt)
		expiresAt = &t
	}
	return Record{
		Keyspace:       string(keyspace),
		Key:            string(r.Key),
		AggregationKey: string(r.AggregationKey),
		Attributes:     r.Attributes,
		Timestamp:      int64(r.Timestamp),
		IsDeleted:      bool(r.IsDeleted),
		ExpiresAt:      expiresAt,
	}
}

func FromDomainRecords(keyspace record.Keyspace, records []record.Record) []Record {
	apiRecords := make([]Record, 0, len(records))
	for i := range records {
		apiRecords = append(apiRecords, FromDomainRecord(keyspace, &records[i]))
	}
	return apiRecords
}
