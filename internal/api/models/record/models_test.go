package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

func TestFromDomainRecords(t *testing.T) {
	expiry := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	domainExpiry := metadata.ExpiresAt(expiry)
	records := []record.Record{
		{Key: "a", AggregationKey: "p", Attributes: record.Attributes{"x": "y"}, Timestamp: 5},
		{Key: "b", Timestamp: 6, IsDeleted: true, ExpiresAt: &domainExpiry},
	}
	assert.Equal(t, []Record{
		{Keyspace: "ks", Key: "a", AggregationKey: "p", Attributes: map[string]string{"x": "y"}, Timestamp: 5},
		{Keyspace: "ks", Key: "b", Timestamp: 6, IsDeleted: true, ExpiresAt: &expiry},
	}, FromDomainRecords("ks", records))
}
