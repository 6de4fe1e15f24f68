package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/uniqueness"
)

func int64Ptr(i int64) *int64 {
	return &i
}

func TestNewEntity_ToDomainEntity(t *testing.T) {
	expiry := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	domainExpiry := metadata.ExpiresAt(expiry)
	tests := []struct {
		name   string
		entity NewEntity
		want   uniqueness.Entity
	}{
		{
			"should leave the timestamp for the coordinator to default",
			NewEntity{
				Attributes: map[string]string{"poid": "p1"},
			},
			uniqueness.Entity{
				Attributes: record.Attributes{"poid": "p1"},
			},
		},
		{
			"should carry every field",
			NewEntity{
				Attributes:     map[string]string{"poid": "p1"},
				AggregationKey: "p1",
				Timestamp:      int64Ptr(1500),
				ExpiresAt:      &expiry,
			},
			uniqueness.Entity{
				Attributes:     record.Attributes{"poid": "p1"},
				AggregationKey: "p1",
				Timestamp:      1500,
				ExpiresAt:      &domainExpiry,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entity.ToDomainEntity())
		})
	}
}

func TestNewEntity_domain_keys(t *testing.T) {
	e := NewEntity{
		Keyspaces:   []string{"a", "b"},
		KeyMappings: []common.KeyRef{{Keyspace: "a", Key: "k"}},
	}
	assert.Equal(t, []record.Keyspace{"a", "b"}, e.DomainKeyspaces())
	assert.Equal(t, []record.KeyRef{{Keyspace: "a", Key: "k"}}, e.DomainKeyMappings())
}

func TestFromDomainResult(t *testing.T) {
	result := uniqueness.Result{
		Created:     true,
		KeyMappings: []record.KeyRef{{Keyspace: "a", Key: "k"}},
	}
	assert.Equal(t, Created{Created: true, KeyMappings: []common.KeyRef{{Keyspace: "a", Key: "k"}}}, FromDomainResult(&result))
}
