// entity holds the API models for creating an entity mirrored into several keyspaces
package entity

import (
	"time"

	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/uniqueness"
)

// NewEntity is created in either the listed Keyspaces, with keys derived from its attributes,
// or under explicit KeyMappings. Exactly one of the two must be set.
type NewEntity struct {
	Attributes     map[string]string `json:"attributes" binding:"required"`
	AggregationKey string            `json:"aggregation_key,omitempty" example:"p1"`
	// Epoch millis; defaults to now
	Timestamp   *int64          `json:"timestamp,omitempty" binding:"omitempty,gt=0" example:"1583064000000"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty" format:"date-time"`
	Keyspaces   []string        `json:"keyspaces,omitempty" binding:"omitempty,dive,keyspace" example:"order_by_poid_gk,order_by_poid_geid"`
	KeyMappings []common.KeyRef `json:"key_mappings,omitempty" binding:"omitempty,dive"`
}

type Created struct {
	Created     bool            `json:"created"`
	KeyMappings []common.KeyRef `json:"key_mappings"`
}

func (e *NewEntity) ToDomainEntity() uniqueness.Entity {
	entity := uniqueness.Entity{
		Attributes:     record.Attributes(e.Attributes),
		AggregationKey: record.AggregationKey(e.AggregationKey),
	}
	if e.Timestamp != nil {
		entity.Timestamp = metadata.Timestamp(*e.Timestamp)
	}
	if e.ExpiresAt != nil {
		expiresAt := metadata.ExpiresAt(e.ExpiresAt.UTC())
		entity.ExpiresAt = &expiresAt
	}
	return entity
}

func (e *NewEntity) DomainKeyspaces() []record.Keyspace {
	keyspaces := make([]record.Keyspace, 0, len(e.Keyspaces))
	for _, ks := range e.Keyspaces {
		keyspaces = append(keyspaces, record.Keyspace(ks))
	}
	return keyspaces
}

func (e *NewEntity) DomainKeyMappings() []record.KeyRef {
	refs := make([]record.KeyRef, 0, len(e.KeyMappings))
	for _, m := range e.KeyMappings {
		refs = append(refs, m.ToDomain())
	}
	return refs
}

func FromDomainResult(result *uniqueness.Result) Created {
	return Created{
		Created:     result.Created,
		KeyMappings: common.FromDomainKeyRefs(result.KeyMappings),
	}
}
