// uniqueness makes the creation of one logical entity atomic across several mirrored
// Keyspaces, each enforcing uniqueness of a different derived key.
package uniqueness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
)

// Entity is the logical thing being created; one mirror Record per Keyspace is written for it
type Entity struct {
	Attributes     record.Attributes
	AggregationKey record.AggregationKey
	// Zero means "now"
	Timestamp metadata.Timestamp
	ExpiresAt *metadata.ExpiresAt
}

// Result of a creation attempt. A rejection is an expected outcome, not an error.
type Result struct {
	Created       bool
	KeyMappings   []record.KeyRef
	ViolatingKeys []record.KeyRef
}

// Observer is told about every creation outcome
type Observer interface {
	ObserveCreate(result *Result)
}

type Coordinator interface {

	// Create writes one mirror Record per key mapping, all-or-nothing, each guarded by a
	// "key must not already exist" predicate.
	//
	// Returns a non-created Result naming the keys that already existed if any did; in that
	// case no mirror was written. Rejections are never retried here.
	Create(ctx context.Context, entity *Entity, keyMappings []record.KeyRef) (*Result, error)

	// CreateInKeyspaces derives the key for each Keyspace from the entity's attributes using
	// the configured Schema, then behaves like Create
	CreateInKeyspaces(ctx context.Context, entity *Entity, keyspaces []record.Keyspace) (*Result, error)
}

var errConflictNoWinner = errors.New("cancelled by a concurrent write that did not commit either")

type impl struct {
	transactor record.Transactor
	reader     record.Store
	schema     record.Schema
	observer   Observer
	getUTC     func() time.Time // for mocking
}

// NewCoordinator returns a Coordinator writing through the given TransactionalStore.
//
// observer may be nil
func NewCoordinator(store record.TransactionalStore, schema record.Schema, observer Observer) Coordinator {
	return &impl{
		transactor: store,
		reader:     store,
		schema:     schema,
		observer:   observer,
		getUTC: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *impl) CreateInKeyspaces(ctx context.Context, entity *Entity, keyspaces []record.Keyspace) (*Result, error) {
	keyMappings := make([]record.KeyRef, 0, len(keyspaces))
	for _, keyspace := range keyspaces {
		derivation, err := c.schema.Derivation(keyspace)
		if err != nil {
			return nil, err
		}
		key, err := derivation.Derive(entity.Attributes)
		if err != nil {
			return nil, err
		}
		keyMappings = append(keyMappings, record.KeyRef{Keyspace: keyspace, Key: key})
	}
	return c.Create(ctx, entity, keyMappings)
}

func (c *impl) Create(ctx context.Context, entity *Entity, keyMappings []record.KeyRef) (*Result, error) {
	if err := validateKeyMappings(keyMappings); err != nil {
		return nil, err
	}
	ts := entity.Timestamp
	if ts == 0 {
		ts = metadata.TimestampFromTime(c.getUTC())
	}
	if err := ts.Validate(); err != nil {
		return nil, record.InvalidInput{Reason: err.Error()}
	}

	writes := make([]record.Write, 0, len(keyMappings))
	for _, mapping := range keyMappings {
		mirror := record.Record{
			Key:            mapping.Key,
			AggregationKey: entity.AggregationKey,
			Attributes:     entity.Attributes,
			Timestamp:      ts,
			IsDeleted:      false,
			ExpiresAt:      entity.ExpiresAt,
		}
		writes = append(writes, record.Write{
			Keyspace:  mapping.Keyspace,
			Record:    mirror.Copy(),
			Predicate: record.NotExists(),
		})
	}

	err := c.transactor.AtomicMultiWrite(ctx, writes)
	var rejected record.TransactionRejected
	switch {
	case err == nil:
		result := &Result{Created: true, KeyMappings: keyMappings}
		log.Debug().Interface("key_mappings", keyMappings).Msg("Created entity mirrors")
		c.observe(result)
		return result, nil
	case errors.As(err, &rejected):
		violations := rejected.Violations
		if len(violations) == 0 {
			// The binding could not tell which condition failed
			found, readErr := c.findExisting(ctx, keyMappings)
			if readErr != nil {
				return nil, readErr
			}
			if len(found) == 0 {
				// Every competing write was cancelled too; nothing holds the keys
				return nil, record.Unavailable{Underlying: errConflictNoWinner}
			}
			violations = found
		}
		result := &Result{Created: false, KeyMappings: keyMappings, ViolatingKeys: violations}
		log.Info().Interface("violating_keys", violations).Msg("Entity creation rejected, keys already exist")
		c.observe(result)
		return result, nil
	default:
		return nil, err
	}
}

// findExisting does strong point reads to find which of the keys are taken
func (c *impl) findExisting(ctx context.Context, keyMappings []record.KeyRef) ([]record.KeyRef, error) {
	var existing []record.KeyRef
	for _, mapping := range keyMappings {
		_, err := c.reader.Get(ctx, mapping.Keyspace, mapping.Key, record.Strong)
		var notFound record.NotFound
		switch {
		case err == nil:
			existing = append(existing, mapping)
		case errors.As(err, &notFound):
		default:
			return nil, err
		}
	}
	return existing, nil
}

func (c *impl) observe(result *Result) {
	if c.observer != nil {
		c.observer.ObserveCreate(result)
	}
}

func validateKeyMappings(keyMappings []record.KeyRef) error {
	if len(keyMappings) == 0 {
		return record.InvalidInput{Reason: "at least one key mapping is required"}
	}
	seen := make(map[record.Keyspace]struct{}, len(keyMappings))
	for _, mapping := range keyMappings {
		if mapping.Keyspace == "" || mapping.Key == "" {
			return record.InvalidInput{Reason: "key mappings need both a keyspace and a key"}
		}
		if _, dup := seen[mapping.Keyspace]; dup {
			return record.InvalidInput{Reason: fmt.Sprintf("keyspace [%v] mapped more than once", mapping.Keyspace)}
		}
		seen[mapping.Keyspace] = struct{}{}
	}
	return nil
}
