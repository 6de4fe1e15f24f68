// storage opens the configured Storage Port binding
package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/dynamo"
	"github.com/lloydmeta/settle/internal/infra/elasticsearch/common"
	esrecord "github.com/lloydmeta/settle/internal/infra/elasticsearch/record"
	"github.com/lloydmeta/settle/internal/infra/memory"
	"github.com/lloydmeta/settle/internal/infra/pebble"
)

// Backend is an opened binding.
//
// Only the client of the configured backend is set.
type Backend struct {
	Kind  config.Backend
	Store record.Store
	// nil when the binding cannot write atomically across keys
	Transactor record.Transactor

	Elasticsearch      *elasticsearch.Client
	ElasticsearchStore *esrecord.EsStore
	DynamoDB           *dynamodb.Client

	closers []func() error
}

// Open builds the binding described by conf. An empty backend means memory.
func Open(ctx context.Context, conf config.Store) (*Backend, error) {
	kind := conf.Backend
	if kind == "" {
		kind = config.MemoryBackend
	}
	b := Backend{Kind: kind}
	switch kind {
	case config.MemoryBackend:
		var lag uint
		if conf.Memory != nil {
			lag = conf.Memory.IndexLag
		}
		s := memory.NewStore(lag)
		b.Store = s
		b.Transactor = s
	case config.PebbleBackend:
		if conf.Pebble == nil {
			return nil, missingSection(kind)
		}
		s, err := pebble.Open(*conf.Pebble)
		if err != nil {
			return nil, err
		}
		b.Store = s
		b.Transactor = s
		b.closers = append(b.closers, s.Close)
	case config.DynamoDBBackend:
		if conf.DynamoDB == nil {
			return nil, missingSection(kind)
		}
		client, err := dynamo.NewClient(ctx, *conf.DynamoDB)
		if err != nil {
			return nil, err
		}
		s := dynamo.NewStore(client, *conf.DynamoDB)
		b.DynamoDB = client
		b.Store = s
		b.Transactor = s
	case config.ElasticsearchBackend:
		if conf.Elasticsearch == nil {
			return nil, missingSection(kind)
		}
		client, err := common.NewClient(*conf.Elasticsearch)
		if err != nil {
			return nil, err
		}
		s := esrecord.NewStore(client, *conf.Elasticsearch)
		b.Elasticsearch = client
		b.ElasticsearchStore = s
		b.Store = s
	default:
		return nil, fmt.Errorf("unknown store backend [%s]", kind)
	}
	log.Info().Str("backend", string(kind)).Bool("transactional", b.Transactor != nil).Msg("Opened store")
	return &b, nil
}

// TransactionalStore returns the binding as a full Storage Port, or UnsupportedCapability
// when it has no atomic multi-write
func (b *Backend) TransactionalStore() (record.TransactionalStore, error) {
	if b.Transactor == nil {
		return nil, record.UnsupportedCapability{Backend: string(b.Kind), Capability: "atomic multi-write"}
	}
	return transactionalStore{Store: b.Store, Transactor: b.Transactor}, nil
}

func (b *Backend) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type transactionalStore struct {
	record.Store
	record.Transactor
}

func missingSection(kind config.Backend) error {
	return fmt.Errorf("store backend [%s] is selected but its config section is missing", kind)
}

// NewSchema builds the key derivations of the configured keyspaces
func NewSchema(keyspaces []config.Keyspace) (record.Schema, error) {
	schema := make(record.Schema, len(keyspaces))
	for _, ks := range keyspaces {
		name, err := record.KeyspaceFromString(ks.Name)
		if err != nil {
			return nil, record.InvalidInput{Reason: err.Error()}
		}
		if _, dup := schema[name]; dup {
			return nil, record.InvalidInput{Reason: fmt.Sprintf("keyspace [%s] is configured more than once", ks.Name)}
		}
		derivation := record.KeyDerivation{Keyspace: name, Attributes: ks.KeyAttributes}
		if ks.Separator != nil {
			derivation.Separator = *ks.Separator
		}
		schema[name] = derivation
	}
	return schema, nil
}

// Keyspaces lists the schema's keyspaces in configuration order
func Keyspaces(keyspaces []config.Keyspace) []record.Keyspace {
	names := make([]record.Keyspace, 0, len(keyspaces))
	for _, ks := range keyspaces {
		names = append(names, record.Keyspace(ks.Name))
	}
	return names
}

// NewReconcileSettings maps config onto engine settings; zero values take the engine defaults
func NewReconcileSettings(conf config.Reconcile) (reconcile.Settings, error) {
	settings := reconcile.Settings{
		MaxAttempts: conf.MaxAttempts,
		OnVanished:  reconcile.VanishedPolicy(conf.OnVanished),
		Parallelism: conf.Parallelism,
	}
	switch settings.OnVanished {
	case "", reconcile.AbandonVanished, reconcile.ResurrectVanished:
		return settings, nil
	default:
		return settings, record.InvalidInput{Reason: fmt.Sprintf("unknown on_vanished policy [%s]", conf.OnVanished)}
	}
}
