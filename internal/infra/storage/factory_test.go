package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
)

var ctx = context.Background()

func TestOpen_memory_by_default(t *testing.T) {
	b, err := Open(ctx, config.Store{})
	require.NoError(t, err)
	assert.Equal(t, config.MemoryBackend, b.Kind)
	store, err := b.TransactionalStore()
	require.NoError(t, err)

	r := record.Record{Key: "a", Timestamp: 1}
	require.NoError(t, store.AtomicMultiWrite(ctx, []record.Write{{Keyspace: "ks", Record: r, Predicate: record.NotExists()}}))
	got, err := store.Get(ctx, "ks", "a", record.Strong)
	require.NoError(t, err)
	assert.Equal(t, r, *got)
	assert.NoError(t, b.Close())
}

func TestOpen_pebble_in_memory(t *testing.T) {
	b, err := Open(ctx, config.Store{Backend: config.PebbleBackend, Pebble: &config.Pebble{InMemory: true}})
	require.NoError(t, err)
	_, err = b.TransactionalStore()
	assert.NoError(t, err)
	assert.NoError(t, b.Close())
}

func TestOpen_elasticsearch_has_no_transactor(t *testing.T) {
	b, err := Open(ctx, config.Store{
		Backend:       config.ElasticsearchBackend,
		Elasticsearch: &config.ElasticsearchClient{Addresses: []string{"http://localhost:9200"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, b.Elasticsearch)
	_, err = b.TransactionalStore()
	assert.Equal(t, record.UnsupportedCapability{Backend: "elasticsearch", Capability: "atomic multi-write"}, err)
}

func TestOpen_errors(t *testing.T) {
	_, err := Open(ctx, config.Store{Backend: config.DynamoDBBackend})
	assert.Error(t, err)
	_, err = Open(ctx, config.Store{Backend: "cassandra"})
	assert.Error(t, err)
}

func TestNewSchema(t *testing.T) {
	sep := "|"
	schema, err := NewSchema([]config.Keyspace{
		{Name: "by_gk", KeyAttributes: []string{"poid", "gk"}},
		{Name: "by_geid", KeyAttributes: []string{"poid", "geid"}, Separator: &sep},
	})
	require.NoError(t, err)
	d, err := schema.Derivation("by_geid")
	require.NoError(t, err)
	key, err := d.Derive(record.Attributes{"poid": "p", "geid": "g"})
	require.NoError(t, err)
	assert.EqualValues(t, "p|g", key)

	_, err = NewSchema([]config.Keyspace{{Name: "a"}, {Name: "a"}})
	assert.IsType(t, record.InvalidInput{}, err)
	_, err = NewSchema([]config.Keyspace{{}})
	assert.IsType(t, record.InvalidInput{}, err)
}

func TestKeyspaces(t *testing.T) {
	assert.Equal(t, []record.Keyspace{"b", "a"}, Keyspaces([]config.Keyspace{{Name: "b"}, {Name: "a"}}))
}

func TestNewReconcileSettings(t *testing.T) {
	settings, err := NewReconcileSettings(config.Reconcile{MaxAttempts: 3, OnVanished: "resurrect", Parallelism: 8})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Settings{MaxAttempts: 3, OnVanished: reconcile.ResurrectVanished, Parallelism: 8}, settings)

	_, err = NewReconcileSettings(config.Reconcile{OnVanished: "ignore"})
	assert.IsType(t, record.InvalidInput{}, err)
}
