// +build integration

package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/dynamo"
)

func buildStore(t *testing.T, keyspaces ...record.Keyspace) *dynamo.Store {
	setup := dynamo.NewTablesSetup(dynamoClient, dynamoConf, keyspaces)
	if err := setup.Check(context.Background()); err != nil {
		require.IsType(t, dynamo.TablesNotCreated{}, err)
		require.NoError(t, setup.Run(context.Background()))
	}
	require.NoError(t, setup.Check(context.Background()))
	return dynamo.NewStore(dynamoClient, dynamoConf)
}

func Test_Store_ConditionalWrite_Get(t *testing.T) {
	ctx := context.Background()
	store := buildStore(t, "vendor_write")

	rec := record.Record{Key: "v1", AggregationKey: "r1", Attributes: record.Attributes{"pvid": "v1"}, Timestamp: 10}
	require.NoError(t, store.ConditionalWrite(ctx, "vendor_write", &rec, record.NotExists()))
	assert.Equal(t, record.PredicateFailed{Keyspace: "vendor_write", Key: "v1"}, store.ConditionalWrite(ctx, "vendor_write", &rec, record.NotExists()))
	assert.Equal(t, record.PredicateFailed{Keyspace: "vendor_write", Key: "v1"}, store.ConditionalWrite(ctx, "vendor_write", &rec, record.NotExistsOrOlderThan(10)))

	newer := rec.Copy()
	newer.Timestamp = 11
	require.NoError(t, store.ConditionalWrite(ctx, "vendor_write", &newer, record.NotExistsOrOlderThan(11)))

	got, err := store.Get(ctx, "vendor_write", "v1", record.Strong)
	require.NoError(t, err)
	assert.Equal(t, newer, *got)

	_, err = store.Get(ctx, "vendor_write", "nope", record.Strong)
	assert.Equal(t, record.NotFound{Keyspace: "vendor_write", Key: "nope"}, err)
}

func Test_Store_AtomicMultiWrite(t *testing.T) {
	ctx := context.Background()
	store := buildStore(t, "order_by_poid_gk", "order_by_poid_geid")

	taken := record.Record{Key: "p1<<>>e1", Timestamp: 1}
	require.NoError(t, store.ConditionalWrite(ctx, "order_by_poid_geid", &taken, record.NotExists()))

	err := store.AtomicMultiWrite(ctx, []record.Write{
		{Keyspace: "order_by_poid_gk", Record: record.Record{Key: "p1<<>>g1", Timestamp: 2}, Predicate: record.NotExists()},
		{Keyspace: "order_by_poid_geid", Record: record.Record{Key: "p1<<>>e1", Timestamp: 2}, Predicate: record.NotExists()},
	})
	assert.Equal(t, record.TransactionRejected{Violations: []record.KeyRef{{Keyspace: "order_by_poid_geid", Key: "p1<<>>e1"}}}, err)
	_, err = store.Get(ctx, "order_by_poid_gk", "p1<<>>g1", record.Strong)
	assert.IsType(t, record.NotFound{}, err)

	require.NoError(t, store.AtomicMultiWrite(ctx, []record.Write{
		{Keyspace: "order_by_poid_gk", Record: record.Record{Key: "p1<<>>g1", Timestamp: 2}, Predicate: record.NotExists()},
		{Keyspace: "order_by_poid_geid", Record: record.Record{Key: "p1<<>>e2", Timestamp: 2}, Predicate: record.NotExists()},
	}))
}

func Test_Store_QueryByAggregationKey(t *testing.T) {
	ctx := context.Background()
	store := buildStore(t, "vendor_query")

	for _, k := range []record.Key{"a", "b"} {
		rec := record.Record{Key: k, AggregationKey: "r1", Timestamp: 1}
		require.NoError(t, store.ConditionalWrite(ctx, "vendor_query", &rec, record.NotExists()))
	}
	other := record.Record{Key: "c", AggregationKey: "r2", Timestamp: 1}
	require.NoError(t, store.ConditionalWrite(ctx, "vendor_query", &other, record.NotExists()))

	// the aggregation index is only eventually consistent
	assert.Eventually(t, func() bool {
		found, err := store.QueryByAggregationKey(ctx, "vendor_query", "r1", record.Eventual)
		return err == nil && len(found) == 2
	}, 5*time.Second, 100*time.Millisecond)
}
