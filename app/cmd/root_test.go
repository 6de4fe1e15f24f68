package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/settle/internal/config"
)

func Test_initConfig(t *testing.T) {
	if wd, err := os.Getwd(); err != nil {
		t.Error(err)
	} else {
		configFile = wd + "/../../config/settle.example.yaml"
	}
	initConfig()
	require.NotNil(t, appConfig.Store.Elasticsearch)
	assert.EqualValues(t, "passw0rd", appConfig.Store.Elasticsearch.User.Password)
	assert.Equal(t, config.ElasticsearchBackend, appConfig.Store.Backend)
	assert.Len(t, appConfig.Keyspaces, 3)
	assert.Equal(t, []string{"poid", "geid"}, appConfig.Keyspaces[2].KeyAttributes)
	assert.EqualValues(t, "abandon", appConfig.Reconcile.OnVanished)
}

func Test_parseAttributes(t *testing.T) {
	attributes, err := parseAttributes([]string{"poid=p1", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"poid": "p1", "note": "a=b", "empty": ""}, attributes)

	_, err = parseAttributes([]string{"poid"})
	assert.Error(t, err)
	_, err = parseAttributes([]string{"=p1"})
	assert.Error(t, err)
}

func Test_buildSnapshot(t *testing.T) {
	defer func() {
		reconcileEventTimestamp = 0
		reconcileRecords = nil
		reconcileSnapshotFile = ""
	}()
	f, err := os.CreateTemp("", "snapshot-*.json")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	_, err = f.WriteString(`{"event_timestamp":10,"records":[{"key":"x","attributes":{"pvid":"x"}}]}`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reconcileSnapshotFile = f.Name()
	reconcileEventTimestamp = 20
	reconcileRecords = []string{"pvid=a,gk=g", "_key=b<<>>g,pvid=b"}

	snapshot, err := buildSnapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 20, snapshot.EventTimestamp)
	require.Len(t, snapshot.Records, 3)
	assert.Equal(t, "x", snapshot.Records[0].Key)
	assert.Equal(t, "", snapshot.Records[1].Key)
	assert.Equal(t, map[string]string{"pvid": "a", "gk": "g"}, map[string]string(snapshot.Records[1].Attributes))
	assert.Equal(t, "b<<>>g", snapshot.Records[2].Key)
	assert.Equal(t, map[string]string{"pvid": "b"}, map[string]string(snapshot.Records[2].Attributes))
}
