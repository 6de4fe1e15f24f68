package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lloydmeta/settle/internal/domain/record"
)

func TestComputeDiff(t *testing.T) {
	tests := []struct {
		name      string
		persisted []record.Record
		desired   []record.Record
		want      Diff
	}{
		{
			name: "empty on both sides",
			want: Diff{},
		},
		{
			name:    "everything is new",
			desired: []record.Record{{Key: "b"}, {Key: "a"}},
			want: Diff{
				ToAdd: []record.Record{{Key: "a"}, {Key: "b"}},
			},
		},
		{
			name:      "everything is gone",
			persisted: []record.Record{{Key: "a", Timestamp: 5}},
			want: Diff{
				ToDelete: []record.Record{{Key: "a", Timestamp: 5}},
			},
		},
		{
			name: "mixed",
			persisted: []record.Record{
				{Key: "keep", Attributes: record.Attributes{"config": "old"}, Timestamp: 5},
				{Key: "gone", Timestamp: 5},
			},
			desired: []record.Record{
				{Key: "keep", Attributes: record.Attributes{"config": "new"}},
				{Key: "new"},
			},
			want: Diff{
				ToAdd:    []record.Record{{Key: "new"}},
				ToUpdate: []record.Record{{Key: "keep", Attributes: record.Attributes{"config": "new"}}},
				ToDelete: []record.Record{{Key: "gone", Timestamp: 5}},
			},
		},
		{
			name: "duplicate persisted keys keep the newest copy",
			persisted: []record.Record{
				{Key: "a", AggregationKey: "old", Timestamp: 5},
				{Key: "a", AggregationKey: "newer", Timestamp: 9},
				{Key: "a", AggregationKey: "older", Timestamp: 1},
			},
			want: Diff{
				ToDelete: []record.Record{{Key: "a", AggregationKey: "newer", Timestamp: 9}},
			},
		},
		{
			name: "soft deleted records still count as persisted",
			persisted: []record.Record{
				{Key: "a", Timestamp: 5, IsDeleted: true},
			},
			desired: []record.Record{{Key: "a"}},
			want: Diff{
				ToUpdate: []record.Record{{Key: "a"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDiff(tt.persisted, tt.desired))
		})
	}
}

func Test_validateSnapshot(t *testing.T) {
	assert.NoError(t, validateSnapshot(nil))
	assert.NoError(t, validateSnapshot([]record.Record{{Key: "a"}, {Key: "b"}}))
	assert.IsType(t, record.InvalidInput{}, validateSnapshot([]record.Record{{Key: "a"}, {Key: "a"}}))
	assert.IsType(t, record.InvalidInput{}, validateSnapshot([]record.Record{{Key: ""}}))
}
