package reconcile

import (
	"fmt"

	"github.com/lloydmeta/settle/internal/domain/record"
)

// Diff partitions persisted and desired Records by Key into three disjoint sets
type Diff struct {
	// In the snapshot but not persisted; holds the desired Records
	ToAdd []record.Record
	// In both; holds the desired Records
	ToUpdate []record.Record
	// Persisted but not in the snapshot; holds the persisted Records
	ToDelete []record.Record
}

// ComputeDiff compares what is persisted for a parent against its desired-state snapshot.
//
// persisted may contain the same Key more than once when read from a lagging index; the
// newest copy wins. Each set comes out sorted by Key.
func ComputeDiff(persisted []record.Record, desired []record.Record) Diff {
	persistedByKey := make(map[record.Key]record.Record, len(persisted))
	for _, p := range persisted {
		if seen, ok := persistedByKey[p.Key]; !ok || seen.Timestamp.Before(p.Timestamp) {
			persistedByKey[p.Key] = p
		}
	}
	desiredKeys := make(map[record.Key]struct{}, len(desired))

	var diff Diff
	for _, d := range desired {
		desiredKeys[d.Key] = struct{}{}
		if _, ok := persistedByKey[d.Key]; ok {
			diff.ToUpdate = append(diff.ToUpdate, d)
		} else {
			diff.ToAdd = append(diff.ToAdd, d)
		}
	}
	for key, p := range persistedByKey {
		if _, ok := desiredKeys[key]; !ok {
			diff.ToDelete = append(diff.ToDelete, p)
		}
	}
	record.SortByKey(diff.ToAdd)
	record.SortByKey(diff.ToUpdate)
	record.SortByKey(diff.ToDelete)
	return diff
}

func validateSnapshot(desired []record.Record) error {
	seen := make(map[record.Key]struct{}, len(desired))
	for _, d := range desired {
		if d.Key == "" {
			return record.InvalidInput{Reason: "desired records need a key"}
		}
		if _, dup := seen[d.Key]; dup {
			return record.InvalidInput{Reason: fmt.Sprintf("key [%v] appears more than once in the snapshot", d.Key)}
		}
		seen[d.Key] = struct{}{}
	}
	return nil
}
