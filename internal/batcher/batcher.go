// Package batcher groups records that must be processed together.
package batcher

import (
	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
)

// Key derives a grouping key from a record.
type Key[T any] func(T) string

// Batch partitions records by the first key, each partition by the next key,
// and so on, returning only the leaves. Partitions are visited in order of
// first appearance and records keep their input order, so the result is
// deterministic. Empty batches are never returned.
func Batch[T any](records []T, keys ...Key[T]) [][]T {
	if len(records) == 0 {
		return nil
	}
	if len(keys) == 0 {
		return [][]T{records}
	}

	var out [][]T
	for _, group := range partition(records, keys[0]) {
		out = append(out, Batch(group, keys[1:]...)...)
	}
	return out
}

func partition[T any](records []T, key Key[T]) [][]T {
	index := make(map[string]int)
	var groups [][]T
	for _, r := range records {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

// ByTimestamp keys records by acquisition instant.
func ByTimestamp[T lmafile.Record](r T) string {
	return lmafile.FormatStamp(r.Timestamp())
}

// ByNetwork keys records by network.
func ByNetwork[T lmafile.Record](r T) string {
	return r.Network()
}

// ByInstant sorts records and groups those sharing an instant.
func ByInstant[T lmafile.Record](records []T) [][]T {
	sorted := sortedCopy(records)
	return Batch(sorted, ByTimestamp[T])
}

// ByNetworkInstant sorts records and groups them by network, then instant.
func ByNetworkInstant[T lmafile.Record](records []T) [][]T {
	sorted := sortedCopy(records)
	return Batch(sorted, ByNetwork[T], ByTimestamp[T])
}

// Each puts every record in its own batch, in sorted order.
func Each[T lmafile.Record](records []T) [][]T {
	sorted := sortedCopy(records)
	out := make([][]T, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, []T{r})
	}
	return out
}

func sortedCopy[T lmafile.Record](records []T) []T {
	sorted := make([]T, len(records))
	copy(sorted, records)
	lmafile.Sort(sorted)
	return sorted
}
