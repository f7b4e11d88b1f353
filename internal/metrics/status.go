package metrics

import "sort"

// ErrorBucket is the aggregated count for one error kind.
type ErrorBucket struct {
	Kind  string
	Label string
	Count int64
}

// FlattenErrorBuckets converts a kind->count map into rows sorted by
// descending count, then by kind for stability.
func FlattenErrorBuckets(counts map[string]int64) []ErrorBucket {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(counts))
	for kind, count := range counts {
		rows = append(rows, ErrorBucket{Kind: kind, Label: FriendlyKind(kind), Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
