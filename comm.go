package bet

import "sort"

// ExecContext identifies one worker in a single-program-multiple-data run:
// worker Rank out of Size cooperating workers. It replaces ambient
// rank/size communicator state so partitioned computations stay testable
// single-threaded; the zero value is not valid, use SerialContext for a
// one-worker run.
type ExecContext struct {
	Rank int
	Size int
}

// SerialContext is the single-worker execution context.
func SerialContext() ExecContext { return ExecContext{Rank: 0, Size: 1} }

// Partition returns the half-open range [start, end) of the n work items
// owned by this worker. Items are split into contiguous blocks; the range
// is empty when there are fewer items than workers and this rank gets none.
func (e ExecContext) Partition(n int) (start, end int) {
	per := (n + e.Size - 1) / e.Size
	start = e.Rank * per
	end = start + per
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	return start, end
}

// MergeScoredSets is the reduction step for partitioned subset scoring:
// it merges partial result lists into a single ranked list of at most
// limit entries, ascending by score. Ties are broken by the canonical
// (lexicographic) ordering of the index subsets, so the merged result is
// identical regardless of how the candidates were partitioned across
// workers. Duplicate subsets keep their first (lowest-score) occurrence.
func MergeScoredSets(limit int, partials ...[]ScoredSet) []ScoredSet {
	var all []ScoredSet
	for _, p := range partials {
		all = append(all, p...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		return lessIndices(all[i].Indices, all[j].Indices)
	})

	merged := make([]ScoredSet, 0, limit)
	seen := make(map[string]bool)
	for _, s := range all {
		key := subsetKey(s.Indices)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, s)
		if len(merged) == limit {
			break
		}
	}
	return merged
}

// lessIndices compares two sorted index subsets lexicographically.
func lessIndices(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
