package bet

import "testing"

func TestPartitionCoversAllItems(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 7} {
		for _, n := range []int{0, 1, 5, 16, 100} {
			covered := make([]bool, n)
			for rank := 0; rank < size; rank++ {
				ctx := ExecContext{Rank: rank, Size: size}
				start, end := ctx.Partition(n)
				if start > end {
					t.Fatalf("size=%d rank=%d n=%d: start %d > end %d", size, rank, n, start, end)
				}
				for i := start; i < end; i++ {
					if covered[i] {
						t.Fatalf("size=%d n=%d: item %d owned by two workers", size, n, i)
					}
					covered[i] = true
				}
			}
			for i, c := range covered {
				if !c {
					t.Fatalf("size=%d n=%d: item %d unowned", size, n, i)
				}
			}
		}
	}
}

func TestSerialContextOwnsEverything(t *testing.T) {
	start, end := SerialContext().Partition(42)
	if start != 0 || end != 42 {
		t.Fatalf("serial partition = [%d, %d), expected [0, 42)", start, end)
	}
}

// syntheticScoredSets builds n candidates with deterministic scores,
// including deliberate score ties.
func syntheticScoredSets(n int) []ScoredSet {
	sets := make([]ScoredSet, n)
	for i := 0; i < n; i++ {
		sets[i] = ScoredSet{
			Indices: []int{i % 10, 10 + i/2},
			Score:   float64(i%7) + 0.5,
		}
	}
	return sets
}

func TestMergeScoredSetsDeterministicAcrossSplits(t *testing.T) {
	all := syntheticScoredSets(100)
	const limit = 10

	baseline := MergeScoredSets(limit, all)
	if len(baseline) != limit {
		t.Fatalf("baseline has %d sets, expected %d", len(baseline), limit)
	}

	for _, workers := range []int{1, 2, 4} {
		partials := make([][]ScoredSet, workers)
		for w := 0; w < workers; w++ {
			ctx := ExecContext{Rank: w, Size: workers}
			start, end := ctx.Partition(len(all))
			partials[w] = all[start:end]
		}
		merged := MergeScoredSets(limit, partials...)

		if len(merged) != len(baseline) {
			t.Fatalf("workers=%d: %d sets, expected %d", workers, len(merged), len(baseline))
		}
		for i := range baseline {
			if merged[i].Score != baseline[i].Score || !equalIndices(merged[i].Indices, baseline[i].Indices) {
				t.Errorf("workers=%d rank %d: %+v != %+v", workers, i, merged[i], baseline[i])
			}
		}
	}
}

func TestMergeScoredSetsAscendingAndTieBreak(t *testing.T) {
	partials := [][]ScoredSet{
		{{Indices: []int{1, 3}, Score: 2.0}, {Indices: []int{0, 5}, Score: 1.0}},
		{{Indices: []int{0, 2}, Score: 1.0}, {Indices: []int{4, 6}, Score: 0.5}},
	}
	merged := MergeScoredSets(10, partials...)

	wantOrder := [][]int{{4, 6}, {0, 2}, {0, 5}, {1, 3}}
	if len(merged) != len(wantOrder) {
		t.Fatalf("got %d sets, expected %d", len(merged), len(wantOrder))
	}
	for i, want := range wantOrder {
		if !equalIndices(merged[i].Indices, want) {
			t.Errorf("rank %d: %v, expected %v", i, merged[i].Indices, want)
		}
	}
}

func TestMergeScoredSetsDedupes(t *testing.T) {
	dup := ScoredSet{Indices: []int{2, 7}, Score: 3.0}
	merged := MergeScoredSets(10, []ScoredSet{dup}, []ScoredSet{dup, {Indices: []int{1, 2}, Score: 4.0}})
	if len(merged) != 2 {
		t.Fatalf("got %d sets after dedupe, expected 2", len(merged))
	}
}

func TestMergeScoredSetsTruncates(t *testing.T) {
	merged := MergeScoredSets(3, syntheticScoredSets(50))
	if len(merged) != 3 {
		t.Fatalf("got %d sets, expected 3", len(merged))
	}
	if merged[0].Score > merged[2].Score {
		t.Error("truncated merge not ascending")
	}
}

func TestMergeScoredSetsEmptyInput(t *testing.T) {
	if got := MergeScoredSets(5); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d", len(got))
	}
	if got := MergeScoredSets(5, nil, []ScoredSet{}); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d", len(got))
	}
}

func TestLessIndicesOrdering(t *testing.T) {
	cases := []struct {
		a, b []int
		want bool
	}{
		{[]int{0, 1}, []int{0, 2}, true},
		{[]int{0, 2}, []int{0, 1}, false},
		{[]int{1}, []int{1, 0}, true},
		{[]int{2, 3}, []int{2, 3}, false},
	}
	for _, tc := range cases {
		if got := lessIndices(tc.a, tc.b); got != tc.want {
			t.Errorf("lessIndices(%v, %v) = %v, expected %v", tc.a, tc.b, got, tc.want)
		}
	}
}
