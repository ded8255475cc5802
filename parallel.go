package bet

import "sync"

// fitJacobiansSequential fits one Jacobian per center over the given
// stencils. Results and errors are indexed by center; exactly one of
// mats[c], errs[c] is non-nil per center.
func fitJacobiansSequential(input, output *SampleSet, neighborIdx [][]int, neighborDist [][]float64,
	epsilon float64, outRanges []float64) (mats [][]float64, errs []error) {

	centers := len(neighborIdx)
	mats = make([][]float64, centers)
	errs = make([]error, centers)
	for c := 0; c < centers; c++ {
		mats[c], errs[c] = fitLocalJacobian(input, output, c, neighborIdx[c], neighborDist[c],
			epsilon, outRanges)
	}
	return mats, errs
}

// fitJacobiansParallel fits per-center Jacobians across multiple
// goroutines. Centers are split into contiguous blocks, one block per
// worker; blocks don't overlap, so workers write disjoint slots and need
// no synchronization beyond the final wait.
//
// The result is identical to fitJacobiansSequential for any worker count.
func fitJacobiansParallel(input, output *SampleSet, neighborIdx [][]int, neighborDist [][]float64,
	epsilon float64, outRanges []float64, numWorkers int) ([][]float64, []error) {

	centers := len(neighborIdx)
	if numWorkers <= 1 || centers <= 1 {
		return fitJacobiansSequential(input, output, neighborIdx, neighborDist, epsilon, outRanges)
	}

	mats := make([][]float64, centers)
	errs := make([]error, centers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		ctx := ExecContext{Rank: w, Size: numWorkers}
		start, end := ctx.Partition(centers)
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for c := start; c < end; c++ {
				mats[c], errs[c] = fitLocalJacobian(input, output, c, neighborIdx[c], neighborDist[c],
					epsilon, outRanges)
			}
		}(start, end)
	}

	wg.Wait()
	return mats, errs
}

// scoreCandidatesParallel scores candidate QoI subsets across multiple
// goroutines. Candidates are split into contiguous blocks, one per worker,
// with each worker reusing a private restriction buffer. Scores land in
// per-candidate slots, so the output order matches the input order and is
// identical for any worker count.
func scoreCandidatesParallel(jac *Jacobians, candidates [][]int, criterion Criterion, numWorkers int) []float64 {
	scores := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return scores
	}

	if numWorkers <= 1 || len(candidates) == 1 {
		buf := make([]float64, maxSubsetLen(candidates)*jac.InputDim())
		for i, c := range candidates {
			scores[i] = scoreRestricted(jac, c, criterion, buf[:len(c)*jac.InputDim()])
		}
		return scores
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		ctx := ExecContext{Rank: w, Size: numWorkers}
		start, end := ctx.Partition(len(candidates))
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			buf := make([]float64, maxSubsetLen(candidates[start:end])*jac.InputDim())
			for i := start; i < end; i++ {
				c := candidates[i]
				scores[i] = scoreRestricted(jac, c, criterion, buf[:len(c)*jac.InputDim()])
			}
		}(start, end)
	}

	wg.Wait()
	return scores
}

func maxSubsetLen(candidates [][]int) int {
	m := 0
	for _, c := range candidates {
		if len(c) > m {
			m = len(c)
		}
	}
	return m
}
