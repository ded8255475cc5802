package bet

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Criterion selects the scoring rule for a candidate QoI subset.
type Criterion string

const (
	// CriterionMeasure scores a subset by the expected volume-scaling
	// factor of the inverse image: the product of reciprocal singular
	// values of the row-restricted Jacobian. Smaller is better (tighter
	// inverse sets).
	CriterionMeasure Criterion = "measure"

	// CriterionSkewness scores a subset by the condition number of the
	// row-restricted Jacobian: how distorted the induced parameter-space
	// cells are. Smaller is better; 1 means perfectly orthogonal.
	CriterionSkewness Criterion = "skewness"
)

// svdRankTol is the relative threshold below which a singular value is
// treated as numerically zero (rank deficient subset).
const svdRankTol = 1e-12

// ScoreSubset scores one candidate QoI subset against every Jacobian in
// the collection and returns the arithmetic mean across centers.
//
// indices selects k distinct Jacobian rows with 2 <= k <= InputDim; the
// score has set semantics and is invariant to index order. A subset whose
// restricted Jacobian is rank deficient at any center scores +Inf
// (inadmissible) rather than failing, so searches can continue past it.
func ScoreSubset(jac *Jacobians, indices []int, criterion Criterion) (float64, error) {
	if criterion != CriterionMeasure && criterion != CriterionSkewness {
		return 0, configErrorf("criterion", "must be %q or %q, got %q",
			CriterionMeasure, CriterionSkewness, criterion)
	}
	if jac.NumCenters() == 0 {
		return 0, configErrorf("jacobians", "no cluster centers to score against")
	}
	k := len(indices)
	if k < 2 {
		return 0, configErrorf("indices", "subset must have at least 2 QoIs, got %d", k)
	}
	if k > jac.InputDim() {
		return 0, configErrorf("indices",
			"subset of %d QoIs cannot resolve more directions than the input dimension %d",
			k, jac.InputDim())
	}
	seen := make(map[int]bool, k)
	for _, q := range indices {
		if q < 0 || q >= jac.OutputDim() {
			return 0, configErrorf("indices", "QoI index %d out of range [0, %d)", q, jac.OutputDim())
		}
		if seen[q] {
			return 0, configErrorf("indices", "duplicate QoI index %d", q)
		}
		seen[q] = true
	}

	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	buf := make([]float64, k*jac.InputDim())
	return scoreRestricted(jac, sorted, criterion, buf), nil
}

// scoreRestricted is the unvalidated scoring kernel shared with the
// subset search. indices must be distinct and in range; buf must have
// length len(indices)*InputDim and is reused across calls.
func scoreRestricted(jac *Jacobians, indices []int, criterion Criterion, buf []float64) float64 {
	k := len(indices)
	inDim := jac.InputDim()
	centers := jac.NumCenters()

	var svd mat.SVD
	total := 0.0
	for c := 0; c < centers; c++ {
		jac.restrictRows(c, indices, buf)
		a := mat.NewDense(k, inDim, buf)
		if !svd.Factorize(a, mat.SVDNone) {
			return math.Inf(1)
		}
		sigma := svd.Values(nil)

		// gonum returns singular values in descending order; the top k
		// are the first k (and k <= inDim, so all of them exist).
		score := singularValueScore(sigma[:k], criterion)
		if math.IsInf(score, 1) {
			return score
		}
		total += score
	}
	return total / float64(centers)
}

// singularValueScore computes one center's score from the top-k singular
// values, already sorted descending.
func singularValueScore(sigma []float64, criterion Criterion) float64 {
	smallest := sigma[len(sigma)-1]
	if smallest <= sigma[0]*svdRankTol || sigma[0] == 0 {
		return math.Inf(1)
	}
	switch criterion {
	case CriterionSkewness:
		return sigma[0] / smallest
	default: // CriterionMeasure
		prod := 1.0
		for _, s := range sigma {
			prod /= s
		}
		return prod
	}
}
