package bet

import (
	"math"
	"runtime"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ScoredSet is one candidate QoI subset with its score. Indices are kept
// sorted ascending (canonical form).
type ScoredSet struct {
	Indices []int
	Score   float64
}

// OptimalSets is the ranked result for one subset size: the best (lowest
// scoring) admissible subsets found, ascending by score.
type OptimalSets struct {
	Size int
	Sets []ScoredSet
}

// ChooseConfig controls the QoI subset search.
// Start with [DefaultChooseConfig] and override the fields you need.
type ChooseConfig struct {
	// Criterion selects measure or skewness scoring. Default: measure.
	Criterion Criterion

	// MaxSubsetSize is the largest subset size to search. 0 means the
	// input dimension; values above it are rejected, since no subset can
	// resolve more directions than the input dimension. Values above the
	// output dimension (but within the input dimension) are silently
	// capped at it, because subsets larger than the available QoIs cannot
	// exist.
	MaxSubsetSize int

	// NumOptSetsReturn is how many best subsets to keep per size.
	// 0 means 10.
	NumOptSetsReturn int

	// InnerProdTol prunes nearly linearly dependent QoIs before scoring:
	// a QoI whose gradient has average absolute cosine similarity
	// strictly greater than InnerProdTol with an earlier retained QoI is
	// dropped, keeping the first-found representative. Must be in [0, 1];
	// 0 means 1.0 (no pruning, since |cosine| never exceeds 1).
	InnerProdTol float64

	// ScoreTol bounds the greedy expansion: only subsets scoring at or
	// below it seed the next size. 0 means +Inf (no cutoff). Must be > 0.
	ScoreTol float64

	// Workers controls the number of goroutines used to score candidate
	// subsets. 0 means runtime.NumCPU(). The result is identical for any
	// worker count.
	Workers int
}

// DefaultChooseConfig returns a ChooseConfig with reasonable defaults.
func DefaultChooseConfig() ChooseConfig {
	return ChooseConfig{
		Criterion:        CriterionMeasure,
		NumOptSetsReturn: 10,
		InnerProdTol:     1.0,
		ScoreTol:         math.Inf(1),
	}
}

func applyChooseDefaults(cfg *ChooseConfig, inDim int) {
	if cfg.Criterion == "" {
		cfg.Criterion = CriterionMeasure
	}
	if cfg.MaxSubsetSize == 0 {
		cfg.MaxSubsetSize = inDim
	}
	if cfg.NumOptSetsReturn == 0 {
		cfg.NumOptSetsReturn = 10
	}
	if cfg.InnerProdTol == 0 {
		cfg.InnerProdTol = 1.0
	}
	if cfg.ScoreTol == 0 {
		cfg.ScoreTol = math.Inf(1)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

func validateChooseConfig(cfg *ChooseConfig, inDim int) error {
	if cfg.Criterion != CriterionMeasure && cfg.Criterion != CriterionSkewness {
		return configErrorf("Criterion", "must be %q or %q, got %q",
			CriterionMeasure, CriterionSkewness, cfg.Criterion)
	}
	if cfg.MaxSubsetSize < 2 {
		return configErrorf("MaxSubsetSize", "must be >= 2, got %d", cfg.MaxSubsetSize)
	}
	if cfg.MaxSubsetSize > inDim {
		return configErrorf("MaxSubsetSize",
			"subsets of %d QoIs cannot resolve more directions than the input dimension %d",
			cfg.MaxSubsetSize, inDim)
	}
	if cfg.NumOptSetsReturn < 1 {
		return configErrorf("NumOptSetsReturn", "must be >= 1, got %d", cfg.NumOptSetsReturn)
	}
	if cfg.InnerProdTol < 0 || cfg.InnerProdTol > 1 || math.IsNaN(cfg.InnerProdTol) {
		return configErrorf("InnerProdTol", "must be in [0, 1], got %g", cfg.InnerProdTol)
	}
	if cfg.ScoreTol <= 0 || math.IsNaN(cfg.ScoreTol) {
		return configErrorf("ScoreTol", "must be > 0, got %g", cfg.ScoreTol)
	}
	return nil
}

// ChooseOptimalQoIs searches for the QoI subsets that best condition the
// inverse problem, returning a ranked table with one entry per subset size
// from 2 up to cfg.MaxSubsetSize (capped at the output dimension).
//
// Size-2 subsets are scored exhaustively over the candidate pool that
// survives the InnerProdTol similarity filter. Each larger size is grown
// greedily: every retained subset of the previous size whose score passes
// ScoreTol is extended by one additional candidate QoI and re-scored. The
// greedy expansion is a heuristic and does not guarantee the global
// optimum for sizes above 2.
//
// Sizes for which no admissible (finite-score) subset exists produce an
// empty Sets list rather than an error.
func ChooseOptimalQoIs(jac *Jacobians, cfg ChooseConfig) ([]OptimalSets, error) {
	inDim := jac.InputDim()
	outDim := jac.OutputDim()
	if jac.NumCenters() == 0 {
		return nil, configErrorf("jacobians", "no cluster centers to score against")
	}

	applyChooseDefaults(&cfg, inDim)
	if err := validateChooseConfig(&cfg, inDim); err != nil {
		return nil, err
	}

	maxSize := cfg.MaxSubsetSize
	if maxSize > outDim {
		maxSize = outDim // silently cap: larger subsets cannot exist
	}
	if maxSize < 2 {
		return nil, nil
	}

	candidates := filterRedundantQoIs(jac, cfg.InnerProdTol)

	table := make([]OptimalSets, 0, maxSize-1)

	// Size 2: exhaustive over the retained candidates.
	var pairs [][]int
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			pairs = append(pairs, []int{candidates[i], candidates[j]})
		}
	}
	ranked := rankCandidates(jac, pairs, cfg)
	table = append(table, OptimalSets{Size: 2, Sets: ranked})

	// Larger sizes: greedy bounded expansion from retained seeds.
	prev := ranked
	for size := 3; size <= maxSize; size++ {
		var expansions [][]int
		seen := make(map[string]bool)
		for _, seed := range prev {
			if seed.Score > cfg.ScoreTol {
				continue
			}
			for _, q := range candidates {
				if containsIndex(seed.Indices, q) {
					continue
				}
				ext := insertSorted(seed.Indices, q)
				key := subsetKey(ext)
				if seen[key] {
					continue
				}
				seen[key] = true
				expansions = append(expansions, ext)
			}
		}
		if len(expansions) == 0 {
			table = append(table, OptimalSets{Size: size})
			prev = nil
			continue
		}
		ranked = rankCandidates(jac, expansions, cfg)
		table = append(table, OptimalSets{Size: size, Sets: ranked})
		prev = ranked
	}

	return table, nil
}

// rankCandidates scores the candidate subsets and returns the best
// admissible ones, ascending by score, at most cfg.NumOptSetsReturn.
func rankCandidates(jac *Jacobians, candidates [][]int, cfg ChooseConfig) []ScoredSet {
	scores := scoreCandidatesParallel(jac, candidates, cfg.Criterion, cfg.Workers)

	scored := make([]ScoredSet, 0, len(candidates))
	for i, c := range candidates {
		if math.IsInf(scores[i], 1) {
			continue // rank-deficient subset: inadmissible, skip silently
		}
		scored = append(scored, ScoredSet{Indices: c, Score: scores[i]})
	}
	return MergeScoredSets(cfg.NumOptSetsReturn, scored)
}

// filterRedundantQoIs drops QoIs whose gradient direction is nearly
// linearly dependent on an earlier retained QoI: average absolute cosine
// similarity across centers strictly greater than tol. The first-found
// representative of each direction is kept. tol = 1 retains everything.
func filterRedundantQoIs(jac *Jacobians, tol float64) []int {
	outDim := jac.OutputDim()
	centers := jac.NumCenters()

	// Per-center row norms, reused across comparisons.
	norms := make([]float64, centers*outDim)
	for c := 0; c < centers; c++ {
		for q := 0; q < outDim; q++ {
			norms[c*outDim+q] = floats.Norm(jac.Row(c, q), 2)
		}
	}

	retained := make([]int, 0, outDim)
	for q := 0; q < outDim; q++ {
		redundant := false
		for _, r := range retained {
			if avgAbsCosine(jac, r, q, norms) > tol {
				redundant = true
				break
			}
		}
		if !redundant {
			retained = append(retained, q)
		}
	}
	return retained
}

// avgAbsCosine averages |cos| between rows a and b across centers.
// Centers where either row has zero norm contribute 0, so QoIs with
// degenerate gradients are never pruned here (scoring marks them
// inadmissible instead).
func avgAbsCosine(jac *Jacobians, a, b int, norms []float64) float64 {
	centers := jac.NumCenters()
	outDim := jac.OutputDim()
	total := 0.0
	for c := 0; c < centers; c++ {
		na := norms[c*outDim+a]
		nb := norms[c*outDim+b]
		if na == 0 || nb == 0 {
			continue
		}
		dot := floats.Dot(jac.Row(c, a), jac.Row(c, b))
		cos := math.Abs(dot) / (na * nb)
		if cos > 1 {
			cos = 1 // clamp fp overshoot so tol=1 never prunes
		}
		total += cos
	}
	return total / float64(centers)
}

// containsIndex reports whether sorted indices contain q.
func containsIndex(indices []int, q int) bool {
	for _, x := range indices {
		if x == q {
			return true
		}
	}
	return false
}

// insertSorted returns a new slice with q inserted into the sorted indices.
func insertSorted(indices []int, q int) []int {
	out := make([]int, 0, len(indices)+1)
	inserted := false
	for _, x := range indices {
		if !inserted && q < x {
			out = append(out, q)
			inserted = true
		}
		out = append(out, x)
	}
	if !inserted {
		out = append(out, q)
	}
	return out
}

// subsetKey is the canonical string form of a sorted index subset, used
// for deduplication during greedy expansion.
func subsetKey(indices []int) string {
	var b strings.Builder
	for i, x := range indices {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(x))
	}
	return b.String()
}
