package bet

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"gonum.org/v1/gonum/mat"
)

// Jacobians holds one local Jacobian per cluster center, each approximating
// the derivative of the forward map at that center. Every matrix is stored
// flat in row-major order with OutputDim rows and InputDim columns.
// Center indices are stable once computed.
type Jacobians struct {
	mats   [][]float64
	outDim int
	inDim  int
}

// NewJacobians wraps per-center Jacobian matrices. Each element of mats
// must be a flat row-major outDim×inDim matrix; the slices are retained,
// not copied.
func NewJacobians(mats [][]float64, outDim, inDim int) (*Jacobians, error) {
	if outDim < 1 || inDim < 1 {
		return nil, fmt.Errorf("bet: jacobian dimensions must be >= 1, got %d×%d", outDim, inDim)
	}
	for c, m := range mats {
		if len(m) != outDim*inDim {
			return nil, fmt.Errorf("bet: jacobian %d has length %d, want %d×%d = %d",
				c, len(m), outDim, inDim, outDim*inDim)
		}
	}
	return &Jacobians{mats: mats, outDim: outDim, inDim: inDim}, nil
}

// NumCenters returns the number of cluster centers.
func (j *Jacobians) NumCenters() int { return len(j.mats) }

// OutputDim returns the number of QoIs (rows per matrix).
func (j *Jacobians) OutputDim() int { return j.outDim }

// InputDim returns the parameter-space dimension (columns per matrix).
func (j *Jacobians) InputDim() int { return j.inDim }

// Center returns the flat row-major Jacobian at center c. The slice is
// owned by the collection; callers must not modify it.
func (j *Jacobians) Center(c int) []float64 { return j.mats[c] }

// Row returns row q of the Jacobian at center c: the gradient of QoI q.
func (j *Jacobians) Row(c, q int) []float64 {
	return j.mats[c][q*j.inDim : (q+1)*j.inDim]
}

// restrictRows copies the selected rows of center c into dst, which must
// have length len(indices)*InputDim. Building the k×inDim submatrix this
// way keeps scoring allocation-free in the inner search loop.
func (j *Jacobians) restrictRows(c int, indices []int, dst []float64) {
	for i, q := range indices {
		copy(dst[i*j.inDim:(i+1)*j.inDim], j.Row(c, q))
	}
}

// GradientConfig controls RBF gradient estimation.
// Start with [DefaultGradientConfig] and override the fields you need.
type GradientConfig struct {
	// NumCenters is the number of cluster centers at which to approximate
	// the Jacobian. Centers are the first NumCenters input samples, so
	// the selection is deterministic. Must be >= 1 and <= the sample
	// count. Default: 10 (capped at the sample count).
	NumCenters int

	// NumNeighbors is the stencil size: how many nearby samples
	// (including the center itself) enter each local fit. 0 means
	// 2*inputDim + 1. Must be 0 or >= inputDim + 1.
	NumNeighbors int

	// Epsilon is the RBF shape parameter: stencil samples are weighted
	// exp(-(r/Epsilon)²) with r the distance in normalized parameter
	// coordinates. Must be > 0. Default: 1.0.
	Epsilon float64

	// Normalize divides output displacements by the per-QoI data range
	// (max−min over the sample set) before fitting, making Jacobian
	// entries dimensionless and comparable across QoIs with different
	// physical units. Default: false.
	Normalize bool

	// LeafSize controls the KD-tree leaf size for neighborhood queries.
	// Default: 40.
	LeafSize int

	// Workers controls the number of goroutines fitting per-center
	// Jacobians. 0 means runtime.NumCPU(). The result is bitwise
	// identical for any worker count.
	Workers int
}

// DefaultGradientConfig returns a GradientConfig with reasonable defaults.
func DefaultGradientConfig() GradientConfig {
	return GradientConfig{
		NumCenters: 10,
		Epsilon:    1.0,
	}
}

func applyGradientDefaults(cfg *GradientConfig, n, inDim int) {
	if cfg.NumCenters == 0 {
		cfg.NumCenters = 10
	}
	if cfg.NumCenters > n {
		cfg.NumCenters = n
	}
	if cfg.NumNeighbors == 0 {
		cfg.NumNeighbors = 2*inDim + 1
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1.0
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 40
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

func validateGradientConfig(cfg *GradientConfig, inDim int) error {
	if cfg.NumCenters < 1 {
		return configErrorf("NumCenters", "must be >= 1, got %d", cfg.NumCenters)
	}
	if cfg.NumNeighbors < inDim+1 {
		return configErrorf("NumNeighbors", "stencil of %d cannot fit %d free parameters",
			cfg.NumNeighbors, inDim+1)
	}
	if cfg.Epsilon <= 0 || math.IsNaN(cfg.Epsilon) {
		return configErrorf("Epsilon", "must be > 0, got %g", cfg.Epsilon)
	}
	if cfg.LeafSize < 1 {
		return configErrorf("LeafSize", "must be >= 1, got %d", cfg.LeafSize)
	}
	return nil
}

// EstimateGradientsRBF approximates the local Jacobian of the forward map
// at cfg.NumCenters cluster centers using weighted least squares with
// radial-basis-function weights over a k-nearest-neighbor stencil.
//
// Neighborhoods are found by Euclidean distance in normalized parameter
// coordinates (each dimension rescaled to unit spread), so no single
// parameter dominates the stencil selection. The fit itself uses the raw
// parameter displacements, so Jacobian entries carry the map's true units
// unless cfg.Normalize rescales the outputs.
//
// It returns the per-center Jacobians and a new center discretization
// holding the input/output samples of the centers. The original
// discretization is never modified.
//
// Per-center failures (InsufficientDataError, DegenerateGeometryError) do
// not abort estimation for other centers: failed centers are omitted from
// both the Jacobians and the center discretization, so Jacobian c always
// corresponds to center sample c. The errors are aggregated into the
// returned error; the Jacobians are nil only if every center failed.
func EstimateGradientsRBF(disc *Discretization, cfg GradientConfig) (*Jacobians, *Discretization, error) {
	input := disc.InputSampleSet()
	output := disc.OutputSampleSet()
	n := disc.NumSamples()
	inDim := input.Dim()
	outDim := output.Dim()

	applyGradientDefaults(&cfg, n, inDim)
	if err := validateGradientConfig(&cfg, inDim); err != nil {
		return nil, nil, err
	}

	normalized := normalizeCoordinates(input)
	tree := NewKDTree(normalized, n, inDim, EuclideanMetric{}, cfg.LeafSize)

	var outRanges []float64
	if cfg.Normalize {
		outRanges = output.ranges()
	}

	centers := cfg.NumCenters
	queries := normalized[:centers*inDim]
	neighborIdx, neighborDist := tree.QueryKNN(queries, centers, cfg.NumNeighbors)

	fitted, fitErrs := fitJacobiansParallel(input, output, neighborIdx, neighborDist,
		cfg.Epsilon, outRanges, cfg.Workers)

	mats := make([][]float64, 0, centers)
	survivors := make([]int, 0, centers)
	var centerErrs []error
	for c := 0; c < centers; c++ {
		if fitErrs[c] != nil {
			centerErrs = append(centerErrs, fitErrs[c])
			continue
		}
		mats = append(mats, fitted[c])
		survivors = append(survivors, c)
	}

	if len(mats) == 0 {
		return nil, nil, errors.Join(centerErrs...)
	}

	centerDisc, err := NewDiscretization(input.takeRows(survivors), output.takeRows(survivors))
	if err != nil {
		return nil, nil, err
	}

	jac := &Jacobians{mats: mats, outDim: outDim, inDim: inDim}
	return jac, centerDisc, errors.Join(centerErrs...)
}

// fitLocalJacobian fits one center's Jacobian by weighted least squares of
// output displacements against input displacements over the stencil.
func fitLocalJacobian(input, output *SampleSet, center int, stencil []int, dists []float64,
	epsilon float64, outRanges []float64) ([]float64, error) {

	inDim := input.Dim()
	outDim := output.Dim()
	m := len(stencil)
	cols := inDim + 1 // affine term + one slope per parameter

	if m < cols {
		return nil, &InsufficientDataError{Center: center, Found: m, Required: cols}
	}

	xc := input.Sample(center)
	yc := output.Sample(center)

	// Weighted design matrix: rows [1, dx...] scaled by sqrt(w), with
	// Gaussian RBF weights w = exp(-(r/ε)²).
	xData := make([]float64, m*cols)
	yData := make([]float64, m*outDim)
	for i, idx := range stencil {
		w := math.Sqrt(math.Exp(-(dists[i] / epsilon) * (dists[i] / epsilon)))
		row := xData[i*cols:]
		row[0] = w
		xs := input.Sample(idx)
		for d := 0; d < inDim; d++ {
			row[d+1] = w * (xs[d] - xc[d])
		}
		ys := output.Sample(idx)
		for q := 0; q < outDim; q++ {
			dy := ys[q] - yc[q]
			if outRanges != nil && outRanges[q] != 0 {
				dy /= outRanges[q]
			}
			yData[i*outDim+q] = w * dy
		}
	}

	X := mat.NewDense(m, cols, xData)
	Y := mat.NewDense(m, outDim, yData)

	var beta mat.Dense
	if err := beta.Solve(X, Y); err != nil {
		// QR solve fails only when the stencil geometry is rank deficient
		// (duplicate or collinear points).
		return nil, &DegenerateGeometryError{Center: center, StencilSize: m}
	}

	// beta is (inDim+1)×outDim with the affine term in row 0; transpose the
	// slope rows into the outDim×inDim Jacobian.
	jac := make([]float64, outDim*inDim)
	for q := 0; q < outDim; q++ {
		for d := 0; d < inDim; d++ {
			jac[q*inDim+d] = beta.At(d+1, q)
		}
	}
	return jac, nil
}

// normalizeCoordinates rescales each input dimension to unit spread over
// the sample set, returning a new flat row-major array. Dimensions with no
// spread are left unscaled.
func normalizeCoordinates(s *SampleSet) []float64 {
	n, dim := s.NumSamples(), s.Dim()
	ranges := s.ranges()
	out := make([]float64, n*dim)
	copy(out, s.Values())
	for d := 0; d < dim; d++ {
		if ranges[d] == 0 {
			continue
		}
		inv := 1.0 / ranges[d]
		for i := 0; i < n; i++ {
			out[i*dim+d] *= inv
		}
	}
	return out
}

// PickFFDPoints builds the forward-finite-difference sample layout for the
// given centers: the centers themselves followed by, for each parameter
// dimension d, a block of all centers displaced by radii[d] along d.
// The resulting set has centers.NumSamples()*(dim+1) samples and is the
// layout EstimateGradientsFFD expects.
func PickFFDPoints(centers *SampleSet, radii []float64) (*SampleSet, error) {
	dim := centers.Dim()
	if len(radii) != dim {
		return nil, fmt.Errorf("bet: got %d radii for %d dimensions", len(radii), dim)
	}
	n := centers.NumSamples()
	values := make([]float64, (dim+1)*n*dim)
	copy(values, centers.Values())
	for d := 0; d < dim; d++ {
		block := values[(d+1)*n*dim:]
		for i := 0; i < n; i++ {
			copy(block[i*dim:(i+1)*dim], centers.Sample(i))
			block[i*dim+d] += radii[d]
		}
	}
	out, err := NewSampleSetFrom(values, (dim+1)*n, dim)
	if err != nil {
		return nil, err
	}
	if centers.Domain() != nil {
		if err := out.SetDomain(centers.Domain()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PickCFDPoints builds the centered-finite-difference sample layout: for
// each parameter dimension d, a block of all centers displaced by +radii[d]
// along d, followed by the mirrored -radii[d] blocks. Unlike the FFD
// layout the centers themselves are not included; the set has
// centers.NumSamples()*2*dim samples.
func PickCFDPoints(centers *SampleSet, radii []float64) (*SampleSet, error) {
	dim := centers.Dim()
	if len(radii) != dim {
		return nil, fmt.Errorf("bet: got %d radii for %d dimensions", len(radii), dim)
	}
	n := centers.NumSamples()
	values := make([]float64, 2*dim*n*dim)
	for d := 0; d < dim; d++ {
		plus := values[d*n*dim:]
		minus := values[(dim+d)*n*dim:]
		for i := 0; i < n; i++ {
			copy(plus[i*dim:(i+1)*dim], centers.Sample(i))
			plus[i*dim+d] += radii[d]
			copy(minus[i*dim:(i+1)*dim], centers.Sample(i))
			minus[i*dim+d] -= radii[d]
		}
	}
	out, err := NewSampleSetFrom(values, 2*dim*n, dim)
	if err != nil {
		return nil, err
	}
	if centers.Domain() != nil {
		if err := out.SetDomain(centers.Domain()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EstimateGradientsFFD approximates Jacobians by forward finite
// differences. The discretization's input set must follow the
// PickFFDPoints layout for numCenters centers; the output set holds the
// forward map evaluated at every layout point. normalize behaves as in
// GradientConfig.
func EstimateGradientsFFD(disc *Discretization, numCenters int, normalize bool) (*Jacobians, *Discretization, error) {
	input := disc.InputSampleSet()
	output := disc.OutputSampleSet()
	inDim := input.Dim()
	outDim := output.Dim()

	if numCenters < 1 {
		return nil, nil, configErrorf("numCenters", "must be >= 1, got %d", numCenters)
	}
	want := numCenters * (inDim + 1)
	if disc.NumSamples() != want {
		return nil, nil, configErrorf("discretization",
			"FFD layout for %d centers needs %d samples, got %d", numCenters, want, disc.NumSamples())
	}

	var outRanges []float64
	if normalize {
		outRanges = output.ranges()
	}

	mats := make([][]float64, numCenters)
	var centerErrs []error
	for c := 0; c < numCenters; c++ {
		jac := make([]float64, outDim*inDim)
		xc := input.Sample(c)
		yc := output.Sample(c)
		ok := true
		for d := 0; d < inDim; d++ {
			pi := (d+1)*numCenters + c
			h := input.Sample(pi)[d] - xc[d]
			if h == 0 {
				centerErrs = append(centerErrs, &DegenerateGeometryError{Center: c, StencilSize: inDim + 1})
				ok = false
				break
			}
			yp := output.Sample(pi)
			for q := 0; q < outDim; q++ {
				dy := yp[q] - yc[q]
				if outRanges != nil && outRanges[q] != 0 {
					dy /= outRanges[q]
				}
				jac[q*inDim+d] = dy / h
			}
		}
		if ok {
			mats[c] = jac
		}
	}

	return finishFiniteDifference(disc, mats, outDim, inDim, centerErrs)
}

// EstimateGradientsCFD approximates Jacobians by centered finite
// differences over the PickCFDPoints layout. The center input/output
// values themselves are not part of the layout; the returned center
// discretization reconstructs the centers as the midpoint of each ± pair.
func EstimateGradientsCFD(disc *Discretization, numCenters int, normalize bool) (*Jacobians, *Discretization, error) {
	input := disc.InputSampleSet()
	output := disc.OutputSampleSet()
	inDim := input.Dim()
	outDim := output.Dim()

	if numCenters < 1 {
		return nil, nil, configErrorf("numCenters", "must be >= 1, got %d", numCenters)
	}
	want := numCenters * 2 * inDim
	if disc.NumSamples() != want {
		return nil, nil, configErrorf("discretization",
			"CFD layout for %d centers needs %d samples, got %d", numCenters, want, disc.NumSamples())
	}

	var outRanges []float64
	if normalize {
		outRanges = output.ranges()
	}

	mats := make([][]float64, numCenters)
	var centerErrs []error
	for c := 0; c < numCenters; c++ {
		jac := make([]float64, outDim*inDim)
		ok := true
		for d := 0; d < inDim; d++ {
			pi := d*numCenters + c
			mi := (inDim+d)*numCenters + c
			h := input.Sample(pi)[d] - input.Sample(mi)[d]
			if h == 0 {
				centerErrs = append(centerErrs, &DegenerateGeometryError{Center: c, StencilSize: 2 * inDim})
				ok = false
				break
			}
			yp := output.Sample(pi)
			ym := output.Sample(mi)
			for q := 0; q < outDim; q++ {
				dy := yp[q] - ym[q]
				if outRanges != nil && outRanges[q] != 0 {
					dy /= outRanges[q]
				}
				jac[q*inDim+d] = dy / h
			}
		}
		if ok {
			mats[c] = jac
		}
	}

	kept := make([][]float64, 0, numCenters)
	survivors := make([]int, 0, numCenters)
	for c, m := range mats {
		if m != nil {
			kept = append(kept, m)
			survivors = append(survivors, c)
		}
	}
	if len(kept) == 0 {
		return nil, nil, errors.Join(centerErrs...)
	}

	// Reconstruct the surviving centers as midpoints of the first ± block,
	// keeping Jacobian and center indices aligned.
	ns := len(survivors)
	centerValues := make([]float64, ns*inDim)
	centerOutputs := make([]float64, ns*outDim)
	for i, c := range survivors {
		pi, mi := c, inDim*numCenters+c
		for d := 0; d < inDim; d++ {
			centerValues[i*inDim+d] = 0.5 * (input.Sample(pi)[d] + input.Sample(mi)[d])
		}
		for q := 0; q < outDim; q++ {
			centerOutputs[i*outDim+q] = 0.5 * (output.Sample(pi)[q] + output.Sample(mi)[q])
		}
	}
	centerInput, err := NewSampleSetFrom(centerValues, ns, inDim)
	if err != nil {
		return nil, nil, err
	}
	centerOutput, err := NewSampleSetFrom(centerOutputs, ns, outDim)
	if err != nil {
		return nil, nil, err
	}
	centerDisc, err := NewDiscretization(centerInput, centerOutput)
	if err != nil {
		return nil, nil, err
	}

	jac := &Jacobians{mats: kept, outDim: outDim, inDim: inDim}
	return jac, centerDisc, errors.Join(centerErrs...)
}

// finishFiniteDifference assembles the FFD result: the surviving
// Jacobians plus a center discretization restricted to the same
// surviving centers, so index c of one matches index c of the other.
func finishFiniteDifference(disc *Discretization, mats [][]float64, outDim, inDim int,
	centerErrs []error) (*Jacobians, *Discretization, error) {

	kept := make([][]float64, 0, len(mats))
	survivors := make([]int, 0, len(mats))
	for c, m := range mats {
		if m != nil {
			kept = append(kept, m)
			survivors = append(survivors, c)
		}
	}
	if len(kept) == 0 {
		return nil, nil, errors.Join(centerErrs...)
	}

	centerDisc, err := NewDiscretization(
		disc.InputSampleSet().takeRows(survivors),
		disc.OutputSampleSet().takeRows(survivors))
	if err != nil {
		return nil, nil, err
	}

	jac := &Jacobians{mats: kept, outDim: outDim, inDim: inDim}
	return jac, centerDisc, errors.Join(centerErrs...)
}
