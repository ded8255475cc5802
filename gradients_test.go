package bet

import (
	"errors"
	"testing"
)

// applyLinearMap evaluates y = Q·x at every sample, with Q given flat
// row-major (outDim × inDim).
func applyLinearMap(t *testing.T, q []float64, outDim int, in *SampleSet) *SampleSet {
	t.Helper()
	n, inDim := in.NumSamples(), in.Dim()
	out := make([]float64, n*outDim)
	for i := 0; i < n; i++ {
		x := in.Sample(i)
		for r := 0; r < outDim; r++ {
			var sum float64
			for d := 0; d < inDim; d++ {
				sum += q[r*inDim+d] * x[d]
			}
			out[i*outDim+r] = sum
		}
	}
	s, err := NewSampleSetFrom(out, n, outDim)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func linearTestDiscretization(t *testing.T, q []float64, outDim, inDim, n int) *Discretization {
	t.Helper()
	in, err := NewSampleSetFrom(testPoints(n, inDim), n, inDim)
	if err != nil {
		t.Fatal(err)
	}
	out := applyLinearMap(t, q, outDim, in)
	disc, err := NewDiscretization(in, out)
	if err != nil {
		t.Fatal(err)
	}
	return disc
}

func TestEstimateGradientsRBFRecoversLinearMap(t *testing.T) {
	q := []float64{
		2, -1,
		0.5, 3,
		1, 1,
	}
	outDim, inDim := 3, 2
	disc := linearTestDiscretization(t, q, outDim, inDim, 200)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 5
	jac, centers, err := EstimateGradientsRBF(disc, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jac.NumCenters() != 5 {
		t.Fatalf("got %d jacobians, expected 5", jac.NumCenters())
	}
	if centers.NumSamples() != 5 {
		t.Fatalf("center discretization has %d samples, expected 5", centers.NumSamples())
	}

	// A local linear fit of a globally linear map is exact.
	for c := 0; c < jac.NumCenters(); c++ {
		m := jac.Center(c)
		for i := range q {
			if !almostEqual(m[i], q[i], 1e-8) {
				t.Errorf("center %d: jacobian[%d] = %v, expected %v", c, i, m[i], q[i])
			}
		}
	}
}

func TestEstimateGradientsRBFNormalize(t *testing.T) {
	q := []float64{
		10, 0,
		0, 0.1,
	}
	disc := linearTestDiscretization(t, q, 2, 2, 150)
	outRanges := disc.OutputSampleSet().ranges()

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 3
	cfg.Normalize = true
	jac, _, err := EstimateGradientsRBF(disc, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for c := 0; c < jac.NumCenters(); c++ {
		m := jac.Center(c)
		for r := 0; r < 2; r++ {
			for d := 0; d < 2; d++ {
				want := q[r*2+d] / outRanges[r]
				if !almostEqual(m[r*2+d], want, 1e-8) {
					t.Errorf("center %d entry (%d,%d) = %v, expected %v", c, r, d, m[r*2+d], want)
				}
			}
		}
	}
}

func TestEstimateGradientsRBFDeterministic(t *testing.T) {
	q := []float64{1, 2, 3, -1, 0.5, 4}
	disc := linearTestDiscretization(t, q, 2, 3, 120)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 8

	jac1, _, err1 := EstimateGradientsRBF(disc, cfg)
	jac2, _, err2 := EstimateGradientsRBF(disc, cfg)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}

	for c := 0; c < jac1.NumCenters(); c++ {
		m1, m2 := jac1.Center(c), jac2.Center(c)
		for i := range m1 {
			if m1[i] != m2[i] {
				t.Fatalf("center %d entry %d differs between runs: %v != %v (bitwise)",
					c, i, m1[i], m2[i])
			}
		}
	}
}

func TestEstimateGradientsRBFAllSamplesAsCenters(t *testing.T) {
	q := []float64{1, 0, 0, 1}
	n := 50
	disc := linearTestDiscretization(t, q, 2, 2, n)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = n
	jac, _, err := EstimateGradientsRBF(disc, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jac.NumCenters() != n {
		t.Fatalf("got %d jacobians, expected one per sample (%d)", jac.NumCenters(), n)
	}
}

func TestEstimateGradientsRBFInsufficientData(t *testing.T) {
	// 3 samples in R³ cannot fit 4 free parameters per QoI.
	q := []float64{1, 1, 1}
	disc := linearTestDiscretization(t, q, 1, 3, 3)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 3
	jac, _, err := EstimateGradientsRBF(disc, cfg)
	if jac != nil {
		t.Fatal("expected nil jacobians when every center fails")
	}
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Found != 3 || ide.Required != 4 {
		t.Errorf("error reports found=%d required=%d, expected 3 and 4", ide.Found, ide.Required)
	}
}

func TestEstimateGradientsRBFDegenerateGeometry(t *testing.T) {
	// All samples identical: the stencil displacements are rank deficient.
	n, inDim := 12, 2
	values := make([]float64, n*inDim)
	for i := range values {
		values[i] = 1.5
	}
	in, _ := NewSampleSetFrom(values, n, inDim)
	out, _ := NewSampleSetFrom(make([]float64, n), n, 1)
	disc, _ := NewDiscretization(in, out)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 4
	jac, _, err := EstimateGradientsRBF(disc, cfg)
	if jac != nil {
		t.Fatal("expected nil jacobians for degenerate geometry")
	}
	var dge *DegenerateGeometryError
	if !errors.As(err, &dge) {
		t.Fatalf("expected DegenerateGeometryError, got %v", err)
	}
}

func TestEstimateGradientsRBFPartialFailureKeepsCentersAligned(t *testing.T) {
	// The first five samples are duplicates, so their stencils collapse to
	// a single point; the remaining samples are spread out and fit cleanly.
	n, inDim := 20, 1
	values := make([]float64, n)
	for i := 5; i < n; i++ {
		values[i] = float64(i)
	}
	in, _ := NewSampleSetFrom(values, n, inDim)
	out := applyLinearMap(t, []float64{2}, 1, in)
	disc, _ := NewDiscretization(in, out)

	cfg := DefaultGradientConfig()
	cfg.NumCenters = 6
	cfg.NumNeighbors = 3
	jac, centerDisc, err := EstimateGradientsRBF(disc, cfg)
	if jac == nil {
		t.Fatal("expected a surviving jacobian for the healthy center")
	}
	var dge *DegenerateGeometryError
	if !errors.As(err, &dge) {
		t.Fatalf("expected aggregated DegenerateGeometryError, got %v", err)
	}

	if centerDisc.NumSamples() != jac.NumCenters() {
		t.Fatalf("center discretization has %d samples but %d jacobians",
			centerDisc.NumSamples(), jac.NumCenters())
	}
	// Only center 5 survives; the discretization must hold its sample, not
	// a duplicate's.
	if jac.NumCenters() != 1 {
		t.Fatalf("got %d jacobians, expected 1 survivor", jac.NumCenters())
	}
	if got := centerDisc.InputSampleSet().Sample(0)[0]; got != 5 {
		t.Errorf("surviving center sample = %v, expected 5", got)
	}
	if !almostEqual(jac.Center(0)[0], 2, 1e-8) {
		t.Errorf("surviving jacobian = %v, expected 2", jac.Center(0)[0])
	}
}

func TestEstimateGradientsCFDPartialFailureKeepsCentersAligned(t *testing.T) {
	inDim, outDim := 2, 1
	numCenters := 3

	centers, _ := NewSampleSetFrom(testPoints(numCenters, inDim), numCenters, inDim)
	pts, err := PickCFDPoints(centers, []float64{0.01, 0.01})
	if err != nil {
		t.Fatal(err)
	}

	// Collapse center 0's -dim0 point onto its +dim0 point, so its
	// centered difference along dimension 0 degenerates.
	values := append([]float64(nil), pts.Values()...)
	mi := inDim * numCenters
	copy(values[mi*inDim:(mi+1)*inDim], pts.Sample(0))
	broken, _ := NewSampleSetFrom(values, pts.NumSamples(), inDim)

	out := applyLinearMap(t, []float64{1, 1}, outDim, broken)
	disc, _ := NewDiscretization(broken, out)

	jac, centerDisc, err := EstimateGradientsCFD(disc, numCenters, false)
	if jac == nil {
		t.Fatal("expected surviving jacobians for the healthy centers")
	}
	var dge *DegenerateGeometryError
	if !errors.As(err, &dge) {
		t.Fatalf("expected aggregated DegenerateGeometryError, got %v", err)
	}
	if dge.Center != 0 {
		t.Errorf("error reports center %d, expected 0", dge.Center)
	}

	if jac.NumCenters() != numCenters-1 || centerDisc.NumSamples() != numCenters-1 {
		t.Fatalf("got %d jacobians and %d center samples, expected %d of each",
			jac.NumCenters(), centerDisc.NumSamples(), numCenters-1)
	}
	for i := 0; i < centerDisc.NumSamples(); i++ {
		got := centerDisc.InputSampleSet().Sample(i)
		want := centers.Sample(i + 1) // center 0 failed
		for d := range want {
			if !almostEqual(got[d], want[d], floatTol) {
				t.Errorf("surviving center %d = %v, expected original center %d = %v",
					i, got, i+1, want)
			}
		}
	}
}

func TestEstimateGradientsRBFConfigValidation(t *testing.T) {
	q := []float64{1, 1}
	disc := linearTestDiscretization(t, q, 1, 2, 30)

	cfg := DefaultGradientConfig()
	cfg.Epsilon = -1
	if _, _, err := EstimateGradientsRBF(disc, cfg); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError for negative epsilon, got %v", err)
	}

	cfg = DefaultGradientConfig()
	cfg.NumNeighbors = 2 // cannot fit inDim+1 = 3 free parameters
	if _, _, err := EstimateGradientsRBF(disc, cfg); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError for tiny stencil, got %v", err)
	}
}

func TestPickFFDPointsLayout(t *testing.T) {
	centers, _ := NewSampleSetFrom([]float64{
		0, 0,
		1, 2,
	}, 2, 2)
	radii := []float64{0.1, 0.2}

	pts, err := PickFFDPoints(centers, radii)
	if err != nil {
		t.Fatal(err)
	}
	if pts.NumSamples() != 6 {
		t.Fatalf("got %d samples, expected 2*(2+1) = 6", pts.NumSamples())
	}
	// Block 1 perturbs dimension 0.
	if got := pts.Sample(2); !almostEqual(got[0], 0.1, floatTol) || got[1] != 0 {
		t.Errorf("perturbed sample = %v, expected [0.1 0]", got)
	}
	// Block 2 perturbs dimension 1.
	if got := pts.Sample(5); got[0] != 1 || !almostEqual(got[1], 2.2, floatTol) {
		t.Errorf("perturbed sample = %v, expected [1 2.2]", got)
	}
}

func TestEstimateGradientsFFDRecoversLinearMap(t *testing.T) {
	q := []float64{
		2, -1,
		0, 3,
	}
	outDim, inDim := 2, 2
	numCenters := 4

	centers, _ := NewSampleSetFrom(testPoints(numCenters, inDim), numCenters, inDim)
	pts, err := PickFFDPoints(centers, []float64{0.01, 0.01})
	if err != nil {
		t.Fatal(err)
	}
	out := applyLinearMap(t, q, outDim, pts)
	disc, _ := NewDiscretization(pts, out)

	jac, centerDisc, err := EstimateGradientsFFD(disc, numCenters, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jac.NumCenters() != numCenters {
		t.Fatalf("got %d jacobians, expected %d", jac.NumCenters(), numCenters)
	}
	if centerDisc.NumSamples() != numCenters {
		t.Fatalf("center discretization has %d samples", centerDisc.NumSamples())
	}
	for c := 0; c < numCenters; c++ {
		m := jac.Center(c)
		for i := range q {
			if !almostEqual(m[i], q[i], 1e-9) {
				t.Errorf("center %d: jacobian[%d] = %v, expected %v", c, i, m[i], q[i])
			}
		}
	}
}

func TestEstimateGradientsCFDRecoversLinearMap(t *testing.T) {
	q := []float64{
		1, 0.5, -2,
	}
	outDim, inDim := 1, 3
	numCenters := 3

	centers, _ := NewSampleSetFrom(testPoints(numCenters, inDim), numCenters, inDim)
	pts, err := PickCFDPoints(centers, []float64{0.01, 0.02, 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if pts.NumSamples() != numCenters*2*inDim {
		t.Fatalf("CFD layout has %d samples, expected %d", pts.NumSamples(), numCenters*2*inDim)
	}
	out := applyLinearMap(t, q, outDim, pts)
	disc, _ := NewDiscretization(pts, out)

	jac, centerDisc, err := EstimateGradientsCFD(disc, numCenters, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for c := 0; c < numCenters; c++ {
		m := jac.Center(c)
		for i := range q {
			if !almostEqual(m[i], q[i], 1e-9) {
				t.Errorf("center %d: jacobian[%d] = %v, expected %v", c, i, m[i], q[i])
			}
		}
	}

	// The reconstructed centers are the midpoints of the ± pairs.
	for c := 0; c < numCenters; c++ {
		got := centerDisc.InputSampleSet().Sample(c)
		want := centers.Sample(c)
		for d := range want {
			if !almostEqual(got[d], want[d], floatTol) {
				t.Errorf("center %d dim %d = %v, expected %v", c, d, got[d], want[d])
			}
		}
	}
}

func TestEstimateGradientsFFDPartialCenterFailure(t *testing.T) {
	inDim, outDim := 2, 1
	numCenters := 3

	centers, _ := NewSampleSetFrom(testPoints(numCenters, inDim), numCenters, inDim)
	pts, err := PickFFDPoints(centers, []float64{0.01, 0.01})
	if err != nil {
		t.Fatal(err)
	}

	// Collapse center 0's dimension-0 perturbation back onto the center,
	// making that one finite difference degenerate.
	values := append([]float64(nil), pts.Values()...)
	copy(values[numCenters*inDim:(numCenters+1)*inDim], centers.Sample(0))
	broken, _ := NewSampleSetFrom(values, pts.NumSamples(), inDim)

	q := []float64{1, 1}
	out := applyLinearMap(t, q, outDim, broken)
	disc, _ := NewDiscretization(broken, out)

	jac, centerDisc, err := EstimateGradientsFFD(disc, numCenters, false)
	if jac == nil {
		t.Fatal("expected surviving jacobians for the healthy centers")
	}
	if jac.NumCenters() != numCenters-1 {
		t.Errorf("got %d jacobians, expected %d survivors", jac.NumCenters(), numCenters-1)
	}
	var dge *DegenerateGeometryError
	if !errors.As(err, &dge) {
		t.Fatalf("expected aggregated DegenerateGeometryError, got %v", err)
	}
	if dge.Center != 0 {
		t.Errorf("error reports center %d, expected 0", dge.Center)
	}

	// The failed center is dropped from the center discretization too, so
	// jacobian c and center sample c stay paired.
	if centerDisc.NumSamples() != jac.NumCenters() {
		t.Fatalf("center discretization has %d samples but %d jacobians",
			centerDisc.NumSamples(), jac.NumCenters())
	}
	for i := 0; i < centerDisc.NumSamples(); i++ {
		got := centerDisc.InputSampleSet().Sample(i)
		want := centers.Sample(i + 1) // center 0 failed
		for d := range want {
			if got[d] != want[d] {
				t.Errorf("surviving center %d = %v, expected original center %d = %v",
					i, got, i+1, want)
			}
		}
	}
}
