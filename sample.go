package bet

import "fmt"

// SampleSet holds an ordered collection of points in R^dim together with
// optional domain bounds and per-sample Voronoi cell volume estimates.
// Values are stored flat in row-major order (n rows of dim columns).
//
// A SampleSet is a value object: operations that change its shape
// (Restrict, EstimateVolumesMC) return a new set rather than mutating the
// receiver, so callers can hold views of the same data without aliasing
// surprises.
type SampleSet struct {
	values  []float64 // flat row-major, n*dim
	n       int
	dim     int
	domain  []float64 // flat [min0, max0, min1, max1, ...], len 2*dim; nil if unset
	volumes []float64 // len n; nil if unset
}

// NewSampleSet creates an empty SampleSet of the given dimensionality.
func NewSampleSet(dim int) (*SampleSet, error) {
	if dim < 1 {
		return nil, fmt.Errorf("bet: sample set dimension must be >= 1, got %d", dim)
	}
	return &SampleSet{dim: dim}, nil
}

// NewSampleSetFrom creates a SampleSet from flat row-major values with n
// rows of dim columns. The values slice is copied.
func NewSampleSetFrom(values []float64, n, dim int) (*SampleSet, error) {
	if dim < 1 {
		return nil, fmt.Errorf("bet: sample set dimension must be >= 1, got %d", dim)
	}
	if len(values) != n*dim {
		return nil, fmt.Errorf("bet: values length %d does not match n*dim = %d (n=%d, dim=%d)",
			len(values), n*dim, n, dim)
	}
	v := make([]float64, len(values))
	copy(v, values)
	return &SampleSet{values: v, n: n, dim: dim}, nil
}

// Dim returns the dimensionality of the space.
func (s *SampleSet) Dim() int { return s.dim }

// NumSamples returns the number of samples currently held.
func (s *SampleSet) NumSamples() int { return s.n }

// Values returns the flat row-major sample values. The slice is owned by
// the SampleSet; callers must not modify it.
func (s *SampleSet) Values() []float64 { return s.values }

// Sample returns the i-th sample as a view into the underlying storage.
func (s *SampleSet) Sample(i int) []float64 {
	return s.values[i*s.dim : (i+1)*s.dim]
}

// SetValues replaces the sample values. values is flat row-major with n
// rows of Dim() columns and is copied.
func (s *SampleSet) SetValues(values []float64, n int) error {
	if len(values) != n*s.dim {
		return fmt.Errorf("bet: values length %d does not match n*dim = %d (n=%d, dim=%d)",
			len(values), n*s.dim, n, s.dim)
	}
	s.values = make([]float64, len(values))
	copy(s.values, values)
	s.n = n
	s.volumes = nil
	return nil
}

// Domain returns the flat domain bounds [min0, max0, min1, max1, ...],
// or nil if no domain has been set.
func (s *SampleSet) Domain() []float64 { return s.domain }

// SetDomain sets the domain bounds. bounds is flat [min0, max0, ...] of
// length 2*Dim() and is copied. Each min must be strictly below its max.
func (s *SampleSet) SetDomain(bounds []float64) error {
	if len(bounds) != 2*s.dim {
		return fmt.Errorf("bet: domain length %d does not match 2*dim = %d", len(bounds), 2*s.dim)
	}
	for d := 0; d < s.dim; d++ {
		if bounds[2*d] >= bounds[2*d+1] {
			return fmt.Errorf("bet: domain dimension %d has min %g >= max %g",
				d, bounds[2*d], bounds[2*d+1])
		}
	}
	s.domain = make([]float64, len(bounds))
	copy(s.domain, bounds)
	return nil
}

// Volumes returns the per-sample Voronoi cell volume estimates, or nil if
// none have been computed.
func (s *SampleSet) Volumes() []float64 { return s.volumes }

// SetVolumes sets per-sample volume estimates. volumes must have length
// NumSamples() and is copied.
func (s *SampleSet) SetVolumes(volumes []float64) error {
	if len(volumes) != s.n {
		return fmt.Errorf("bet: volumes length %d does not match sample count %d", len(volumes), s.n)
	}
	s.volumes = make([]float64, len(volumes))
	copy(s.volumes, volumes)
	return nil
}

// EstimateVolumesMC returns a copy of the set with cell volumes assigned
// under the Monte-Carlo assumption: each of the n Voronoi cells carries an
// equal share 1/n of the (normalized) domain measure.
func (s *SampleSet) EstimateVolumesMC() *SampleSet {
	out := s.clone()
	out.volumes = make([]float64, s.n)
	if s.n > 0 {
		v := 1.0 / float64(s.n)
		for i := range out.volumes {
			out.volumes[i] = v
		}
	}
	return out
}

// Restrict returns a new SampleSet containing only the selected columns,
// in the given order. The domain is restricted to the same columns;
// volumes do not carry over (they are volumes of the full-dimensional
// cells). The receiver is not modified.
func (s *SampleSet) Restrict(indices []int) (*SampleSet, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("bet: restrict requires at least one column index")
	}
	for _, idx := range indices {
		if idx < 0 || idx >= s.dim {
			return nil, fmt.Errorf("bet: restrict index %d out of range [0, %d)", idx, s.dim)
		}
	}

	k := len(indices)
	out := &SampleSet{n: s.n, dim: k}
	if s.values != nil {
		out.values = make([]float64, s.n*k)
		for i := 0; i < s.n; i++ {
			row := s.values[i*s.dim:]
			for j, idx := range indices {
				out.values[i*k+j] = row[idx]
			}
		}
	}
	if s.domain != nil {
		out.domain = make([]float64, 2*k)
		for j, idx := range indices {
			out.domain[2*j] = s.domain[2*idx]
			out.domain[2*j+1] = s.domain[2*idx+1]
		}
	}
	return out, nil
}

// Head returns a new SampleSet holding the first n samples. Volumes do not
// carry over.
func (s *SampleSet) Head(n int) (*SampleSet, error) {
	if n < 0 || n > s.n {
		return nil, fmt.Errorf("bet: head count %d out of range [0, %d]", n, s.n)
	}
	out := &SampleSet{n: n, dim: s.dim}
	if s.values != nil {
		out.values = make([]float64, n*s.dim)
		copy(out.values, s.values[:n*s.dim])
	}
	if s.domain != nil {
		out.domain = make([]float64, len(s.domain))
		copy(out.domain, s.domain)
	}
	return out, nil
}

// takeRows returns a new SampleSet holding the given sample rows, in
// order. Volumes do not carry over.
func (s *SampleSet) takeRows(indices []int) *SampleSet {
	out := &SampleSet{n: len(indices), dim: s.dim}
	out.values = make([]float64, len(indices)*s.dim)
	for i, idx := range indices {
		copy(out.values[i*s.dim:(i+1)*s.dim], s.Sample(idx))
	}
	if s.domain != nil {
		out.domain = append([]float64(nil), s.domain...)
	}
	return out
}

// ranges returns the per-dimension value range (max - min over the
// samples). Dimensions with no spread report range 0.
func (s *SampleSet) ranges() []float64 {
	r := make([]float64, s.dim)
	if s.n == 0 {
		return r
	}
	for d := 0; d < s.dim; d++ {
		lo, hi := s.values[d], s.values[d]
		for i := 1; i < s.n; i++ {
			v := s.values[i*s.dim+d]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		r[d] = hi - lo
	}
	return r
}

func (s *SampleSet) clone() *SampleSet {
	out := &SampleSet{n: s.n, dim: s.dim}
	if s.values != nil {
		out.values = append([]float64(nil), s.values...)
	}
	if s.domain != nil {
		out.domain = append([]float64(nil), s.domain...)
	}
	if s.volumes != nil {
		out.volumes = append([]float64(nil), s.volumes...)
	}
	return out
}

// Discretization pairs an input SampleSet with the output SampleSet
// produced by evaluating the forward map at each input sample. Both sets
// always hold the same number of samples, index-aligned.
type Discretization struct {
	input  *SampleSet
	output *SampleSet
}

// NewDiscretization pairs input and output sample sets. The sets must hold
// the same number of samples.
func NewDiscretization(input, output *SampleSet) (*Discretization, error) {
	if input == nil || output == nil {
		return nil, fmt.Errorf("bet: discretization requires non-nil input and output sample sets")
	}
	if input.NumSamples() != output.NumSamples() {
		return nil, fmt.Errorf("bet: input has %d samples but output has %d",
			input.NumSamples(), output.NumSamples())
	}
	return &Discretization{input: input, output: output}, nil
}

// InputSampleSet returns the parameter-space sample set.
func (d *Discretization) InputSampleSet() *SampleSet { return d.input }

// OutputSampleSet returns the data-space sample set.
func (d *Discretization) OutputSampleSet() *SampleSet { return d.output }

// NumSamples returns the shared sample count.
func (d *Discretization) NumSamples() int { return d.input.NumSamples() }
