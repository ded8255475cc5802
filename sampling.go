package bet

import (
	"fmt"
	"math/rand"
)

// Model runs the forward map at a batch of parameter samples. values is
// flat row-major with n rows of dim columns; the returned outputs are flat
// row-major with n rows of outDim columns.
type Model func(values []float64, n, dim int) (outputs []float64, outDim int, err error)

// SampleType selects the sampling strategy for parameter space.
type SampleType string

const (
	// SampleRandom draws uniform random samples over the domain,
	// assuming a Lebesgue measure on a generalized rectangle.
	SampleRandom SampleType = "random"

	// SampleLatinHypercube draws a centered latin hypercube: each
	// dimension is split into equal strata and every stratum is hit
	// exactly once, at its center.
	SampleLatinHypercube SampleType = "lhs"
)

// Sampler generates parameter samples and evaluates a forward map at them
// to build up the sample pairs the inverse problem works from.
type Sampler struct {
	// Model runs the forward map at a batch of parameter samples.
	Model Model

	// NumSamples is the default sample count for generation methods
	// called with count 0.
	NumSamples int
}

// NewSampler creates a Sampler for the given forward map.
func NewSampler(model Model, numSamples int) *Sampler {
	return &Sampler{Model: model, NumSamples: numSamples}
}

// RandomSampleSet fills a sample set of the given dimensionality with
// numSamples points drawn over its domain (the unit hypercube when no
// domain is set). Sampling is deterministic for a fixed seed.
func (s *Sampler) RandomSampleSet(sampleType SampleType, dim, numSamples int, seed int64) (*SampleSet, error) {
	set, err := NewSampleSet(dim)
	if err != nil {
		return nil, err
	}
	return s.fillSampleSet(sampleType, set, numSamples, seed)
}

// RandomSampleSetDomain is RandomSampleSet over an explicit domain given
// as flat [min0, max0, min1, max1, ...] bounds.
func (s *Sampler) RandomSampleSetDomain(sampleType SampleType, domain []float64, numSamples int, seed int64) (*SampleSet, error) {
	set, err := NewSampleSet(len(domain) / 2)
	if err != nil {
		return nil, err
	}
	if err := set.SetDomain(domain); err != nil {
		return nil, err
	}
	return s.fillSampleSet(sampleType, set, numSamples, seed)
}

func (s *Sampler) fillSampleSet(sampleType SampleType, set *SampleSet, numSamples int, seed int64) (*SampleSet, error) {
	if numSamples == 0 {
		numSamples = s.NumSamples
	}
	if numSamples < 1 {
		return nil, configErrorf("numSamples", "must be >= 1, got %d", numSamples)
	}

	dim := set.Dim()
	rng := rand.New(rand.NewSource(seed))

	unit := make([]float64, numSamples*dim)
	switch sampleType {
	case SampleRandom:
		for i := range unit {
			unit[i] = rng.Float64()
		}
	case SampleLatinHypercube:
		for d := 0; d < dim; d++ {
			perm := rng.Perm(numSamples)
			for i := 0; i < numSamples; i++ {
				unit[i*dim+d] = (float64(perm[i]) + 0.5) / float64(numSamples)
			}
		}
	default:
		return nil, configErrorf("sampleType", "must be %q or %q, got %q",
			SampleRandom, SampleLatinHypercube, sampleType)
	}

	// Scale unit-cube samples into the domain, if one is set.
	if domain := set.Domain(); domain != nil {
		for i := 0; i < numSamples; i++ {
			for d := 0; d < dim; d++ {
				lo, hi := domain[2*d], domain[2*d+1]
				unit[i*dim+d] = lo + unit[i*dim+d]*(hi-lo)
			}
		}
	}

	if err := set.SetValues(unit, numSamples); err != nil {
		return nil, err
	}
	return set, nil
}

// CreateDiscretization evaluates the forward map at every sample in the
// input set and pairs the results into a discretization.
func (s *Sampler) CreateDiscretization(input *SampleSet) (*Discretization, error) {
	if s.Model == nil {
		return nil, configErrorf("Model", "sampler has no forward map")
	}
	n := input.NumSamples()
	outputs, outDim, err := s.Model(input.Values(), n, input.Dim())
	if err != nil {
		return nil, fmt.Errorf("bet: forward map failed: %w", err)
	}
	outputSet, err := NewSampleSetFrom(outputs, n, outDim)
	if err != nil {
		return nil, err
	}
	return NewDiscretization(input, outputSet)
}

// CreateRandomDiscretization generates numSamples parameter samples over
// the given domain and evaluates the forward map at them. It is the usual
// entry point for setting up an inverse problem from scratch.
func (s *Sampler) CreateRandomDiscretization(sampleType SampleType, domain []float64, numSamples int, seed int64) (*Discretization, error) {
	input, err := s.RandomSampleSetDomain(sampleType, domain, numSamples, seed)
	if err != nil {
		return nil, err
	}
	return s.CreateDiscretization(input)
}
