package bet

import (
	"errors"
	"fmt"
)

// InsufficientDataError reports a gradient stencil with fewer samples than
// the local fit has free parameters. It identifies the offending cluster
// center by index.
type InsufficientDataError struct {
	Center   int // index of the cluster center in the center sample set
	Found    int // samples available in the neighborhood
	Required int // minimum samples the local fit needs
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("bet: center %d: neighborhood has %d samples, local fit needs at least %d",
		e.Center, e.Found, e.Required)
}

// DegenerateGeometryError reports a rank-deficient local neighborhood
// (duplicate or collinear stencil points) for which no unique least-squares
// Jacobian exists.
type DegenerateGeometryError struct {
	Center      int // index of the cluster center in the center sample set
	StencilSize int // number of samples in the attempted fit
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("bet: center %d: rank-deficient stencil of %d samples, no unique least-squares fit",
		e.Center, e.StencilSize)
}

// ConfigurationError reports invalid parameters detected before any
// computation starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bet: invalid %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
