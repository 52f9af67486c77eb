package control

import (
	"errors"
	"fmt"
)

// Default thresholds for the blended humidity metric.
const (
	DefaultThresholdOn  = 75.0
	DefaultThresholdOff = 40.0
)

var (
	ErrNegativeWeight    = errors.New("control settings: negative weight")
	ErrInvalidThresholds = errors.New("control settings: off threshold must be below on threshold")
	ErrNoWeightedSources = errors.New("control settings: no weighted sources")
)

// Thresholds is the hysteresis band. The actuator turns on above On,
// off below Off, and holds in between.
type Thresholds struct {
	On  float64 `json:"on" yaml:"on"`
	Off float64 `json:"off" yaml:"off"`
}

// Validate rejects inverted or degenerate bands; values are never
// silently clamped.
func (t Thresholds) Validate() error {
	if t.Off >= t.On {
		return fmt.Errorf("%w: off=%.2f on=%.2f", ErrInvalidThresholds, t.Off, t.On)
	}
	return nil
}

// ValidateWeights rejects negative weights. Weights need not sum to 1;
// the combiner renormalizes over reporting sources.
func ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return ErrNoWeightedSources
	}
	for source, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: %s=%.4f", ErrNegativeWeight, source, w)
		}
	}
	return nil
}
