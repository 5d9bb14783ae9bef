package classifier

import (
	"gonum.org/v1/gonum/floats"
)

// DefaultAlpha is the weight given to the newest distribution.
const DefaultAlpha = 0.5

// Smoother keeps an exponential moving average of probability distributions.
// It is not safe for concurrent use; each connection owns one.
type Smoother struct {
	alpha    float64
	smoothed []float64
}

// NewSmoother creates an unseeded Smoother. alpha must be in (0, 1].
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update folds current into the average and returns a copy of the result.
// The first call (or a call with a different length) seeds the average with current.
func (s *Smoother) Update(current []float64) []float64 {
	if s.smoothed == nil || len(s.smoothed) != len(current) {
		s.smoothed = append([]float64(nil), current...)
		return append([]float64(nil), s.smoothed...)
	}

	floats.Scale(1-s.alpha, s.smoothed)
	floats.AddScaled(s.smoothed, s.alpha, current)
	return append([]float64(nil), s.smoothed...)
}

// Seeded reports whether the smoother has observed a distribution.
func (s *Smoother) Seeded() bool { return s.smoothed != nil }

// Reset returns the smoother to its unseeded state.
func (s *Smoother) Reset() { s.smoothed = nil }
