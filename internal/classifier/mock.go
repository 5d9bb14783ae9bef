package classifier

import (
	"context"
	"sync"
)

// MockPredictor is a test implementation of the Predictor interface.
// It allows tests to control the returned distributions.
type MockPredictor struct {
	mu    sync.Mutex
	probs []float64
	err   error
	calls int
	fn    func(features []float64) []float64
}

// NewMockPredictor creates a new MockPredictor instance.
func NewMockPredictor() *MockPredictor {
	return &MockPredictor{}
}

// SetProbabilities sets the distribution returned by Predict.
func (m *MockPredictor) SetProbabilities(p []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probs = p
	m.fn = nil
}

// SetFunc makes Predict compute its distribution from the features.
func (m *MockPredictor) SetFunc(fn func(features []float64) []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
}

// SetError sets the error returned by Predict.
func (m *MockPredictor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Predict ran.
func (m *MockPredictor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Predict returns the pre-configured distribution or error.
func (m *MockPredictor) Predict(ctx context.Context, features []float64) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.fn != nil {
		return m.fn(features), nil
	}
	return append([]float64(nil), m.probs...), nil
}

// OneHot returns a distribution with all mass on index i.
func OneHot(n, i int) []float64 {
	p := make([]float64, n)
	p[i] = 1
	return p
}
