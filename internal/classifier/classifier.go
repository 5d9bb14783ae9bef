// Package classifier wraps pose predictors behind a label-level classification API
// and smooths their output over time.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// ErrClassification is returned when the predictor fails or produces an unusable distribution.
var ErrClassification = errors.New("classification failed")

// Predictor produces a probability distribution over label indices for a feature vector.
type Predictor interface {
	Predict(ctx context.Context, features []float64) ([]float64, error)
}

// HealthChecker is implemented by predictors that can report their availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LabelCodec maps distribution indices to pose labels.
type LabelCodec struct {
	labels []string
}

// NewLabelCodec creates a codec; index i decodes to labels[i].
func NewLabelCodec(labels []string) (*LabelCodec, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("label codec needs at least one label")
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("label codec: empty label")
		}
		if seen[l] {
			return nil, fmt.Errorf("label codec: duplicate label %q", l)
		}
		seen[l] = true
	}
	return &LabelCodec{labels: append([]string(nil), labels...)}, nil
}

type labelsFile struct {
	Labels []string `yaml:"labels"`
}

// LoadLabelCodec reads a YAML file of the form "labels: [a, b, c]".
func LoadLabelCodec(path string) (*LabelCodec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var lf labelsFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	return NewLabelCodec(lf.Labels)
}

// Decode returns the label at index i.
func (c *LabelCodec) Decode(i int) (string, error) {
	if i < 0 || i >= len(c.labels) {
		return "", fmt.Errorf("label index %d out of range [0,%d)", i, len(c.labels))
	}
	return c.labels[i], nil
}

// Index returns the position of label, or -1.
func (c *LabelCodec) Index(label string) int {
	for i, l := range c.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Len returns the number of labels.
func (c *LabelCodec) Len() int { return len(c.labels) }

// Labels returns a copy of the labels in index order.
func (c *LabelCodec) Labels() []string { return append([]string(nil), c.labels...) }

// Argmax returns the index of the largest probability; ties go to the lowest index.
func Argmax(p []float64) int {
	if len(p) == 0 {
		return -1
	}
	return floats.MaxIdx(p)
}

// Result is the instantaneous classification of one feature vector.
type Result struct {
	Label         string
	Probabilities []float64
}

// Adapter combines a predictor and a label codec.
type Adapter struct {
	predictor Predictor
	codec     *LabelCodec
	sem       *semaphore.Weighted
}

// NewAdapter creates an Adapter. maxConcurrent bounds simultaneous Predict calls;
// zero or less means unbounded.
func NewAdapter(p Predictor, codec *LabelCodec, maxConcurrent int) *Adapter {
	a := &Adapter{predictor: p, codec: codec}
	if maxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return a
}

// Codec returns the adapter's label codec.
func (a *Adapter) Codec() *LabelCodec { return a.codec }

// Predictor returns the wrapped predictor.
func (a *Adapter) Predictor() Predictor { return a.predictor }

// Classify runs the predictor and decodes its most probable label.
func (a *Adapter) Classify(ctx context.Context, features []float64) (Result, error) {
	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
		}
		defer a.sem.Release(1)
	}

	probs, err := a.predictor.Predict(ctx, features)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if err := a.validate(probs); err != nil {
		return Result{}, err
	}

	label, err := a.codec.Decode(Argmax(probs))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return Result{Label: label, Probabilities: probs}, nil
}

func (a *Adapter) validate(probs []float64) error {
	if len(probs) != a.codec.Len() {
		return fmt.Errorf("%w: expected %d probabilities, got %d", ErrClassification, a.codec.Len(), len(probs))
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: probability %d is not finite", ErrClassification, i)
		}
	}
	return nil
}
