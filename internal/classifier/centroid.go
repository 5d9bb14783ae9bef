package classifier

import (
	"context"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// Template is a reference feature vector for one pose label.
type Template struct {
	Label    string    `yaml:"label"`
	Features []float64 `yaml:"features"`
}

// CentroidPredictor scores a feature vector against one template per label.
// Closer templates get more probability mass: p_i = softmax(-distance_i / temperature).
type CentroidPredictor struct {
	templates   [][]float64 // indexed like the codec
	temperature float64
}

type centroidsFile struct {
	Temperature float64    `yaml:"temperature"`
	Centroids   []Template `yaml:"centroids"`
}

// NewCentroidPredictor creates a predictor whose output is ordered like codec.
// Every codec label needs exactly one template of length dim.
func NewCentroidPredictor(codec *LabelCodec, templates []Template, dim int, temperature float64) (*CentroidPredictor, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("centroid temperature must be positive, got %g", temperature)
	}

	ordered := make([][]float64, codec.Len())
	for _, t := range templates {
		idx := codec.Index(t.Label)
		if idx < 0 {
			return nil, fmt.Errorf("centroid for unknown label %q", t.Label)
		}
		if ordered[idx] != nil {
			return nil, fmt.Errorf("duplicate centroid for label %q", t.Label)
		}
		if len(t.Features) != dim {
			return nil, fmt.Errorf("centroid %q has %d features, expected %d", t.Label, len(t.Features), dim)
		}
		ordered[idx] = append([]float64(nil), t.Features...)
	}
	for i, c := range ordered {
		if c == nil {
			label, _ := codec.Decode(i)
			return nil, fmt.Errorf("missing centroid for label %q", label)
		}
	}

	return &CentroidPredictor{templates: ordered, temperature: temperature}, nil
}

// LoadCentroidPredictor reads templates from a YAML file. A temperature in the
// file overrides the given default.
func LoadCentroidPredictor(path string, codec *LabelCodec, dim int, temperature float64) (*CentroidPredictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read centroids: %w", err)
	}
	var cf centroidsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse centroids %s: %w", path, err)
	}
	if cf.Temperature > 0 {
		temperature = cf.Temperature
	}
	return NewCentroidPredictor(codec, cf.Centroids, dim, temperature)
}

// Predict implements Predictor.
func (p *CentroidPredictor) Predict(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != len(p.templates[0]) {
		return nil, fmt.Errorf("expected %d features, got %d", len(p.templates[0]), len(features))
	}

	logits := make([]float64, len(p.templates))
	for i, t := range p.templates {
		logits[i] = -floats.Distance(features, t, 2) / p.temperature
	}

	norm := floats.LogSumExp(logits)
	for i, l := range logits {
		logits[i] = math.Exp(l - norm)
	}
	return logits, nil
}

// HealthCheck implements HealthChecker; an in-process predictor is always available.
func (p *CentroidPredictor) HealthCheck(ctx context.Context) error {
	return nil
}
