// Package model provides the in-process classifier: a logistic model over the ten-column CBC
// vector, loaded from a JSON artefact exported at training time.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cbc-analysis-server/internal/domain"
)

// LinearModel scores sigmoid(w·x + b) and returns 1 when the probability reaches Threshold.
type LinearModel struct {
	Weights   domain.ModelInputVector
	Intercept float64
	Threshold float64
}

type linearModelFile struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Threshold *float64  `json:"threshold,omitempty"`
}

// Load reads {"weights": [10 floats], "intercept": b, "threshold": t}. The threshold defaults to 0.5.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	var file linearModelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", path, err)
	}
	threshold := 0.5
	if file.Threshold != nil {
		threshold = *file.Threshold
	}
	return New(file.Weights, file.Intercept, threshold)
}

// New builds a model, validating the weight count and threshold.
func New(weights []float64, intercept, threshold float64) (*LinearModel, error) {
	if len(weights) != domain.ModelInputWidth {
		return nil, fmt.Errorf("model needs %d weights, got %d", domain.ModelInputWidth, len(weights))
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0,1), got %v", threshold)
	}
	m := &LinearModel{Intercept: intercept, Threshold: threshold}
	copy(m.Weights[:], weights)
	return m, nil
}

// Probability returns the positive-class probability for a vector.
func (m *LinearModel) Probability(vector domain.ModelInputVector) float64 {
	z := m.Intercept
	for i, x := range vector {
		z += m.Weights[i] * x
	}
	return 1 / (1 + math.Exp(-z))
}

// Predict implements domain.Classifier
func (m *LinearModel) Predict(ctx context.Context, vector domain.ModelInputVector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.Probability(vector) >= m.Threshold {
		return 1, nil
	}
	return 0, nil
}
