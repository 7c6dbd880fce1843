// Package model provides the regression backend consumed by the predictor
// orchestrator: an opaque model handle, a builder, a training loop with
// early stopping, and artifact persistence (structure as JSON, weights as a
// gob-encoded blob).
package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Model is the opaque handle held by the predictor. Any concrete modeling
// backend can satisfy it.
type Model interface {
	// Predict runs forward inference and returns one value per input row.
	Predict(x [][]float64) ([]float64, error)

	// FitEpoch performs one mini-batch gradient descent pass over the
	// training data and returns the mean squared training loss.
	FitEpoch(x [][]float64, y []float64, learningRate float64, batchSize int) (float64, error)

	// ResetParameters reinitializes all trainable parameters in place,
	// keeping the architecture.
	ResetParameters()

	// LoadWeights replaces parameter values with those stored at path.
	// The stored weights must match the model architecture.
	LoadWeights(path string) error

	// Save writes the model structure to <path>.json and its weights to
	// <path>.h5, embedding the supplied training metrics in the structure
	// file.
	Save(path string, metrics Metrics) error
}

// Settings parameterize the model builder.
type Settings struct {
	// L2Penalty is the weight decay coefficient applied during fitting.
	L2Penalty float64 `yaml:"l2Penalty"`

	// Seed seeds the parameter initializer.
	Seed int64 `yaml:"seed"`
}

// Build constructs a model for inputs of the given attribute vector size.
func Build(attributeVectorSize int, settings Settings) (Model, error) {
	if attributeVectorSize <= 0 {
		return nil, fmt.Errorf("invalid attribute vector size %d", attributeVectorSize)
	}
	if settings.L2Penalty < 0 {
		return nil, fmt.Errorf("l2 penalty must be non-negative, got %f", settings.L2Penalty)
	}
	return newLinear(attributeVectorSize, settings), nil
}

// Float is a float64 that serializes NaN as JSON null. Loss fields for
// subsets that were absent during a run are NaN.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Metrics holds the losses reported by a training run. They are written
// into the structure file alongside the architecture.
type Metrics struct {
	Loss             Float `json:"loss"`
	InnerValLoss     Float `json:"inner_val_loss"`
	MeanOuterValLoss Float `json:"mean_outer_val_loss"`
	MeanTestLoss     Float `json:"mean_test_loss"`
}

func meanSquaredError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}
