package model

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"
)

// linear is a single-output linear regression fitted by mini-batch SGD.
type linear struct {
	inputDim int
	weights  []float64
	bias     float64
	l2       float64
	rng      *rand.Rand
}

func newLinear(inputDim int, settings Settings) *linear {
	m := &linear{
		inputDim: inputDim,
		weights:  make([]float64, inputDim),
		l2:       settings.L2Penalty,
		rng:      rand.New(rand.NewSource(settings.Seed)),
	}
	m.ResetParameters()
	return m
}

func (m *linear) Predict(x [][]float64) ([]float64, error) {
	pred := make([]float64, len(x))
	for i, row := range x {
		if len(row) != m.inputDim {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), m.inputDim)
		}
		sum := m.bias
		for j, v := range row {
			sum += m.weights[j] * v
		}
		pred[i] = sum
	}
	return pred, nil
}

func (m *linear) FitEpoch(x [][]float64, y []float64, learningRate float64, batchSize int) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("feature rows (%d) and labels (%d) differ in length", len(x), len(y))
	}
	if len(x) == 0 {
		return 0, fmt.Errorf("cannot fit on an empty training set")
	}
	if batchSize < 1 {
		batchSize = len(x)
	}

	for start := 0; start < len(x); start += batchSize {
		end := start + batchSize
		if end > len(x) {
			end = len(x)
		}
		gw := make([]float64, m.inputDim)
		gb := 0.0
		for i := start; i < end; i++ {
			row := x[i]
			if len(row) != m.inputDim {
				return 0, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), m.inputDim)
			}
			sum := m.bias
			for j, v := range row {
				sum += m.weights[j] * v
			}
			d := 2 * (sum - y[i]) / float64(end-start)
			for j, v := range row {
				gw[j] += d * v
			}
			gb += d
		}
		for j := range m.weights {
			m.weights[j] -= learningRate * (gw[j] + 2*m.l2*m.weights[j])
		}
		m.bias -= learningRate * gb
	}

	pred, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return meanSquaredError(y, pred), nil
}

func (m *linear) ResetParameters() {
	for i := range m.weights {
		m.weights[i] = m.rng.NormFloat64() * 0.01
	}
	m.bias = 0
}

// weightsFile is the gob payload written to the weights artifact.
type weightsFile struct {
	InputDim int
	Weights  []float64
	Bias     float64
}

// structureFile is the JSON payload written to the structure artifact.
type structureFile struct {
	Type      string    `json:"type"`
	InputDim  int       `json:"input_dim"`
	L2Penalty float64   `json:"l2_penalty"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   Metrics   `json:"metrics"`
}

func (m *linear) LoadWeights(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open weights file: %w", err)
	}
	defer f.Close()

	var w weightsFile
	if err := gob.NewDecoder(f).Decode(&w); err != nil {
		return fmt.Errorf("decode weights: %w", err)
	}
	if w.InputDim != m.inputDim {
		return fmt.Errorf("weights are for input dimension %d, model expects %d", w.InputDim, m.inputDim)
	}
	m.weights = w.Weights
	m.bias = w.Bias
	return nil
}

func (m *linear) Save(path string, metrics Metrics) error {
	structure := structureFile{
		Type:      "linear",
		InputDim:  m.inputDim,
		L2Penalty: m.l2,
		CreatedAt: time.Now(),
		Metrics:   metrics,
	}
	data, err := json.MarshalIndent(structure, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal structure: %w", err)
	}
	if err := os.WriteFile(path+".json", data, 0o600); err != nil {
		return fmt.Errorf("write structure: %w", err)
	}

	f, err := os.Create(path + ".h5")
	if err != nil {
		return fmt.Errorf("create weights file: %w", err)
	}
	defer f.Close()

	w := weightsFile{InputDim: m.inputDim, Weights: m.weights, Bias: m.bias}
	if err := gob.NewEncoder(f).Encode(w); err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	return nil
}
