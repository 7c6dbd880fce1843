package model

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticRows(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i) / float64(n)
		x[i] = []float64{v, 1 - v}
		y[i] = 2*v + 0.5*(1-v) + 1
	}
	return x, y
}

func TestBuild(t *testing.T) {
	m, err := Build(4, Settings{Seed: 1})
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = Build(0, Settings{})
	assert.Error(t, err)

	_, err = Build(-3, Settings{})
	assert.Error(t, err)

	_, err = Build(4, Settings{L2Penalty: -0.1})
	assert.Error(t, err)
}

func TestAttributeVectorSize(t *testing.T) {
	base := AttributeVectorSize(TensorSettings{})
	withAtom := AttributeVectorSize(TensorSettings{AddExtraAtomAttribute: true})
	withBoth := AttributeVectorSize(TensorSettings{AddExtraAtomAttribute: true, AddExtraBondAttribute: true})

	assert.Greater(t, base, 0)
	assert.Greater(t, withAtom, base)
	assert.Greater(t, withBoth, withAtom)
}

func TestTrain_ReducesLoss(t *testing.T) {
	x, y := syntheticRows(64)
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)

	first, err := m.FitEpoch(x, y, 0.05, 16)
	require.NoError(t, err)

	_, metrics, err := Train(m, TrainData{XTrain: x, YTrain: y},
		WithEpochs(200), WithLearningRate(0.05), WithBatchSize(16))
	require.NoError(t, err)

	assert.Less(t, float64(metrics.Loss), first)
	assert.True(t, math.IsNaN(float64(metrics.InnerValLoss)))
	assert.True(t, math.IsNaN(float64(metrics.MeanOuterValLoss)))
	assert.True(t, math.IsNaN(float64(metrics.MeanTestLoss)))
}

func TestTrain_ReportsSubsetLosses(t *testing.T) {
	x, y := syntheticRows(64)
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)

	_, metrics, err := Train(m, TrainData{
		XTrain:    x[:40],
		YTrain:    y[:40],
		XInnerVal: x[40:48],
		YInnerVal: y[40:48],
		XOuterVal: x[48:56],
		YOuterVal: y[48:56],
		XTest:     x[56:],
		YTest:     y[56:],
	}, WithEpochs(100), WithLearningRate(0.05), WithBatchSize(8))
	require.NoError(t, err)

	assert.False(t, math.IsNaN(float64(metrics.Loss)))
	assert.False(t, math.IsNaN(float64(metrics.InnerValLoss)))
	assert.False(t, math.IsNaN(float64(metrics.MeanOuterValLoss)))
	assert.False(t, math.IsNaN(float64(metrics.MeanTestLoss)))
}

func TestFitEpoch_Errors(t *testing.T) {
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)

	_, err = m.FitEpoch(nil, nil, 0.01, 8)
	assert.Error(t, err)

	_, err = m.FitEpoch([][]float64{{1, 2}}, []float64{1, 2}, 0.01, 8)
	assert.Error(t, err)

	_, err = m.FitEpoch([][]float64{{1, 2, 3}}, []float64{1}, 0.01, 8)
	assert.Error(t, err)
}

func TestSaveAndLoadWeights(t *testing.T) {
	x, y := syntheticRows(32)
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)
	_, _, err = Train(m, TrainData{XTrain: x, YTrain: y}, WithEpochs(50), WithLearningRate(0.05))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, m.Save(path, Metrics{Loss: 0.1, InnerValLoss: Float(math.NaN())}))

	want, err := m.Predict(x[:4])
	require.NoError(t, err)

	fresh, err := Build(2, Settings{Seed: 99})
	require.NoError(t, err)
	require.NoError(t, fresh.LoadWeights(path+".h5"))

	got, err := fresh.Predict(x[:4])
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestLoadWeights_DimensionMismatch(t *testing.T) {
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, m.Save(path, Metrics{}))

	other, err := Build(3, Settings{Seed: 1})
	require.NoError(t, err)
	assert.Error(t, other.LoadWeights(path+".h5"))
}

func TestLoadWeights_MissingFile(t *testing.T) {
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)
	assert.Error(t, m.LoadWeights(filepath.Join(t.TempDir(), "missing.h5")))
}

func TestResetParameters_ChangesFit(t *testing.T) {
	x, y := syntheticRows(32)
	m, err := Build(2, Settings{Seed: 1})
	require.NoError(t, err)
	_, _, err = Train(m, TrainData{XTrain: x, YTrain: y}, WithEpochs(100), WithLearningRate(0.05))
	require.NoError(t, err)

	trained, err := m.Predict(x[:4])
	require.NoError(t, err)

	m.ResetParameters()
	reset, err := m.Predict(x[:4])
	require.NoError(t, err)

	assert.NotEqual(t, trained, reset)
}

func TestMetrics_NaNSerializesAsNull(t *testing.T) {
	metrics := Metrics{
		Loss:             0.25,
		InnerValLoss:     Float(math.NaN()),
		MeanOuterValLoss: Float(math.NaN()),
		MeanTestLoss:     1.5,
	}

	data, err := json.Marshal(metrics)
	require.NoError(t, err)
	assert.JSONEq(t, `{"loss":0.25,"inner_val_loss":null,"mean_outer_val_loss":null,"mean_test_loss":1.5}`, string(data))

	var decoded Metrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, math.IsNaN(float64(decoded.InnerValLoss)))
	assert.Equal(t, Float(1.5), decoded.MeanTestLoss)
}
