package predictor

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PattanaikL/learn134k/internal/data"
	"github.com/PattanaikL/learn134k/internal/model"
)

// mockMetrics implements MetricsObserver for tests.
type mockMetrics struct {
	trainingRuns int
	foldsTrained int
	predictions  int
	modelSaves   int
	rmseObserved []float64
	maeObserved  []float64
}

func (m *mockMetrics) TrainingRunsInc() { m.trainingRuns++ }
func (m *mockMetrics) FoldsTrainedInc() { m.foldsTrained++ }
func (m *mockMetrics) PredictionsInc()  { m.predictions++ }
func (m *mockMetrics) ModelSavesInc()   { m.modelSaves++ }

func (m *mockMetrics) EvalRMSEObserve(v float64) { m.rmseObserved = append(m.rmseObserved, v) }
func (m *mockMetrics) EvalMAEObserve(v float64)  { m.maeObserved = append(m.maeObserved, v) }

// mockRecorder implements Recorder for tests.
type mockRecorder struct {
	records []RunRecord
}

func (m *mockRecorder) RecordRun(rec RunRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func newTestPredictor(t *testing.T, inputDim int, opts ...Option) *Predictor {
	t.Helper()
	p := New(t.TempDir(), opts...)
	m, err := model.Build(inputDim, model.Settings{Seed: 1})
	require.NoError(t, err)
	p.model = m
	return p
}

func testRows(n, dim int) ([][]float64, []float64, []string) {
	x := make([][]float64, n)
	y := make([]float64, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		row := make([]float64, dim)
		for j := range row {
			row[j] = float64(i+j) / float64(n)
		}
		x[i] = row
		y[i] = -50 + 3*float64(i)
		names[i] = "mol" + string(rune('a'+i))
	}
	return x, y, names
}

func TestNormalize_TrainStatistics(t *testing.T) {
	p := New(t.TempDir())
	yTrain := []float64{-57.8, -40.1, -62.3, -55.0, -48.9}
	yOther := []float64{-50.0, -60.0}

	normTrain, others := p.Normalize(yTrain, yOther)
	require.Len(t, others, 1)

	mean, std := 0.0, 0.0
	for _, v := range normTrain {
		mean += v
	}
	mean /= float64(len(normTrain))
	for _, v := range normTrain {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(normTrain)))

	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)

	// Other arrays use the train-derived statistics, not their own
	for i, v := range others[0] {
		assert.InDelta(t, (yOther[i]-p.yMean)/p.yStd, v, 1e-12)
	}
}

func TestPredict_RequiresStatsForDenormalization(t *testing.T) {
	p := newTestPredictor(t, 2)
	x := [][]float64{{0.1, 0.2}}

	_, err := p.Predict(x, false)
	require.ErrorIs(t, err, ErrMissingStats)

	// Normalized predictions need no statistics
	_, err = p.Predict(x, true)
	require.NoError(t, err)
}

func TestPredict_RoundTrip(t *testing.T) {
	p := newTestPredictor(t, 2)
	x, y, _ := testRows(10, 2)
	p.Normalize(y)

	norm, err := p.Predict(x, true)
	require.NoError(t, err)
	denorm, err := p.Predict(x, false)
	require.NoError(t, err)

	for i := range norm {
		assert.InDelta(t, norm[i]*p.yStd+p.yMean, denorm[i], 1e-9)
	}
}

func TestPredict_NoModel(t *testing.T) {
	p := New(t.TempDir())
	_, err := p.Predict([][]float64{{1, 2}}, true)
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestEvaluate_EmptySubsetYieldsNaN(t *testing.T) {
	p := newTestPredictor(t, 2)

	rmse, mae, err := p.Evaluate(nil, nil, true)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rmse))
	assert.True(t, math.IsNaN(mae))
}

func TestEvaluate_NormRescalesByVariance(t *testing.T) {
	p := newTestPredictor(t, 2)
	x, y, _ := testRows(10, 2)
	yNorm, _ := p.Normalize(y)

	rmseNorm, maeNorm, err := p.Evaluate(x, yNorm, true)
	require.NoError(t, err)

	pred, err := p.Predict(x, true)
	require.NoError(t, err)
	rmseRaw := calculateRMSE(yNorm, pred)
	maeRaw := calculateMAE(yNorm, pred)

	assert.InDelta(t, rmseRaw*p.yStd*p.yStd, rmseNorm, 1e-9)
	assert.InDelta(t, maeRaw*p.yStd*p.yStd, maeNorm, 1e-9)
}

func TestSplitTest_SaveNames(t *testing.T) {
	p := newTestPredictor(t, 2)
	x, y, names := testRows(10, 2)

	xTest, _, xTrain, _, err := p.SplitTest(x, y, names, 0.2, true)
	require.NoError(t, err)
	assert.Len(t, xTest, 2)
	assert.Len(t, xTrain, 8)

	testContent, err := os.ReadFile(filepath.Join(p.outDir, "names_test.txt"))
	require.NoError(t, err)
	trainContent, err := os.ReadFile(filepath.Join(p.outDir, "names_train.txt"))
	require.NoError(t, err)

	testNames := strings.Fields(string(testContent))
	trainNames := strings.Fields(string(trainContent))
	assert.Len(t, testNames, 2)
	assert.Len(t, trainNames, 8)

	seen := map[string]bool{}
	for _, n := range append(testNames, trainNames...) {
		assert.False(t, seen[n], "name %s appears in both subsets", n)
		seen[n] = true
	}
	assert.Len(t, seen, 10)
}

func TestSplitTest_ZeroSplit(t *testing.T) {
	p := newTestPredictor(t, 2)
	x, y, names := testRows(6, 2)

	xTest, yTest, xTrain, yTrain, err := p.SplitTest(x, y, names, 0, false)
	require.NoError(t, err)
	assert.Empty(t, xTest)
	assert.Empty(t, yTest)
	assert.Len(t, xTrain, len(x))
	assert.Len(t, yTrain, len(y))
}

func TestSaveModel_BackupPreservesPreviousGeneration(t *testing.T) {
	p := newTestPredictor(t, 2)
	_, y, _ := testRows(4, 2)
	p.Normalize(y)

	base := filepath.Join(p.outDir, "model")
	first := model.Metrics{Loss: 0.111, InnerValLoss: 0.2, MeanOuterValLoss: 0.3, MeanTestLoss: 0.4}
	second := model.Metrics{Loss: 0.999, InnerValLoss: 0.8, MeanOuterValLoss: 0.7, MeanTestLoss: 0.6}

	require.NoError(t, p.SaveModel(base, first))
	require.NoError(t, p.SaveModel(base, second))

	readLoss := func(path string) float64 {
		t.Helper()
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var structure struct {
			Metrics model.Metrics `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(raw, &structure))
		return float64(structure.Metrics.Loss)
	}

	assert.InDelta(t, 0.999, readLoss(base+".json"), 1e-12)
	assert.InDelta(t, 0.111, readLoss(base+"_backup.json"), 1e-12)

	for _, ext := range []string{".h5", ".attr"} {
		_, err := os.Stat(base + "_backup" + ext)
		assert.NoError(t, err, "missing backup for %s", ext)
	}
}

func TestSaveModel_NoModel(t *testing.T) {
	p := New(t.TempDir())
	assert.ErrorIs(t, p.SaveModel(filepath.Join(p.outDir, "model"), model.Metrics{}), ErrNoModel)
}

func TestLoadMeanAndStd_RoundTrip(t *testing.T) {
	p := newTestPredictor(t, 2)
	_, y, _ := testRows(8, 2)
	p.Normalize(y)
	base := filepath.Join(p.outDir, "model")
	require.NoError(t, p.SaveModel(base, model.Metrics{}))

	fresh := New(t.TempDir())
	require.NoError(t, fresh.LoadMeanAndStd(base+".attr"))
	assert.InDelta(t, p.yMean, fresh.yMean, 1e-12)
	assert.InDelta(t, p.yStd, fresh.yStd, 1e-12)
	assert.True(t, fresh.hasStats)
}

func TestLoadMeanAndStd_MissingFile(t *testing.T) {
	p := New(t.TempDir())
	assert.Error(t, p.LoadMeanAndStd(filepath.Join(t.TempDir(), "missing.attr")))
}

func TestKFCVTrain_Scenario(t *testing.T) {
	metrics := &mockMetrics{}
	recorder := &mockRecorder{}
	p := newTestPredictor(t, 2, WithMetrics(metrics), WithRecorder(recorder))
	x, y, names := testRows(10, 2)

	err := p.KFCVTrain(x, y, names, TrainConfig{
		Folds:      2,
		TestSplit:  0.2,
		TrainRatio: 0.8,
		TrainOptions: []model.TrainOption{
			model.WithEpochs(20),
			model.WithLearningRate(0.05),
			model.WithBatchSize(4),
		},
	})
	require.NoError(t, err)

	// One artifact per fold, each with its three sibling files
	for _, fold := range []string{"model_fold_0", "model_fold_1"} {
		for _, ext := range []string{".json", ".h5", ".attr"} {
			_, err := os.Stat(filepath.Join(p.outDir, fold+ext))
			assert.NoError(t, err, "missing artifact %s%s", fold, ext)
		}
	}

	require.Len(t, recorder.records, 2)
	for i, rec := range recorder.records {
		assert.Equal(t, "fold", rec.Kind)
		assert.Equal(t, i, rec.Fold)
		assert.False(t, math.IsNaN(rec.RMSETrain))
		assert.False(t, math.IsNaN(rec.MAETrain))
		assert.False(t, math.IsNaN(rec.RMSEOuterVal))
		assert.False(t, math.IsNaN(rec.MAEOuterVal))
		assert.False(t, math.IsNaN(rec.RMSETest))
		assert.False(t, math.IsNaN(rec.MAETest))
	}

	assert.Equal(t, 1, metrics.trainingRuns)
	assert.Equal(t, 2, metrics.foldsTrained)
	assert.Equal(t, 2, metrics.modelSaves)
}

func TestKFCVTrain_TestDataOverride(t *testing.T) {
	p := newTestPredictor(t, 2)
	x, y, names := testRows(10, 2)
	override := &data.Set{
		X: [][]float64{{0.9, 0.1}, {0.7, 0.3}},
		Y: []float64{-10, -20},
	}

	err := p.KFCVTrain(x, y, names, TrainConfig{
		Folds:      2,
		TestSplit:  0.5, // forced to zero by the override
		TrainRatio: 0.8,
		TestData:   override,
		TrainOptions: []model.TrainOption{
			model.WithEpochs(10),
			model.WithLearningRate(0.05),
		},
	})
	require.NoError(t, err)
}

func TestKFCVTrain_NoModel(t *testing.T) {
	p := New(t.TempDir())
	x, y, names := testRows(10, 2)
	assert.ErrorIs(t, p.KFCVTrain(x, y, names, TrainConfig{Folds: 2, TrainRatio: 0.8}), ErrNoModel)
}

func TestFullTrain(t *testing.T) {
	metrics := &mockMetrics{}
	recorder := &mockRecorder{}
	p := newTestPredictor(t, 2, WithMetrics(metrics), WithRecorder(recorder))
	x, y, names := testRows(12, 2)

	err := p.FullTrain(x, y, names, TrainConfig{
		TestSplit:  0.25,
		TrainRatio: 0.75,
		TrainOptions: []model.TrainOption{
			model.WithEpochs(20),
			model.WithLearningRate(0.05),
			model.WithBatchSize(4),
		},
	})
	require.NoError(t, err)

	for _, ext := range []string{".json", ".h5", ".attr"} {
		_, err := os.Stat(filepath.Join(p.outDir, "model"+ext))
		assert.NoError(t, err, "missing artifact model%s", ext)
	}

	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	assert.Equal(t, "full", rec.Kind)
	assert.True(t, math.IsNaN(rec.RMSEOuterVal))
	assert.True(t, math.IsNaN(float64(rec.Metrics.MeanOuterValLoss)))
	assert.Equal(t, 1, metrics.trainingRuns)
}

func TestResetModel_NoModel(t *testing.T) {
	p := New(t.TempDir())
	assert.ErrorIs(t, p.ResetModel(), ErrNoModel)
	assert.ErrorIs(t, p.LoadWeights("weights.h5"), ErrNoModel)
}
