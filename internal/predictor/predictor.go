// Package predictor orchestrates training and evaluation of a regression
// model for a scalar molecular property. It owns the orchestration order
// (split, fold, normalize, train, evaluate, persist), the label
// normalization statistics, and the backup-before-overwrite handling of
// persisted artifacts. Model fitting and dataset splitting are delegated to
// the model and data packages.
package predictor

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PattanaikL/learn134k/internal/data"
	"github.com/PattanaikL/learn134k/internal/model"
)

// Shuffle seeds for the deterministic splitters. Fixed so that repeated
// runs over the same dataset produce the same partitions.
const (
	testShuffleSeed     = 7
	foldShuffleSeed     = 2
	foldCarveSeed       = 4
	innerValShuffleSeed = 77
)

var (
	// ErrNoModel is returned when an operation requires a model and none
	// has been built or loaded.
	ErrNoModel = errors.New("no model has been built")

	// ErrMissingStats is returned when denormalization is requested before
	// normalization statistics have been computed or loaded.
	ErrMissingStats = errors.New("missing mean and/or std of training labels")
)

// MetricsObserver receives prediction and training counters.
type MetricsObserver interface {
	TrainingRunsInc()
	FoldsTrainedInc()
	PredictionsInc()
	ModelSavesInc()
	EvalRMSEObserve(float64)
	EvalMAEObserve(float64)
}

// RunRecord describes one completed training pass (a full run or a single
// cross-validation fold).
type RunRecord struct {
	Kind         string
	Fold         int
	Metrics      model.Metrics
	RMSETrain    float64
	MAETrain     float64
	RMSEInnerVal float64
	MAEInnerVal  float64
	RMSEOuterVal float64
	MAEOuterVal  float64
	RMSETest     float64
	MAETest      float64
}

// Recorder persists run records.
type Recorder interface {
	RecordRun(rec RunRecord) error
}

// Predictor is a stateful orchestrator holding the model handle and the
// label normalization statistics for the current training run.
type Predictor struct {
	model    model.Model
	outDir   string
	yMean    float64
	yStd     float64
	hasStats bool
	metrics  MetricsObserver
	recorder Recorder
}

type Option func(*Predictor)

func WithMetrics(m MetricsObserver) Option {
	return func(p *Predictor) {
		p.metrics = m
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Predictor) {
		p.recorder = r
	}
}

// New creates a predictor writing its artifacts under outDir.
func New(outDir string, opts ...Option) *Predictor {
	p := &Predictor{outDir: outDir}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TrainConfig parameterizes FullTrain and KFCVTrain.
type TrainConfig struct {
	// Folds is the number of cross-validation folds (KFCVTrain only).
	Folds int

	// TestSplit is the fraction of rows held out as the test subset.
	TestSplit float64

	// TrainRatio sizes the training portion of the non-held-out rows; the
	// rest becomes the inner validation subset.
	TrainRatio float64

	// TestData overrides the computed test split when set; the effective
	// test split is forced to zero.
	TestData *data.Set

	// SaveNames writes names_test.txt and names_train.txt to the output
	// directory.
	SaveNames bool

	// PretrainedWeights, when set, is reloaded into the model between
	// folds instead of a parameter reset.
	PretrainedWeights string

	// TrainOptions are forwarded to the trainer.
	TrainOptions []model.TrainOption
}

// BuildModel derives the attribute vector size from the tensor settings and
// replaces the held model with a freshly built one.
func (p *Predictor) BuildModel(tensorSettings model.TensorSettings, modelSettings model.Settings) error {
	size := model.AttributeVectorSize(tensorSettings)
	m, err := model.Build(size, modelSettings)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	p.model = m
	log.Info().Int("attribute_vector_size", size).Msg("model built")
	return nil
}

// ResetModel reinitializes the held model's trainable parameters in place.
func (p *Predictor) ResetModel() error {
	if p.model == nil {
		return ErrNoModel
	}
	p.model.ResetParameters()
	return nil
}

// LoadWeights loads parameter values into the existing model architecture.
func (p *Predictor) LoadWeights(modelWeightsPath string) error {
	if p.model == nil {
		return ErrNoModel
	}
	log.Info().Str("path", modelWeightsPath).Msg("loading model weights")
	if err := p.model.LoadWeights(modelWeightsPath); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	return nil
}

type meanAndStd struct {
	Mean float64
	Std  float64
}

// LoadMeanAndStd restores the label normalization statistics from a
// previously persisted stats file.
func (p *Predictor) LoadMeanAndStd(meanAndStdPath string) error {
	f, err := os.Open(meanAndStdPath)
	if err != nil {
		return fmt.Errorf("open mean and std file: %w", err)
	}
	defer f.Close()

	var ms meanAndStd
	if err := gob.NewDecoder(f).Decode(&ms); err != nil {
		return fmt.Errorf("decode mean and std: %w", err)
	}
	p.yMean = ms.Mean
	p.yStd = ms.Std
	p.hasStats = true
	return nil
}

// Normalize computes population mean and standard deviation from the
// training labels only, stores them, and returns yTrain plus every array in
// otherYs standardized with the train-derived statistics. Validation and
// test labels never contribute to the statistics.
func (p *Predictor) Normalize(yTrain []float64, otherYs ...[]float64) ([]float64, [][]float64) {
	n := float64(len(yTrain))
	mean := 0.0
	for _, v := range yTrain {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range yTrain {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)

	p.yMean = mean
	p.yStd = std
	p.hasStats = true
	log.Info().
		Float64("mean", mean).
		Float64("std", std).
		Msg("label statistics (kcal/mol)")

	standardize := func(y []float64) []float64 {
		out := make([]float64, len(y))
		for i, v := range y {
			out[i] = (v - mean) / std
		}
		return out
	}

	normalized := make([][]float64, len(otherYs))
	for i, y := range otherYs {
		normalized[i] = standardize(y)
	}
	return standardize(yTrain), normalized
}

// SplitTest splits off the held-out test subset with a fixed shuffle seed.
// With saveNames set, the identifiers of each subset are exported as
// newline-delimited text files in the output directory.
func (p *Predictor) SplitTest(x [][]float64, y []float64, names []string, testSplit float64, saveNames bool) (
	xTest [][]float64, yTest []float64, xTrain [][]float64, yTrain []float64, err error) {
	log.Info().Float64("test_split", testSplit).Msg("splitting dataset")
	xTest, yTest, xTrain, yTrain, namesTest, namesTrain := data.SplitTestFromTrainVal(
		x, y, names, testShuffleSeed, testSplit)

	if saveNames {
		if err := writeNames(filepath.Join(p.outDir, "names_test.txt"), namesTest); err != nil {
			return nil, nil, nil, nil, err
		}
		if err := writeNames(filepath.Join(p.outDir, "names_train.txt"), namesTrain); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return xTest, yTest, xTrain, yTrain, nil
}

func writeNames(path string, names []string) error {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write names file: %w", err)
	}
	return nil
}

// KFCVTrain runs k-fold cross-validation: the non-held-out rows are
// partitioned into cfg.Folds groups and each fold trains on the pool of the
// others, holding its own group out as outer validation. Every fold
// persists its own model artifact; parameters never leak between folds.
func (p *Predictor) KFCVTrain(x [][]float64, y []float64, names []string, cfg TrainConfig) error {
	if p.model == nil {
		return ErrNoModel
	}

	testSplit := cfg.TestSplit
	if cfg.TestData != nil {
		testSplit = 0
	}
	xTest, yTest, xTrainVal, yTrainVal, err := p.SplitTest(x, y, names, testSplit, cfg.SaveNames)
	if err != nil {
		return err
	}
	if cfg.TestData != nil {
		xTest, yTest = cfg.TestData.X, cfg.TestData.Y
	}

	foldedXs, foldedYs, err := data.PrepareFoldedData(xTrainVal, yTrainVal, cfg.Folds, foldShuffleSeed)
	if err != nil {
		return fmt.Errorf("prepare folded data: %w", err)
	}

	if p.metrics != nil {
		p.metrics.TrainingRunsInc()
	}
	for fold := 0; fold < cfg.Folds; fold++ {
		log.Info().Int("fold", fold).Int("folds", cfg.Folds).Msg("training fold")
		xTrain, xInnerVal, xOuterVal, yTrain, yInnerVal, yOuterVal, err := data.PrepareDataOneFold(
			foldedXs, foldedYs, fold, foldCarveSeed, cfg.TrainRatio)
		if err != nil {
			return fmt.Errorf("prepare fold %d: %w", fold, err)
		}

		yTrainNorm, others := p.Normalize(yTrain, yInnerVal, yOuterVal, yTest)
		yInnerValNorm, yOuterValNorm, yTestNorm := others[0], others[1], others[2]

		m, metrics, err := model.Train(p.model, model.TrainData{
			XTrain:    xTrain,
			YTrain:    yTrainNorm,
			XInnerVal: xInnerVal,
			YInnerVal: yInnerValNorm,
			XTest:     xTest,
			YTest:     yTestNorm,
			XOuterVal: xOuterVal,
			YOuterVal: yOuterValNorm,
		}, cfg.TrainOptions...)
		if err != nil {
			return fmt.Errorf("train fold %d: %w", fold, err)
		}
		p.model = m

		rec := RunRecord{Kind: "fold", Fold: fold, Metrics: metrics}
		if rec.RMSETrain, rec.MAETrain, err = p.Evaluate(xTrain, yTrainNorm, true); err != nil {
			return err
		}
		if rec.RMSEInnerVal, rec.MAEInnerVal, err = p.Evaluate(xInnerVal, yInnerValNorm, true); err != nil {
			return err
		}
		if rec.RMSEOuterVal, rec.MAEOuterVal, err = p.Evaluate(xOuterVal, yOuterValNorm, true); err != nil {
			return err
		}
		if rec.RMSETest, rec.MAETest, err = p.Evaluate(xTest, yTestNorm, true); err != nil {
			return err
		}
		p.logStatistics(rec)

		modelPath := filepath.Join(p.outDir, fmt.Sprintf("model_fold_%d", fold))
		if err := p.SaveModel(modelPath, metrics); err != nil {
			return err
		}
		p.record(rec)

		// Keep folds independent: either restart from pretrained weights
		// or reinitialize before the next fold.
		if cfg.PretrainedWeights != "" {
			if err := p.LoadWeights(cfg.PretrainedWeights); err != nil {
				return err
			}
		} else if err := p.ResetModel(); err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.FoldsTrainedInc()
		}
	}
	return nil
}

// FullTrain runs a single training pass: test split, inner validation
// carve, normalize, train, evaluate, persist. There is no outer validation
// subset.
func (p *Predictor) FullTrain(x [][]float64, y []float64, names []string, cfg TrainConfig) error {
	if p.model == nil {
		return ErrNoModel
	}

	testSplit := cfg.TestSplit
	if cfg.TestData != nil {
		testSplit = 0
	}
	xTest, yTest, xTrain, yTrain, err := p.SplitTest(x, y, names, testSplit, cfg.SaveNames)
	if err != nil {
		return err
	}
	if cfg.TestData != nil {
		xTest, yTest = cfg.TestData.X, cfg.TestData.Y
	}

	log.Info().Msg("splitting training data into early-stopping validation and remaining training sets")
	xTrain, xInnerVal, yTrain, yInnerVal := data.SplitInnerValFromTrainData(
		xTrain, yTrain, innerValShuffleSeed, cfg.TrainRatio)

	yTrainNorm, others := p.Normalize(yTrain, yInnerVal, yTest)
	yInnerValNorm, yTestNorm := others[0], others[1]

	log.Info().
		Int("train", len(xTrain)).
		Int("inner_val", len(xInnerVal)).
		Int("test", len(xTest)).
		Msg("training model")
	if p.metrics != nil {
		p.metrics.TrainingRunsInc()
	}
	m, metrics, err := model.Train(p.model, model.TrainData{
		XTrain:    xTrain,
		YTrain:    yTrainNorm,
		XInnerVal: xInnerVal,
		YInnerVal: yInnerValNorm,
		XTest:     xTest,
		YTest:     yTestNorm,
	}, cfg.TrainOptions...)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	p.model = m

	rec := RunRecord{Kind: "full", Metrics: metrics, RMSEOuterVal: math.NaN(), MAEOuterVal: math.NaN()}
	if rec.RMSETrain, rec.MAETrain, err = p.Evaluate(xTrain, yTrainNorm, true); err != nil {
		return err
	}
	if rec.RMSEInnerVal, rec.MAEInnerVal, err = p.Evaluate(xInnerVal, yInnerValNorm, true); err != nil {
		return err
	}
	if rec.RMSETest, rec.MAETest, err = p.Evaluate(xTest, yTestNorm, true); err != nil {
		return err
	}
	p.logStatistics(rec)

	if err := p.SaveModel(filepath.Join(p.outDir, "model"), metrics); err != nil {
		return err
	}
	p.record(rec)
	return nil
}

func (p *Predictor) logStatistics(rec RunRecord) {
	log.Info().
		Float64("rmse_train", rec.RMSETrain).
		Float64("mae_train", rec.MAETrain).
		Float64("rmse_inner_val", rec.RMSEInnerVal).
		Float64("mae_inner_val", rec.MAEInnerVal).
		Float64("rmse_outer_val", rec.RMSEOuterVal).
		Float64("mae_outer_val", rec.MAEOuterVal).
		Float64("rmse_test", rec.RMSETest).
		Float64("mae_test", rec.MAETest).
		Msg("final statistics (kcal/mol)")
}

func (p *Predictor) record(rec RunRecord) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(rec); err != nil {
		log.Warn().Err(err).Str("kind", rec.Kind).Int("fold", rec.Fold).Msg("failed to record run")
	}
}

// Predict runs forward inference on x, one value per row. With norm unset,
// predictions are denormalized via y*std+mean; this requires the
// normalization statistics to have been computed or loaded.
func (p *Predictor) Predict(x [][]float64, norm bool) ([]float64, error) {
	if p.model == nil {
		return nil, ErrNoModel
	}
	yNorm, err := p.model.Predict(x)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.PredictionsInc()
	}
	if norm {
		return yNorm, nil
	}
	if !p.hasStats {
		return nil, ErrMissingStats
	}
	out := make([]float64, len(yNorm))
	for i, v := range yNorm {
		out[i] = v*p.yStd + p.yMean
	}
	return out, nil
}

// Evaluate predicts on x and reports RMSE and MAE against y. An empty
// subset yields NaN for both metrics. In normalized mode both metrics are
// rescaled by the squared label standard deviation.
func (p *Predictor) Evaluate(x [][]float64, y []float64, norm bool) (rmse, mae float64, err error) {
	if len(x) == 0 {
		return math.NaN(), math.NaN(), nil
	}
	if norm && !p.hasStats {
		return 0, 0, ErrMissingStats
	}
	yPred, err := p.Predict(x, norm)
	if err != nil {
		return 0, 0, err
	}
	rmse = calculateRMSE(y, yPred)
	mae = calculateMAE(y, yPred)
	if norm {
		rmse *= p.yStd * p.yStd
		mae *= p.yStd * p.yStd
	}
	if p.metrics != nil {
		p.metrics.EvalRMSEObserve(rmse)
		p.metrics.EvalMAEObserve(mae)
	}
	return rmse, mae, nil
}
