package model

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

const (
	DefaultEpochs       = 150
	DefaultLearningRate = 0.01
	DefaultBatchSize    = 32
	DefaultPatience     = 10
)

// TrainData carries the labeled subsets for one training run. XOuterVal and
// XTest may be empty; the corresponding losses come back as NaN.
type TrainData struct {
	XTrain    [][]float64
	YTrain    []float64
	XInnerVal [][]float64
	YInnerVal []float64
	XTest     [][]float64
	YTest     []float64
	XOuterVal [][]float64
	YOuterVal []float64
}

type TrainOptions struct {
	Epochs       int
	LearningRate float64
	BatchSize    int

	// Patience is the number of epochs without inner validation improvement
	// tolerated before training stops early.
	Patience int
}

type TrainOption func(options *TrainOptions)

func WithEpochs(epochs int) TrainOption {
	return func(options *TrainOptions) {
		options.Epochs = epochs
	}
}

func WithLearningRate(learningRate float64) TrainOption {
	return func(options *TrainOptions) {
		options.LearningRate = learningRate
	}
}

func WithBatchSize(batchSize int) TrainOption {
	return func(options *TrainOptions) {
		options.BatchSize = batchSize
	}
}

func WithPatience(patience int) TrainOption {
	return func(options *TrainOptions) {
		options.Patience = patience
	}
}

func NewTrainOptions() *TrainOptions {
	return &TrainOptions{
		Epochs:       DefaultEpochs,
		LearningRate: DefaultLearningRate,
		BatchSize:    DefaultBatchSize,
		Patience:     DefaultPatience,
	}
}

// Train fits the model on d.XTrain/d.YTrain, stopping early when the inner
// validation loss stops improving, and returns the fitted model together
// with the final losses on every subset.
func Train(m Model, d TrainData, opts ...TrainOption) (Model, Metrics, error) {
	options := NewTrainOptions()
	for _, opt := range opts {
		opt(options)
	}

	loss := math.NaN()
	bestInnerValLoss := math.Inf(1)
	stale := 0
	for epoch := 0; epoch < options.Epochs; epoch++ {
		var err error
		loss, err = m.FitEpoch(d.XTrain, d.YTrain, options.LearningRate, options.BatchSize)
		if err != nil {
			return nil, Metrics{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		if len(d.XInnerVal) == 0 {
			continue
		}
		valLoss, err := subsetLoss(m, d.XInnerVal, d.YInnerVal)
		if err != nil {
			return nil, Metrics{}, err
		}
		if valLoss < bestInnerValLoss {
			bestInnerValLoss = valLoss
			stale = 0
		} else {
			stale++
			if stale >= options.Patience {
				log.Info().
					Int("epoch", epoch).
					Float64("inner_val_loss", valLoss).
					Msg("early stopping")
				break
			}
		}
	}

	innerValLoss := math.NaN()
	if len(d.XInnerVal) > 0 {
		var err error
		innerValLoss, err = subsetLoss(m, d.XInnerVal, d.YInnerVal)
		if err != nil {
			return nil, Metrics{}, err
		}
	}
	outerValLoss := math.NaN()
	if len(d.XOuterVal) > 0 {
		var err error
		outerValLoss, err = subsetLoss(m, d.XOuterVal, d.YOuterVal)
		if err != nil {
			return nil, Metrics{}, err
		}
	}
	testLoss := math.NaN()
	if len(d.XTest) > 0 {
		var err error
		testLoss, err = subsetLoss(m, d.XTest, d.YTest)
		if err != nil {
			return nil, Metrics{}, err
		}
	}

	return m, Metrics{
		Loss:             Float(loss),
		InnerValLoss:     Float(innerValLoss),
		MeanOuterValLoss: Float(outerValLoss),
		MeanTestLoss:     Float(testLoss),
	}, nil
}

func subsetLoss(m Model, x [][]float64, y []float64) (float64, error) {
	pred, err := m.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return meanSquaredError(y, pred), nil
}
