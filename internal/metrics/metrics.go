// Package metrics provides Prometheus metrics for the training and
// prediction lifecycle, exposed via the metrics endpoint of the CLI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trainer.
type Metrics struct {
	TrainingRuns prometheus.Counter   // Total number of training runs started
	FoldsTrained prometheus.Counter   // Total number of cross-validation folds completed
	Predictions  prometheus.Counter   // Total number of predictions served
	ModelSaves   prometheus.Counter   // Total number of model artifacts persisted
	EvalRMSE     prometheus.Histogram // Distribution of evaluation RMSE values
	EvalMAE      prometheus.Histogram // Distribution of evaluation MAE values
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, which keeps
// metric collection isolated in tests.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs started",
		}),
		FoldsTrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "folds_trained_total",
			Help: "Total number of cross-validation folds completed",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		ModelSaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_saves_total",
			Help: "Total number of model artifacts persisted",
		}),
		EvalRMSE: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eval_rmse",
			Help:    "Distribution of evaluation RMSE values",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		EvalMAE: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eval_mae",
			Help:    "Distribution of evaluation MAE values",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
}

func (m *Metrics) TrainingRunsInc() { m.TrainingRuns.Inc() }
func (m *Metrics) FoldsTrainedInc() { m.FoldsTrained.Inc() }
func (m *Metrics) PredictionsInc()  { m.Predictions.Inc() }
func (m *Metrics) ModelSavesInc()   { m.ModelSaves.Inc() }

func (m *Metrics) EvalRMSEObserve(v float64) { m.EvalRMSE.Observe(v) }
func (m *Metrics) EvalMAEObserve(v float64)  { m.EvalMAE.Observe(v) }
