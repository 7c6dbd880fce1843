package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PattanaikL/learn134k/internal/cfg"
	"github.com/PattanaikL/learn134k/internal/data"
	"github.com/PattanaikL/learn134k/internal/history"
	"github.com/PattanaikL/learn134k/internal/metrics"
	"github.com/PattanaikL/learn134k/internal/model"
	"github.com/PattanaikL/learn134k/internal/predictor"
)

// RecorderAdapter adapts history.Store and history.Publisher to the
// predictor.Recorder interface.
type RecorderAdapter struct {
	store     *history.Store
	publisher *history.Publisher
}

func (ra *RecorderAdapter) RecordRun(rec predictor.RunRecord) error {
	hrec := history.Record{
		Kind:             rec.Kind,
		Fold:             rec.Fold,
		Loss:             float64(rec.Metrics.Loss),
		InnerValLoss:     float64(rec.Metrics.InnerValLoss),
		MeanOuterValLoss: float64(rec.Metrics.MeanOuterValLoss),
		MeanTestLoss:     float64(rec.Metrics.MeanTestLoss),
		RMSETrain:        rec.RMSETrain,
		MAETrain:         rec.MAETrain,
		RMSEInnerVal:     rec.RMSEInnerVal,
		MAEInnerVal:      rec.MAEInnerVal,
		RMSEOuterVal:     rec.RMSEOuterVal,
		MAEOuterVal:      rec.MAEOuterVal,
		RMSETest:         rec.RMSETest,
		MAETest:          rec.MAETest,
		Ts:               time.Now(),
	}

	if ra.store != nil {
		if err := ra.store.Put(hrec); err != nil {
			return err
		}
	}
	if ra.publisher != nil {
		if err := ra.publisher.Publish(hrec); err != nil {
			log.Warn().Err(err).Msg("failed to publish run to tracker")
		}
	}
	return nil
}

func main() {
	var (
		mode     = flag.String("mode", "full", "Training mode: full or kfcv")
		dataPath = flag.String("data", "", "Path to dataset CSV (overrides config)")
		outDir   = flag.String("out", "", "Output directory for artifacts (overrides config)")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath != "" {
		os.Setenv("DATA_PATH", *dataPath)
	}
	if *outDir != "" {
		os.Setenv("OUT_DIR", *outDir)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := os.MkdirAll(c.OutDir, 0o750); err != nil {
		log.Fatal().Err(err).Msg("failed to create output directory")
	}

	if c.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", c.MetricsPort)
			log.Info().Str("addr", addr).Msg("metrics server listening")
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	opts := []predictor.Option{predictor.WithMetrics(metrics.New())}
	if c.HistoryPath != "" || c.TrackerURL != "" {
		adapter := &RecorderAdapter{}
		if c.HistoryPath != "" {
			store, err := history.New(c.HistoryPath)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open history store")
			}
			defer store.Close()
			adapter.store = store
		}
		if c.TrackerURL != "" {
			adapter.publisher = history.NewPublisher(c.TrackerURL, c.TrackerTimeout)
		}
		opts = append(opts, predictor.WithRecorder(adapter))
	}

	set, err := data.Load(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load dataset")
	}

	p := predictor.New(c.OutDir, opts...)
	tensorSettings := model.TensorSettings{
		AddExtraAtomAttribute: c.ExtraAtomAttr,
		AddExtraBondAttribute: c.ExtraBondAttr,
	}
	modelSettings := model.Settings{L2Penalty: c.L2Penalty, Seed: c.Seed}
	if size := model.AttributeVectorSize(tensorSettings); len(set.X) > 0 && len(set.X[0]) != size {
		log.Fatal().
			Int("dataset_features", len(set.X[0])).
			Int("attribute_vector_size", size).
			Msg("dataset feature width does not match tensor settings")
	}
	if err := p.BuildModel(tensorSettings, modelSettings); err != nil {
		log.Fatal().Err(err).Msg("failed to build model")
	}

	trainCfg := predictor.TrainConfig{
		Folds:             c.Folds,
		TestSplit:         c.TestSplit,
		TrainRatio:        c.TrainRatio,
		SaveNames:         c.SaveNames,
		PretrainedWeights: c.PretrainedWeights,
		TrainOptions: []model.TrainOption{
			model.WithEpochs(c.Epochs),
			model.WithLearningRate(c.LearningRate),
			model.WithBatchSize(c.BatchSize),
			model.WithPatience(c.Patience),
		},
	}

	switch *mode {
	case "full":
		err = p.FullTrain(set.X, set.Y, set.Names, trainCfg)
	case "kfcv":
		err = p.KFCVTrain(set.X, set.Y, set.Names, trainCfg)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode, expected full or kfcv")
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", *mode).Msg("training failed")
	}

	log.Info().Str("out_dir", c.OutDir).Msg("training complete")
}
