package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath          string
	OutDir            string
	HistoryPath       string
	TrackerURL        string
	TrackerTimeout    time.Duration
	MetricsPort       int
	ExtraAtomAttr     bool
	ExtraBondAttr     bool
	TestSplit         float64
	TrainRatio        float64
	Folds             int
	Epochs            int
	LearningRate      float64
	BatchSize         int
	Patience          int
	L2Penalty         float64
	Seed              int64
	SaveNames         bool
	PretrainedWeights string
}

type ConfigFile struct {
	Data struct {
		Path   string `yaml:"path"`
		OutDir string `yaml:"outDir"`
	} `yaml:"data"`

	Tensor struct {
		AddExtraAtomAttribute bool `yaml:"addExtraAtomAttribute"`
		AddExtraBondAttribute bool `yaml:"addExtraBondAttribute"`
	} `yaml:"tensor"`

	Model struct {
		L2Penalty float64 `yaml:"l2Penalty"`
		Seed      int64   `yaml:"seed"`
	} `yaml:"model"`

	Training struct {
		TestSplit         float64 `yaml:"testSplit"`
		TrainRatio        float64 `yaml:"trainRatio"`
		Folds             int     `yaml:"folds"`
		Epochs            int     `yaml:"epochs"`
		LearningRate      float64 `yaml:"learningRate"`
		BatchSize         int     `yaml:"batchSize"`
		Patience          int     `yaml:"patience"`
		SaveNames         bool    `yaml:"saveNames"`
		PretrainedWeights string  `yaml:"pretrainedWeights"`
	} `yaml:"training"`

	System struct {
		MetricsPort    int    `yaml:"metricsPort"`
		HistoryPath    string `yaml:"historyPath"`
		TrackerURL     string `yaml:"trackerURL"`
		TrackerTimeout string `yaml:"trackerTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	trackerTimeout, err := time.ParseDuration(config.System.TrackerTimeout)
	if err != nil {
		trackerTimeout = 5 * time.Second
	}

	settings := Settings{
		DataPath:          getEnvOrDefault("DATA_PATH", config.Data.Path),
		OutDir:            getEnvOrDefault("OUT_DIR", withDefault(config.Data.OutDir, "out")),
		HistoryPath:       getEnvOrDefault("HISTORY_PATH", config.System.HistoryPath),
		TrackerURL:        getEnvOrDefault("TRACKER_URL", config.System.TrackerURL),
		TrackerTimeout:    trackerTimeout,
		MetricsPort:       getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		ExtraAtomAttr:     getBoolFromEnvOrConfig("EXTRA_ATOM_ATTR", config.Tensor.AddExtraAtomAttribute),
		ExtraBondAttr:     getBoolFromEnvOrConfig("EXTRA_BOND_ATTR", config.Tensor.AddExtraBondAttribute),
		TestSplit:         getFloatFromEnvOrConfig("TEST_SPLIT", config.Training.TestSplit),
		TrainRatio:        getFloatFromEnvOrConfig("TRAIN_RATIO", withDefaultFloat(config.Training.TrainRatio, 0.9)),
		Folds:             getIntFromEnvOrConfig("FOLDS", withDefaultInt(config.Training.Folds, 5)),
		Epochs:            getIntFromEnvOrConfig("EPOCHS", withDefaultInt(config.Training.Epochs, 150)),
		LearningRate:      getFloatFromEnvOrConfig("LEARNING_RATE", withDefaultFloat(config.Training.LearningRate, 0.01)),
		BatchSize:         getIntFromEnvOrConfig("BATCH_SIZE", withDefaultInt(config.Training.BatchSize, 32)),
		Patience:          getIntFromEnvOrConfig("PATIENCE", withDefaultInt(config.Training.Patience, 10)),
		L2Penalty:         getFloatFromEnvOrConfig("L2_PENALTY", config.Model.L2Penalty),
		Seed:              int64(getIntFromEnvOrConfig("MODEL_SEED", int(config.Model.Seed))),
		SaveNames:         getBoolFromEnvOrConfig("SAVE_NAMES", config.Training.SaveNames),
		PretrainedWeights: getEnvOrDefault("PRETRAINED_WEIGHTS", config.Training.PretrainedWeights),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	dataPath, err := getEnvRequired("DATA_PATH")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPath:          dataPath,
		OutDir:            getEnvOrDefault("OUT_DIR", "out"),
		HistoryPath:       os.Getenv("HISTORY_PATH"), // optional
		TrackerURL:        os.Getenv("TRACKER_URL"),  // optional
		TrackerTimeout:    getDurationOrDefault("TRACKER_TIMEOUT", 5*time.Second),
		MetricsPort:       getIntOrDefault("METRICS_PORT", 0),
		ExtraAtomAttr:     getBoolOrDefault("EXTRA_ATOM_ATTR", true),
		ExtraBondAttr:     getBoolOrDefault("EXTRA_BOND_ATTR", true),
		TestSplit:         getFloatOrDefault("TEST_SPLIT", 0.1),
		TrainRatio:        getFloatOrDefault("TRAIN_RATIO", 0.9),
		Folds:             getIntOrDefault("FOLDS", 5),
		Epochs:            getIntOrDefault("EPOCHS", 150),
		LearningRate:      getFloatOrDefault("LEARNING_RATE", 0.01),
		BatchSize:         getIntOrDefault("BATCH_SIZE", 32),
		Patience:          getIntOrDefault("PATIENCE", 10),
		L2Penalty:         getFloatOrDefault("L2_PENALTY", 0),
		Seed:              int64(getIntOrDefault("MODEL_SEED", 0)),
		SaveNames:         getBoolOrDefault("SAVE_NAMES", false),
		PretrainedWeights: os.Getenv("PRETRAINED_WEIGHTS"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func withDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func withDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// validateSettings performs validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("data path is required")
	}
	if settings.OutDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	if settings.TestSplit < 0 || settings.TestSplit >= 1 {
		return fmt.Errorf("test split must be in [0, 1), got %f", settings.TestSplit)
	}
	if settings.TrainRatio <= 0 || settings.TrainRatio > 1 {
		return fmt.Errorf("train ratio must be in (0, 1], got %f", settings.TrainRatio)
	}
	if settings.Folds < 1 {
		return fmt.Errorf("fold count must be at least 1, got %d", settings.Folds)
	}
	if settings.Epochs < 1 {
		return fmt.Errorf("epoch count must be at least 1, got %d", settings.Epochs)
	}
	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", settings.LearningRate)
	}
	if settings.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", settings.BatchSize)
	}
	if settings.Patience < 1 {
		return fmt.Errorf("patience must be at least 1, got %d", settings.Patience)
	}
	if settings.L2Penalty < 0 {
		return fmt.Errorf("l2 penalty must be non-negative, got %f", settings.L2Penalty)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 (disabled) or between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.TrackerTimeout < time.Second || settings.TrackerTimeout > time.Minute {
		return fmt.Errorf("tracker timeout must be between 1s and 1m, got %v", settings.TrackerTimeout)
	}

	return nil
}
