package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir       string  `yaml:"data_dir"`
	ModelPath     string  `yaml:"model_path"`
	CheckpointDir string  `yaml:"checkpoint_dir"`
	ImageSize     int     `yaml:"image_size"`
	BatchSize     int     `yaml:"batch_size"`
	Epochs        int     `yaml:"epochs"`
	LearningRate  float64 `yaml:"learning_rate"`
	ValSplit      float64 `yaml:"val_split"`
	NumWorkers    int     `yaml:"num_workers"`
	Prefetch      int     `yaml:"prefetch"`
	Seed          int64   `yaml:"seed"`
	LogEvery      int     `yaml:"log_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir    string
	ModelPath  string
	Epochs     int
	BatchSize  int
	ImageSize  int
	NumWorkers int
	Seed       int64
	LogEvery   int
}

// Default returns the built-in configuration: 224x224 inputs, batches
// of 32, five epochs.
func Default() *Config {
	return &Config{
		ModelPath:    "leaf_model.bin",
		ImageSize:    224,
		BatchSize:    32,
		Epochs:       5,
		LearningRate: 1e-3,
		ValSplit:     0.1,
		NumWorkers:   4,
		Prefetch:     64,
		Seed:         42,
		LogEvery:     10,
	}
}

// Load reads a Config from YAML, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.ImageSize > 0 {
		c.ImageSize = o.ImageSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.ModelPath == "" {
		return errors.New("model_path must be set")
	}
	if c.ImageSize < 12 {
		return errors.Errorf("image_size must be >= 12 (got %d)", c.ImageSize)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.ValSplit < 0 || c.ValSplit >= 1 {
		return errors.Errorf("val_split must be in [0,1) (got %g)", c.ValSplit)
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 2 * c.BatchSize
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
	return nil
}
