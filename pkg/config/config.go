package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrainerConfig is the full configuration consumed at startup. Missing
// required keys and unrecognized keys are fatal before training begins.
type TrainerConfig struct {
	Seed    int64  `yaml:"seed"`
	WorkDir string `yaml:"work_dir"`
	Model   string `yaml:"model"`

	MaxTrainStep              int     `yaml:"max_train_step"`
	SaveEveryNIter            int     `yaml:"save_every_niter"`
	EntropyRegWeight          float64 `yaml:"entropy_reg_weight"`
	SaveProgramCacheNIter     int     `yaml:"save_program_cache_niter"`
	FreezeNIter               int     `yaml:"freeze_niter"`
	GradientAccumulationNIter int     `yaml:"gradient_accumulation_niter"`
	PrimaryLearningRate       float64 `yaml:"primary_learning_rate"`
	SecondaryLearningRate     float64 `yaml:"secondary_learning_rate"`

	NumActors        int    `yaml:"num_actors"`
	QueueCapacity    int    `yaml:"queue_capacity"`
	CheckpointBuffer int    `yaml:"checkpoint_buffer"`
	MetricsAddr      string `yaml:"metrics_addr"`
	CacheURL         string `yaml:"cache_url"`
}

var ErrInvalidConfig = errors.New("invalid trainer config")

// Load reads a yaml config file, applies defaults, and validates it.
// Unknown keys in the file are rejected.
func Load(path string) (*TrainerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw yaml config bytes.
func Parse(data []byte) (*TrainerConfig, error) {
	var cfg TrainerConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *TrainerConfig) applyDefaults() {
	if c.GradientAccumulationNIter == 0 {
		c.GradientAccumulationNIter = 1
	}
	if c.NumActors == 0 {
		c.NumActors = 1
	}
}

// Validate checks the required keys and value ranges.
func (c *TrainerConfig) Validate() error {
	var missing []string
	if c.WorkDir == "" {
		missing = append(missing, "work_dir")
	}
	if c.Model == "" {
		missing = append(missing, "model")
	}
	if c.MaxTrainStep <= 0 {
		missing = append(missing, "max_train_step")
	}
	if c.SaveEveryNIter <= 0 {
		missing = append(missing, "save_every_niter")
	}
	if c.PrimaryLearningRate <= 0 {
		missing = append(missing, "primary_learning_rate")
	}
	if c.SecondaryLearningRate <= 0 {
		missing = append(missing, "secondary_learning_rate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid required keys: %v", ErrInvalidConfig, missing)
	}

	if c.GradientAccumulationNIter < 1 {
		return fmt.Errorf("%w: gradient_accumulation_niter must be >= 1", ErrInvalidConfig)
	}
	if c.FreezeNIter < 0 {
		return fmt.Errorf("%w: freeze_niter must be >= 0", ErrInvalidConfig)
	}
	if c.SaveProgramCacheNIter < 0 {
		return fmt.Errorf("%w: save_program_cache_niter must be >= 0", ErrInvalidConfig)
	}
	if c.NumActors < 1 {
		return fmt.Errorf("%w: num_actors must be >= 1", ErrInvalidConfig)
	}
	return nil
}
