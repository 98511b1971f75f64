// Package config holds the hyperparameters for training and generation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"jokegpt/corpus"
)

// Config is the full run configuration. Zero values are not meaningful;
// start from Default.
type Config struct {
	Corpus   CorpusConfig   `json:"corpus"`
	Train    TrainConfig    `json:"train"`
	Generate GenerateConfig `json:"generate"`
	Seed     uint64         `json:"seed"`
}

// CorpusConfig controls how the joke dataset becomes training text.
type CorpusConfig struct {
	Path      string  `json:"path"`
	MaxLines  int     `json:"max_lines"`  // lines kept after assembly; <= 0 keeps all
	TrainFrac float64 `json:"train_frac"` // leading share used for training
}

// TrainConfig holds training hyperparameters.
type TrainConfig struct {
	BatchSize    int     `json:"batch_size"` // sequences per step
	BlockSize    int     `json:"block_size"` // context length
	MaxIters     int     `json:"max_iters"`
	EvalInterval int     `json:"eval_interval"`
	EvalIters    int     `json:"eval_iters"`
	LearningRate float64 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"` // "adam" or "sgd"
	NEmbed       int     `json:"n_embed"`   // embedding width fed to the attention head
	HeadSize     int     `json:"head_size"`
}

// GenerateConfig controls sampling.
type GenerateConfig struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Default returns the configuration of the reference run.
func Default() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Path:      "reddit_jokes.json",
			MaxLines:  corpus.DefaultMaxLines,
			TrainFrac: 0.9,
		},
		Train: TrainConfig{
			BatchSize:    32,
			BlockSize:    8,
			MaxIters:     3000,
			EvalInterval: 300,
			EvalIters:    200,
			LearningRate: 1e-2,
			Optimizer:    OptimizerAdam,
			NEmbed:       32,
			HeadSize:     16,
		},
		Generate: GenerateConfig{
			MaxNewTokens: 400,
		},
		Seed: 1337,
	}
}

// Load overlays a JSON file on the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("batch_size", c.Train.BatchSize)
	positive("block_size", c.Train.BlockSize)
	positive("max_iters", c.Train.MaxIters)
	positive("eval_interval", c.Train.EvalInterval)
	positive("eval_iters", c.Train.EvalIters)
	positive("n_embed", c.Train.NEmbed)
	positive("head_size", c.Train.HeadSize)

	if c.Train.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %g", c.Train.LearningRate))
	}
	switch c.Train.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	default:
		errs = append(errs, fmt.Errorf("unknown optimizer %q", c.Train.Optimizer))
	}
	if c.Corpus.TrainFrac <= 0 || c.Corpus.TrainFrac > 1 {
		errs = append(errs, fmt.Errorf("train_frac must be in (0, 1], got %g", c.Corpus.TrainFrac))
	}
	if c.Generate.MaxNewTokens < 0 {
		errs = append(errs, fmt.Errorf("max_new_tokens must be non-negative, got %d", c.Generate.MaxNewTokens))
	}
	return errors.Join(errs...)
}
