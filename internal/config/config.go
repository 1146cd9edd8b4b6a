// Package config holds solver configuration and its YAML loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/pathfit/internal/parallel"
	"github.com/born-ml/pathfit/internal/solvererr"
	"gopkg.in/yaml.v3"
)

// Config is the full set of recognized solver options.
type Config struct {
	SharedData     bool      `yaml:"shared_data"`       // One upload backs every worker
	Intercept      bool      `yaml:"intercept"`         // Fit an unpenalized intercept column
	Standardize    bool      `yaml:"standardize"`       // Scale features to unit variance for the solve
	LambdaMinRatio float64   `yaml:"lambda_min_ratio"`  // Smallest lambda as a fraction of lambda max
	NLambdas       int       `yaml:"n_lambdas"`         // Lambdas per alpha
	NFolds         int       `yaml:"n_folds"`           // Cross-validation folds, <= 1 disables CV
	NAlphas        int       `yaml:"n_alphas"`          // Alpha grid size
	GiveFullPath   bool      `yaml:"give_full_path"`    // Keep every (lambda, alpha) record
	AlphaMin       float64   `yaml:"alpha_min"`         // First alpha of the generated grid
	AlphaMax       float64   `yaml:"alpha_max"`         // Last alpha of the generated grid
	Alphas         []float64 `yaml:"alphas,omitempty"`  // Explicit alpha grid, overrides NAlphas
	Lambdas        []float64 `yaml:"lambdas,omitempty"` // Explicit lambda grid, overrides NLambdas; walked and indexed largest first
	Tolerance      float64   `yaml:"tolerance"`         // Coordinate descent stopping tolerance
	MaxIterations  int       `yaml:"max_iterations"`    // Coordinate descent sweep limit
	Workers        int       `yaml:"workers"`           // Compute workers, 0 means one per CPU
	SourceDevice   int       `yaml:"source_device"`     // Device receiving uploads
	Devices        int       `yaml:"devices"`           // Number of devices
	DeviceKind     string    `yaml:"device_kind"`       // "cpu" or "webgpu"
	CompressModels bool      `yaml:"compress_models"`   // xz-compress saved model files
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SharedData:     true,
		Intercept:      true,
		Standardize:    false,
		LambdaMinRatio: 1e-7,
		NLambdas:       100,
		NFolds:         1,
		NAlphas:        5,
		GiveFullPath:   false,
		AlphaMin:       0,
		AlphaMax:       1,
		Tolerance:      1e-4,
		MaxIterations:  5000,
		Workers:        0,
		SourceDevice:   0,
		Devices:        1,
		DeviceKind:     "cpu",
	}
}

// AlphaCount returns the size of the alpha grid.
func (c Config) AlphaCount() int {
	if len(c.Alphas) > 0 {
		return len(c.Alphas)
	}
	return c.NAlphas
}

// LambdaCount returns the size of the lambda grid.
func (c Config) LambdaCount() int {
	if len(c.Lambdas) > 0 {
		return len(c.Lambdas)
	}
	return c.NLambdas
}

// WorkerCount resolves Workers, defaulting to the parallel package's per-CPU count.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return parallel.DefaultConfig().NumWorkers
}

// Validate checks the configuration.
func (c Config) Validate() error {
	const op = "config"
	if c.AlphaCount() < 1 {
		return solvererr.Config(op, "n_alphas must be >= 1, got %d", c.NAlphas)
	}
	if c.LambdaCount() < 1 {
		return solvererr.Config(op, "n_lambdas must be >= 1, got %d", c.NLambdas)
	}
	if len(c.Lambdas) == 0 && (c.LambdaMinRatio <= 0 || c.LambdaMinRatio > 1) {
		return solvererr.Config(op, "lambda_min_ratio must be in (0, 1], got %g", c.LambdaMinRatio)
	}
	if c.NFolds < 0 {
		return solvererr.Config(op, "n_folds must be >= 0, got %d", c.NFolds)
	}
	for _, a := range c.Alphas {
		if a < 0 || a > 1 || math.IsNaN(a) {
			return solvererr.Config(op, "alpha %g outside [0, 1]", a)
		}
	}
	if len(c.Alphas) == 0 && (c.AlphaMin < 0 || c.AlphaMax > 1 || c.AlphaMin > c.AlphaMax) {
		return solvererr.Config(op, "alpha range [%g, %g] must lie in [0, 1]", c.AlphaMin, c.AlphaMax)
	}
	for _, l := range c.Lambdas {
		if l < 0 || math.IsNaN(l) || math.IsInf(l, 0) {
			return solvererr.Config(op, "lambda %g must be finite and >= 0", l)
		}
	}
	if c.Tolerance <= 0 {
		return solvererr.Config(op, "tolerance must be > 0, got %g", c.Tolerance)
	}
	if c.MaxIterations < 1 {
		return solvererr.Config(op, "max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.Workers < 0 {
		return solvererr.Config(op, "workers must be >= 0, got %d", c.Workers)
	}
	if c.Devices < 1 {
		return solvererr.Config(op, "devices must be >= 1, got %d", c.Devices)
	}
	if c.SourceDevice < 0 || c.SourceDevice >= c.Devices {
		return solvererr.Config(op, "source_device %d outside [0, %d)", c.SourceDevice, c.Devices)
	}
	switch c.DeviceKind {
	case "", "cpu", "webgpu":
	default:
		return solvererr.Config(op, "unknown device_kind %q", c.DeviceKind)
	}
	return nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for config loading
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
