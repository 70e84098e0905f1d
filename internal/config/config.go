// Package config loads the configuration of the command-line runner.
//
// Values are resolved with the priority environment > file > defaults and
// validated with struct tags before use.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the top-level configuration of the runner.
type Config struct {
	// Engine contains session settings.
	Engine EngineConfig `yaml:"engine"`

	// Logging contains log handler settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `yaml:"metrics"`

	// Bench contains the problem and the run counts of run and bench.
	Bench BenchConfig `yaml:"bench"`
}

// EngineConfig contains session settings.
type EngineConfig struct {
	ConstraintMatch bool `yaml:"constraint_match"`
	// Weight overrides by constraint id, written in the text form of the
	// problem's score, e.g. "0hard/-2soft".
	Weights map[string]string `yaml:"weights" validate:"dive,keys,required,endkeys,required"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dump prints the gathered metrics after the command finishes.
	Dump bool `yaml:"dump"`
}

// BenchConfig describes the demo problem and how often it is solved.
type BenchConfig struct {
	Problem string `yaml:"problem" validate:"oneof=nqueens coloring"`
	Size    int    `yaml:"size" validate:"gte=4,lte=1024"`
	Moves   int    `yaml:"moves" validate:"gte=1"`
	Runs    int    `yaml:"runs" validate:"gte=1,lte=10000"`
	Workers int    `yaml:"workers" validate:"gte=0,lte=1024"`
	Seed    uint64 `yaml:"seed"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Bench: BenchConfig{
			Problem: "nqueens",
			Size:    8,
			Moves:   1000,
			Runs:    8,
			Workers: 0, // one per CPU
			Seed:    1,
		},
	}
}

// Load reads the configuration with priority environment > file > defaults
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("GOKANSCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("GOKANSCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := getenv("GOKANSCORE_CONSTRAINT_MATCH"); v != "" {
		cfg.Engine.ConstraintMatch = v == "true" || v == "1"
	}
	if v := getenv("GOKANSCORE_METRICS"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := getenv("GOKANSCORE_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Bench.Workers = i
		}
	}
}

// NewLogger builds the logger described by c, writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c LoggingConfig) level() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
