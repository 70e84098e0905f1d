package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nqueens", cfg.Bench.Problem)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  constraint_match: true
  weights:
    conflict: 2hard/0soft
logging:
  level: debug
bench:
  problem: coloring
  size: 12
`))
	require.NoError(t, err)
	assert.True(t, cfg.Engine.ConstraintMatch)
	assert.Equal(t, "2hard/0soft", cfg.Engine.Weights["conflict"])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format, "unset fields keep their default")
	assert.Equal(t, "coloring", cfg.Bench.Problem)
	assert.Equal(t, 12, cfg.Bench.Size)
	assert.Equal(t, 1000, cfg.Bench.Moves)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown problem", "bench: {problem: sudoku}"},
		{"tiny board", "bench: {size: 2}"},
		{"no runs", "bench: {runs: 0}"},
		{"log level", "logging: {level: loud}"},
		{"empty weight", "engine: {weights: {conflict: \"\"}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Parse([]byte("bench: [1, 2"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bench:\n  runs: 3\n"), 0o600))
	t.Setenv("GOKANSCORE_WORKERS", "2")
	t.Setenv("GOKANSCORE_LOG_FORMAT", "JSON")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Bench.Runs)
	assert.Equal(t, 2, cfg.Bench.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":1`)
}
