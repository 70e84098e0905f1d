package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRunCommand(t *testing.T) {
	out, _, err := execute(t, "run", "--problem", "nqueens", "--size", "6", "--moves", "200", "--seed", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "problem   nqueens (size 6, seed 4)")
	assert.Contains(t, out, "moves     200 (accepted ")
	assert.NotContains(t, out, "Explanation")
}

func TestExplainCommand(t *testing.T) {
	out, _, err := execute(t, "explain", "--problem", "coloring", "--size", "8", "--moves", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "Explanation of score")
	assert.Contains(t, out, "coloring/color in use")
}

func TestBenchCommand(t *testing.T) {
	out, traces, err := execute(t, "bench", "--problem", "nqueens", "--size", "8", "--moves", "100",
		"--runs", "4", "--workers", "2", "--trace", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "runs          4 on 2 workers")
	assert.Contains(t, out, "moves/s       mean ")
	assert.Contains(t, out, "gokanscore_fact_operations_total")
	assert.Contains(t, out, "gokanscore_score_calculations_total 404")
	assert.Contains(t, traces, "bench.run")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  weights:
    nqueens/row conflict: "0"
logging:
  level: debug
bench:
  problem: nqueens
  size: 5
  moves: 20
`), 0o600))

	out, logs, err := execute(t, "run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "size 5")
	assert.Contains(t, logs, "configuration loaded")
	assert.Contains(t, logs, "constraint disabled by zero weight")
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown problem", []string{"run", "--problem", "sudoku"}},
		{"missing config", []string{"run", "--config", filepath.Join(t.TempDir(), "none.yaml")}},
		{"bad log level", []string{"run", "--log-level", "loud"}},
		{"no runs", []string{"bench", "--runs", "0"}},
		{"extra argument", []string{"run", "now"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
