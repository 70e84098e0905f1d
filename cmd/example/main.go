// Package main is the command-line runner of gokanscore. It scores the
// bundled demo problems with live sessions while a hill climber moves their
// facts.
//
//	example run --problem nqueens --size 16 --moves 5000
//	example explain --problem coloring --size 12
//	example bench --runs 32 --workers 8 --trace
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/gitrdm/gokanscore/internal/config"
	"github.com/gitrdm/gokanscore/pkg/network"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once the configuration is resolved.
type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *network.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "example",
		Short:        "Score the bundled planning problems incrementally",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.dumpMetrics(cmd.OutOrStdout())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.Bool("metrics", false, "collect Prometheus metrics and print them when done")
	flags.String("problem", "", "problem to solve: nqueens or coloring")
	flags.Int("size", 0, "number of queens or vertices")
	flags.Int("moves", 0, "moves per run")
	flags.Uint64("seed", 0, "seed of the first run")

	root.AddCommand(newRunCmd(a), newExplainCmd(a), newBenchCmd(a))
	return root
}

// load resolves the configuration with priority flags > environment > file
// > defaults.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
		cfg.Metrics.Dump = cfg.Metrics.Enabled
	}
	if flags.Changed("problem") {
		cfg.Bench.Problem, _ = flags.GetString("problem")
	}
	if flags.Changed("size") {
		cfg.Bench.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("moves") {
		cfg.Bench.Moves, _ = flags.GetInt("moves")
	}
	if flags.Changed("seed") {
		cfg.Bench.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Lookup("runs") != nil && flags.Changed("runs") {
		cfg.Bench.Runs, _ = flags.GetInt("runs")
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Bench.Workers, _ = flags.GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.Logging.NewLogger(cmd.ErrOrStderr())
	a.registry = prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		a.metrics = network.NewMetrics(a.registry)
	}
	a.logger.Debug("configuration loaded",
		"problem", cfg.Bench.Problem,
		"size", cfg.Bench.Size,
		"moves", cfg.Bench.Moves,
		"metrics", cfg.Metrics.Enabled)
	return nil
}

func (a *app) dumpMetrics(w io.Writer) error {
	if a.metrics == nil || !a.cfg.Metrics.Dump {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
