package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gitrdm/gokanscore/internal/demo"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Solve one problem and print its score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := demo.Run(cmd.Context(), a.runOptions(a.cfg.Bench.Seed, a.cfg.Engine.ConstraintMatch))
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain",
		Short: "Solve one problem and explain its score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := demo.Run(cmd.Context(), a.runOptions(a.cfg.Bench.Seed, true))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printReport(out, report)
			fmt.Fprintln(out)
			fmt.Fprint(out, report.Summary)
			return nil
		},
	}
}

func (a *app) runOptions(seed uint64, constraintMatch bool) demo.RunOptions {
	return demo.RunOptions{
		Problem:         a.cfg.Bench.Problem,
		Size:            a.cfg.Bench.Size,
		Moves:           a.cfg.Bench.Moves,
		Seed:            seed,
		ConstraintMatch: constraintMatch,
		Weights:         a.cfg.Engine.Weights,
		Logger:          a.logger,
		Metrics:         a.metrics,
	}
}

func printReport(w io.Writer, r demo.Report) {
	fmt.Fprintf(w, "problem   %s (size %d, seed %d)\n", r.Problem, r.Size, r.Seed)
	fmt.Fprintf(w, "initial   %s\n", r.Initial)
	fmt.Fprintf(w, "score     %s\n", r.Score)
	fmt.Fprintf(w, "feasible  %t\n", r.Feasible)
	fmt.Fprintf(w, "moves     %d (accepted %d, %.0f moves/s)\n", r.Moves, r.Accepted, r.MovesPerSecond())
}
