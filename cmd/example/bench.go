package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/gitrdm/gokanscore/internal/demo"
	"github.com/gitrdm/gokanscore/internal/parallel"
	"github.com/gitrdm/gokanscore/pkg/network"
)

func newBenchCmd(a *app) *cobra.Command {
	var withTrace bool
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Solve independent runs of a problem in parallel",
		Long: `Solve the configured problem once per run, each run with its own
session and seed, on a bounded pool of workers. Prints the throughput
statistics of the runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.bench(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), withTrace)
		},
	}
	cmd.Flags().Int("runs", 0, "number of runs")
	cmd.Flags().Int("workers", 0, "runs solved at once (0: one per CPU)")
	cmd.Flags().BoolVar(&withTrace, "trace", false, "print one OpenTelemetry span per run")
	return cmd
}

// benchResult holds the outcome of one bench run.
type benchResult struct {
	report demo.Report
	stats  network.Stats
}

func (a *app) bench(ctx context.Context, out, traceOut io.Writer, withTrace bool) error {
	var opts []sdktrace.TracerProviderOption
	if withTrace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)
	tracer := otel.Tracer("gokanscore/bench")

	b := a.cfg.Bench
	pool := parallel.NewWorkerPool(b.Workers)
	defer pool.Shutdown()

	ctx, span := tracer.Start(ctx, "bench",
		trace.WithAttributes(
			attribute.String("bench.problem", b.Problem),
			attribute.Int("bench.size", b.Size),
			attribute.Int("bench.runs", b.Runs),
			attribute.Int("bench.workers", pool.Size()),
		),
	)
	defer span.End()

	results, err := parallel.RunAll(ctx, pool, b.Runs, func(ctx context.Context, run int) (benchResult, error) {
		seed := b.Seed + uint64(run)
		_, span := tracer.Start(ctx, "bench.run",
			trace.WithAttributes(attribute.Int("run", run), attribute.Int64("seed", int64(seed))))
		defer span.End()

		monitor := network.NewMonitor()
		runOpts := a.runOptions(seed, a.cfg.Engine.ConstraintMatch)
		runOpts.Monitor = monitor
		report, err := demo.Run(ctx, runOpts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return benchResult{}, err
		}
		stats := monitor.Stats()
		span.SetAttributes(
			attribute.String("score", report.Score),
			attribute.Bool("feasible", report.Feasible),
			attribute.Int("accepted", report.Accepted),
			attribute.Int64("propagations", stats.Propagations),
		)
		return benchResult{report: report, stats: stats}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bench failed")
		return err
	}

	printBench(out, b.Problem, b.Size, pool.Size(), results)
	return nil
}

func printBench(w io.Writer, problem string, size, workers int, results []benchResult) {
	throughput := make([]float64, len(results))
	propagations := make([]float64, len(results))
	feasible := 0
	for i, r := range results {
		throughput[i] = r.report.MovesPerSecond()
		propagations[i] = float64(r.stats.Propagations) / float64(max(r.report.Moves, 1))
		if r.report.Feasible {
			feasible++
		}
	}
	mean, std := stat.MeanStdDev(throughput, nil)
	if len(throughput) < 2 {
		std = 0
	}
	sorted := append([]float64(nil), throughput...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	fmt.Fprintf(w, "problem       %s (size %d)\n", problem, size)
	fmt.Fprintf(w, "runs          %d on %d workers\n", len(results), workers)
	fmt.Fprintf(w, "feasible      %d/%d\n", feasible, len(results))
	fmt.Fprintf(w, "moves/s       mean %.0f, sd %.0f, median %.0f\n", mean, std, median)
	fmt.Fprintf(w, "tuples/move   %.1f\n", stat.Mean(propagations, nil))
}
