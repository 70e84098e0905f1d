// Package demo holds the small planning problems scored by the command-line
// runner and the examples, together with a hill-climbing driver that moves
// facts and re-reads the score of a live session after every move.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/gitrdm/gokanscore/pkg/network"
	"github.com/gitrdm/gokanscore/pkg/score"
)

// ErrUnknownProblem is returned by Run for a problem name it does not know.
var ErrUnknownProblem = errors.New("demo: unknown problem")

// Problems lists the names accepted by Run.
var Problems = []string{"nqueens", "coloring"}

// Problem is a planning problem whose facts are scored by a constraint
// network.
type Problem[S score.Score[S], N score.Number[N]] interface {
	// Builder declares the constraints of the problem.
	Builder() *network.Builder[S, N]
	// Facts returns every fact of the problem, planning facts included.
	Facts() []any
	// RandomMove changes one planning fact in place and returns it with a
	// function restoring its previous value.
	RandomMove(rng *rand.Rand) (fact any, undo func())
}

// ClimbOption configures HillClimb.
type ClimbOption func(*climbConfig)

type climbConfig struct {
	moveLimit  int
	timeLimit  time.Duration
	stopOnZero bool
}

// WithMoveLimit stops the climb after n moves. The default is 1000.
func WithMoveLimit(n int) ClimbOption {
	return func(c *climbConfig) { c.moveLimit = n }
}

// WithTimeLimit stops the climb after d. When reached, the result so far is
// returned together with context.DeadlineExceeded.
func WithTimeLimit(d time.Duration) ClimbOption {
	return func(c *climbConfig) { c.timeLimit = d }
}

// WithStopOnZero stops the climb as soon as the score is zero, the best
// score of problems that only penalize.
func WithStopOnZero() ClimbOption {
	return func(c *climbConfig) { c.stopOnZero = true }
}

// Result describes a finished climb.
type Result[S score.Score[S]] struct {
	Initial  S
	Score    S
	Moves    int
	Accepted int
	Elapsed  time.Duration
}

// HillClimb inserts the facts of p into s and then applies random moves,
// keeping a move when the score does not get worse and undoing it
// otherwise. s must not hold any fact yet.
//
// If ctx is cancelled, the result so far is returned together with
// ctx.Err().
func HillClimb[S score.Score[S], N score.Number[N]](ctx context.Context, s *network.Session[S, N], p Problem[S, N], rng *rand.Rand, opts ...ClimbOption) (res Result[S], err error) {
	cfg := &climbConfig{moveLimit: 1000}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()
	if cfg.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeLimit)
		defer cancel()
	}

	for _, f := range p.Facts() {
		if err := s.Insert(f); err != nil {
			return res, err
		}
	}
	if res.Initial, err = s.CalculateScore(); err != nil {
		return res, err
	}
	res.Score = res.Initial

	for res.Moves < cfg.moveLimit {
		if cfg.stopOnZero && res.Score.IsZero() {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fact, undo := p.RandomMove(rng)
		res.Moves++
		if err := s.Update(fact); err != nil {
			return res, err
		}
		next, err := s.CalculateScore()
		if err != nil {
			return res, err
		}
		if next.Compare(res.Score) >= 0 {
			res.Score = next
			res.Accepted++
			continue
		}
		undo()
		if err := s.Update(fact); err != nil {
			return res, err
		}
	}
	return res, s.Settle()
}

// RunOptions describes a single solve of a bundled problem.
type RunOptions struct {
	Problem string
	Size    int
	Moves   int
	Seed    uint64

	ConstraintMatch bool
	// Weights overrides constraint weights by constraint id. Values use the
	// text form of the problem's score.
	Weights map[string]string

	Logger  *slog.Logger
	Metrics *network.Metrics
	Monitor *network.Monitor
}

// Report is the outcome of Run.
type Report struct {
	Problem  string
	Size     int
	Seed     uint64
	Initial  string
	Score    string
	Feasible bool
	Moves    int
	Accepted int
	Elapsed  time.Duration
	// Summary explains the final score. It is only filled when constraint
	// matching is enabled.
	Summary string
}

// MovesPerSecond returns the move throughput of the run.
func (r Report) MovesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Moves) / r.Elapsed.Seconds()
}

// Run builds the named problem from the seed, solves it with HillClimb and
// reports the result.
func Run(ctx context.Context, o RunOptions) (Report, error) {
	if o.Size < 4 {
		return Report{}, fmt.Errorf("demo: size %d is below 4", o.Size)
	}
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
	switch o.Problem {
	case "nqueens":
		return solve(ctx, NewNQueens(o.Size, rng), o, rng)
	case "coloring":
		return solve(ctx, NewColoring(o.Size, rng), o, rng)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownProblem, o.Problem)
	}
}

func solve[S score.Score[S], N score.Number[N]](ctx context.Context, p Problem[S, N], o RunOptions, rng *rand.Rand) (Report, error) {
	report := Report{Problem: o.Problem, Size: o.Size, Seed: o.Seed}
	b := p.Builder()

	opts := []network.SessionOption{
		network.WithConstraintMatch(o.ConstraintMatch),
		network.WithMetrics(o.Metrics),
		network.WithMonitor(o.Monitor),
	}
	if o.Logger != nil {
		opts = append(opts, network.WithLogger(o.Logger))
	}
	ids := make([]string, 0, len(o.Weights))
	for id := range o.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		w, err := b.Definition().Parse(o.Weights[id])
		if err != nil {
			return report, fmt.Errorf("weight of %s: %w", id, err)
		}
		opts = append(opts, network.WithConstraintWeight(id, w))
	}

	s, err := network.NewSession(b, opts...)
	if err != nil {
		return report, err
	}
	moves := o.Moves
	if moves <= 0 {
		moves = 1000
	}
	res, err := HillClimb(ctx, s, p, rng, WithMoveLimit(moves))
	report.Initial = res.Initial.String()
	report.Score = res.Score.String()
	report.Feasible = res.Score.IsFeasible()
	report.Moves = res.Moves
	report.Accepted = res.Accepted
	report.Elapsed = res.Elapsed
	if err != nil {
		return report, err
	}
	if o.ConstraintMatch {
		if report.Summary, err = s.Summary(5); err != nil {
			return report, err
		}
	}
	return report, nil
}
