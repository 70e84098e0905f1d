package inliner

import (
	"fmt"

	"github.com/gitrdm/gokanscore/pkg/score"
)

// WeightedScoreImpacter applies the weight of one constraint to the running
// score.
type WeightedScoreImpacter[S score.Score[S], N score.Number[N]] interface {
	// ImpactScore adds weight * matchWeight and returns the exact inverse.
	// facts are only read when constraint match tracking is enabled.
	ImpactScore(matchWeight N, facts []any) UndoScoreImpacter
	Context() *ScoreContext[S, N]
}

// UndoScoreImpacter reverts one score impact. Undo must be called at most
// once.
type UndoScoreImpacter interface {
	Undo()
}

// ScoreContext is the per-constraint state shared by an impacter and the undo
// handles it returns.
type ScoreContext[S score.Score[S], N score.Number[N]] struct {
	inliner      *Inliner[S, N]
	ref          ConstraintRef
	weight       S
	weightLevels []N
	justify      func(facts []any, impact S) any
	indict       func(facts []any) []any
}

func (c *ScoreContext[S, N]) Ref() ConstraintRef { return c.ref }
func (c *ScoreContext[S, N]) Weight() S          { return c.weight }

type singleLevelImpacter[S score.Score[S], N score.Number[N]] struct {
	ctx   *ScoreContext[S, N]
	level int
}

func (i *singleLevelImpacter[S, N]) Context() *ScoreContext[S, N] { return i.ctx }

func (i *singleLevelImpacter[S, N]) ImpactScore(matchWeight N, facts []any) UndoScoreImpacter {
	ctx := i.ctx
	in := ctx.inliner
	amount := ctx.weightLevels[i.level].Mul(matchWeight)
	in.levels[i.level] = in.levels[i.level].Add(amount)
	u := &undoImpact[S, N]{ctx: ctx, level: i.level, amount: amount}
	if in.matchEnabled {
		levels := make([]N, len(in.levels))
		levels[i.level] = amount
		u.match = in.addMatch(ctx, in.def.FromLevels(levels), facts)
	}
	return u
}

type multiLevelImpacter[S score.Score[S], N score.Number[N]] struct {
	ctx *ScoreContext[S, N]
}

func (i *multiLevelImpacter[S, N]) Context() *ScoreContext[S, N] { return i.ctx }

func (i *multiLevelImpacter[S, N]) ImpactScore(matchWeight N, facts []any) UndoScoreImpacter {
	ctx := i.ctx
	in := ctx.inliner
	var impact []N
	if in.matchEnabled {
		impact = make([]N, len(in.levels))
	}
	for l, w := range ctx.weightLevels {
		if w.IsZero() {
			continue
		}
		amount := w.Mul(matchWeight)
		in.levels[l] = in.levels[l].Add(amount)
		if impact != nil {
			impact[l] = amount
		}
	}
	u := &undoImpact[S, N]{ctx: ctx, level: -1, amount: matchWeight}
	if in.matchEnabled {
		u.match = in.addMatch(ctx, in.def.FromLevels(impact), facts)
	}
	return u
}

// undoImpact is the command replayed against the inliner to revert one
// impact. For a single-level impact amount is the level delta; for a
// multi-level impact it is the match weight and the deltas are recomputed.
type undoImpact[S score.Score[S], N score.Number[N]] struct {
	ctx    *ScoreContext[S, N]
	level  int
	amount N
	match  *ConstraintMatch[S]
	done   bool
}

func (u *undoImpact[S, N]) Undo() {
	if u.done {
		panic(fmt.Errorf("%w: constraint %s", ErrUndoTwice, u.ctx.ref))
	}
	u.done = true
	in := u.ctx.inliner
	if u.level >= 0 {
		in.levels[u.level] = in.levels[u.level].Sub(u.amount)
	} else {
		for l, w := range u.ctx.weightLevels {
			if w.IsZero() {
				continue
			}
			in.levels[l] = in.levels[l].Sub(w.Mul(u.amount))
		}
	}
	if u.match != nil {
		in.removeMatch(u.match)
	}
}
