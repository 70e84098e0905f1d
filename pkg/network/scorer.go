package network

import (
	"fmt"

	"github.com/gitrdm/gokanscore/pkg/inliner"
	"github.com/gitrdm/gokanscore/pkg/score"
)

// scorerNode is the terminal node of a constraint. It keeps the undo of the
// last impact of every tuple in the tuple's store.
type scorerNode[S score.Score[S], N score.Number[N]] struct {
	name        string
	slot        int
	impacter    inliner.WeightedScoreImpacter[S, N]
	weigh       func(*Tuple) N
	one         N
	nonNegative bool
}

func newScorerNode[S score.Score[S], N score.Number[N]](name string, slot int, impacter inliner.WeightedScoreImpacter[S, N], weigh func(*Tuple) N, nonNegative bool) *scorerNode[S, N] {
	return &scorerNode[S, N]{
		name:        name,
		slot:        slot,
		impacter:    impacter,
		weigh:       weigh,
		one:         score.One[N](),
		nonNegative: nonNegative,
	}
}

func (n *scorerNode[S, N]) insert(t *Tuple) {
	if t.store[n.slot] != nil {
		panic(stateError(n.name, t, t.state, "tuple scored twice"))
	}
	t.store[n.slot] = n.impact(t)
}

// update replaces the previous impact, if any.
func (n *scorerNode[S, N]) update(t *Tuple) {
	if undo, ok := t.store[n.slot].(inliner.UndoScoreImpacter); ok {
		t.store[n.slot] = nil
		undo.Undo()
	}
	t.store[n.slot] = n.impact(t)
}

func (n *scorerNode[S, N]) retract(t *Tuple) {
	undo, ok := t.store[n.slot].(inliner.UndoScoreImpacter)
	if !ok {
		return
	}
	t.store[n.slot] = nil
	undo.Undo()
}

// impact weighs t and applies it to the score. Any panic raised on the way
// is rethrown as an *ImpactError naming the constraint and the facts.
func (n *scorerNode[S, N]) impact(t *Tuple) inliner.UndoScoreImpacter {
	defer func() {
		if r := recover(); r != nil {
			panic(&ImpactError{Constraint: n.name, Facts: t.Facts(), Cause: panicError(r)})
		}
	}()
	w := n.one
	if n.weigh != nil {
		w = n.weigh(t)
	}
	if n.nonNegative && w.Sign() < 0 {
		panic(fmt.Errorf("%w: %s", ErrNegativeMatchWeight, w))
	}
	return n.impacter.ImpactScore(w, t.facts)
}
