// Package inliner accumulates the running score of a constraint session.
//
// An Inliner keeps one running total per score level. Each constraint gets a
// WeightedScoreImpacter bound to its weight; every impact adds weight times
// match weight to the running totals and hands back an UndoScoreImpacter
// that subtracts exactly the same amount later. When constraint match
// tracking is enabled, every impact also records a ConstraintMatch under its
// constraint total and under every indicted object, and undoing the impact
// removes it again.
//
// An Inliner is owned by a single session and is not safe for concurrent use.
package inliner

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/gitrdm/gokanscore/internal/elist"
	"github.com/gitrdm/gokanscore/pkg/score"
)

var (
	// ErrZeroWeight rejects a constraint whose weight is zero on every level.
	ErrZeroWeight = errors.New("inliner: constraint weight is zero")

	// ErrUnknownConstraint is returned for a constraint the inliner was not
	// built with.
	ErrUnknownConstraint = errors.New("inliner: unknown constraint")

	// ErrUndoTwice is the panic cause of an undo handle used more than once.
	ErrUndoTwice = errors.New("inliner: score impact undone twice")
)

// ConstraintRef identifies a constraint.
type ConstraintRef struct {
	Package string
	Name    string
}

// ID returns "package/name", or just the name when no package is set.
func (r ConstraintRef) ID() string {
	if r.Package == "" {
		return r.Name
	}
	return r.Package + "/" + r.Name
}

func (r ConstraintRef) String() string { return r.ID() }

// Inliner holds the running score for one score definition.
type Inliner[S score.Score[S], N score.Number[N]] struct {
	def          score.Definition[S, N]
	levels       []N
	weights      map[ConstraintRef]S
	matchEnabled bool

	totals      map[ConstraintRef]*ConstraintMatchTotal[S]
	indictments map[any]*Indictment[S]
	matches     *elist.Arena[*ConstraintMatch[S]]
}

// New creates an inliner for the given constraint weights. Every weight must
// fit the definition and must not be zero.
func New[S score.Score[S], N score.Number[N]](def score.Definition[S, N], weights map[ConstraintRef]S, constraintMatchEnabled bool) (*Inliner[S, N], error) {
	for ref, w := range weights {
		if _, err := def.ToLevels(w); err != nil {
			return nil, fmt.Errorf("constraint %s weight %s: %w", ref, w, err)
		}
		if w.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrZeroWeight, ref)
		}
	}
	in := &Inliner[S, N]{
		def:          def,
		levels:       make([]N, def.LevelsSize()),
		weights:      weights,
		matchEnabled: constraintMatchEnabled,
	}
	if constraintMatchEnabled {
		in.totals = make(map[ConstraintRef]*ConstraintMatchTotal[S])
		in.indictments = make(map[any]*Indictment[S])
		in.matches = elist.NewArena[*ConstraintMatch[S]](64)
	}
	return in, nil
}

// Definition returns the score definition the inliner accumulates.
func (in *Inliner[S, N]) Definition() score.Definition[S, N] { return in.def }

// ConstraintMatchEnabled reports whether matches are being recorded.
func (in *Inliner[S, N]) ConstraintMatchEnabled() bool { return in.matchEnabled }

// ExtractScore returns the current running score.
func (in *Inliner[S, N]) ExtractScore() S {
	return in.def.FromLevels(append([]N(nil), in.levels...))
}

// Levels returns a copy of the running level totals.
func (in *Inliner[S, N]) Levels() []N {
	return append([]N(nil), in.levels...)
}

// ImpacterOptions customise the explanation records of one constraint.
type ImpacterOptions[S any] struct {
	// Justify builds the justification of a match. The default is a
	// DefaultJustification.
	Justify func(facts []any, impact S) any
	// Indict lists the objects blamed by a match. The default is the
	// match's facts, nil and duplicates skipped.
	Indict func(facts []any) []any
}

// BuildWeightedScoreImpacter binds an impacter to the weight of ref. When
// exactly one level of the weight is non-zero the impacter only ever touches
// that level.
func (in *Inliner[S, N]) BuildWeightedScoreImpacter(ref ConstraintRef, opts ImpacterOptions[S]) (WeightedScoreImpacter[S, N], error) {
	w, ok := in.weights[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConstraint, ref)
	}
	levels, err := in.def.ToLevels(w)
	if err != nil {
		return nil, fmt.Errorf("constraint %s: %w", ref, err)
	}
	ctx := &ScoreContext[S, N]{
		inliner:      in,
		ref:          ref,
		weight:       w,
		weightLevels: levels,
		justify:      opts.Justify,
		indict:       opts.Indict,
	}
	single, nonZero := -1, 0
	for i, v := range levels {
		if !v.IsZero() {
			single = i
			nonZero++
		}
	}
	switch nonZero {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrZeroWeight, ref)
	case 1:
		return &singleLevelImpacter[S, N]{ctx: ctx, level: single}, nil
	default:
		return &multiLevelImpacter[S, N]{ctx: ctx}, nil
	}
}

// ConstraintMatchTotal returns the live total of ref, if it has any match.
func (in *Inliner[S, N]) ConstraintMatchTotal(ref ConstraintRef) (*ConstraintMatchTotal[S], bool) {
	t, ok := in.totals[ref]
	return t, ok
}

// ConstraintMatchTotals returns every constraint with at least one live
// match, ordered by constraint id.
func (in *Inliner[S, N]) ConstraintMatchTotals() []*ConstraintMatchTotal[S] {
	out := make([]*ConstraintMatchTotal[S], 0, len(in.totals))
	for _, t := range in.totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID() < out[j].Ref.ID() })
	return out
}

// Indictment returns the live indictment of obj, if any. Objects that cannot
// be map keys, such as slices and maps, are never indicted.
func (in *Inliner[S, N]) Indictment(obj any) (*Indictment[S], bool) {
	if !indictable(obj) {
		return nil, false
	}
	ind, ok := in.indictments[obj]
	return ind, ok
}

// Indictments returns every indicted object, worst score first.
func (in *Inliner[S, N]) Indictments() []*Indictment[S] {
	out := make([]*Indictment[S], 0, len(in.indictments))
	for _, ind := range in.indictments {
		out = append(out, ind)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].score.Compare(out[j].score); c != 0 {
			return c < 0
		}
		return fmt.Sprint(out[i].Object) < fmt.Sprint(out[j].Object)
	})
	return out
}

func (in *Inliner[S, N]) addMatch(ctx *ScoreContext[S, N], impact S, facts []any) *ConstraintMatch[S] {
	var justification any
	if ctx.justify != nil {
		justification = ctx.justify(facts, impact)
	} else {
		justification = DefaultJustification[S]{Facts: append([]any(nil), facts...), Impact: impact}
	}
	var indicted []any
	if ctx.indict != nil {
		indicted = distinct(ctx.indict(facts))
	} else {
		indicted = distinct(facts)
	}

	m := &ConstraintMatch[S]{
		Ref:           ctx.ref,
		Justification: justification,
		Indicted:      indicted,
		Score:         impact,
	}
	total, ok := in.totals[ctx.ref]
	if !ok {
		total = &ConstraintMatchTotal[S]{
			Ref:     ctx.ref,
			Weight:  ctx.weight,
			score:   in.def.Zero(),
			matches: in.matches.NewList(),
		}
		in.totals[ctx.ref] = total
	}
	m.totalEntry = total.matches.Add(m)
	total.score = total.score.Add(impact)

	m.indictmentEntries = make([]elist.Entry, len(indicted))
	for i, obj := range indicted {
		ind, ok := in.indictments[obj]
		if !ok {
			ind = &Indictment[S]{
				Object:  obj,
				score:   in.def.Zero(),
				matches: in.matches.NewList(),
			}
			in.indictments[obj] = ind
		}
		m.indictmentEntries[i] = ind.matches.Add(m)
		ind.score = ind.score.Add(impact)
	}
	return m
}

func (in *Inliner[S, N]) removeMatch(m *ConstraintMatch[S]) {
	total := in.totals[m.Ref]
	total.matches.Remove(m.totalEntry)
	total.score = total.score.Subtract(m.Score)
	if total.matches.Len() == 0 {
		delete(in.totals, m.Ref)
	}
	for i, obj := range m.Indicted {
		ind := in.indictments[obj]
		ind.matches.Remove(m.indictmentEntries[i])
		ind.score = ind.score.Subtract(m.Score)
		if ind.matches.Len() == 0 {
			delete(in.indictments, obj)
		}
	}
}

// indictable reports whether obj can key an indictment.
func indictable(obj any) bool {
	return obj != nil && reflect.ValueOf(obj).Comparable()
}

// distinct drops duplicates and the objects that cannot be indicted. A
// collected []any or set stays in the match's facts but blames nothing.
func distinct(objs []any) []any {
	out := make([]any, 0, len(objs))
	for _, o := range objs {
		if !indictable(o) {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == o {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, o)
		}
	}
	return out
}
