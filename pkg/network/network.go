package network

import (
	"fmt"
	"log/slog"

	"github.com/gitrdm/gokanscore/pkg/inliner"
	"github.com/gitrdm/gokanscore/pkg/score"
)

// node is a network node owning a propagation queue.
type node interface {
	propagator
	setNext(tupleLifecycle)
}

// network is an assembled node graph. Nodes are grouped in layers: sources
// form layer 0, every other node sits one layer below its deepest parent.
// Filters have no node; they sit on the edges.
type network struct {
	sources []*forEachNode
	layers  [][]node
	stats   settleStats
	// layer being settled, reported when user code fails
	layer int
	nodes int
}

// settle flushes every queue, layer by layer. When it returns, every
// scorer has seen every mutation made so far.
func (n *network) settle() {
	for i, layer := range n.layers {
		n.layer = i
		if len(layer) == 1 {
			p := layer[0]
			p.propagateRetracts()
			p.propagateUpdates()
			p.propagateInserts()
			continue
		}
		for _, p := range layer {
			p.propagateRetracts()
		}
		for _, p := range layer {
			p.propagateUpdates()
		}
		for _, p := range layer {
			p.propagateInserts()
		}
	}
	n.layer = 0
}

// pending reports whether any source has queued work.
func (n *network) pending() bool {
	for _, s := range n.sources {
		if s.queue.pending() > 0 {
			return true
		}
	}
	return false
}

// takeStats returns the propagation statistics since the last call.
func (n *network) takeStats() settleStats {
	s := n.stats
	n.stats = settleStats{}
	return s
}

type inputKey struct {
	stream int
	side   int
}

// assembly turns the streams of a builder into a network.
type assembly[S score.Score[S], N score.Number[N]] struct {
	b         *Builder[S, N]
	inliner   *inliner.Inliner[S, N]
	net       *network
	needed    []bool
	layouts   []*storeLayout
	layerOf   []int
	consumers [][]inputKey
	inputs    map[inputKey]tupleLifecycle
	scorers   [][]tupleLifecycle
	nodes     []node
}

// resolveWeights applies overrides and checks every constraint weight. It
// returns the constraints that remain active and their effective weights:
// penalties are stored negated.
func resolveWeights[S score.Score[S], N score.Number[N]](b *Builder[S, N], cfg *sessionConfig, logger *slog.Logger) ([]*Constraint[S, N], map[inliner.ConstraintRef]S, error) {
	seen := make(map[string]bool, len(b.constraints))
	for _, c := range b.constraints {
		id := c.ref.ID()
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateConstraint, id)
		}
		seen[id] = true
	}
	for id := range cfg.weights {
		if !seen[id] {
			return nil, nil, fmt.Errorf("%w: override for unknown constraint %s", ErrInvalidWeight, id)
		}
	}

	var active []*Constraint[S, N]
	weights := make(map[inliner.ConstraintRef]S, len(b.constraints))
	for _, c := range b.constraints {
		id := c.ref.ID()
		w := c.weight
		if o, ok := cfg.weights[id]; ok {
			ow, ok := o.(S)
			if !ok {
				return nil, nil, fmt.Errorf("%w: override for %s has type %T, want %T", ErrInvalidWeight, id, o, w)
			}
			w = ow
		}
		levels, err := b.def.ToLevels(w)
		if err != nil {
			return nil, nil, fmt.Errorf("constraint %s: %w", id, err)
		}
		if w.IsZero() {
			logger.Warn("constraint disabled by zero weight", "constraint", id)
			continue
		}
		if c.kind != impactMixed {
			for _, l := range levels {
				if l.Sign() < 0 {
					return nil, nil, fmt.Errorf("%w: %s has weight %s", ErrNegativeWeight, id, w)
				}
			}
		}
		if c.kind == impactPenalize {
			w = w.Negate()
		}
		weights[c.ref] = w
		active = append(active, c)
	}
	return active, weights, nil
}

func assemble[S score.Score[S], N score.Number[N]](b *Builder[S, N], active []*Constraint[S, N], in *inliner.Inliner[S, N]) (*network, error) {
	n := len(b.streams)
	a := &assembly[S, N]{
		b:         b,
		inliner:   in,
		net:       &network{},
		needed:    make([]bool, n),
		layouts:   make([]*storeLayout, n),
		layerOf:   make([]int, n),
		consumers: make([][]inputKey, n),
		inputs:    make(map[inputKey]tupleLifecycle),
		scorers:   make([][]tupleLifecycle, n),
		nodes:     make([]node, n),
	}
	for _, c := range active {
		a.markNeeded(c.stream)
	}
	a.shape()
	a.buildNodes()
	if err := a.buildScorers(active); err != nil {
		return nil, err
	}
	a.wire()
	return a.net, nil
}

func (a *assembly[S, N]) markNeeded(s *Stream[S, N]) {
	if a.needed[s.id] {
		return
	}
	a.needed[s.id] = true
	for _, p := range s.parents {
		a.markNeeded(p)
	}
}

// shape assigns store layouts and layers, and records which stream consumes
// which. Parents always precede their children in b.streams.
func (a *assembly[S, N]) shape() {
	for _, s := range a.b.streams {
		if !a.needed[s.id] {
			continue
		}
		switch s.kind {
		case kindFilter, kindIfExists, kindIfNotExists:
			// The output tuples are the input tuples.
			a.layouts[s.id] = a.layouts[s.parents[0].id]
		default:
			a.layouts[s.id] = &storeLayout{}
		}
		switch s.kind {
		case kindForEach:
			a.layerOf[s.id] = 0
		case kindFilter:
			a.layerOf[s.id] = a.layerOf[s.parents[0].id]
		default:
			deepest := 0
			for _, p := range s.parents {
				deepest = max(deepest, a.layerOf[p.id])
			}
			a.layerOf[s.id] = deepest + 1
		}
		for side, p := range s.parents {
			a.consumers[p.id] = append(a.consumers[p.id], inputKey{stream: s.id, side: side})
		}
	}
}

func (a *assembly[S, N]) buildNodes() {
	stats := &a.net.stats
	for _, s := range a.b.streams {
		if !a.needed[s.id] {
			continue
		}
		name := s.String()
		layout := a.layouts[s.id]
		parentSlot := func(side int) int { return a.layouts[s.parents[side].id].reserve() }
		switch s.kind {
		case kindForEach:
			src := newForEachNode(fmt.Sprintf("%s(%s)", name, s.typ), s.typ, s.factTest, layout, stats)
			a.net.sources = append(a.net.sources, src)
			a.nodes[s.id] = src
		case kindJoin:
			if s.joiners.indexed() {
				name += "(indexed)"
			}
			j := newJoinNode(name, s.joiners, parentSlot(0), parentSlot(1), layout.reserve(), layout, stats)
			a.inputs[inputKey{s.id, sideLeft}] = j.left()
			a.inputs[inputKey{s.id, sideRight}] = j.right()
			a.nodes[s.id] = j
		case kindIfExists, kindIfNotExists:
			if s.joiners.indexed() {
				name += "(indexed)"
			}
			e := newExistsNode(name, s.kind == kindIfExists, s.joiners, parentSlot(0), parentSlot(1), stats)
			a.inputs[inputKey{s.id, sideLeft}] = e.leftInput()
			a.inputs[inputKey{s.id, sideRight}] = e.rightInput()
			a.nodes[s.id] = e
		case kindGroup:
			g := newGroupNode(name, s.key, s.collectors, parentSlot(0), layout, stats)
			a.inputs[inputKey{s.id, 0}] = g
			a.nodes[s.id] = g
		case kindConcat:
			c := newConcatNode(name, parentSlot(0), parentSlot(1), s.arity, layout, stats)
			a.inputs[inputKey{s.id, sideLeft}] = c.left
			a.inputs[inputKey{s.id, sideRight}] = c.right
			a.nodes[s.id] = c
		case kindMap:
			m := newMapNode(name, parentSlot(0), s.mappings, layout, stats)
			a.inputs[inputKey{s.id, 0}] = m.input
			a.nodes[s.id] = m
		}
	}
}

func (a *assembly[S, N]) buildScorers(active []*Constraint[S, N]) error {
	for _, c := range active {
		impacter, err := a.inliner.BuildWeightedScoreImpacter(c.ref, inliner.ImpacterOptions[S]{
			Justify: c.justify,
			Indict:  c.indict,
		})
		if err != nil {
			return err
		}
		slot := a.layouts[c.stream.id].reserve()
		sc := newScorerNode(c.ref.ID(), slot, impacter, c.weigh, c.kind != impactMixed)
		a.scorers[c.stream.id] = append(a.scorers[c.stream.id], sc)
	}
	return nil
}

// downstream is the lifecycle fed by the output of stream id: the inputs of
// its consumers, with filters applied on the way, and its scorers.
func (a *assembly[S, N]) downstream(id int) tupleLifecycle {
	var ls []tupleLifecycle
	for _, k := range a.consumers[id] {
		child := a.b.streams[k.stream]
		if child.kind == kindFilter {
			ls = append(ls, &conditionalLifecycle{test: child.test, next: a.downstream(child.id)})
			continue
		}
		ls = append(ls, a.inputs[k])
	}
	ls = append(ls, a.scorers[id]...)
	return lifecycleOf(ls)
}

func (a *assembly[S, N]) wire() {
	deepest := 0
	for id, nd := range a.nodes {
		if nd == nil {
			continue
		}
		nd.setNext(a.downstream(id))
		deepest = max(deepest, a.layerOf[id])
	}
	layers := make([][]node, deepest+1)
	for id, nd := range a.nodes {
		if nd == nil {
			continue
		}
		layers[a.layerOf[id]] = append(layers[a.layerOf[id]], nd)
		a.net.nodes++
	}
	for _, l := range layers {
		if len(l) > 0 {
			a.net.layers = append(a.net.layers, l)
		}
	}
}
