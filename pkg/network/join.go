package network

import (
	"github.com/gitrdm/gokanscore/internal/elist"
)

const (
	sideLeft = iota
	sideRight
)

// joinSide is the state a join node keeps in each input tuple: its key, its
// index entry and the outputs it currently takes part in.
type joinSide struct {
	props IndexProperties
	entry elist.Entry
	outs  *elist.List[*Tuple]
}

// joinLink is stored in every output tuple. The entries locate the output in
// the out lists of both of its inputs.
type joinLink struct {
	tuples  [2]*Tuple
	entries [2]elist.Entry
}

// joinNode produces one output tuple per matching (left, right) pair. With
// at least one indexing joiner both sides are indexed by key; otherwise
// every tuple is matched against the whole opposite side.
type joinNode struct {
	name    string
	joiners joinerSet
	inputs  [2]*joinInput
	outSlot int
	layout  *storeLayout
	outs    *elist.Arena[*Tuple]
	queue   *propagationQueue[*Tuple]
}

// joinInput is one side of a join node.
type joinInput struct {
	node  *joinNode
	side  int
	slot  int
	index indexer[*Tuple]
	props func(*Tuple) IndexProperties
}

func newJoinNode(name string, joiners joinerSet, leftSlot, rightSlot, outSlot int, layout *storeLayout, stats *settleStats) *joinNode {
	n := &joinNode{
		name:    name,
		joiners: joiners,
		outSlot: outSlot,
		layout:  layout,
		outs:    elist.NewArena[*Tuple](64),
		queue:   newPropagationQueue[*Tuple](name, stats, false, nil),
	}
	tuples := elist.NewArena[*Tuple](64)
	n.inputs[sideLeft] = &joinInput{
		node:  n,
		side:  sideLeft,
		slot:  leftSlot,
		index: newIndexerFactory(tuples, joiners.indexing, false)(),
		props: joiners.leftProperties,
	}
	n.inputs[sideRight] = &joinInput{
		node:  n,
		side:  sideRight,
		slot:  rightSlot,
		index: newIndexerFactory(tuples, joiners.indexing, true)(),
		props: joiners.rightProperties,
	}
	return n
}

func (n *joinNode) left() *joinInput  { return n.inputs[sideLeft] }
func (n *joinNode) right() *joinInput { return n.inputs[sideRight] }

func (n *joinNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *joinNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *joinNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *joinNode) setNext(l tupleLifecycle) { n.queue.next = l }

func (in *joinInput) other() *joinInput { return in.node.inputs[1-in.side] }

// pair orders t and a tuple of the opposite side as (left, right).
func (in *joinInput) pair(t, o *Tuple) (*Tuple, *Tuple) {
	if in.side == sideLeft {
		return t, o
	}
	return o, t
}

func (in *joinInput) state(t *Tuple) *joinSide {
	s, _ := t.store[in.slot].(*joinSide)
	return s
}

func (in *joinInput) insert(t *Tuple) {
	if t.store[in.slot] != nil {
		panic(stateError(in.node.name, t, t.state, "tuple inserted twice"))
	}
	props := in.props(t)
	s := &joinSide{props: props, outs: in.node.outs.NewList()}
	s.entry = in.index.put(props, t)
	t.store[in.slot] = s
	in.matchAll(t, s)
}

// matchAll creates an output for every matching tuple on the other side.
func (in *joinInput) matchAll(t *Tuple, s *joinSide) {
	in.other().index.forEach(s.props, func(o *Tuple) {
		l, r := in.pair(t, o)
		if in.node.joiners.test(l, r) {
			in.node.insertOut(l, r)
		}
	})
}

func (in *joinInput) update(t *Tuple) {
	s := in.state(t)
	if s == nil {
		in.insert(t)
		return
	}
	n := in.node
	props := in.props(t)
	if !props.equal(s.props) {
		in.index.remove(s.props, s.entry)
		n.retractOuts(s)
		s.props = props
		s.entry = in.index.put(props, t)
		in.matchAll(t, s)
		return
	}
	if !n.joiners.filtering() {
		s.outs.ForEach(func(_ elist.Entry, out *Tuple) {
			n.updateOut(out)
		})
		return
	}
	// Same key, but the filter must be re-tested against every candidate.
	existing := make(map[*Tuple]*Tuple, s.outs.Len())
	s.outs.ForEach(func(_ elist.Entry, out *Tuple) {
		existing[n.link(out).tuples[1-in.side]] = out
	})
	in.other().index.forEach(props, func(o *Tuple) {
		l, r := in.pair(t, o)
		out, had := existing[o]
		switch pass := n.joiners.test(l, r); {
		case pass && had:
			n.updateOut(out)
		case pass:
			n.insertOut(l, r)
		case had:
			n.retractOut(out)
		}
	})
}

func (in *joinInput) retract(t *Tuple) {
	s := in.state(t)
	if s == nil {
		return
	}
	in.index.remove(s.props, s.entry)
	in.node.retractOuts(s)
	t.store[in.slot] = nil
}

func (n *joinNode) link(out *Tuple) *joinLink {
	return out.store[n.outSlot].(*joinLink)
}

func (n *joinNode) insertOut(l, r *Tuple) {
	out := newTuple(joinFacts(l, r), n.layout.size)
	link := &joinLink{tuples: [2]*Tuple{l, r}}
	link.entries[sideLeft] = n.left().state(l).outs.Add(out)
	link.entries[sideRight] = n.right().state(r).outs.Add(out)
	out.store[n.outSlot] = link
	n.queue.insert(out)
}

// updateOut refreshes the facts of out, since either input may carry new
// facts (group and map outputs do), and queues an update.
func (n *joinNode) updateOut(out *Tuple) {
	link := n.link(out)
	out.facts = joinFacts(link.tuples[sideLeft], link.tuples[sideRight])
	n.queue.updateActive(out)
}

func (n *joinNode) retractOut(out *Tuple) {
	link := n.link(out)
	for side, t := range link.tuples {
		n.inputs[side].state(t).outs.Remove(link.entries[side])
	}
	n.queue.retractActive(out)
}

func (n *joinNode) retractOuts(s *joinSide) {
	s.outs.ForEach(func(_ elist.Entry, out *Tuple) {
		n.retractOut(out)
	})
}

func joinFacts(l, r *Tuple) []any {
	facts := make([]any, 0, len(l.facts)+len(r.facts))
	facts = append(facts, l.facts...)
	return append(facts, r.facts...)
}
