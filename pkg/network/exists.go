package network

import (
	"github.com/gitrdm/gokanscore/internal/elist"
)

// existsCounter counts the right tuples matching one left tuple. It is the
// carrier of the left tuple through the exists node's queue, so its state is
// the state of the left tuple as seen downstream.
type existsCounter struct {
	left  *Tuple
	count int
	state TupleState
	dirty int
}

func (c *existsCounter) carried() *Tuple              { return c.left }
func (c *existsCounter) carrierState() TupleState     { return c.state }
func (c *existsCounter) setCarrierState(s TupleState) { c.state = s }
func (c *existsCounter) dirtyPosition() int           { return c.dirty }
func (c *existsCounter) setDirtyPosition(p int)       { c.dirty = p }

// filteringTracker records that one (left, right) pair passed the filtering
// joiners. It sits in the tracker lists of both tuples so either side can
// drop its pairs without re-testing them.
type filteringTracker struct {
	counter    *existsCounter
	right      *Tuple
	leftEntry  elist.Entry
	rightEntry elist.Entry
}

type existsLeft struct {
	counter  *existsCounter
	props    IndexProperties
	entry    elist.Entry
	trackers *elist.List[*filteringTracker]
}

type existsRight struct {
	props    IndexProperties
	entry    elist.Entry
	trackers *elist.List[*filteringTracker]
}

// existsNode lets a left tuple through while a matching right tuple exists
// (shouldExist) or while none does. Only crossings between zero and a
// positive count change what downstream sees.
type existsNode struct {
	name        string
	shouldExist bool
	joiners     joinerSet
	leftSlot    int
	rightSlot   int
	leftIndex   indexer[*existsCounter]
	rightIndex  indexer[*Tuple]
	trackers    *elist.Arena[*filteringTracker]
	queue       *propagationQueue[*existsCounter]
}

func newExistsNode(name string, shouldExist bool, joiners joinerSet, leftSlot, rightSlot int, stats *settleStats) *existsNode {
	return &existsNode{
		name:        name,
		shouldExist: shouldExist,
		joiners:     joiners,
		leftSlot:    leftSlot,
		rightSlot:   rightSlot,
		leftIndex:   newIndexerFactory(elist.NewArena[*existsCounter](64), joiners.indexing, false)(),
		rightIndex:  newIndexerFactory(elist.NewArena[*Tuple](64), joiners.indexing, true)(),
		trackers:    elist.NewArena[*filteringTracker](64),
		queue:       newPropagationQueue[*existsCounter](name, stats, true, nil),
	}
}

func (n *existsNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *existsNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *existsNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *existsNode) setNext(l tupleLifecycle) { n.queue.next = l }

func (n *existsNode) passes(c *existsCounter) bool {
	return (c.count > 0) == n.shouldExist
}

// leftInput and rightInput adapt the two sides to tupleLifecycle.
func (n *existsNode) leftInput() tupleLifecycle  { return existsLeftInput{n} }
func (n *existsNode) rightInput() tupleLifecycle { return existsRightInput{n} }

type existsLeftInput struct{ n *existsNode }

func (in existsLeftInput) insert(t *Tuple)  { in.n.insertLeft(t) }
func (in existsLeftInput) update(t *Tuple)  { in.n.updateLeft(t) }
func (in existsLeftInput) retract(t *Tuple) { in.n.retractLeft(t) }

type existsRightInput struct{ n *existsNode }

func (in existsRightInput) insert(t *Tuple)  { in.n.insertRight(t) }
func (in existsRightInput) update(t *Tuple)  { in.n.updateRight(t) }
func (in existsRightInput) retract(t *Tuple) { in.n.retractRight(t) }

func (n *existsNode) insertLeft(t *Tuple) {
	if t.store[n.leftSlot] != nil {
		panic(stateError(n.name, t, t.state, "left tuple inserted twice"))
	}
	c := &existsCounter{left: t, state: StateDead, dirty: -1}
	s := &existsLeft{counter: c, props: n.joiners.leftProperties(t)}
	if n.joiners.filtering() {
		s.trackers = n.trackers.NewList()
	}
	s.entry = n.leftIndex.put(s.props, c)
	t.store[n.leftSlot] = s
	n.countLeft(s)
	if n.passes(c) {
		n.queue.insert(c)
	}
}

// countLeft sets the counter of s from the right tuples currently matching
// it, tracking the pairs when the node filters.
func (n *existsNode) countLeft(s *existsLeft) {
	c := s.counter
	if !n.joiners.filtering() {
		c.count = n.rightIndex.size(s.props)
		return
	}
	c.count = 0
	n.rightIndex.forEach(s.props, func(r *Tuple) {
		if n.joiners.test(c.left, r) {
			n.track(s, r)
			c.count++
		}
	})
}

func (n *existsNode) updateLeft(t *Tuple) {
	s, _ := t.store[n.leftSlot].(*existsLeft)
	if s == nil {
		n.insertLeft(t)
		return
	}
	props := n.joiners.leftProperties(t)
	if !props.equal(s.props) {
		n.leftIndex.remove(s.props, s.entry)
		s.props = props
		s.entry = n.leftIndex.put(props, s.counter)
		n.untrackLeft(s)
		n.countLeft(s)
	} else if n.joiners.filtering() {
		n.untrackLeft(s)
		n.countLeft(s)
	}
	if n.passes(s.counter) {
		n.insertOrUpdate(s.counter)
	} else {
		n.retractCounter(s.counter)
	}
}

func (n *existsNode) retractLeft(t *Tuple) {
	s, _ := t.store[n.leftSlot].(*existsLeft)
	if s == nil {
		return
	}
	t.store[n.leftSlot] = nil
	n.leftIndex.remove(s.props, s.entry)
	if s.trackers != nil {
		n.untrackLeft(s)
	}
	n.retractCounter(s.counter)
}

func (n *existsNode) insertRight(t *Tuple) {
	if t.store[n.rightSlot] != nil {
		panic(stateError(n.name, t, t.state, "right tuple inserted twice"))
	}
	s := &existsRight{props: n.joiners.rightProperties(t)}
	if n.joiners.filtering() {
		s.trackers = n.trackers.NewList()
	}
	s.entry = n.rightIndex.put(s.props, t)
	t.store[n.rightSlot] = s
	n.matchRight(t, s)
}

// matchRight counts t in every left counter it matches.
func (n *existsNode) matchRight(t *Tuple, s *existsRight) {
	n.leftIndex.forEach(s.props, func(c *existsCounter) {
		if !n.joiners.filtering() {
			n.increment(c)
			return
		}
		if n.joiners.test(c.left, t) {
			n.track(n.leftState(c), t)
			n.increment(c)
		}
	})
}

func (n *existsNode) updateRight(t *Tuple) {
	s, _ := t.store[n.rightSlot].(*existsRight)
	if s == nil {
		n.insertRight(t)
		return
	}
	props := n.joiners.rightProperties(t)
	if !props.equal(s.props) {
		n.rightIndex.remove(s.props, s.entry)
		n.unmatchRight(s)
		s.props = props
		s.entry = n.rightIndex.put(props, t)
		n.matchRight(t, s)
		return
	}
	if !n.joiners.filtering() {
		// Same key and no filter: every count stays the same.
		return
	}
	tracked := make(map[*existsCounter]elist.Entry, s.trackers.Len())
	s.trackers.ForEach(func(e elist.Entry, tr *filteringTracker) {
		tracked[tr.counter] = e
	})
	n.leftIndex.forEach(props, func(c *existsCounter) {
		e, had := tracked[c]
		switch pass := n.joiners.test(c.left, t); {
		case pass && !had:
			n.track(n.leftState(c), t)
			n.increment(c)
		case !pass && had:
			n.untrack(s.trackers.Value(e))
			n.decrement(c)
		}
	})
}

func (n *existsNode) retractRight(t *Tuple) {
	s, _ := t.store[n.rightSlot].(*existsRight)
	if s == nil {
		return
	}
	n.rightIndex.remove(s.props, s.entry)
	// Untracking reads the slot, so it is cleared last.
	n.unmatchRight(s)
	t.store[n.rightSlot] = nil
}

// unmatchRight removes a right tuple from every counter it was counted in.
func (n *existsNode) unmatchRight(s *existsRight) {
	if !n.joiners.filtering() {
		n.leftIndex.forEach(s.props, n.decrement)
		return
	}
	s.trackers.ForEach(func(_ elist.Entry, tr *filteringTracker) {
		n.untrack(tr)
		n.decrement(tr.counter)
	})
}

func (n *existsNode) leftState(c *existsCounter) *existsLeft {
	return c.left.store[n.leftSlot].(*existsLeft)
}

func (n *existsNode) track(s *existsLeft, r *Tuple) {
	rs := r.store[n.rightSlot].(*existsRight)
	tr := &filteringTracker{counter: s.counter, right: r}
	tr.leftEntry = s.trackers.Add(tr)
	tr.rightEntry = rs.trackers.Add(tr)
}

func (n *existsNode) untrack(tr *filteringTracker) {
	n.leftState(tr.counter).trackers.Remove(tr.leftEntry)
	tr.right.store[n.rightSlot].(*existsRight).trackers.Remove(tr.rightEntry)
}

// untrackLeft drops every pair of s without touching its count.
func (n *existsNode) untrackLeft(s *existsLeft) {
	if s.trackers == nil {
		return
	}
	s.trackers.ForEach(func(_ elist.Entry, tr *filteringTracker) {
		tr.right.store[n.rightSlot].(*existsRight).trackers.Remove(tr.rightEntry)
	})
	s.trackers.Clear()
}

func (n *existsNode) increment(c *existsCounter) {
	c.count++
	if c.count != 1 {
		return
	}
	if n.shouldExist {
		n.insertCounter(c)
	} else {
		n.retractCounter(c)
	}
}

func (n *existsNode) decrement(c *existsCounter) {
	c.count--
	if c.count != 0 {
		return
	}
	if n.shouldExist {
		n.retractCounter(c)
	} else {
		n.insertCounter(c)
	}
}

// insertCounter makes a counter visible downstream again.
func (n *existsNode) insertCounter(c *existsCounter) {
	switch c.state {
	case StateDying:
		n.queue.update(c)
	case StateDead, StateAborting:
		n.queue.insert(c)
	default:
		panic(stateError(n.name, c.left, c.state, "counter crossed into passing while already visible"))
	}
}

func (n *existsNode) insertOrUpdate(c *existsCounter) {
	switch c.state {
	case StateOK, StateCreating, StateUpdating:
		n.queue.updateActive(c)
	default:
		n.insertCounter(c)
	}
}

func (n *existsNode) retractCounter(c *existsCounter) {
	switch c.state {
	case StateCreating:
		n.queue.retract(c, StateAborting)
	case StateOK, StateUpdating:
		n.queue.retract(c, StateDying)
	}
}
