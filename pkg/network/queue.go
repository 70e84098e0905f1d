package network

import (
	"github.com/bits-and-blooms/bitset"
)

// carrier is what a propagation queue tracks: an output tuple, or a structure
// owning one (an exists counter, a group). The carrier keeps its own
// lifecycle state and its position in the queue's dirty list.
type carrier interface {
	carried() *Tuple
	carrierState() TupleState
	setCarrierState(TupleState)
	dirtyPosition() int
	setDirtyPosition(int)
}

// propagator flushes a node's pending output downstream. The network calls
// the three phases in order; propagateInserts also resets the queue.
type propagator interface {
	propagateRetracts()
	propagateUpdates()
	propagateInserts()
}

// settleStats is shared by every queue of one network.
type settleStats struct {
	propagations int64
	peakQueue    int
}

// propagationQueue buffers the output transitions of one node until the
// network flushes its layer. Every carrier sits in the dirty list at most
// once, so repeated transitions collapse: update after insert stays an
// insert, retract after insert becomes an abort, insert after retract of a
// revivable carrier cancels the retract.
type propagationQueue[C carrier] struct {
	node      string
	dirty     []C
	retracts  *bitset.BitSet
	inserts   *bitset.BitSet
	next      tupleLifecycle
	prepare   func(C)
	revivable bool
	stats     *settleStats
}

// newPropagationQueue creates a queue. prepare, if set, runs before a carrier
// is inserted or updated downstream. Revivable carriers (exists counters)
// may be inserted again after dying; tuples may not.
func newPropagationQueue[C carrier](node string, stats *settleStats, revivable bool, prepare func(C)) *propagationQueue[C] {
	return &propagationQueue[C]{
		node:      node,
		retracts:  bitset.New(64),
		inserts:   bitset.New(64),
		next:      noopLifecycle{},
		prepare:   prepare,
		revivable: revivable,
		stats:     stats,
	}
}

func (q *propagationQueue[C]) makeDirty(c C) uint {
	pos := len(q.dirty)
	q.dirty = append(q.dirty, c)
	c.setDirtyPosition(pos)
	return uint(pos)
}

func (q *propagationQueue[C]) insert(c C) {
	state := c.carrierState()
	pos := c.dirtyPosition()
	switch {
	case pos < 0 && state == StateCreating:
		q.inserts.Set(q.makeDirty(c))
	case pos < 0 && state == StateDead:
		if !q.revivable {
			panic(stateError(q.node, c.carried(), state, "a dead tuple cannot be revived"))
		}
		q.inserts.Set(q.makeDirty(c))
	case pos >= 0 && state == StateAborting:
		q.retracts.Clear(uint(pos))
		q.inserts.Set(uint(pos))
	default:
		panic(stateError(q.node, c.carried(), state, "cannot insert a tuple that is already propagated or queued"))
	}
	c.setCarrierState(StateCreating)
}

func (q *propagationQueue[C]) update(c C) {
	state := c.carrierState()
	pos := c.dirtyPosition()
	if pos < 0 {
		if state != StateOK {
			panic(stateError(q.node, c.carried(), state, "only a propagated tuple can be updated"))
		}
		q.makeDirty(c)
		c.setCarrierState(StateUpdating)
		return
	}
	switch state {
	case StateCreating, StateUpdating:
		// already queued; the latest facts go out with it
	case StateDying:
		q.retracts.Clear(uint(pos))
		c.setCarrierState(StateUpdating)
	case StateAborting:
		q.retracts.Clear(uint(pos))
		q.inserts.Set(uint(pos))
		c.setCarrierState(StateCreating)
	default:
		panic(stateError(q.node, c.carried(), state, "cannot update"))
	}
}

// retract queues the carrier for retraction. state is StateAborting when the
// carrier was never propagated, StateDying otherwise.
func (q *propagationQueue[C]) retract(c C, state TupleState) {
	if c.carrierState() == state {
		return
	}
	pos := c.dirtyPosition()
	if pos < 0 {
		q.retracts.Set(q.makeDirty(c))
	} else {
		q.inserts.Clear(uint(pos))
		q.retracts.Set(uint(pos))
	}
	c.setCarrierState(state)
}

// retractActive retracts c according to its current state.
func (q *propagationQueue[C]) retractActive(c C) {
	switch state := c.carrierState(); state {
	case StateCreating:
		q.retract(c, StateAborting)
	case StateOK, StateUpdating:
		q.retract(c, StateDying)
	default:
		panic(stateError(q.node, c.carried(), state, "cannot retract an inactive tuple"))
	}
}

// updateActive queues an update unless one is pending already.
func (q *propagationQueue[C]) updateActive(c C) {
	switch state := c.carrierState(); state {
	case StateOK:
		q.update(c)
	case StateCreating, StateUpdating:
	default:
		panic(stateError(q.node, c.carried(), state, "cannot update an inactive tuple"))
	}
}

func (q *propagationQueue[C]) propagateRetracts() {
	for i, ok := q.retracts.NextSet(0); ok; i, ok = q.retracts.NextSet(i + 1) {
		c := q.dirty[i]
		if c.carrierState() == StateDying {
			q.next.retract(c.carried())
			q.stats.propagations++
		}
		c.setCarrierState(StateDead)
	}
}

func (q *propagationQueue[C]) propagateUpdates() {
	for i, c := range q.dirty {
		if q.retracts.Test(uint(i)) || q.inserts.Test(uint(i)) {
			continue
		}
		if q.prepare != nil {
			q.prepare(c)
		}
		q.next.update(c.carried())
		c.setCarrierState(StateOK)
		q.stats.propagations++
	}
}

func (q *propagationQueue[C]) propagateInserts() {
	for i, ok := q.inserts.NextSet(0); ok; i, ok = q.inserts.NextSet(i + 1) {
		c := q.dirty[i]
		if q.prepare != nil {
			q.prepare(c)
		}
		q.next.insert(c.carried())
		c.setCarrierState(StateOK)
		q.stats.propagations++
	}
	q.reset()
}

func (q *propagationQueue[C]) reset() {
	if len(q.dirty) > q.stats.peakQueue {
		q.stats.peakQueue = len(q.dirty)
	}
	for _, c := range q.dirty {
		c.setDirtyPosition(-1)
	}
	clear(q.dirty)
	q.dirty = q.dirty[:0]
	q.retracts.ClearAll()
	q.inserts.ClearAll()
}

func (q *propagationQueue[C]) pending() int { return len(q.dirty) }
