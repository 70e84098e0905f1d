package network

import (
	"reflect"
)

// forEachNode is the root of the network for one declared fact type. It owns
// one tuple per live fact that passes its optional predicate.
type forEachNode struct {
	name   string
	typ    reflect.Type
	test   func(any) bool
	layout *storeLayout
	tuples map[any]*Tuple
	queue  *propagationQueue[*Tuple]
}

func newForEachNode(name string, typ reflect.Type, test func(any) bool, layout *storeLayout, stats *settleStats) *forEachNode {
	return &forEachNode{
		name:   name,
		typ:    typ,
		test:   test,
		layout: layout,
		tuples: make(map[any]*Tuple),
		queue:  newPropagationQueue[*Tuple](name, stats, false, nil),
	}
}

// accepts reports whether facts of type t are routed to this node.
func (n *forEachNode) accepts(t reflect.Type) bool {
	if n.typ.Kind() == reflect.Interface {
		return t.Implements(n.typ)
	}
	return t == n.typ
}

func (n *forEachNode) passes(fact any) bool {
	return n.test == nil || n.test(fact)
}

func (n *forEachNode) insertFact(fact any) {
	if _, ok := n.tuples[fact]; ok {
		panic(stateError(n.name, n.tuples[fact], n.tuples[fact].state, "fact inserted twice"))
	}
	if !n.passes(fact) {
		return
	}
	t := newTuple([]any{fact}, n.layout.size)
	n.tuples[fact] = t
	n.queue.insert(t)
}

func (n *forEachNode) updateFact(fact any) {
	t, ok := n.tuples[fact]
	switch {
	case ok && n.passes(fact):
		n.queue.updateActive(t)
	case ok:
		delete(n.tuples, fact)
		n.queue.retractActive(t)
	case n.passes(fact):
		t = newTuple([]any{fact}, n.layout.size)
		n.tuples[fact] = t
		n.queue.insert(t)
	}
}

func (n *forEachNode) retractFact(fact any) {
	t, ok := n.tuples[fact]
	if !ok {
		return
	}
	delete(n.tuples, fact)
	n.queue.retractActive(t)
}

func (n *forEachNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *forEachNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *forEachNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *forEachNode) setNext(l tupleLifecycle) { n.queue.next = l }
