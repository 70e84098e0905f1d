package network

// group is one partition of a group node. It carries its output tuple
// through the node's queue; the output facts are the key (if the node has
// one) followed by one result per collector, filled in just before the
// tuple is propagated.
type group struct {
	key        any
	containers []Container
	out        *Tuple
	members    int
}

func (g *group) carried() *Tuple              { return g.out }
func (g *group) carrierState() TupleState     { return g.out.state }
func (g *group) setCarrierState(s TupleState) { g.out.state = s }
func (g *group) dirtyPosition() int           { return g.out.dirty }
func (g *group) setDirtyPosition(p int)       { g.out.dirty = p }

// groupMember is stored in each input tuple: the group it was accumulated
// into and the undo of every collector.
type groupMember struct {
	group *group
	undos []func()
}

// groupNode partitions its input by key. A group exists exactly while it
// has members.
type groupNode struct {
	name       string
	key        func(*Tuple) any
	collectors []Collector
	slot       int
	layout     *storeLayout
	groups     map[any]*group
	queue      *propagationQueue[*group]
}

// newGroupNode creates a group node. A nil key puts every tuple in a single
// group.
func newGroupNode(name string, key func(*Tuple) any, collectors []Collector, slot int, layout *storeLayout, stats *settleStats) *groupNode {
	n := &groupNode{
		name:       name,
		key:        key,
		collectors: collectors,
		slot:       slot,
		layout:     layout,
		groups:     make(map[any]*group),
	}
	n.queue = newPropagationQueue(name, stats, false, n.prepare)
	return n
}

func (n *groupNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *groupNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *groupNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *groupNode) setNext(l tupleLifecycle) { n.queue.next = l }

func (n *groupNode) prepare(g *group) {
	facts := make([]any, 0, len(g.containers)+1)
	if n.key != nil {
		facts = append(facts, g.key)
	}
	for _, c := range g.containers {
		facts = append(facts, c.Result())
	}
	g.out.facts = facts
}

func (n *groupNode) keyOf(t *Tuple) any {
	if n.key == nil {
		return nil
	}
	return n.key(t)
}

func (n *groupNode) insert(t *Tuple) {
	if t.store[n.slot] != nil {
		panic(stateError(n.name, t, t.state, "tuple inserted twice"))
	}
	n.join(t, n.keyOf(t))
}

// join accumulates t into the group of key, creating the group if needed.
func (n *groupNode) join(t *Tuple, key any) {
	g, ok := n.groups[key]
	if !ok {
		g = &group{key: key, containers: make([]Container, len(n.collectors))}
		for i, c := range n.collectors {
			g.containers[i] = c.NewContainer()
		}
		g.out = newTuple(nil, n.layout.size)
		n.groups[key] = g
	}
	m := &groupMember{group: g}
	m.undos = n.accumulate(g, t)
	g.members++
	t.store[n.slot] = m
	if ok {
		n.queue.updateActive(g)
	} else {
		n.queue.insert(g)
	}
}

func (n *groupNode) accumulate(g *group, t *Tuple) []func() {
	undos := make([]func(), len(g.containers))
	for i, c := range g.containers {
		undos[i] = c.Accumulate(t)
	}
	return undos
}

func undoAll(undos []func()) {
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func (n *groupNode) update(t *Tuple) {
	m, _ := t.store[n.slot].(*groupMember)
	if m == nil {
		n.insert(t)
		return
	}
	key := n.keyOf(t)
	if key == m.group.key {
		undoAll(m.undos)
		m.undos = n.accumulate(m.group, t)
		n.queue.updateActive(m.group)
		return
	}
	n.leave(t, m)
	n.join(t, key)
}

func (n *groupNode) retract(t *Tuple) {
	m, _ := t.store[n.slot].(*groupMember)
	if m == nil {
		return
	}
	n.leave(t, m)
}

// leave undoes the contribution of t. The last member leaving a group
// removes the group from the output.
func (n *groupNode) leave(t *Tuple, m *groupMember) {
	t.store[n.slot] = nil
	undoAll(m.undos)
	g := m.group
	g.members--
	if g.members > 0 {
		n.queue.updateActive(g)
		return
	}
	delete(n.groups, g.key)
	n.queue.retractActive(g)
}

// groupCount returns the number of live groups.
func (n *groupNode) groupCount() int { return len(n.groups) }
