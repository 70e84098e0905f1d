package network

// deriveInput keeps exactly one output tuple per input tuple. The output
// facts are recomputed from the input on every insert and update. Map nodes
// use one input; concat nodes use two inputs sharing one queue.
type deriveInput struct {
	name   string
	slot   int
	derive func(*Tuple) []any
	layout *storeLayout
	queue  *propagationQueue[*Tuple]
}

func (in *deriveInput) insert(t *Tuple) {
	if t.store[in.slot] != nil {
		panic(stateError(in.name, t, t.state, "tuple inserted twice"))
	}
	out := newTuple(in.derive(t), in.layout.size)
	t.store[in.slot] = out
	in.queue.insert(out)
}

func (in *deriveInput) update(t *Tuple) {
	out, _ := t.store[in.slot].(*Tuple)
	if out == nil {
		in.insert(t)
		return
	}
	out.facts = in.derive(t)
	in.queue.updateActive(out)
}

func (in *deriveInput) retract(t *Tuple) {
	out, _ := t.store[in.slot].(*Tuple)
	if out == nil {
		return
	}
	t.store[in.slot] = nil
	in.queue.retractActive(out)
}

// mapNode turns each input tuple into a tuple of mapped values.
type mapNode struct {
	input *deriveInput
	queue *propagationQueue[*Tuple]
}

func newMapNode(name string, slot int, mappings []func(*Tuple) any, layout *storeLayout, stats *settleStats) *mapNode {
	q := newPropagationQueue[*Tuple](name, stats, false, nil)
	return &mapNode{
		input: &deriveInput{
			name: name,
			slot: slot,
			derive: func(t *Tuple) []any {
				facts := make([]any, len(mappings))
				for i, m := range mappings {
					facts[i] = m(t)
				}
				return facts
			},
			layout: layout,
			queue:  q,
		},
		queue: q,
	}
}

func (n *mapNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *mapNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *mapNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *mapNode) setNext(l tupleLifecycle) { n.queue.next = l }

// concatNode emits the union of two streams. Both sides are padded with nil
// facts up to the larger arity. A tuple reaching both inputs produces two
// outputs.
type concatNode struct {
	left, right *deriveInput
	queue       *propagationQueue[*Tuple]
}

func newConcatNode(name string, leftSlot, rightSlot, arity int, layout *storeLayout, stats *settleStats) *concatNode {
	q := newPropagationQueue[*Tuple](name, stats, false, nil)
	pad := func(t *Tuple) []any {
		facts := make([]any, arity)
		copy(facts, t.facts)
		return facts
	}
	return &concatNode{
		left:  &deriveInput{name: name, slot: leftSlot, derive: pad, layout: layout, queue: q},
		right: &deriveInput{name: name, slot: rightSlot, derive: pad, layout: layout, queue: q},
		queue: q,
	}
}

func (n *concatNode) propagateRetracts()       { n.queue.propagateRetracts() }
func (n *concatNode) propagateUpdates()        { n.queue.propagateUpdates() }
func (n *concatNode) propagateInserts()        { n.queue.propagateInserts() }
func (n *concatNode) setNext(l tupleLifecycle) { n.queue.next = l }
