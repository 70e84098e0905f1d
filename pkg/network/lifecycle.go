package network

// tupleLifecycle receives the insert/update/retract stream of one input.
//
// Implementations tolerate an update of a tuple they never saw (treated as an
// insert) and a retract of a tuple they never saw (ignored): a filter in
// front of them does not track which tuples passed, so it forwards every
// update and retract it gets. An insert of a tuple that already holds state
// in the receiving node is a contract violation.
type tupleLifecycle interface {
	insert(t *Tuple)
	update(t *Tuple)
	retract(t *Tuple)
}

// conditionalLifecycle forwards tuples that pass test. A tuple that stops
// passing on update is retracted downstream.
type conditionalLifecycle struct {
	test func(*Tuple) bool
	next tupleLifecycle
}

func (c *conditionalLifecycle) insert(t *Tuple) {
	if c.test(t) {
		c.next.insert(t)
	}
}

func (c *conditionalLifecycle) update(t *Tuple) {
	if c.test(t) {
		c.next.update(t)
	} else {
		c.next.retract(t)
	}
}

func (c *conditionalLifecycle) retract(t *Tuple) {
	c.next.retract(t)
}

// fanOut feeds every consumer of a stream in declaration order.
type fanOut []tupleLifecycle

func (f fanOut) insert(t *Tuple) {
	for _, l := range f {
		l.insert(t)
	}
}

func (f fanOut) update(t *Tuple) {
	for _, l := range f {
		l.update(t)
	}
}

func (f fanOut) retract(t *Tuple) {
	for _, l := range f {
		l.retract(t)
	}
}

type noopLifecycle struct{}

func (noopLifecycle) insert(*Tuple)  {}
func (noopLifecycle) update(*Tuple)  {}
func (noopLifecycle) retract(*Tuple) {}

func lifecycleOf(ls []tupleLifecycle) tupleLifecycle {
	switch len(ls) {
	case 0:
		return noopLifecycle{}
	case 1:
		return ls[0]
	}
	return fanOut(ls)
}
