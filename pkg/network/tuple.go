package network

import (
	"fmt"
	"strings"
)

// TupleState is the propagation lifecycle of a tuple or exists counter.
type TupleState uint8

const (
	// StateCreating: queued for insertion downstream, not yet propagated.
	StateCreating TupleState = iota
	// StateOK: propagated and stable.
	StateOK
	// StateUpdating: propagated, an update is queued.
	StateUpdating
	// StateDying: propagated, a retraction is queued.
	StateDying
	// StateDead: retracted downstream. Terminal for tuples.
	StateDead
	// StateAborting: retracted before its insertion was ever propagated.
	StateAborting
)

var stateNames = [...]string{"CREATING", "OK", "UPDATING", "DYING", "DEAD", "ABORTING"}

func (s TupleState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("TupleState(%d)", s)
}

// IsActive reports whether downstream nodes hold, or are about to hold, the
// tuple.
func (s TupleState) IsActive() bool {
	return s == StateCreating || s == StateOK || s == StateUpdating
}

// Tuple is the record propagated through the network: a fixed-arity list of
// borrowed facts plus per-node storage. Tuples are compared by identity.
type Tuple struct {
	facts []any
	store []any
	state TupleState
	dirty int
}

func newTuple(facts []any, storeSize int) *Tuple {
	return &Tuple{
		facts: facts,
		store: make([]any, storeSize),
		state: StateCreating,
		dirty: -1,
	}
}

// Arity returns the number of facts.
func (t *Tuple) Arity() int { return len(t.facts) }

// Fact returns fact i. Nil is a legal fact value, e.g. in padded concat
// tuples.
func (t *Tuple) Fact(i int) any { return t.facts[i] }

// Facts returns a copy of the facts.
func (t *Tuple) Facts() []any { return append([]any(nil), t.facts...) }

// State returns the lifecycle state as seen by the node that created the
// tuple.
func (t *Tuple) State() TupleState { return t.state }

func (t *Tuple) String() string {
	parts := make([]string, len(t.facts))
	for i, f := range t.facts {
		parts[i] = fmt.Sprint(f)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (t *Tuple) carried() *Tuple              { return t }
func (t *Tuple) carrierState() TupleState     { return t.state }
func (t *Tuple) setCarrierState(s TupleState) { t.state = s }
func (t *Tuple) dirtyPosition() int           { return t.dirty }
func (t *Tuple) setDirtyPosition(p int)       { t.dirty = p }

// FactAs returns fact i converted to T. A nil fact yields the zero T; a fact
// of another type panics.
func FactAs[T any](t *Tuple, i int) T {
	f := t.facts[i]
	if f == nil {
		var zero T
		return zero
	}
	return f.(T)
}

// Uni adapts a function of the first fact to a tuple function.
func Uni[A, R any](fn func(A) R) func(*Tuple) R {
	return func(t *Tuple) R { return fn(FactAs[A](t, 0)) }
}

// Bi adapts a function of the first two facts to a tuple function.
func Bi[A, B, R any](fn func(A, B) R) func(*Tuple) R {
	return func(t *Tuple) R { return fn(FactAs[A](t, 0), FactAs[B](t, 1)) }
}

// Tri adapts a function of the first three facts to a tuple function.
func Tri[A, B, C, R any](fn func(A, B, C) R) func(*Tuple) R {
	return func(t *Tuple) R { return fn(FactAs[A](t, 0), FactAs[B](t, 1), FactAs[C](t, 2)) }
}

// Quad adapts a function of the first four facts to a tuple function.
func Quad[A, B, C, D, R any](fn func(A, B, C, D) R) func(*Tuple) R {
	return func(t *Tuple) R {
		return fn(FactAs[A](t, 0), FactAs[B](t, 1), FactAs[C](t, 2), FactAs[D](t, 3))
	}
}

// storeLayout counts the storage slots reserved in tuples created by one
// node. Slots are reserved while the network is assembled and never change
// afterwards.
type storeLayout struct {
	size int
}

func (l *storeLayout) reserve() int {
	l.size++
	return l.size - 1
}
