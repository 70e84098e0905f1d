package network

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation marks misuse of the engine: lifecycle calls out
	// of order, a tuple inserted twice into a node, a corrupted index entry.
	ErrContractViolation = errors.New("network: contract violation")

	// ErrSessionBroken is returned by every call on a session after a
	// propagation failed. The node state can no longer be trusted.
	ErrSessionBroken = errors.New("network: session is broken")

	// ErrMatchTrackingDisabled is returned by explanation queries on a
	// session built without constraint match tracking.
	ErrMatchTrackingDisabled = errors.New("network: constraint match tracking is disabled")

	// ErrInvalidStream reports a malformed stream declaration.
	ErrInvalidStream = errors.New("network: invalid stream")

	// ErrDuplicateConstraint reports two constraints with the same id.
	ErrDuplicateConstraint = errors.New("network: duplicate constraint")

	// ErrInvalidWeight reports a constraint weight override that does not
	// fit the network: an unknown constraint or a value of the wrong type.
	ErrInvalidWeight = errors.New("network: invalid constraint weight")

	// ErrNegativeWeight rejects a penalize or reward weight below zero.
	ErrNegativeWeight = errors.New("network: negative constraint weight")

	// ErrNegativeMatchWeight rejects a penalize or reward match weight below
	// zero.
	ErrNegativeMatchWeight = errors.New("network: negative match weight")

	// ErrInvalidRange rejects a ConnectedRanges member that does not end
	// after it starts.
	ErrInvalidRange = errors.New("network: range does not end after it starts")
)

// StateError is raised when a node finds a tuple in a state it can never be
// in when the engine is used correctly.
type StateError struct {
	Node  string
	State TupleState
	Tuple string
	Msg   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (tuple %s in state %s)", e.Node, e.Msg, e.Tuple, e.State)
}

func (e *StateError) Unwrap() error { return ErrContractViolation }

func stateError(node string, t *Tuple, state TupleState, msg string) *StateError {
	desc := "<nil>"
	if t != nil {
		desc = t.String()
	}
	return &StateError{Node: node, State: state, Tuple: desc, Msg: msg}
}

// ImpactError wraps a failure of user code while a constraint scored a
// tuple.
type ImpactError struct {
	Constraint string
	Facts      []any
	Cause      error
}

func (e *ImpactError) Error() string {
	return fmt.Sprintf("constraint %s: impact failed for tuple %v: %v", e.Constraint, e.Facts, e.Cause)
}

func (e *ImpactError) Unwrap() error { return e.Cause }

// PropagationError wraps a failure inside the node network, usually user
// code such as a filter, a key mapping or a collector. A Go runtime fault
// (an index out of range, a nil dereference) is wrapped too, though it may
// also come from the engine; errors.As with a runtime.Error tells them apart
// from plain user errors.
type PropagationError struct {
	Layer int
	Cause error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed in layer %d: %v", e.Layer, e.Cause)
}

func (e *PropagationError) Unwrap() error { return e.Cause }

// panicError turns a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
