package network

import (
	"cmp"
	"fmt"

	"github.com/emirpasic/gods/utils"
	"github.com/shopspring/decimal"
)

// JoinerType is the relation a joiner requires between the left and right
// key.
type JoinerType uint8

const (
	JoinEqual JoinerType = iota
	JoinLessThan
	JoinLessOrEqual
	JoinGreaterThan
	JoinGreaterOrEqual
	JoinFiltering
)

func (j JoinerType) String() string {
	switch j {
	case JoinEqual:
		return "=="
	case JoinLessThan:
		return "<"
	case JoinLessOrEqual:
		return "<="
	case JoinGreaterThan:
		return ">"
	case JoinGreaterOrEqual:
		return ">="
	case JoinFiltering:
		return "filtering"
	}
	return fmt.Sprintf("JoinerType(%d)", j)
}

// flip returns the relation with both sides swapped.
func (j JoinerType) flip() JoinerType {
	switch j {
	case JoinLessThan:
		return JoinGreaterThan
	case JoinLessOrEqual:
		return JoinGreaterOrEqual
	case JoinGreaterThan:
		return JoinLessThan
	case JoinGreaterOrEqual:
		return JoinLessOrEqual
	}
	return j
}

// holds reports whether a comparison result c = compare(a, b) satisfies
// "a j b".
func (j JoinerType) holds(c int) bool {
	switch j {
	case JoinEqual:
		return c == 0
	case JoinLessThan:
		return c < 0
	case JoinLessOrEqual:
		return c <= 0
	case JoinGreaterThan:
		return c > 0
	case JoinGreaterOrEqual:
		return c >= 0
	}
	return false
}

// Joiner is one condition between the left and right tuple of a join or an
// existence check. Indexing joiners (equal and comparisons) extract a key
// from each side; a filtering joiner tests the pair directly.
type Joiner struct {
	kind    JoinerType
	left    func(*Tuple) any
	right   func(*Tuple) any
	compare utils.Comparator
	filter  func(left, right *Tuple) bool
}

// Type returns the relation of the joiner.
func (j Joiner) Type() JoinerType { return j.kind }

func (j Joiner) String() string { return "joiner(" + j.kind.String() + ")" }

func keyed[K any](kind JoinerType, left, right func(*Tuple) K, compare utils.Comparator) Joiner {
	j := Joiner{kind: kind, compare: compare}
	if left != nil {
		j.left = func(t *Tuple) any { return left(t) }
	}
	if right != nil {
		j.right = func(t *Tuple) any { return right(t) }
	}
	return j
}

func orderedComparator[K cmp.Ordered]() utils.Comparator {
	return func(a, b interface{}) int { return cmp.Compare(a.(K), b.(K)) }
}

// Equal joins pairs whose keys are equal. Keys are compared with ==, except
// decimal.Decimal keys, which are equal when their values are. A key that is
// not equal to itself, such as a NaN float, fails the propagation with
// ErrContractViolation.
func Equal[K comparable](left, right func(*Tuple) K) Joiner {
	return keyed(JoinEqual, equalKey(left), equalKey(right), nil)
}

// equalKey maps a key to the value stored in an equal index.
func equalKey[K comparable](fn func(*Tuple) K) func(*Tuple) any {
	if fn == nil {
		return nil
	}
	return func(t *Tuple) any {
		k := fn(t)
		if d, ok := any(k).(decimal.Decimal); ok {
			return d.String()
		}
		if k != k {
			panic(fmt.Errorf("%w: equal joiner key %v is not equal to itself", ErrContractViolation, k))
		}
		return k
	}
}

// LessThan joins pairs where the left key is less than the right key.
func LessThan[K cmp.Ordered](left, right func(*Tuple) K) Joiner {
	return keyed(JoinLessThan, left, right, orderedComparator[K]())
}

// LessOrEqual joins pairs where the left key is at most the right key.
func LessOrEqual[K cmp.Ordered](left, right func(*Tuple) K) Joiner {
	return keyed(JoinLessOrEqual, left, right, orderedComparator[K]())
}

// GreaterThan joins pairs where the left key is greater than the right key.
func GreaterThan[K cmp.Ordered](left, right func(*Tuple) K) Joiner {
	return keyed(JoinGreaterThan, left, right, orderedComparator[K]())
}

// GreaterOrEqual joins pairs where the left key is at least the right key.
func GreaterOrEqual[K cmp.Ordered](left, right func(*Tuple) K) Joiner {
	return keyed(JoinGreaterOrEqual, left, right, orderedComparator[K]())
}

// Filtering joins pairs accepted by fn. It cannot be indexed; every
// candidate pair is tested.
func Filtering(fn func(left, right *Tuple) bool) Joiner {
	return Joiner{kind: JoinFiltering, filter: fn}
}

// IndexProperties is the key of a tuple: one value per indexing joiner.
// Equal joiner keys are stored normalized, so == between two properties
// agrees with the joiner.
type IndexProperties []any

func (p IndexProperties) equal(o IndexProperties) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// joinerSet splits the joiners of one node into indexing joiners, in
// declaration order, and filtering predicates.
type joinerSet struct {
	indexing []Joiner
	filters  []func(left, right *Tuple) bool
}

func newJoinerSet(joiners []Joiner) (joinerSet, error) {
	var s joinerSet
	for i, j := range joiners {
		if j.kind == JoinFiltering {
			if j.filter == nil {
				return s, fmt.Errorf("%w: joiner %d has no predicate", ErrInvalidStream, i)
			}
			s.filters = append(s.filters, j.filter)
			continue
		}
		if j.left == nil || j.right == nil {
			return s, fmt.Errorf("%w: joiner %d (%s) is missing a key mapping", ErrInvalidStream, i, j.kind)
		}
		s.indexing = append(s.indexing, j)
	}
	return s, nil
}

func (s joinerSet) indexed() bool   { return len(s.indexing) > 0 }
func (s joinerSet) filtering() bool { return len(s.filters) > 0 }

func (s joinerSet) leftProperties(t *Tuple) IndexProperties {
	if len(s.indexing) == 0 {
		return nil
	}
	props := make(IndexProperties, len(s.indexing))
	for i, j := range s.indexing {
		props[i] = j.left(t)
	}
	return props
}

func (s joinerSet) rightProperties(t *Tuple) IndexProperties {
	if len(s.indexing) == 0 {
		return nil
	}
	props := make(IndexProperties, len(s.indexing))
	for i, j := range s.indexing {
		props[i] = j.right(t)
	}
	return props
}

func (s joinerSet) test(left, right *Tuple) bool {
	for _, f := range s.filters {
		if !f(left, right) {
			return false
		}
	}
	return true
}
