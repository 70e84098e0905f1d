package network

import (
	"fmt"
	"reflect"

	"github.com/gitrdm/gokanscore/pkg/inliner"
	"github.com/gitrdm/gokanscore/pkg/score"
)

type streamKind uint8

const (
	kindForEach streamKind = iota
	kindFilter
	kindJoin
	kindIfExists
	kindIfNotExists
	kindGroup
	kindConcat
	kindMap
)

var kindNames = [...]string{"forEach", "filter", "join", "ifExists", "ifNotExists", "groupBy", "concat", "map"}

func (k streamKind) String() string { return kindNames[k] }

// Builder collects the streams and constraints of one constraint network.
// Declaration mistakes are recorded and reported by NewSession; the builder
// keeps the first one.
type Builder[S score.Score[S], N score.Number[N]] struct {
	def         score.Definition[S, N]
	streams     []*Stream[S, N]
	sources     map[reflect.Type]*Stream[S, N]
	constraints []*Constraint[S, N]
	err         error
}

// NewBuilder starts a constraint network scoring with def.
func NewBuilder[S score.Score[S], N score.Number[N]](def score.Definition[S, N]) *Builder[S, N] {
	return &Builder[S, N]{def: def, sources: make(map[reflect.Type]*Stream[S, N])}
}

// Err returns the first declaration error, if any.
func (b *Builder[S, N]) Err() error { return b.err }

// Definition returns the score definition of the network.
func (b *Builder[S, N]) Definition() score.Definition[S, N] { return b.def }

func (b *Builder[S, N]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder[S, N]) add(s *Stream[S, N]) *Stream[S, N] {
	s.b = b
	s.id = len(b.streams)
	b.streams = append(b.streams, s)
	return s
}

// ForEachType selects every fact whose dynamic type is t or, for an
// interface type, implements t. Sources are shared: selecting the same type
// twice returns the same stream.
func (b *Builder[S, N]) ForEachType(t reflect.Type) *Stream[S, N] {
	if t == nil {
		b.fail(fmt.Errorf("%w: forEach of a nil type", ErrInvalidStream))
		t = reflect.TypeFor[any]()
	}
	if s, ok := b.sources[t]; ok {
		return s
	}
	s := b.add(&Stream[S, N]{kind: kindForEach, arity: 1, typ: t})
	b.sources[t] = s
	return s
}

// ForEach selects every fact of type T.
func ForEach[T any, S score.Score[S], N score.Number[N]](b *Builder[S, N]) *Stream[S, N] {
	return b.ForEachType(reflect.TypeFor[T]())
}

// ForEachFiltered selects the facts of type T accepted by test. The test is
// repeated on every update of a fact; a fact that starts or stops passing is
// inserted or retracted downstream.
func ForEachFiltered[T any, S score.Score[S], N score.Number[N]](b *Builder[S, N], test func(T) bool) *Stream[S, N] {
	return b.add(&Stream[S, N]{
		kind:     kindForEach,
		arity:    1,
		typ:      reflect.TypeFor[T](),
		factTest: func(f any) bool { return test(f.(T)) },
	})
}

// Stream is a node of the constraint network under construction. Streams
// are immutable; every operation returns a new stream.
type Stream[S score.Score[S], N score.Number[N]] struct {
	b          *Builder[S, N]
	id         int
	kind       streamKind
	parents    []*Stream[S, N]
	arity      int
	typ        reflect.Type
	factTest   func(any) bool
	test       func(*Tuple) bool
	joiners    joinerSet
	key        func(*Tuple) any
	collectors []Collector
	mappings   []func(*Tuple) any
}

// Arity returns the number of facts in the tuples of the stream.
func (s *Stream[S, N]) Arity() int { return s.arity }

func (s *Stream[S, N]) String() string {
	return fmt.Sprintf("%s#%d", s.kind, s.id)
}

func (s *Stream[S, N]) child(kind streamKind, arity int, parents ...*Stream[S, N]) *Stream[S, N] {
	for _, p := range parents {
		if p == nil || p.b != s.b {
			s.b.fail(fmt.Errorf("%w: %s of %s takes a stream of another builder", ErrInvalidStream, kind, s))
		}
	}
	return s.b.add(&Stream[S, N]{kind: kind, arity: arity, parents: parents})
}

// Filter keeps the tuples accepted by test.
func (s *Stream[S, N]) Filter(test func(*Tuple) bool) *Stream[S, N] {
	c := s.child(kindFilter, s.arity, s)
	c.test = test
	return c
}

func (s *Stream[S, N]) joinerSet(kind streamKind, joiners []Joiner) joinerSet {
	set, err := newJoinerSet(joiners)
	if err != nil {
		s.b.fail(fmt.Errorf("%s of %s: %w", kind, s, err))
	}
	return set
}

// Join pairs every tuple with the tuples of other matching all joiners. The
// output facts are the facts of the left tuple followed by those of the
// right one.
func (s *Stream[S, N]) Join(other *Stream[S, N], joiners ...Joiner) *Stream[S, N] {
	arity := s.arity
	if other != nil {
		arity += other.arity
	}
	c := s.child(kindJoin, arity, s, other)
	c.joiners = s.joinerSet(kindJoin, joiners)
	return c
}

// IfExists keeps the tuples for which at least one tuple of other matches
// all joiners.
func (s *Stream[S, N]) IfExists(other *Stream[S, N], joiners ...Joiner) *Stream[S, N] {
	c := s.child(kindIfExists, s.arity, s, other)
	c.joiners = s.joinerSet(kindIfExists, joiners)
	return c
}

// IfNotExists keeps the tuples for which no tuple of other matches all
// joiners.
func (s *Stream[S, N]) IfNotExists(other *Stream[S, N], joiners ...Joiner) *Stream[S, N] {
	c := s.child(kindIfNotExists, s.arity, s, other)
	c.joiners = s.joinerSet(kindIfNotExists, joiners)
	return c
}

// GroupBy partitions the tuples by key. Each output tuple holds the key
// followed by one result per collector. Keys must be comparable.
func (s *Stream[S, N]) GroupBy(key func(*Tuple) any, collectors ...Collector) *Stream[S, N] {
	if key == nil {
		s.b.fail(fmt.Errorf("%w: groupBy of %s without a key", ErrInvalidStream, s))
	}
	c := s.child(kindGroup, 1+len(collectors), s)
	c.key = key
	c.collectors = collectors
	return c
}

// Aggregate collects all tuples into a single group. The output tuple holds
// one result per collector and exists only while the stream is not empty.
func (s *Stream[S, N]) Aggregate(collectors ...Collector) *Stream[S, N] {
	if len(collectors) == 0 {
		s.b.fail(fmt.Errorf("%w: aggregate of %s without collectors", ErrInvalidStream, s))
	}
	c := s.child(kindGroup, len(collectors), s)
	c.collectors = collectors
	return c
}

// Concat merges the tuples of s and other. The output arity is the larger
// of the two; shorter tuples are padded with nil facts.
func (s *Stream[S, N]) Concat(other *Stream[S, N]) *Stream[S, N] {
	arity := s.arity
	if other != nil {
		arity = max(arity, other.arity)
	}
	return s.child(kindConcat, arity, s, other)
}

// Map replaces every tuple with a tuple of the mapped values.
func (s *Stream[S, N]) Map(mappings ...func(*Tuple) any) *Stream[S, N] {
	if len(mappings) == 0 {
		s.b.fail(fmt.Errorf("%w: map of %s without mappings", ErrInvalidStream, s))
	}
	c := s.child(kindMap, len(mappings), s)
	c.mappings = mappings
	return c
}

type impactKind uint8

const (
	impactPenalize impactKind = iota
	impactReward
	impactMixed
)

// Constraint is a scored stream. Its score impact per tuple is the
// constraint weight times the match weight, negated for penalties.
type Constraint[S score.Score[S], N score.Number[N]] struct {
	stream  *Stream[S, N]
	ref     inliner.ConstraintRef
	kind    impactKind
	weight  S
	weigh   func(*Tuple) N
	justify func(facts []any, impact S) any
	indict  func(facts []any) []any
}

func (s *Stream[S, N]) constrain(name string, kind impactKind, weight S) *Constraint[S, N] {
	if name == "" {
		s.b.fail(fmt.Errorf("%w: constraint on %s has no name", ErrInvalidStream, s))
	}
	c := &Constraint[S, N]{stream: s, ref: inliner.ConstraintRef{Name: name}, kind: kind, weight: weight}
	s.b.constraints = append(s.b.constraints, c)
	return c
}

// Penalize lowers the score by weight for every tuple. Weights and match
// weights must not be negative.
func (s *Stream[S, N]) Penalize(name string, weight S) *Constraint[S, N] {
	return s.constrain(name, impactPenalize, weight)
}

// Reward raises the score by weight for every tuple. Weights and match
// weights must not be negative.
func (s *Stream[S, N]) Reward(name string, weight S) *Constraint[S, N] {
	return s.constrain(name, impactReward, weight)
}

// Impact adds weight times the match weight to the score, whatever its
// sign.
func (s *Stream[S, N]) Impact(name string, weight S) *Constraint[S, N] {
	return s.constrain(name, impactMixed, weight)
}

// Weigh sets the match weight of a tuple. The default is one.
func (c *Constraint[S, N]) Weigh(fn func(*Tuple) N) *Constraint[S, N] {
	c.weigh = fn
	return c
}

// Justify sets the justification recorded with each match.
func (c *Constraint[S, N]) Justify(fn func(facts []any, impact S) any) *Constraint[S, N] {
	c.justify = fn
	return c
}

// Indict sets the objects blamed by each match.
func (c *Constraint[S, N]) Indict(fn func(facts []any) []any) *Constraint[S, N] {
	c.indict = fn
	return c
}

// InPackage sets the package of the constraint id.
func (c *Constraint[S, N]) InPackage(pkg string) *Constraint[S, N] {
	c.ref.Package = pkg
	return c
}

// Ref returns the identity of the constraint.
func (c *Constraint[S, N]) Ref() inliner.ConstraintRef { return c.ref }
