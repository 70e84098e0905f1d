package network

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/gitrdm/gokanscore/internal/elist"
)

// indexer maps IndexProperties to the elements sharing a matching key. Each
// level of a nested indexer handles one indexing joiner; the innermost level
// is a plain list. An element lives in exactly one bucket.
type indexer[T any] interface {
	put(props IndexProperties, v T) elist.Entry
	remove(props IndexProperties, e elist.Entry)
	// size counts the elements matching a query key.
	size(props IndexProperties) int
	// forEach visits the elements matching a query key. fn must not modify
	// the indexer.
	forEach(props IndexProperties, fn func(T))
	isEmpty() bool
}

// newIndexerFactory returns a constructor of empty indexers for joiners.
// Stored keys are compared against query keys as "stored j query", so the
// indexer holding right-hand elements must be built with flip set.
func newIndexerFactory[T any](arena *elist.Arena[T], joiners []Joiner, flip bool) func() indexer[T] {
	var build func(level int) func() indexer[T]
	build = func(level int) func() indexer[T] {
		if level == len(joiners) {
			return func() indexer[T] { return &listIndexer[T]{list: arena.NewList()} }
		}
		next := build(level + 1)
		j := joiners[level]
		if j.kind == JoinEqual {
			return func() indexer[T] {
				return &equalIndexer[T]{level: level, next: next, buckets: make(map[any]indexer[T])}
			}
		}
		kind := j.kind
		if flip {
			kind = kind.flip()
		}
		return func() indexer[T] {
			return &comparisonIndexer[T]{
				level:   level,
				kind:    kind,
				compare: j.compare,
				tree:    redblacktree.NewWith(j.compare),
				next:    next,
			}
		}
	}
	return build(0)
}

// listIndexer is the innermost level, and the whole indexer of an unindexed
// node.
type listIndexer[T any] struct {
	list *elist.List[T]
}

func (x *listIndexer[T]) put(_ IndexProperties, v T) elist.Entry  { return x.list.Add(v) }
func (x *listIndexer[T]) remove(_ IndexProperties, e elist.Entry) { x.list.Remove(e) }
func (x *listIndexer[T]) size(IndexProperties) int                { return x.list.Len() }
func (x *listIndexer[T]) isEmpty() bool                           { return x.list.Len() == 0 }

func (x *listIndexer[T]) forEach(_ IndexProperties, fn func(T)) {
	x.list.ForEach(func(_ elist.Entry, v T) { fn(v) })
}

type equalIndexer[T any] struct {
	level   int
	next    func() indexer[T]
	buckets map[any]indexer[T]
}

func (x *equalIndexer[T]) put(props IndexProperties, v T) elist.Entry {
	key := props[x.level]
	sub, ok := x.buckets[key]
	if !ok {
		sub = x.next()
		x.buckets[key] = sub
	}
	return sub.put(props, v)
}

func (x *equalIndexer[T]) remove(props IndexProperties, e elist.Entry) {
	key := props[x.level]
	sub, ok := x.buckets[key]
	if !ok {
		panic(fmt.Errorf("%w: equal index has no bucket for key %v", ErrContractViolation, key))
	}
	sub.remove(props, e)
	if sub.isEmpty() {
		delete(x.buckets, key)
	}
}

func (x *equalIndexer[T]) size(props IndexProperties) int {
	if sub, ok := x.buckets[props[x.level]]; ok {
		return sub.size(props)
	}
	return 0
}

func (x *equalIndexer[T]) forEach(props IndexProperties, fn func(T)) {
	if sub, ok := x.buckets[props[x.level]]; ok {
		sub.forEach(props, fn)
	}
}

func (x *equalIndexer[T]) isEmpty() bool { return len(x.buckets) == 0 }

// comparisonIndexer keeps its buckets in key order so that a query only
// walks the keys on the matching side of the query key.
type comparisonIndexer[T any] struct {
	level   int
	kind    JoinerType
	compare utils.Comparator
	tree    *redblacktree.Tree
	next    func() indexer[T]
}

func (x *comparisonIndexer[T]) put(props IndexProperties, v T) elist.Entry {
	key := props[x.level]
	if sub, ok := x.tree.Get(key); ok {
		return sub.(indexer[T]).put(props, v)
	}
	sub := x.next()
	x.tree.Put(key, sub)
	return sub.put(props, v)
}

func (x *comparisonIndexer[T]) remove(props IndexProperties, e elist.Entry) {
	key := props[x.level]
	found, ok := x.tree.Get(key)
	if !ok {
		panic(fmt.Errorf("%w: comparison index has no bucket for key %v", ErrContractViolation, key))
	}
	sub := found.(indexer[T])
	sub.remove(props, e)
	if sub.isEmpty() {
		x.tree.Remove(key)
	}
}

func (x *comparisonIndexer[T]) size(props IndexProperties) int {
	n := 0
	x.visit(props[x.level], func(sub indexer[T]) { n += sub.size(props) })
	return n
}

func (x *comparisonIndexer[T]) forEach(props IndexProperties, fn func(T)) {
	x.visit(props[x.level], func(sub indexer[T]) { sub.forEach(props, fn) })
}

// visit calls fn for every bucket whose key k satisfies "k kind query".
// Matching keys form a prefix of the tree in ascending order for < and <=,
// and in descending order for > and >=.
func (x *comparisonIndexer[T]) visit(query any, fn func(indexer[T])) {
	it := x.tree.Iterator()
	switch x.kind {
	case JoinLessThan, JoinLessOrEqual:
		for it.Next() {
			if !x.kind.holds(x.compare(it.Key(), query)) {
				return
			}
			fn(it.Value().(indexer[T]))
		}
	default:
		it.End()
		for it.Prev() {
			if !x.kind.holds(x.compare(it.Key(), query)) {
				return
			}
			fn(it.Value().(indexer[T]))
		}
	}
}

func (x *comparisonIndexer[T]) isEmpty() bool { return x.tree.Empty() }
