package network

import (
	"cmp"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/gitrdm/gokanscore/internal/elist"
)

// Collector creates the accumulation state of one group.
type Collector interface {
	NewContainer() Container
}

// Container accumulates the members of one group. Accumulate returns the
// exact inverse of what it did. Members leave in any order, so an undo must
// not assume it is the most recent accumulation.
type Container interface {
	Accumulate(t *Tuple) (undo func())
	Result() any
}

// CollectorFunc adapts a container constructor to a Collector.
type CollectorFunc func() Container

func (f CollectorFunc) NewContainer() Container { return f() }

type countContainer struct{ n int }

func (c *countContainer) Accumulate(*Tuple) func() {
	c.n++
	return func() { c.n-- }
}

func (c *countContainer) Result() any { return c.n }

// Count counts the group members. The result is an int.
func Count() Collector {
	return CollectorFunc(func() Container { return &countContainer{} })
}

type distinctContainer struct {
	fn     func(*Tuple) any
	counts map[any]int
}

func (c *distinctContainer) Accumulate(t *Tuple) func() {
	v := c.fn(t)
	c.counts[v]++
	return func() {
		if c.counts[v]--; c.counts[v] == 0 {
			delete(c.counts, v)
		}
	}
}

func (c *distinctContainer) Result() any { return len(c.counts) }

// CountDistinct counts the distinct values of fn over the members.
func CountDistinct(fn func(*Tuple) any) Collector {
	return CollectorFunc(func() Container {
		return &distinctContainer{fn: fn, counts: make(map[any]int)}
	})
}

type sumContainer struct {
	fn  func(*Tuple) int64
	sum int64
}

func (c *sumContainer) Accumulate(t *Tuple) func() {
	v := c.fn(t)
	c.sum += v
	return func() { c.sum -= v }
}

func (c *sumContainer) Result() any { return c.sum }

// Sum adds up fn over the members. The result is an int64.
func Sum(fn func(*Tuple) int64) Collector {
	return CollectorFunc(func() Container { return &sumContainer{fn: fn} })
}

type decimalSumContainer struct {
	fn  func(*Tuple) decimal.Decimal
	sum decimal.Decimal
}

func (c *decimalSumContainer) Accumulate(t *Tuple) func() {
	v := c.fn(t)
	c.sum = c.sum.Add(v)
	return func() { c.sum = c.sum.Sub(v) }
}

func (c *decimalSumContainer) Result() any { return c.sum }

// SumDecimal adds up fn over the members without rounding.
func SumDecimal(fn func(*Tuple) decimal.Decimal) Collector {
	return CollectorFunc(func() Container { return &decimalSumContainer{fn: fn} })
}

type averageContainer struct {
	fn  func(*Tuple) int64
	sum int64
	n   int
}

func (c *averageContainer) Accumulate(t *Tuple) func() {
	v := c.fn(t)
	c.sum += v
	c.n++
	return func() {
		c.sum -= v
		c.n--
	}
}

func (c *averageContainer) Result() any {
	if c.n == 0 {
		return nil
	}
	return float64(c.sum) / float64(c.n)
}

// Average averages fn over the members. The result is a float64, or nil for
// an empty group.
func Average(fn func(*Tuple) int64) Collector {
	return CollectorFunc(func() Container { return &averageContainer{fn: fn} })
}

// extremeContainer keeps an ordered multiset of the mapped values.
type extremeContainer[K cmp.Ordered] struct {
	fn      func(*Tuple) K
	tree    *treemap.Map
	largest bool
}

func (c *extremeContainer[K]) Accumulate(t *Tuple) func() {
	v := c.fn(t)
	n, _ := c.tree.Get(v)
	count, _ := n.(int)
	c.tree.Put(v, count+1)
	return func() {
		n, _ := c.tree.Get(v)
		if count := n.(int); count > 1 {
			c.tree.Put(v, count-1)
		} else {
			c.tree.Remove(v)
		}
	}
}

func (c *extremeContainer[K]) Result() any {
	if c.tree.Empty() {
		return nil
	}
	if c.largest {
		k, _ := c.tree.Max()
		return k
	}
	k, _ := c.tree.Min()
	return k
}

func extreme[K cmp.Ordered](fn func(*Tuple) K, largest bool) Collector {
	return CollectorFunc(func() Container {
		return &extremeContainer[K]{fn: fn, tree: treemap.NewWith(orderedComparator[K]()), largest: largest}
	})
}

// Min is the smallest value of fn over the members, or nil for an empty
// group.
func Min[K cmp.Ordered](fn func(*Tuple) K) Collector { return extreme(fn, false) }

// Max is the largest value of fn over the members, or nil for an empty
// group.
func Max[K cmp.Ordered](fn func(*Tuple) K) Collector { return extreme(fn, true) }

type listContainer struct {
	fn   func(*Tuple) any
	list *elist.List[any]
}

func (c *listContainer) Accumulate(t *Tuple) func() {
	e := c.list.Add(c.fn(t))
	return func() { c.list.Remove(e) }
}

func (c *listContainer) Result() any { return c.list.Values() }

// ToList collects fn over the members, in accumulation order. The result is
// a fresh []any.
func ToList(fn func(*Tuple) any) Collector {
	return CollectorFunc(func() Container {
		return &listContainer{fn: fn, list: elist.NewArena[any](8).NewList()}
	})
}

type setContainer struct {
	distinctContainer
}

func (c *setContainer) Result() any {
	set := make(map[any]struct{}, len(c.counts))
	for v := range c.counts {
		set[v] = struct{}{}
	}
	return set
}

// ToSet collects the distinct values of fn. The result is a fresh
// map[any]struct{}.
func ToSet(fn func(*Tuple) any) Collector {
	return CollectorFunc(func() Container {
		return &setContainer{distinctContainer{fn: fn, counts: make(map[any]int)}}
	})
}

type composeContainer struct {
	parts   []Container
	combine func([]any) any
}

func (c *composeContainer) Accumulate(t *Tuple) func() {
	undos := make([]func(), len(c.parts))
	for i, p := range c.parts {
		undos[i] = p.Accumulate(t)
	}
	return func() { undoAll(undos) }
}

func (c *composeContainer) Result() any {
	results := make([]any, len(c.parts))
	for i, p := range c.parts {
		results[i] = p.Result()
	}
	return c.combine(results)
}

// Compose runs several collectors over the same members and combines their
// results into one value.
func Compose(combine func(results []any) any, collectors ...Collector) Collector {
	return CollectorFunc(func() Container {
		parts := make([]Container, len(collectors))
		for i, c := range collectors {
			parts[i] = c.NewContainer()
		}
		return &composeContainer{parts: parts, combine: combine}
	})
}
