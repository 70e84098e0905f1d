package network

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/gitrdm/gokanscore/internal/elist"
)

// pointBuckets is an ordered multimap from a point to the members at it.
type pointBuckets[T any] struct {
	arena *elist.Arena[T]
	tree  *treemap.Map
}

func newPointBuckets[T any]() *pointBuckets[T] {
	return &pointBuckets[T]{
		arena: elist.NewArena[T](8),
		tree:  treemap.NewWith(orderedComparator[int64]()),
	}
}

func (b *pointBuckets[T]) add(p int64, v T) (undo func()) {
	var l *elist.List[T]
	if found, ok := b.tree.Get(p); ok {
		l = found.(*elist.List[T])
	} else {
		l = b.arena.NewList()
		b.tree.Put(p, l)
	}
	e := l.Add(v)
	return func() {
		l.Remove(e)
		if l.Len() == 0 {
			b.tree.Remove(p)
		}
	}
}

// each visits the points in ascending order with their members.
func (b *pointBuckets[T]) each(fn func(p int64, members []T)) {
	it := b.tree.Iterator()
	for it.Next() {
		fn(it.Key().(int64), it.Value().(*elist.List[T]).Values())
	}
}

// Sequence is a run of members whose indexes follow each other without a
// hole. Items are in index order.
type Sequence struct {
	Start, End int64
	Items      []any
}

// Length counts the indexes the sequence covers.
func (s Sequence) Length() int64 { return s.End - s.Start + 1 }

// SequenceBreak is the hole between two neighbouring sequences.
type SequenceBreak struct {
	PreviousEnd, NextStart int64
}

func (b SequenceBreak) Length() int64 { return b.NextStart - b.PreviousEnd }

// SequenceChain is the result of ConsecutiveSequences. Breaks[i] separates
// Sequences[i] from Sequences[i+1].
type SequenceChain struct {
	Sequences []Sequence
	Breaks    []SequenceBreak
}

type sequenceContainer struct {
	value  func(*Tuple) any
	index  func(*Tuple) int64
	points *pointBuckets[any]
}

func (c *sequenceContainer) Accumulate(t *Tuple) func() {
	return c.points.add(c.index(t), c.value(t))
}

func (c *sequenceContainer) Result() any {
	var chain SequenceChain
	c.points.each(func(p int64, items []any) {
		n := len(chain.Sequences)
		if n > 0 && p == chain.Sequences[n-1].End+1 {
			last := &chain.Sequences[n-1]
			last.End = p
			last.Items = append(last.Items, items...)
			return
		}
		if n > 0 {
			chain.Breaks = append(chain.Breaks, SequenceBreak{PreviousEnd: chain.Sequences[n-1].End, NextStart: p})
		}
		chain.Sequences = append(chain.Sequences, Sequence{Start: p, End: p, Items: items})
	})
	return chain
}

// ConsecutiveSequences splits the members into runs of consecutive indexes.
// Members sharing an index belong to the same run. The result is a
// SequenceChain.
func ConsecutiveSequences(value func(*Tuple) any, index func(*Tuple) int64) Collector {
	return CollectorFunc(func() Container {
		return &sequenceContainer{value: value, index: index, points: newPointBuckets[any]()}
	})
}

// Range is one member of ConnectedRanges, covering [Start, End).
type Range struct {
	Value      any
	Start, End int64
}

// ConnectedRange is a maximal set of ranges joined by overlapping or
// touching. The overlap bounds count the ranges covering each point of
// [Start, End).
type ConnectedRange struct {
	Ranges         []Range
	Start, End     int64
	MinimumOverlap int
	MaximumOverlap int
}

// HasOverlap reports whether some point is covered by two ranges.
func (c ConnectedRange) HasOverlap() bool { return c.MaximumOverlap > 1 }

// RangeGap is the uncovered span between two connected ranges.
type RangeGap struct {
	PreviousEnd, NextStart int64
}

func (g RangeGap) Length() int64 { return g.NextStart - g.PreviousEnd }

// RangeChain is the result of ConnectedRanges. Gaps[i] separates
// Connected[i] from Connected[i+1].
type RangeChain struct {
	Connected []ConnectedRange
	Gaps      []RangeGap
}

type rangeContainer struct {
	value      func(*Tuple) any
	start, end func(*Tuple) int64
	starts     *pointBuckets[Range]
}

func (c *rangeContainer) Accumulate(t *Tuple) func() {
	r := Range{Value: c.value(t), Start: c.start(t), End: c.end(t)}
	if r.End <= r.Start {
		panic(fmt.Errorf("%w: [%d, %d) of %v", ErrInvalidRange, r.Start, r.End, r.Value))
	}
	return c.starts.add(r.Start, r)
}

func (c *rangeContainer) Result() any {
	var ranges []Range
	c.starts.each(func(_ int64, rs []Range) { ranges = append(ranges, rs...) })

	var chain RangeChain
	for i := 0; i < len(ranges); {
		group := ConnectedRange{Start: ranges[i].Start, End: ranges[i].End}
		j := i
		for ; j < len(ranges) && ranges[j].Start <= group.End; j++ {
			group.End = max(group.End, ranges[j].End)
		}
		group.Ranges = ranges[i:j:j]
		group.MinimumOverlap, group.MaximumOverlap = overlapBounds(group)
		if n := len(chain.Connected); n > 0 {
			chain.Gaps = append(chain.Gaps, RangeGap{PreviousEnd: chain.Connected[n-1].End, NextStart: group.Start})
		}
		chain.Connected = append(chain.Connected, group)
		i = j
	}
	return chain
}

// overlapBounds sweeps the range ends of one connected range in order.
// Ranges ending where another starts do not overlap.
func overlapBounds(group ConnectedRange) (lo, hi int) {
	deltas := treemap.NewWith(orderedComparator[int64]())
	bump := func(p int64, d int) {
		n, _ := deltas.Get(p)
		k, _ := n.(int)
		deltas.Put(p, k+d)
	}
	for _, r := range group.Ranges {
		bump(r.Start, 1)
		bump(r.End, -1)
	}
	lo = len(group.Ranges)
	count := 0
	it := deltas.Iterator()
	for it.Next() {
		if it.Key().(int64) >= group.End {
			break
		}
		count += it.Value().(int)
		lo, hi = min(lo, count), max(hi, count)
	}
	return lo, hi
}

// ConnectedRanges groups the half-open ranges [start, end) of the members
// into connected ranges, in start order. The result is a RangeChain.
func ConnectedRanges(value func(*Tuple) any, start, end func(*Tuple) int64) Collector {
	return CollectorFunc(func() Container {
		return &rangeContainer{value: value, start: start, end: end, starts: newPointBuckets[Range]()}
	})
}
