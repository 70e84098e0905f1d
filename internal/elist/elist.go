// Package elist provides element-aware doubly linked lists backed by a shared
// slot arena.
//
// Every value added to a List is addressed by an Entry handle. Removing by
// handle is O(1) and needs no search or hashing. Slots released by Remove go
// back to the arena free list and are handed out again by later adds, so a
// steady-state workload allocates nothing.
//
// An Entry remembers the generation of the slot it was issued for. Once the
// slot is freed and reused, the old handle is stale and every operation on it
// panics. Misuse of a handle always means the caller's bookkeeping is corrupt,
// so it is never silently ignored.
package elist

import (
	"errors"
	"fmt"
)

// ErrEntryNotOwned is the panic cause when an entry is used with a list that
// does not currently own it, or when the entry is stale.
var ErrEntryNotOwned = errors.New("elist: entry not owned by list")

// Entry is a stable handle to one value stored in a List.
// The zero Entry refers to nothing.
type Entry struct {
	idx int32
	gen uint32
}

// IsZero reports whether e is the zero handle.
func (e Entry) IsZero() bool { return e.idx == 0 }

func (e Entry) String() string {
	if e.idx == 0 {
		return "entry(nil)"
	}
	return fmt.Sprintf("entry(%d@%d)", e.idx, e.gen)
}

type slot[T any] struct {
	value T
	prev  int32
	next  int32
	owner uint32 // 0 while free
	gen   uint32
}

// Arena owns the slots of any number of lists holding the same value type.
// An arena and its lists are not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  int32
	lists uint32
	inUse int
}

// NewArena creates an arena with room for capacity values before it grows.
func NewArena[T any](capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	// slot 0 is a sentinel so that index 0 can mean "none"
	return &Arena[T]{slots: make([]slot[T], 1, capacity+1)}
}

// NewList creates an empty list whose entries live in this arena.
func (a *Arena[T]) NewList() *List[T] {
	a.lists++
	return &List[T]{arena: a, id: a.lists}
}

// Len returns the number of live entries across all lists of the arena.
func (a *Arena[T]) Len() int { return a.inUse }

// Owner returns the id of the list currently holding e, or 0 if e is stale.
func (a *Arena[T]) Owner(e Entry) uint32 {
	if e.idx <= 0 || int(e.idx) >= len(a.slots) {
		return 0
	}
	s := &a.slots[e.idx]
	if s.gen != e.gen {
		return 0
	}
	return s.owner
}

// Value returns the value behind e regardless of the owning list.
func (a *Arena[T]) Value(e Entry) T {
	return a.live(e, 0).value
}

func (a *Arena[T]) live(e Entry, owner uint32) *slot[T] {
	if e.idx <= 0 || int(e.idx) >= len(a.slots) {
		panic(fmt.Errorf("%w: %v out of range", ErrEntryNotOwned, e))
	}
	s := &a.slots[e.idx]
	if s.gen != e.gen || s.owner == 0 {
		panic(fmt.Errorf("%w: %v is stale", ErrEntryNotOwned, e))
	}
	if owner != 0 && s.owner != owner {
		panic(fmt.Errorf("%w: %v belongs to list %d, not %d", ErrEntryNotOwned, e, s.owner, owner))
	}
	return s
}

func (a *Arena[T]) alloc(v T, owner uint32) int32 {
	var idx int32
	if a.free != 0 {
		idx = a.free
		a.free = a.slots[idx].next
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = int32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.value = v
	s.owner = owner
	s.prev, s.next = 0, 0
	a.inUse++
	return idx
}

func (a *Arena[T]) release(idx int32) {
	s := &a.slots[idx]
	var zero T
	s.value = zero
	s.owner = 0
	s.gen++
	s.prev = 0
	s.next = a.free
	a.free = idx
	a.inUse--
}

// List is a doubly linked list of values stored in an Arena.
type List[T any] struct {
	arena *Arena[T]
	id    uint32
	head  int32
	tail  int32
	size  int
}

// ID identifies the list within its arena.
func (l *List[T]) ID() uint32 { return l.id }

// Len returns the number of entries in the list.
func (l *List[T]) Len() int { return l.size }

// Add appends v and returns its handle.
func (l *List[T]) Add(v T) Entry {
	a := l.arena
	idx := a.alloc(v, l.id)
	s := &a.slots[idx]
	s.prev = l.tail
	if l.tail != 0 {
		a.slots[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.size++
	return Entry{idx: idx, gen: s.gen}
}

// AddFirst prepends v and returns its handle.
func (l *List[T]) AddFirst(v T) Entry {
	a := l.arena
	idx := a.alloc(v, l.id)
	s := &a.slots[idx]
	s.next = l.head
	if l.head != 0 {
		a.slots[l.head].prev = idx
	} else {
		l.tail = idx
	}
	l.head = idx
	l.size++
	return Entry{idx: idx, gen: s.gen}
}

// Remove unlinks e. It panics if e is not currently owned by l.
func (l *List[T]) Remove(e Entry) {
	a := l.arena
	s := a.live(e, l.id)
	if s.prev != 0 {
		a.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != 0 {
		a.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	l.size--
	a.release(e.idx)
}

// Value returns the value behind e. It panics if e is not owned by l.
func (l *List[T]) Value(e Entry) T {
	return l.arena.live(e, l.id).value
}

// Set replaces the value behind e.
func (l *List[T]) Set(e Entry, v T) {
	l.arena.live(e, l.id).value = v
}

// Contains reports whether e is a live entry of l.
func (l *List[T]) Contains(e Entry) bool {
	return l.arena.Owner(e) == l.id
}

// First returns the head entry, if any.
func (l *List[T]) First() (Entry, bool) {
	if l.head == 0 {
		return Entry{}, false
	}
	return Entry{idx: l.head, gen: l.arena.slots[l.head].gen}, true
}

// ForEach calls fn for every entry in insertion order.
// fn may remove the entry it was called with, but no other entry of l.
func (l *List[T]) ForEach(fn func(e Entry, v T)) {
	a := l.arena
	for idx := l.head; idx != 0; {
		s := &a.slots[idx]
		next := s.next
		fn(Entry{idx: idx, gen: s.gen}, s.value)
		idx = next
	}
}

// Values returns a snapshot of the list contents.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.size)
	l.ForEach(func(_ Entry, v T) { out = append(out, v) })
	return out
}

// Clear removes every entry, returning the slots to the arena.
func (l *List[T]) Clear() {
	a := l.arena
	for idx := l.head; idx != 0; {
		next := a.slots[idx].next
		a.release(idx)
		idx = next
	}
	l.head, l.tail, l.size = 0, 0, 0
}
