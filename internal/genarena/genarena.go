// File: internal/genarena/genarena.go
// Package genarena implements the generational handle table spec.md §9
// calls for as a port of the source library's hdb layer: a packed
// {check, index} handle that detects stale references after a slot is
// reused, without the source's 64-bit bit-packing (Go callers get two
// plain uint32s instead).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package genarena

import "github.com/loopmesh/qbipc/api"

// Handle identifies a slot plus the generation it was issued under.
type Handle struct {
	Index      uint32
	Generation uint32
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena is a generational object table: Put returns a Handle that
// Get/Delete validate against the slot's current generation, so a
// handle outliving its slot's reuse is rejected rather than silently
// resolving to the wrong object (spec.md §9 "Handle-based cross-process
// references").
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Put inserts value and returns its handle.
func (a *Arena[T]) Put(value T) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = value
		s.occupied = true
		return Handle{Index: idx, Generation: s.generation}
	}
	idx := uint32(len(a.slots))
	a.slots = append(a.slots, slot[T]{value: value, occupied: true})
	return Handle{Index: idx, Generation: 0}
}

// Get resolves h to its value. api.ErrBadHandle is returned for an
// out-of-range, stale, or already-deleted handle.
func (a *Arena[T]) Get(h Handle) (T, error) {
	var zero T
	if int(h.Index) >= len(a.slots) {
		return zero, api.ErrBadHandle
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return zero, api.ErrBadHandle
	}
	return s.value, nil
}

// Delete frees h's slot, bumping its generation so outstanding copies
// of h fail Get/Delete from this point on.
func (a *Arena[T]) Delete(h Handle) error {
	if int(h.Index) >= len(a.slots) {
		return api.ErrBadHandle
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return api.ErrBadHandle
	}
	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	a.free = append(a.free, h.Index)
	return nil
}

// Len returns the number of live entries.
func (a *Arena[T]) Len() int {
	return len(a.slots) - len(a.free)
}
