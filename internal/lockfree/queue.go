// File: internal/lockfree/queue.go
// Package lockfree provides a bounded MPMC queue used where the loop's
// per-priority job queues accept submissions from goroutines other than
// the loop's own (e.g. a connection's disconnect job scheduled from a
// signal handler).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Based on the Dmitry Vyukov MPMC bounded queue pattern: each slot
// carries its own sequence number so producers and consumers can race
// on disjoint slots without a single shared lock.

package lockfree

import "sync/atomic"

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// Queue is a lock-free, bounded, multi-producer/multi-consumer queue.
type Queue[T any] struct {
	head uint64
	_    [56]byte
	tail uint64
	_    [56]byte
	mask uint64
	cells []cell[T]
}

// New creates a queue whose capacity is rounded up to the next power of two.
func New[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &Queue[T]{mask: uint64(size - 1), cells: make([]cell[T], size)}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Enqueue adds val; returns false if the queue is full.
func (q *Queue[T]) Enqueue(val T) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		c := &q.cells[tail&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq) - int64(tail); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false
		}
	}
}

// Dequeue removes and returns the oldest item; ok is false if empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		c := &q.cells[head&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq) - int64(head+1); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				item = c.data
				c.sequence.Store(head + q.mask + 1)
				return item, true
			}
		case diff < 0:
			var zero T
			return zero, false
		}
	}
}

// Len returns an approximate count of queued items.
func (q *Queue[T]) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	return int(tail - head)
}

// Cap returns the fixed queue capacity.
func (q *Queue[T]) Cap() int { return len(q.cells) }
