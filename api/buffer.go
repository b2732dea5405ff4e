// File: api/buffer.go
// Package api defines the Buffer and BufferPool contracts implemented
// by package pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Buffer is a reusable memory slice handed out by a BufferPool. It is a
// struct rather than an interface to avoid interface boxing on the hot
// chunk_read/chunk_write path.
type Buffer struct {
	Data  []byte
	Pool  Releaser
	Class int
}

// Releaser decouples Buffer from a concrete pool implementation.
type Releaser interface {
	Put(Buffer)
}

// Bytes returns the full byte slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Copy returns a deep copy of the buffer data.
func (b Buffer) Copy() []byte {
	dup := make([]byte, len(b.Data))
	copy(dup, b.Data)
	return dup
}

// Slice returns a new Buffer view sharing the same underlying memory.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		return Buffer{Pool: b.Pool, Class: b.Class}
	}
	return Buffer{Data: b.Data[from:to], Pool: b.Pool, Class: b.Class}
}

// Release returns the buffer to its owning pool, if any.
func (b Buffer) Release() {
	if b.Pool != nil {
		b.Pool.Put(b)
	}
}

// Capacity returns the capacity of the underlying slice.
func (b Buffer) Capacity() int { return cap(b.Data) }

// BufferPool hands out size-classed scratch buffers for a connection's
// receive_buf and for RB chunk_read callers that want to avoid
// allocating on every message.
type BufferPool interface {
	Get(size int) Buffer
	Put(b Buffer)
	Stats() BufferPoolStats
}

// BufferPoolStats summarizes pool usage.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}
