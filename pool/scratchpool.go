// File: pool/scratchpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// scratchPool is a single sync.Pool wrapper, adapted from the
// teacher's per-platform bufferpool (bufferpool_linux.go): same
// get-or-grow-then-resize shape, minus the removed NUMA axis, which has
// no analogue for a single-threaded local IPC loop.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/loopmesh/qbipc/api"
)

type scratchPool struct {
	raw        sync.Pool
	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	inUse      atomic.Int64
}

// NewScratchPool creates a BufferPool of reusable byte slices.
func NewScratchPool() api.BufferPool {
	return &scratchPool{}
}

func (p *scratchPool) Get(size int) api.Buffer {
	p.inUse.Add(1)
	if v := p.raw.Get(); v != nil {
		b := v.([]byte)
		if cap(b) >= size {
			return api.Buffer{Data: b[:size], Pool: p}
		}
	}
	p.totalAlloc.Add(1)
	return api.Buffer{Data: make([]byte, size), Pool: p}
}

func (p *scratchPool) Put(b api.Buffer) {
	if b.Data == nil {
		return
	}
	p.inUse.Add(-1)
	p.totalFree.Add(1)
	p.raw.Put(b.Data[:0:cap(b.Data)]) //nolint:staticcheck // keep backing array, reset length
}

func (p *scratchPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: p.totalAlloc.Load(),
		TotalFree:  p.totalFree.Load(),
		InUse:      p.inUse.Load(),
	}
}
