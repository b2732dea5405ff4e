package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScratchPoolGetSizesExactly(t *testing.T) {
	p := NewScratchPool()
	b := p.Get(128)
	require.Len(t, b.Bytes(), 128)
	require.Equal(t, int64(1), p.Stats().TotalAlloc)
	require.Equal(t, int64(1), p.Stats().InUse)
}

func TestScratchPoolReusesReleasedBuffers(t *testing.T) {
	p := NewScratchPool()
	b := p.Get(64)
	b.Release()
	require.Equal(t, int64(1), p.Stats().TotalFree)
	require.Equal(t, int64(0), p.Stats().InUse)

	b2 := p.Get(64)
	require.Len(t, b2.Bytes(), 64)
	require.Equal(t, int64(1), p.Stats().TotalAlloc, "reused buffer should not count as a fresh alloc")
}

func TestScratchPoolGrowsWhenUndersized(t *testing.T) {
	p := NewScratchPool()
	small := p.Get(8)
	small.Release()

	big := p.Get(4096)
	require.Len(t, big.Bytes(), 4096)
	require.Equal(t, int64(2), p.Stats().TotalAlloc)
}
