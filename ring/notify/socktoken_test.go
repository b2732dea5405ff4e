package notify

import (
	"testing"
	"time"

	"github.com/loopmesh/qbipc/api"
	"github.com/stretchr/testify/require"
)

func TestSockTokenPostAndWait(t *testing.T) {
	a, b, err := NewSockTokenPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Post(3))

	for i := 0; i < 3; i++ {
		require.NoError(t, b.TimedWait(1000))
	}
}

func TestSockTokenTimedWaitTimesOut(t *testing.T) {
	a, b, err := NewSockTokenPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	start := time.Now()
	err = b.TimedWait(50)
	require.ErrorIs(t, err, api.ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSockTokenChunksUsedReflectsPending(t *testing.T) {
	a, b, err := NewSockTokenPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	require.Zero(t, b.ChunksUsed())
	require.NoError(t, a.Post(1))
	require.Eventually(t, func() bool { return b.ChunksUsed() == 1 }, time.Second, time.Millisecond)
}

func TestNoneNotifierNeverBlocks(t *testing.T) {
	n := NewNone()
	require.NoError(t, n.Post(5))
	require.NoError(t, n.TimedWait(-1))
	require.Zero(t, n.ChunksUsed())
	require.NoError(t, n.Close())
}
