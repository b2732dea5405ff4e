package transport

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketPairSendRecvRoundTrip(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("sock-%s", t.Name()))
	local, peer, err := NewSocketPair(prefix, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { local.Disconnect() })

	require.NoError(t, local.Send(Response, []byte("ACK 5 bytes")))
	buf := make([]byte, 64)
	n, err := peer.Recv(Response, buf, 100)
	require.NoError(t, err)
	require.Equal(t, "ACK 5 bytes", string(buf[:n]))
}

func TestSocketPairFlowControlIsSharedViaControlPage(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("sock-%s", t.Name()))
	local, peer, err := NewSocketPair(prefix, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { local.Disconnect() })

	require.NoError(t, local.FCSet(1))
	level, err := peer.FCGet()
	require.NoError(t, err)
	require.Equal(t, uint32(1), level)
}

func TestAdoptSocketSharesControlPageAcrossMapping(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("sock-%s", t.Name()))
	local, peer, err := NewSocketPair(prefix, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { local.Disconnect() })

	peerFds := peer.Fds()
	adopted, err := AdoptSocket(prefix, [3]int{peerFds[0], peerFds[1], peerFds[2]})
	require.NoError(t, err)
	t.Cleanup(func() { adopted.Disconnect() })

	require.NoError(t, local.FCSet(2))
	level, err := adopted.FCGet()
	require.NoError(t, err)
	require.Equal(t, uint32(2), level)
}

func TestSocketRecvTimesOutWhenEmpty(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("sock-%s", t.Name()))
	local, _, err := NewSocketPair(prefix, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { local.Disconnect() })

	buf := make([]byte, 16)
	_, err = local.Recv(Request, buf, 10)
	require.Error(t, err)
}
