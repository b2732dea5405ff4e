package transport

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/loopmesh/qbipc/ring/notify"
	"github.com/stretchr/testify/require"
)

func openTestShm(t *testing.T) *Shm {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("shm-%s", t.Name()))
	tr, err := NewShm(ShmOptions{
		NamePrefix:    prefix,
		RequestBytes:  4096,
		ResponseBytes: 4096,
		EventBytes:    4096,
		Owner:         true,
		Notifier:      notify.KindNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func TestShmSendRecvRoundTrip(t *testing.T) {
	tr := openTestShm(t)

	require.NoError(t, tr.Send(Request, []byte("hello")))
	buf := make([]byte, 64)
	n, err := tr.Recv(Request, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestShmSendVConcatenates(t *testing.T) {
	tr := openTestShm(t)

	require.NoError(t, tr.SendV(Event, [][]byte{[]byte("ACK "), []byte("5 bytes")}))
	buf := make([]byte, 64)
	n, err := tr.Recv(Event, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "ACK 5 bytes", string(buf[:n]))
}

func TestShmFlowControlRoundTrip(t *testing.T) {
	tr := openTestShm(t)

	level, err := tr.FCGet()
	require.NoError(t, err)
	require.Equal(t, uint32(0), level)

	require.NoError(t, tr.FCSet(2))
	level, err = tr.FCGet()
	require.NoError(t, err)
	require.Equal(t, uint32(2), level)
}

func TestShmQLenGetReflectsPending(t *testing.T) {
	// The none notifier always reports zero chunks used, so this test
	// uses a counting notifier instead of openTestShm's.
	prefix := filepath.Join(t.TempDir(), fmt.Sprintf("shm-%s", t.Name()))
	tr, err := NewShm(ShmOptions{
		NamePrefix:    prefix,
		RequestBytes:  4096,
		ResponseBytes: 4096,
		EventBytes:    4096,
		Owner:         true,
		Notifier:      notify.KindSysvSem,
	})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Disconnect() })

	n, err := tr.QLenGet(Request)
	require.NoError(t, err)
	require.Equal(t, uint32(0), n)

	require.NoError(t, tr.Send(Request, []byte("x")))
	n, err = tr.QLenGet(Request)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
}

func TestShmInvalidDirectionErrors(t *testing.T) {
	tr := openTestShm(t)
	require.Error(t, tr.Send(Direction(99), []byte("x")))
}
