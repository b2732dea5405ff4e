package ipc

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/internal/qblog"
	"github.com/loopmesh/qbipc/ipc/transport"
	"github.com/loopmesh/qbipc/ipc/wire"
	"github.com/loopmesh/qbipc/loop"
	"github.com/loopmesh/qbipc/ring/notify"
)

// echoMsgProcess replies "ACK <n> bytes" on the Response direction,
// matching spec.md §8 end-to-end scenario 1 ("Echo, SHM").
func echoMsgProcess(c *Connection, hdr wire.Header, payload []byte) int32 {
	reply := []byte(fmt.Sprintf("ACK %d bytes", len(payload)))
	respHdr := make([]byte, wire.HeaderSize)
	wire.Header{Size: uint32(wire.HeaderSize + len(reply)), ID: 13}.Encode(respHdr)
	c.Send(transport.Response, append(respHdr, reply...))
	return 1
}

func newTestService(t *testing.T, transportKind wire.TransportType, msgProcess func(*Connection, wire.Header, []byte) int32) (*Service, *loop.Loop, string) {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "ipcserver.sock")
	svc, err := NewService(Options{
		SocketPath:    sockPath,
		Transport:     transportKind,
		MaxMsgSize:    4096,
		MaxBufferSize: 1 << 20,
		PollPriority:  loop.High,
		Notifier:      notify.KindSysvSem,
		Loop:          l,
		Log:           qblog.NewNop(),
		Callbacks:     Callbacks{MsgProcess: msgProcess},
	})
	require.NoError(t, err)

	go l.Run()
	t.Cleanup(func() {
		svc.Close()
		l.Stop()
		l.Close()
	})
	return svc, l, sockPath
}

func sendRequest(t *testing.T, c *Client, payload []byte) {
	t.Helper()
	hdr := make([]byte, wire.HeaderSize)
	wire.Header{Size: uint32(wire.HeaderSize + len(payload)), ID: wire.MsgUserStart}.Encode(hdr)
	require.NoError(t, c.Send(transport.Request, append(hdr, payload...)))
}

func TestEchoScenarioSHM(t *testing.T) {
	_, _, sockPath := newTestService(t, wire.TransportShm, echoMsgProcess)

	var client *Client
	require.Eventually(t, func() bool {
		c, err := Dial(sockPath, 4096)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 5*time.Millisecond)
	defer client.Disconnect()

	sendRequest(t, client, []byte("hello"))

	buf := make([]byte, 64)
	var n int
	require.Eventually(t, func() bool {
		var err error
		n, err = client.Recv(transport.Response, buf, 10)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	got := string(buf[wire.HeaderSize:n])
	require.Equal(t, "ACK 5 bytes", got)
}

func TestEchoScenarioSocket(t *testing.T) {
	_, _, sockPath := newTestService(t, wire.TransportSocket, echoMsgProcess)

	var client *Client
	require.Eventually(t, func() bool {
		c, err := Dial(sockPath, 4096)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 5*time.Millisecond)
	defer client.Disconnect()

	sendRequest(t, client, []byte("hello"))

	buf := make([]byte, 64)
	var n int
	require.Eventually(t, func() bool {
		var err error
		n, err = client.Recv(transport.Response, buf, 10)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	got := string(buf[wire.HeaderSize:n])
	require.Equal(t, "ACK 5 bytes", got)
}

func TestFlowControlPreventsOverLimit(t *testing.T) {
	svc, _, sockPath := newTestService(t, wire.TransportShm, echoMsgProcess)

	client, err := Dial(sockPath, 4096)
	require.NoError(t, err)
	defer client.Disconnect()

	require.NoError(t, svc.SetRateLimit(2))

	require.Eventually(t, func() bool {
		level, err := client.FCGet()
		return err == nil && level == 2
	}, 2*time.Second, 5*time.Millisecond)

	hdr := make([]byte, wire.HeaderSize)
	wire.Header{Size: wire.HeaderSize, ID: wire.MsgUserStart}.Encode(hdr)
	err = client.Send(transport.Request, hdr)
	require.ErrorIs(t, err, api.ErrWouldBlock)
}
