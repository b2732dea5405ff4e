// File: ipc/client.go
// Client is the dialing side of spec.md §4.7: it performs the setup
// handshake over a unix stream socket and builds the transport variant
// the server negotiated.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ipc

import (
	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/ipc/transport"
	"github.com/loopmesh/qbipc/ipc/wire"
)

// Client is a connected IPC peer on the dialing side.
type Client struct {
	transport   transport.Transport
	cookie      uint64
	maxMsgSize  int
	fcEnableMax int
}

// Dial performs the setup handshake against a Service listening at
// socketPath, requesting maxMsgSize, and returns a connected Client
// (spec.md §4.7 "Connection acceptance" from the client's perspective).
func Dial(socketPath string, maxMsgSize int) (*Client, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, api.NewSyscallError("socket", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: socketPath}); err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("connect", err)
	}

	req := wire.SetupRequest{MaxMsgSize: uint32(maxMsgSize)}.Encode()
	if _, err := unix.Write(fd, req); err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("write setup request", err)
	}

	respBuf := make([]byte, 4096)
	n, err := unix.Read(fd, respBuf)
	if err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("read setup response", err)
	}
	resp, rest, err := wire.DecodeSetupResponse(respBuf[:n])
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if resp.Error != 0 {
		unix.Close(fd)
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ipc: connection denied by server")
	}

	tr, err := buildClientTransport(fd, resp, rest)
	unix.Close(fd) // the setup socket is only needed for the handshake
	if err != nil {
		return nil, err
	}

	return &Client{transport: tr, cookie: resp.ConnectionCookie, maxMsgSize: int(resp.MaxMsgSize), fcEnableMax: 2}, nil
}

func buildClientTransport(setupFd int, resp wire.SetupResponse, rest []byte) (transport.Transport, error) {
	switch resp.Transport {
	case wire.TransportSocket:
		names, err := wire.DecodeNames(rest, 1)
		if err != nil {
			return nil, err
		}
		fds, err := recvTransportFds(setupFd)
		if err != nil {
			return nil, err
		}
		return transport.AdoptSocket(names[0], fds)
	default:
		names, err := wire.DecodeNames(rest, 3)
		if err != nil {
			return nil, err
		}
		return transport.OpenShm(names[0], names[1], names[2], int(resp.MaxMsgSize))
	}
}

// recvTransportFds reads the three datagram fds the server passed via
// SCM_RIGHTS alongside its setup response (spec.md §6.1).
func recvTransportFds(setupFd int) ([3]int, error) {
	oob := make([]byte, unix.CmsgSpace(3*4))
	_, oobn, _, _, err := unix.Recvmsg(setupFd, nil, oob, 0)
	if err != nil {
		return [3]int{}, api.NewSyscallError("recvmsg SCM_RIGHTS", err)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return [3]int{}, api.NewSyscallError("parse SCM_RIGHTS", err)
	}
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		if len(fds) == 3 {
			return [3]int{fds[0], fds[1], fds[2]}, nil
		}
	}
	return [3]int{}, api.NewError(api.ErrCodeInvalidArgument, "ipc: setup response carried no transport fds")
}

// Cookie returns the connection_cookie the server issued.
func (c *Client) Cookie() uint64 { return c.cookie }

// SetFCEnableMax sets the connection's flow-control threshold (spec.md
// §3 "fc_enable_max ∈ {1,2}"): Send on Request returns ErrWouldBlock
// whenever the server's fc_get() falls in [1, n]. Defaults to 2 (the
// most conservative setting, honoring both FC levels) at Dial time.
func (c *Client) SetFCEnableMax(n int) error {
	if n != 1 && n != 2 {
		return api.ErrInvalidArgument
	}
	c.fcEnableMax = n
	return nil
}

// Send writes msg on dir (Request, to reach the server). A Request send
// is refused with ErrWouldBlock while the server's flow-control level is
// within [1, fc_enable_max] (spec.md §4.5, §8 invariant 12).
func (c *Client) Send(dir transport.Direction, msg []byte) error {
	if len(msg) > c.maxMsgSize {
		return api.ErrMessageTooLarge
	}
	if dir == transport.Request {
		if level, err := c.transport.FCGet(); err == nil && level >= 1 && level <= uint32(c.fcEnableMax) {
			return api.ErrWouldBlock
		}
	}
	return c.transport.Send(dir, msg)
}

// Recv reads the next message on dir (Response or Event).
func (c *Client) Recv(dir transport.Direction, buf []byte, timeoutMs int) (int, error) {
	return c.transport.Recv(dir, buf, timeoutMs)
}

// FCGet reads the server's current flow-control level.
func (c *Client) FCGet() (uint32, error) {
	return c.transport.FCGet()
}

// Disconnect sends a graceful QB_IPC_MSG_DISCONNECT and releases the
// transport (spec.md §4.7 "Request dispatch": "header-id
// QB_IPC_MSG_DISCONNECT starts graceful teardown").
func (c *Client) Disconnect() error {
	hdr := make([]byte, wire.HeaderSize)
	wire.Header{Size: wire.HeaderSize, ID: wire.MsgDisconnect}.Encode(hdr)
	c.transport.Send(transport.Request, hdr)
	return c.transport.Disconnect()
}
