// File: ipc/service.go
// Service is the server side of spec.md §4.7: it owns a unix stream
// listen socket for the setup handshake, a Loop to run the accept and
// request-dispatch callbacks on, and the live Connection set.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ipc

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/internal/credpass"
	"github.com/loopmesh/qbipc/internal/genarena"
	"github.com/loopmesh/qbipc/internal/qblog"
	"github.com/loopmesh/qbipc/ipc/transport"
	"github.com/loopmesh/qbipc/ipc/wire"
	"github.com/loopmesh/qbipc/loop"
	"github.com/loopmesh/qbipc/ring/notify"
)

// maxDrainPerPoll bounds how many requests dispatch drains from one
// connection per loop iteration (spec.md §4.7 "drain up to min(q_len,
// 50) messages").
const maxDrainPerPoll = 50

// unusablePollFD is the sentinel Transport.FD returns when a direction
// has no descriptor the loop can poll (spec.md §4.3: sysv-sem and none
// notifiers carry no fd).
const unusablePollFD = ^uintptr(0)

// Callbacks are the server-authored hooks spec.md §4.7 invokes during
// accept, post-accept, teardown, and per-message dispatch.
type Callbacks struct {
	// ConnectionAccept decides whether to admit a new peer; non-zero
	// denies the connection and is propagated to the client as the
	// setup response's error.
	ConnectionAccept func(uid, gid uint32) int32
	// ConnectionCreated runs once a connection reaches ESTABLISHED.
	ConnectionCreated func(c *Connection)
	// ConnectionClosed runs during teardown; non-zero re-schedules
	// another disconnect attempt at LOW priority.
	ConnectionClosed func(c *Connection) int32
	// MsgProcess handles one drained request; negative stops draining
	// the connection for this iteration (backpressure).
	MsgProcess func(c *Connection, hdr wire.Header, payload []byte) int32
}

// Options configures a Service.
type Options struct {
	SocketPath    string
	Transport     wire.TransportType
	MaxMsgSize    int
	MaxBufferSize int
	PollPriority  loop.Priority
	Notifier      notify.Kind
	Loop          *loop.Loop
	Log           qblog.Logger
	Callbacks     Callbacks
}

// Service is an accepting IPC endpoint.
type Service struct {
	mu sync.Mutex

	opts   Options
	loop   *loop.Loop
	log    qblog.Logger
	srvPID int

	listenFd  int
	listenHdl genarena.Handle

	connections map[int]*Connection
	pollPriority loop.Priority
	fc           uint32

	nextConnID int
}

// NewService creates a Service bound to opts.SocketPath, registering
// its accept handler on opts.Loop (spec.md §4.7 "Connection
// acceptance").
func NewService(opts Options) (*Service, error) {
	if opts.Loop == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ipc: service requires a Loop")
	}
	if opts.Log == nil {
		opts.Log = qblog.NewNop()
	}
	if opts.MaxBufferSize < opts.MaxMsgSize {
		opts.MaxBufferSize = opts.MaxMsgSize
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, api.NewSyscallError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("setnonblock", err)
	}
	if err := credpass.EnablePassCred(fd); err != nil {
		opts.Log.Emit(qblog.LevelWarn, "service.go", 0, "NewService", "EnablePassCred failed, continuing with anonymized credentials")
	}
	_ = unix.Unlink(opts.SocketPath)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: opts.SocketPath}); err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, 64); err != nil {
		unix.Close(fd)
		return nil, api.NewSyscallError("listen", err)
	}

	s := &Service{
		opts:         opts,
		loop:         opts.Loop,
		log:          opts.Log,
		srvPID:       os.Getpid(),
		listenFd:     fd,
		connections:  make(map[int]*Connection),
		pollPriority: opts.PollPriority,
	}

	hdl, err := s.loop.AddFd(fd, loop.EventRead, s.pollPriority, s.onAcceptReady, nil)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.listenHdl = hdl
	return s, nil
}

func (s *Service) onAcceptReady(fd int, revents loop.Events, data any) int {
	for {
		connFd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return 0
			}
			if err == unix.EINTR {
				continue
			}
			s.log.Emit(qblog.LevelError, "service.go", 0, "onAcceptReady", "accept failed")
			return 0
		}
		if err := s.acceptConnection(connFd); err != nil {
			s.log.Emit(qblog.LevelWarn, "service.go", 0, "acceptConnection", err.Error())
			unix.Close(connFd)
		}
	}
}

// acceptConnection performs spec.md §4.7 steps 2-7 for one newly
// accepted setup-socket fd.
func (s *Service) acceptConnection(connFd int) error {
	if err := credpass.EnablePassCred(connFd); err != nil {
		s.log.Emit(qblog.LevelWarn, "service.go", 0, "acceptConnection", "EnablePassCred failed on accepted socket")
	}

	reqBuf := make([]byte, wire.SetupRequestSize)
	if err := readFull(connFd, reqBuf); err != nil {
		return err
	}
	req, err := wire.DecodeSetupRequest(reqBuf)
	if err != nil {
		return err
	}

	creds, err := credpass.PeerCreds(connFd)
	if err != nil {
		s.log.Emit(qblog.LevelWarn, "service.go", 0, "acceptConnection", "peer credentials unavailable, using anonymized zeros")
	}

	maxBufferSize := int(req.MaxMsgSize)
	if s.opts.MaxBufferSize > maxBufferSize {
		maxBufferSize = s.opts.MaxBufferSize
	}

	if s.opts.Callbacks.ConnectionAccept != nil {
		if rc := s.opts.Callbacks.ConnectionAccept(creds.UID, creds.GID); rc != 0 {
			resp := wire.SetupResponse{Error: uint32(-rc)}.Encode()
			unix.Write(connFd, resp)
			return api.NewError(api.ErrCodeInvalidArgument, "ipc: connection denied by connection_accept")
		}
	}

	s.nextConnID++
	sockID := s.nextConnID

	tr, names, err := s.connectTransport(connFd, sockID, int(creds.PID), int(creds.UID), int(creds.GID), maxBufferSize)
	if err != nil {
		resp := wire.SetupResponse{Error: 1}.Encode()
		unix.Write(connFd, resp)
		return err
	}

	cookie := newConnectionCookie()
	conn := newConnection(s, tr, creds, cookie, s.opts.MaxMsgSize, maxBufferSize)
	conn.state.Store(int32(StateActive))

	resp := wire.SetupResponse{
		ConnectionCookie: cookie,
		Transport:        s.opts.Transport,
		MaxMsgSize:       uint32(maxBufferSize),
	}.Encode()
	resp = append(resp, wire.EncodeNames(names...)...)
	if _, err := unix.Write(connFd, resp); err != nil {
		tr.Disconnect()
		return api.NewSyscallError("write setup response", err)
	}

	conn.connID = sockID
	if fd := tr.FD(transport.Request); fd != unusablePollFD {
		hdl, err := s.loop.AddFd(int(fd), loop.EventRead, s.pollPriority, s.onConnectionReady(conn), nil)
		if err != nil {
			tr.Disconnect()
			return err
		}
		conn.fdHdl = hdl
		conn.fdAdded = true
	} else {
		// KindSysvSem/KindNone notifiers have no descriptor to poll
		// (spec.md §4.3); drain on a timer instead.
		conn.startPolling()
	}

	s.mu.Lock()
	s.connections[conn.connID] = conn
	s.mu.Unlock()

	conn.state.Store(int32(StateEstablished))
	if s.opts.Callbacks.ConnectionCreated != nil {
		s.opts.Callbacks.ConnectionCreated(conn)
	}
	return nil
}

func (s *Service) onConnectionReady(c *Connection) loop.FdDispatch {
	return func(fd int, revents loop.Events, data any) int {
		c.dispatch(maxDrainPerPoll)
		if c.State() == StateShuttingDown || c.State() == StateInactive {
			return -1
		}
		return 0
	}
}

func (s *Service) removeConnection(c *Connection) {
	s.mu.Lock()
	delete(s.connections, c.connID)
	s.mu.Unlock()
	if c.fdAdded {
		s.loop.DelFd(c.fdHdl)
	}
	c.unref()
}

// connectTransport creates the negotiated transport variant for one
// connection (spec.md §4.7 step 6).
func (s *Service) connectTransport(setupFd, sockID, clientPID, clientUID, clientGID, maxBufferSize int) (transport.Transport, []string, error) {
	switch s.opts.Transport {
	case wire.TransportSocket:
		prefix, err := transport.MakeConnectionDir(s.srvPID, clientPID, sockID, clientUID, clientGID, s.log)
		if err != nil {
			return nil, nil, err
		}
		local, peer, err := transport.NewSocketPair(prefix, maxBufferSize)
		if err != nil {
			return nil, nil, err
		}
		if err := sendTransportFds(setupFd, peer); err != nil {
			local.Disconnect()
			peer.Disconnect()
			return nil, nil, err
		}
		peer.CloseLocalFds()
		return local, []string{prefix}, nil
	default:
		prefix, err := transport.MakeConnectionDir(s.srvPID, clientPID, sockID, clientUID, clientGID, s.log)
		if err != nil {
			return nil, nil, err
		}
		tr, err := transport.NewShm(transport.ShmOptions{
			NamePrefix:    prefix,
			RequestBytes:  maxBufferSize,
			ResponseBytes: maxBufferSize,
			EventBytes:    maxBufferSize,
			Owner:         true,
			Notifier:      s.opts.Notifier,
		})
		if err != nil {
			return nil, nil, err
		}
		return tr, []string{prefix + "-request", prefix + "-response", prefix + "-event"}, nil
	}
}

// SetRateLimit implements spec.md §5's supplemented rate-limiting
// feature: re-arm every live connection's fd at a new loop priority
// and toggle flow control (0 clear, 1 OFF, 2 OFF_2).
func (s *Service) SetRateLimit(level int) error {
	var newPriority loop.Priority
	switch level {
	case 0:
		newPriority = loop.High
	case 1, 2:
		newPriority = loop.Low
	default:
		return api.ErrInvalidArgument
	}

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.pollPriority = newPriority
	s.fc = uint32(level)
	s.mu.Unlock()

	for _, c := range conns {
		c.transport.FCSet(uint32(level))
		if c.fdAdded {
			s.loop.DelFd(c.fdHdl)
			hdl, err := s.loop.AddFd(int(c.transport.FD(transport.Request)), loop.EventRead, newPriority, s.onConnectionReady(c), nil)
			if err != nil {
				continue
			}
			c.fdHdl = hdl
		}
	}
	return nil
}

// Close stops accepting and force-closes every live connection.
func (s *Service) Close() error {
	s.loop.DelFd(s.listenHdl)
	unix.Close(s.listenFd)
	unix.Unlink(s.opts.SocketPath)

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.ForceClose()
	}
	return nil
}

// readFull reads exactly len(buf) bytes from fd, which is non-blocking
// (accepted with SOCK_NONBLOCK alongside the listen socket): an EAGAIN
// blocks on poll for readability instead of spinning, since the peer's
// setup request may not have arrived in full yet.
func readFull(fd int, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := unix.Read(fd, buf[off:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				if perr := pollReadable(fd, setupReadTimeoutMs); perr != nil {
					return perr
				}
				continue
			}
			return api.NewSyscallError("read setup request", err)
		}
		if n == 0 {
			return api.ErrNotConnected
		}
		off += n
	}
	return nil
}

// setupReadTimeoutMs bounds how long acceptConnection waits for a
// slow or stalled peer to finish writing its setup request.
const setupReadTimeoutMs = 5000

func pollReadable(fd int, timeoutMs int) error {
	for {
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return api.NewSyscallError("poll setup socket", err)
		}
		if n == 0 {
			return api.ErrTimedOut
		}
		return nil
	}
}

// sendTransportFds passes the peer half of each socket pair to the
// client over the setup connection via SCM_RIGHTS (spec.md §6.1 "Six
// eventfd fds follow via SCM_RIGHTS", the same mechanism used for the
// unix-socket transport's three datagram fds).
func sendTransportFds(setupFd int, peer *transport.Socket) error {
	fds := peer.Fds()
	rights := unix.UnixRights(fds...)
	if err := unix.Sendmsg(setupFd, []byte{0}, rights, nil, 0); err != nil {
		return api.NewSyscallError("sendmsg SCM_RIGHTS", err)
	}
	return nil
}
