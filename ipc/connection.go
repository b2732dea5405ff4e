// File: ipc/connection.go
// Connection is a single accepted IPC peer (spec.md §4.7 "Disconnect
// state machine"), carrying the authenticated credentials, the
// transport the setup handshake negotiated, and the state machine that
// governs teardown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ipc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/internal/credpass"
	"github.com/loopmesh/qbipc/internal/genarena"
	"github.com/loopmesh/qbipc/ipc/transport"
	"github.com/loopmesh/qbipc/ipc/wire"
	"github.com/loopmesh/qbipc/loop"
)

// pollFallbackInterval paces dispatch for connections whose transport
// has no pollable descriptor (spec.md §4.3: sysv-sem and none notifiers
// have no fd). The loop drains such a connection on this cadence
// instead of waking on readiness.
const pollFallbackInterval = 2 * time.Millisecond

// State is a connection's position in spec.md §4.7's disconnect state
// machine.
type State int32

const (
	StateInactive State = iota
	StateActive
	StateEstablished
	StateShuttingDown
)

// Connection is an accepted IPC peer.
type Connection struct {
	mu sync.Mutex

	service   *Service
	transport transport.Transport
	creds     credpass.Creds
	cookie    uint64
	connID    int

	maxMsgSize    int
	maxBufferSize int

	state   atomic.Int32
	refs    atomic.Int32
	fdHdl   genarena.Handle
	fdAdded bool

	polling   bool
	pollTimer loop.TimerHandle
}

func newConnection(s *Service, tr transport.Transport, creds credpass.Creds, cookie uint64, maxMsgSize, maxBufferSize int) *Connection {
	c := &Connection{
		service:       s,
		transport:     tr,
		creds:         creds,
		cookie:        cookie,
		maxMsgSize:    maxMsgSize,
		maxBufferSize: maxBufferSize,
	}
	c.state.Store(int32(StateInactive))
	c.refs.Store(1)
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Creds returns the authenticated peer identity (spec.md §4.7 step 2).
func (c *Connection) Creds() credpass.Creds { return c.creds }

// Cookie returns the connection_cookie handed to the client in its
// setup response.
func (c *Connection) Cookie() uint64 { return c.cookie }

// ref increments the hold count guarding teardown (spec.md §4.7 "Guard:
// all state transitions hold a reference to c for the duration").
func (c *Connection) ref() { c.refs.Add(1) }

// unref releases a hold; the last release past SHUTTING_DOWN frees the
// transport.
func (c *Connection) unref() {
	if c.refs.Add(-1) == 0 && c.State() == StateShuttingDown {
		c.transport.Disconnect()
	}
}

// Send writes msg on dir (e.g. a response or event payload) after the
// server's msg_process callback decides to reply.
func (c *Connection) Send(dir transport.Direction, msg []byte) error {
	if len(msg) > c.maxMsgSize {
		return api.ErrMessageTooLarge
	}
	return c.transport.Send(dir, msg)
}

// SendV is the scatter-gather form of Send.
func (c *Connection) SendV(dir transport.Direction, iov [][]byte) error {
	return c.transport.SendV(dir, iov)
}

// dispatch drains up to maxDrain request messages (spec.md §4.7
// "Request dispatch": "drain up to min(q_len, 50) messages"), invoking
// the service's MsgProcess callback for each, and returns the number
// of messages it read and did not stop on (a MsgDisconnect, or a
// message whose MsgProcess returns negative, ends the drain uncounted).
func (c *Connection) dispatch(maxDrain int) int {
	svc := c.service
	qlen, err := c.transport.QLenGet(transport.Request)
	if err != nil {
		return 0
	}
	n := int(qlen)
	if n > maxDrain {
		n = maxDrain
	}

	buf := make([]byte, c.maxBufferSize)
	drained := 0
	for ; drained < n; drained++ {
		nRead, err := c.transport.Recv(transport.Request, buf, 0)
		if err != nil {
			break
		}
		hdr, err := wire.DecodeHeader(buf[:wire.HeaderSize])
		if err != nil {
			continue
		}
		if hdr.ID == wire.MsgDisconnect {
			c.beginShutdown()
			break
		}
		payload := buf[wire.HeaderSize:nRead]
		if svc.opts.Callbacks.MsgProcess != nil {
			rc := svc.opts.Callbacks.MsgProcess(c, hdr, payload)
			if rc < 0 {
				break
			}
		}
	}
	return drained
}

// startPolling drains this connection on a fixed cadence instead of
// fd-readiness, for transports whose notifier has no pollable
// descriptor (spec.md §4.3).
func (c *Connection) startPolling() {
	c.polling = true
	c.armPollTick()
}

func (c *Connection) armPollTick() {
	c.pollTimer = c.service.loop.AddTimer(time.Now().Add(pollFallbackInterval), c.pollTick, nil)
}

func (c *Connection) pollTick(data any) {
	if c.State() == StateShuttingDown || c.State() == StateInactive {
		return
	}
	c.dispatch(maxDrainPerPoll)
	if c.State() == StateShuttingDown || c.State() == StateInactive {
		return
	}
	c.armPollTick()
}

// beginShutdown makes the one-shot ESTABLISHED -> SHUTTING_DOWN
// transition (spec.md §4.7 "Disconnect state machine") and starts the
// connection_closed retry loop. Called again on an already-shutting-
// down connection (e.g. a duplicate MsgDisconnect) it is a no-op: the
// retry loop already owns reaping this connection exactly once.
func (c *Connection) beginShutdown() {
	if !c.state.CompareAndSwap(int32(StateEstablished), int32(StateShuttingDown)) {
		return
	}
	c.ref()
	defer c.unref()
	c.runClosedCallback()
}

// runClosedCallback invokes connection_closed and, while it keeps
// requesting a retry (non-zero return), reschedules itself at LOW
// priority instead of re-running the one-shot state transition
// above — otherwise a rescheduled retry would find the state already
// SHUTTING_DOWN, fail the CAS, and reap the connection immediately,
// silently dropping the callback's retry request (spec.md §4.7:
// "non-zero re-schedules another disconnect attempt").
func (c *Connection) runClosedCallback() {
	retry := false
	if c.service.opts.Callbacks.ConnectionClosed != nil {
		retry = c.service.opts.Callbacks.ConnectionClosed(c) != 0
	}
	if retry {
		c.ref()
		c.service.loop.AddJob(loop.Low, func() {
			defer c.unref()
			c.runClosedCallback()
		})
		return
	}
	c.service.removeConnection(c)
}

// ForceClose tears a connection down immediately, bypassing the retry
// negotiation above (spec.md §5 supplemented feature, grounded on
// libqb's force_close-style disconnect variants).
func (c *Connection) ForceClose() {
	c.state.Store(int32(StateShuttingDown))
	if c.polling {
		c.service.loop.DelTimer(c.pollTimer)
	}
	c.service.removeConnection(c)
	c.transport.Disconnect()
}
