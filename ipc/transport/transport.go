// File: ipc/transport/transport.go
// Package transport implements the two IPC transport variants spec.md
// §9 calls a "sealed sum type {Shm, Socket}": per-variant state behind
// one send/sendv/recv/peek/reclaim/fc_set/fc_get/q_len_get/connect/
// disconnect operation set. Go has no closed sum type, so this is
// ported as a single Transport interface implemented by exactly two
// concrete types, *Shm (built by NewShm or OpenShm) and *Socket (built
// by NewSocketPair or AdoptSocket).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package transport

// Direction selects one of a connection's three data paths (spec.md
// §3 "IPC connection").
type Direction int

const (
	Request Direction = iota
	Response
	Event
)

// Transport is the per-connection data-path contract common to both
// variants (spec.md §4.5, §4.6).
type Transport interface {
	// Send writes msg whole on dir (spec.md §4.5 "send(msg)").
	Send(dir Direction, msg []byte) error
	// SendV writes the concatenation of iov on dir in one chunk
	// (spec.md §4.5 "sendv(iov) = alloc + per-iov memcpy + commit").
	SendV(dir Direction, iov [][]byte) error
	// Recv reads the next message on dir into buf, waiting up to
	// timeoutMs.
	Recv(dir Direction, buf []byte, timeoutMs int) (int, error)
	// Peek returns a view of the next message on dir without consuming it.
	Peek(dir Direction, timeoutMs int) ([]byte, error)
	// Reclaim releases the message most recently returned by Peek.
	Reclaim(dir Direction) error

	// FCSet publishes a new flow-control level (server side).
	FCSet(level uint32) error
	// FCGet reads the current flow-control level (client side).
	FCGet() (uint32, error)
	// QLenGet reports the pending-message count used by the server's
	// request-dispatch drain bound: for *Shm, the ring notifier's count
	// of chunks posted and not yet waited for; for *Socket, the running
	// count of messages sent.
	QLenGet(dir Direction) (uint32, error)

	// FD returns a descriptor the event loop can poll for dir's
	// readiness (spec.md §4.7 "Register ... in the loop").
	FD(dir Direction) uintptr

	// Disconnect releases all transport-owned resources.
	Disconnect() error
}
