// File: ring/notify/notify.go
// Package notify abstracts the "producer posted, wake the consumer"
// signal coupling a ring buffer to the event loop (spec §4.3).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package notify

import "time"

// Notifier couples a ring buffer's writer and reader across processes.
// post must be at-least-once: spurious wakes are allowed, and callers
// must re-check chunk availability after TimedWait returns.
type Notifier interface {
	// Post signals that n additional chunks became available.
	Post(n uint32) error

	// TimedWait blocks until a post is observed or the deadline elapses.
	// timeoutMs == -1 blocks indefinitely; 0 is a non-blocking poll;
	// positive values are a relative wait in milliseconds. Returns
	// api.ErrTimedOut if the deadline elapses with nothing posted.
	TimedWait(timeoutMs int) error

	// ChunksUsed returns the notifier's view of outstanding chunks.
	ChunksUsed() uint32

	// FD returns a file descriptor the event loop can poll for
	// readiness, or -1 if this variant has no pollable descriptor.
	FD() uintptr

	// Close tears down the notifier. Pending waiters observe
	// api.ErrNotifierRemoved.
	Close() error
}

// Kind selects a notifier implementation.
type Kind int

const (
	// KindNone performs no signaling; TimedWait returns immediately.
	KindNone Kind = iota
	// KindEventfd uses one semaphore-mode Linux eventfd and counts
	// posted chunks not yet waited for.
	KindEventfd
	// KindSysvSem uses a process-shared SysV counting semaphore.
	KindSysvSem
	// KindSockToken uses a connected socket pair exchanging byte tokens,
	// the portable fallback per spec §9 "needs_sock_for_poll".
	KindSockToken
)

func deadline(timeoutMs int) (time.Time, bool) {
	if timeoutMs < 0 {
		return time.Time{}, false
	}
	return time.Now().Add(time.Duration(timeoutMs) * time.Millisecond), true
}
