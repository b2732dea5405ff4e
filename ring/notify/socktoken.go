//go:build !windows

// File: ring/notify/socktoken.go
//
// Socket byte-token notifier (spec §4.3, §9 "needs_sock_for_poll"): the
// portable fallback for platforms without an eventfd. (The unix-socket
// IPC transport keeps its sent/flow_control pair in an mmap control
// page, not here.) A SOCK_DGRAM pair is used so each
// Post is exactly one token, mirroring the eventfd-semaphore accounting.

package notify

import (
	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

type sockTokenNotifier struct {
	fd int
}

// NewSockTokenPair creates a connected datagram socket pair; the first
// Notifier is meant for the poster (producer), the second for the
// waiter (consumer) — though either side may Post or TimedWait since
// the underlying socket is symmetric.
func NewSockTokenPair() (a, b Notifier, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, nil, api.NewSyscallError("socketpair", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, api.NewSyscallError("setnonblock", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, api.NewSyscallError("setnonblock", err)
	}
	return &sockTokenNotifier{fd: fds[0]}, &sockTokenNotifier{fd: fds[1]}, nil
}

// AdoptSockToken wraps an fd received via SCM_RIGHTS or inherited
// directly (e.g. the setup socket itself, used as a one-byte "message
// available" ping when needs_sock_for_poll forces it).
func AdoptSockToken(fd int) Notifier { return &sockTokenNotifier{fd: fd} }

func (n *sockTokenNotifier) Post(count uint32) error {
	token := []byte{1}
	for i := uint32(0); i < count; i++ {
		if _, err := unix.Write(n.fd, token); err != nil {
			return api.NewSyscallError("socktoken write", err)
		}
	}
	return nil
}

func (n *sockTokenNotifier) TimedWait(timeoutMs int) error {
	for {
		pfd := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
		nReady, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return api.NewSyscallError("poll", err)
		}
		if nReady == 0 {
			return api.ErrTimedOut
		}
		buf := make([]byte, 1)
		if _, err := unix.Read(n.fd, buf); err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return api.NewSyscallError("socktoken read", err)
		}
		return nil
	}
}

func (n *sockTokenNotifier) ChunksUsed() uint32 {
	pfd := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
	if nReady, err := unix.Poll(pfd, 0); err == nil && nReady > 0 {
		return 1
	}
	return 0
}

func (n *sockTokenNotifier) FD() uintptr { return uintptr(n.fd) }

func (n *sockTokenNotifier) Close() error { return unix.Close(n.fd) }
