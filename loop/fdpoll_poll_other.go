//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// File: loop/fdpoll_poll_other.go
//
// poll(2) fallback back-end (spec.md §4.4: "poll (fallback): mirrors
// per-entry pollfd into a compact array at poll time").

package loop

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

type pollPoller struct {
	mu       sync.Mutex
	watched  map[int]Events
	userData map[int]uint64
}

func newFdPoller() (Poller, error) {
	return &pollPoller{
		watched:  make(map[int]Events),
		userData: make(map[int]uint64),
	}, nil
}

func toPollEvents(e Events) int16 {
	var ev int16
	if e&EventRead != 0 {
		ev |= unix.POLLIN
	}
	if e&EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPollEvents(ev int16) Events {
	var e Events
	if ev&unix.POLLIN != 0 {
		e |= EventRead
	}
	if ev&unix.POLLOUT != 0 {
		e |= EventWrite
	}
	if ev&unix.POLLERR != 0 {
		e |= EventError
	}
	if ev&(unix.POLLHUP|unix.POLLNVAL) != 0 {
		e |= EventHup
	}
	return e
}

func (p *pollPoller) Add(fd int, events Events, userData uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watched[fd] = events
	p.userData[fd] = userData
	return nil
}

func (p *pollPoller) Mod(fd int, events Events, userData uint64) error {
	return p.Add(fd, events, userData)
}

func (p *pollPoller) Del(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watched, fd)
	delete(p.userData, fd)
	return nil
}

func (p *pollPoller) Wait(timeoutMs int, out []ReadyFD) (int, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.watched))
	tokens := make([]uint64, 0, len(p.watched))
	for fd, ev := range p.watched {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(ev)})
		tokens = append(tokens, p.userData[fd])
	}
	p.mu.Unlock()

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.NewSyscallError("poll", err)
	}
	if n == 0 {
		return 0, nil
	}

	count := 0
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		if count >= len(out) {
			break
		}
		out[count] = ReadyFD{Events: fromPollEvents(pfd.Revents), UserData: tokens[i]}
		count++
	}
	return count, nil
}

func (p *pollPoller) Close() error { return nil }
