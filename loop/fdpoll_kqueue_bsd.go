//go:build darwin || freebsd || netbsd || openbsd

// File: loop/fdpoll_kqueue_bsd.go
//
// kqueue back-end (spec.md §4.4: "kqueue (BSD/macOS): EV_ADD|EV_ENABLE
// on add; on mod delete old filters, add new; EOF maps to POLLHUP;
// EV_ERROR maps to POLLERR"). The teacher has no kqueue/BSD reactor to
// ground this on (its non-Linux path is Windows IOCP); this follows
// the same Poller vtable shape as fdpoll_epoll_linux.go, built from
// golang.org/x/sys/unix's Kqueue/Kevent bindings.

package loop

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

type kqueuePoller struct {
	kq int

	mu       sync.Mutex
	watched  map[int]Events // fd -> currently armed filters
	userData map[int]uint64 // fd -> opaque token
}

func newFdPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, api.NewSyscallError("kqueue", err)
	}
	return &kqueuePoller{
		kq:       kq,
		watched:  make(map[int]Events),
		userData: make(map[int]uint64),
	}, nil
}

func (p *kqueuePoller) changeFilters(fd int, want Events, have Events) error {
	var changes []unix.Kevent_t
	if want&EventRead != 0 && have&EventRead == 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE))
	}
	if want&EventRead == 0 && have&EventRead != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if want&EventWrite != 0 && have&EventWrite == 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE))
	}
	if want&EventWrite == 0 && have&EventWrite != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return api.NewSyscallError("kevent change", err)
	}
	return nil
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
}

func (p *kqueuePoller) Add(fd int, events Events, userData uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.changeFilters(fd, events, 0); err != nil {
		return err
	}
	p.watched[fd] = events
	p.userData[fd] = userData
	return nil
}

func (p *kqueuePoller) Mod(fd int, events Events, userData uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	have := p.watched[fd]
	if err := p.changeFilters(fd, events, have); err != nil {
		return err
	}
	p.watched[fd] = events
	p.userData[fd] = userData
	return nil
}

func (p *kqueuePoller) Del(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	have := p.watched[fd]
	if err := p.changeFilters(fd, 0, have); err != nil {
		return err
	}
	delete(p.watched, fd)
	delete(p.userData, fd)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int, out []ReadyFD) (int, error) {
	events := make([]unix.Kevent_t, len(out))
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.NewSyscallError("kevent wait", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Ident)
		ud, ok := p.userData[fd]
		if !ok {
			continue
		}
		var e Events
		switch events[i].Filter {
		case unix.EVFILT_READ:
			e |= EventRead
		case unix.EVFILT_WRITE:
			e |= EventWrite
		}
		if events[i].Flags&unix.EV_EOF != 0 {
			e |= EventHup
		}
		if events[i].Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		out[count] = ReadyFD{Events: e, UserData: ud}
		count++
	}
	return count, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
