//go:build linux

// File: loop/fdpoll_epoll_linux.go
//
// epoll back-end (spec.md §4.4: "epoll (Linux): one-shot? No —
// level-triggered; payload is (check<<32)|install_pos"). Grounded on
// the teacher's reactor/reactor_linux.go, which packs an opaque
// uintptr into EpollEvent.Fd/Pad via unsafe.Pointer since
// golang.org/x/sys/unix's EpollEvent exposes epoll_data as those two
// raw int32 fields rather than a setter method.

package loop

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

type epollPoller struct {
	epfd int
}

// newFdPoller constructs the platform default Poller.
func newFdPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewSyscallError("epoll_create1", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpollEvents(e Events) uint32 {
	var ev uint32
	if e&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if e&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) Events {
	var e Events
	if ev&unix.EPOLLIN != 0 {
		e |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		e |= EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		e |= EventHup
	}
	return e
}

func setEpollData(ev *unix.EpollEvent, userData uint64) {
	*(*uint64)(unsafe.Pointer(&ev.Fd)) = userData
}

func getEpollData(ev *unix.EpollEvent) uint64 {
	return *(*uint64)(unsafe.Pointer(&ev.Fd))
}

func (p *epollPoller) Add(fd int, events Events, userData uint64) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events)}
	setEpollData(&ev, userData)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return api.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

func (p *epollPoller) Mod(fd int, events Events, userData uint64) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events)}
	setEpollData(&ev, userData)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return api.NewSyscallError("epoll_ctl mod", err)
	}
	return nil
}

func (p *epollPoller) Del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return api.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (p *epollPoller) Wait(timeoutMs int, out []ReadyFD) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		out[i] = ReadyFD{
			Events:   fromEpollEvents(raw[i].Events),
			UserData: getEpollData(&raw[i]),
		}
	}
	return n, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
