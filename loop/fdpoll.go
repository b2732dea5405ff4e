// File: loop/fdpoll.go
// Fd driver abstraction: a small vtable with epoll/kqueue/poll
// back-ends (spec.md §4.4 "Fd driver abstraction").
package loop

// Events is a bitmask of readiness conditions, independent of any
// platform's native constants.
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	EventError
	EventHup
)

// ReadyFD reports one fd's readiness from a poller.Wait call. UserData
// is the opaque token the caller passed to Add/Mod — every back-end
// resolves it from its own bookkeeping rather than exposing the raw fd,
// mirroring spec.md §4.4's epoll note that the payload carrying
// "(check<<32)|install_pos" (not the fd) is what the loop dispatches on.
type ReadyFD struct {
	Events   Events
	UserData uint64
}

// Poller is the fd-source vtable spec.md §4.4 names: add/mod/del/poll/fini.
type Poller interface {
	Add(fd int, events Events, userData uint64) error
	Mod(fd int, events Events, userData uint64) error
	Del(fd int) error
	Wait(timeoutMs int, out []ReadyFD) (int, error)
	Close() error
}
