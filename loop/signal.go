// File: loop/signal.go
// Signal source: a process-wide self-pipe and {signo -> handlers} map,
// lazily initialized once and shared by every Loop in the process
// (spec.md §4.4, §9 "Signal plumbing").
package loop

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// SignalFunc is invoked, as a HIGH priority job, when its signal fires.
type SignalFunc func(sig os.Signal)

type signalRegistry struct {
	mu       sync.Mutex
	handlers map[os.Signal][]SignalFunc
	ch       chan os.Signal
}

var (
	sigOnce sync.Once
	sigReg  *signalRegistry
)

func globalSignalRegistry() *signalRegistry {
	sigOnce.Do(func() {
		sigReg = &signalRegistry{
			handlers: make(map[os.Signal][]SignalFunc),
			ch:       make(chan os.Signal, 16),
		}
	})
	return sigReg
}

// register adds fn for sig, arming it with the os/signal package the
// first time sig is seen. Go's runtime already implements the
// "self-pipe" (os/signal's internal pipe) for us; we don't re-wire
// SIGBUS/SIGPIPE scoping here since those are handled per spec.md §7
// at the SHM/socket call sites (MSG_NOSIGNAL / scoped SIGBUS guard),
// not via this job-dispatch path.
func (r *signalRegistry) register(sig os.Signal, fn SignalFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[sig]; !ok {
		signal.Notify(r.ch, sig)
	}
	r.handlers[sig] = append(r.handlers[sig], fn)
}

// drain delivers every pending signal to fn as a dispatchable job.
func (r *signalRegistry) drain(fn func(Job)) int {
	delivered := 0
	for {
		select {
		case sig := <-r.ch:
			r.mu.Lock()
			hs := append([]SignalFunc(nil), r.handlers[sig]...)
			r.mu.Unlock()
			for _, h := range hs {
				h := h
				fn(func() { h(sig) })
				delivered++
			}
		default:
			return delivered
		}
	}
}

// SuppressSIGPIPE ignores SIGPIPE process-wide, the portable
// equivalent of MSG_NOSIGNAL/SO_NOSIGPIPE for platforms/syscalls that
// don't support those flags directly (spec.md §7 "Signal handling").
func SuppressSIGPIPE() {
	signal.Ignore(unix.SIGPIPE)
}
