// File: loop/loop.go
// Loop is the single-threaded cooperative event loop from spec.md §4.4:
// it owns the thread it runs on, and ties the job, timer, fd, and
// signal sources together through one Run iteration.
package loop

import (
	"os"
	"time"

	"github.com/loopmesh/qbipc/internal/genarena"
)

// FdDispatch is the user callback spec.md §4.4 step 6 describes:
// (fd, revents, data) -> int. A negative return removes the fd.
type FdDispatch func(fd int, revents Events, data any) int

type pollEntry struct {
	fd       int
	events   Events
	priority Priority
	dispatch FdDispatch
	data     any
}

// Loop is not safe for concurrent Run calls. AddJob may be called from
// any goroutine (it only touches the cross-goroutine pending queues);
// AddFd, DelFd, AddTimer and DelTimer update the fd and timer tables
// without locking.
type Loop struct {
	levels  [numPriorities]*jobLevel
	timers  *timerSource
	poller  Poller
	entries *genarena.Arena[*pollEntry]
	signals *signalRegistry

	stopped chan struct{}
	running bool
}

// New constructs a Loop with the platform default fd poller.
func New() (*Loop, error) {
	poller, err := newFdPoller()
	if err != nil {
		return nil, err
	}
	l := &Loop{
		timers:  newTimerSource(),
		poller:  poller,
		entries: genarena.New[*pollEntry](),
		signals: globalSignalRegistry(),
		stopped: make(chan struct{}, 1),
	}
	for p := 0; p < numPriorities; p++ {
		l.levels[p] = newJobLevel()
	}
	return l, nil
}

func packHandle(h genarena.Handle) uint64 {
	return uint64(h.Generation)<<32 | uint64(h.Index)
}

func unpackHandle(u uint64) genarena.Handle {
	return genarena.Handle{Index: uint32(u), Generation: uint32(u >> 32)}
}

// AddJob submits fn to run at priority p. Safe to call from any
// goroutine (spec.md §9: loop_job.c supports cross-thread submission).
func (l *Loop) AddJob(p Priority, fn Job) bool {
	return l.levels[p].submit(fn)
}

// AddTimer arms a one-shot timer, dispatched as a HIGH priority job
// when it expires.
func (l *Loop) AddTimer(at time.Time, fn TimerFunc, data any) TimerHandle {
	return l.timers.Add(at, fn, data)
}

// DelTimer cancels a still-armed timer.
func (l *Loop) DelTimer(h TimerHandle) error {
	return l.timers.Del(h)
}

// AddSignal registers fn to run, as a HIGH priority job, whenever any
// of sigs is delivered to the process.
func (l *Loop) AddSignal(fn SignalFunc, sigs ...os.Signal) {
	for _, s := range sigs {
		l.signals.register(s, fn)
	}
}

// AddFd registers fd for events at priority p; dispatch is invoked when
// it becomes ready. Returns a handle usable with DelFd.
func (l *Loop) AddFd(fd int, events Events, p Priority, dispatch FdDispatch, data any) (genarena.Handle, error) {
	entry := &pollEntry{fd: fd, events: events, priority: p, dispatch: dispatch, data: data}
	h := l.entries.Put(entry)
	if err := l.poller.Add(fd, events, packHandle(h)); err != nil {
		l.entries.Delete(h)
		return genarena.Handle{}, err
	}
	return h, nil
}

// DelFd removes a previously registered fd.
func (l *Loop) DelFd(h genarena.Handle) error {
	entry, err := l.entries.Get(h)
	if err != nil {
		return err
	}
	if err := l.poller.Del(entry.fd); err != nil {
		return err
	}
	return l.entries.Delete(h)
}

// Stop requests the loop exit after its current job dispatch, checked
// between jobs per spec.md §4.4 "Cancellation" (jobs are not
// interrupted mid-call).
func (l *Loop) Stop() {
	select {
	case l.stopped <- struct{}{}:
	default:
	}
}

func (l *Loop) isStopped() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

// Close tears down the loop's fd poller.
func (l *Loop) Close() error {
	return l.poller.Close()
}

// Run services the loop until Stop is called, following spec.md §4.4's
// six-step iteration: rotate p_stop, poll jobs, poll timers, compute
// ms_timeout, poll fds, then dispatch up to each level's quota from
// HIGH down to p_stop.
func (l *Loop) Run() error {
	pStop := Low
	const maxEventsPerPoll = 128
	readyBuf := make([]ReadyFD, maxEventsPerPoll)

	for {
		if l.isStopped() {
			return nil
		}
		pStop = rotate(pStop)

		jobsAdded := 0
		for p := 0; p < numPriorities; p++ {
			jobsAdded += l.levels[p].drainPending()
		}
		jobsAdded += l.signals.drain(func(j Job) { l.levels[High].ready.Add(j) })

		now := time.Now()
		timersFired := l.timers.poll(now, func(fn TimerFunc, data any) {
			l.levels[High].ready.Add(Job(func() { fn(data) }))
		})

		hasReadyWork := timersFired > 0
		for p := 0; p < numPriorities && !hasReadyWork; p++ {
			hasReadyWork = l.levels[p].ready.Length() > 0
		}

		msTimeout := l.computeTimeout(hasReadyWork, jobsAdded > 0 && timersFired == 0)

		n, err := l.poller.Wait(msTimeout, readyBuf)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			l.dispatchReady(readyBuf[i])
		}

		for p := High; p >= pStop; p-- {
			for i := 0; i < l.levels[p].toProcess; i++ {
				if l.levels[p].runUpTo(1) == 0 {
					break
				}
				if l.isStopped() {
					return nil
				}
			}
		}
	}
}

func (l *Loop) computeTimeout(hasReadyWork, spinBounded bool) int {
	if hasReadyWork {
		return 0
	}
	if spinBounded {
		return 50
	}
	if at, ok := l.timers.nextExpiry(); ok {
		d := time.Until(at)
		if d <= 0 {
			return 0
		}
		return int(d / time.Millisecond)
	}
	return -1
}

func (l *Loop) dispatchReady(r ReadyFD) {
	h := unpackHandle(r.UserData)
	entry, err := l.entries.Get(h)
	if err != nil {
		return // stale check cookie: entry was deleted/reused since Add
	}
	l.levels[entry.priority].ready.Add(Job(func() {
		if entry.dispatch(entry.fd, r.Events, entry.data) < 0 {
			l.poller.Del(entry.fd)
			l.entries.Delete(h)
		}
	}))
}
