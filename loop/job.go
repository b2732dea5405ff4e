// File: loop/job.go
// Job source: a cross-goroutine "wait" queue per priority (submissions
// from outside the loop goroutine, e.g. a signal handler scheduling a
// disconnect) drained each iteration into a same-goroutine "job" FIFO
// the loop dispatches from directly (spec.md §4.4 step 2).
package loop

import (
	"github.com/eapache/queue"

	"github.com/loopmesh/qbipc/internal/lockfree"
)

// Job is a unit of work dispatched by the loop at its priority.
// A Job never blocks: spec.md's single-threaded model has no way to
// preempt a running job.
type Job func()

const pendingCapacity = 1024

type jobLevel struct {
	pending *lockfree.Queue[Job] // cross-goroutine submissions ("wait")
	ready   *queue.Queue         // same-goroutine dispatch FIFO ("job")
	toProcess int
}

func newJobLevel() *jobLevel {
	return &jobLevel{
		pending:   lockfree.New[Job](pendingCapacity),
		ready:     queue.New(),
		toProcess: defaultToProcess,
	}
}

// submit enqueues a job from any goroutine. Returns false if the
// pending queue is saturated (backpressure, spec.md §9 "never drop").
func (l *jobLevel) submit(j Job) bool {
	return l.pending.Enqueue(j)
}

// drainPending moves every currently-queued pending job into the ready
// FIFO, returning how many were moved.
func (l *jobLevel) drainPending() int {
	moved := 0
	for {
		j, ok := l.pending.Dequeue()
		if !ok {
			return moved
		}
		l.ready.Add(j)
		moved++
	}
}

// runUpTo dispatches up to n jobs from the ready FIFO, in insertion
// order (spec.md §4.4 "Ordering").
func (l *jobLevel) runUpTo(n int) int {
	ran := 0
	for ran < n && l.ready.Length() > 0 {
		j := l.ready.Peek().(Job)
		l.ready.Remove()
		j()
		ran++
	}
	return ran
}

func (l *jobLevel) hasWork() bool {
	return l.ready.Length() > 0 || l.pending.Len() > 0
}
