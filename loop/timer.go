// File: loop/timer.go
// Timer source: a min-heap of expirations (spec.md §3 "Timer node",
// §4.4 "Deleting a timer ... removes it from both heap and joblist").
package loop

import (
	"container/heap"
	"time"

	"github.com/loopmesh/qbipc/internal/genarena"
)

// TimerFunc is invoked, as a HIGH priority job, when a timer expires.
type TimerFunc func(data any)

type timerNode struct {
	expireAt time.Time
	callback TimerFunc
	data     any
	canceled bool
	index    int // heap slot, maintained by container/heap swaps
}

type timerHeapImpl []*timerNode

func (h timerHeapImpl) Len() int { return len(h) }
func (h timerHeapImpl) Less(i, j int) bool { return h[i].expireAt.Before(h[j].expireAt) }
func (h timerHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeapImpl) Push(x any) {
	n := x.(*timerNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *timerHeapImpl) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// timerSource owns the heap plus a handle arena so TimerHandle values
// can be validated against reuse/deletion (spec.md §9 "Handle-based
// cross-process references" applied to the in-process timer table).
type timerSource struct {
	h      timerHeapImpl
	arena  *genarena.Arena[*timerNode]
}

func newTimerSource() *timerSource {
	return &timerSource{arena: genarena.New[*timerNode]()}
}

// TimerHandle identifies an armed timer for Loop.DelTimer.
type TimerHandle = genarena.Handle

// Add arms a one-shot timer expiring at expireAt.
func (s *timerSource) Add(expireAt time.Time, cb TimerFunc, data any) TimerHandle {
	n := &timerNode{expireAt: expireAt, callback: cb, data: data}
	heap.Push(&s.h, n)
	return s.arena.Put(n)
}

// Del cancels a timer. A still-armed timer is removed from the heap; a
// timer already expired and queued as a job stays in the job queue,
// but canceled is set and the arena handle invalidated, so that queued
// job does nothing when it runs.
func (s *timerSource) Del(h TimerHandle) error {
	n, err := s.arena.Get(h)
	if err != nil {
		return err
	}
	n.canceled = true
	if n.index >= 0 && n.index < len(s.h) {
		heap.Remove(&s.h, n.index)
	}
	return s.arena.Delete(h)
}

// nextExpiry reports the next unexpired timer's deadline, if any.
func (s *timerSource) nextExpiry() (time.Time, bool) {
	if len(s.h) == 0 {
		return time.Time{}, false
	}
	return s.h[0].expireAt, true
}

// poll moves every timer expired as of now into fn, in expiration order.
func (s *timerSource) poll(now time.Time, fn func(TimerFunc, any)) int {
	fired := 0
	for len(s.h) > 0 && !s.h[0].expireAt.After(now) {
		n := heap.Pop(&s.h).(*timerNode)
		if !n.canceled {
			fn(func(data any) {
				if !n.canceled {
					n.callback(data)
				}
			}, n.data)
			fired++
		}
	}
	return fired
}
