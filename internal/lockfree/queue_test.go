package lockfree

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueBasicFIFO(t *testing.T) {
	q := New[int](8)
	require.Equal(t, 8, q.Cap())

	for i := 1; i <= 5; i++ {
		require.True(t, q.Enqueue(i))
	}
	require.Equal(t, 5, q.Len())

	for i := 1; i <= 5; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestQueueRoundsCapacityToPowerOfTwo(t *testing.T) {
	q := New[int](5)
	require.Equal(t, 8, q.Cap())
}

func TestQueueRejectsPastCapacity(t *testing.T) {
	q := New[int](2)
	require.True(t, q.Enqueue(1))
	require.True(t, q.Enqueue(2))
	require.False(t, q.Enqueue(3))
}

func TestQueueMPMC(t *testing.T) {
	q := New[int](1024)
	producers := 8
	consumers := 8
	itemsPerProducer := 5000
	totalItems := int64(producers * itemsPerProducer)

	var wg sync.WaitGroup
	var sentSum, receivedSum, receivedCount int64

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				val := pid*itemsPerProducer + i + 1
				for !q.Enqueue(val) {
					runtime.Gosched()
				}
				atomic.AddInt64(&sentSum, int64(val))
			}
		}(p)
	}

	var consumerWg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumerWg.Add(1)
		go func() {
			defer consumerWg.Done()
			for {
				if val, ok := q.Dequeue(); ok {
					atomic.AddInt64(&receivedSum, int64(val))
					if atomic.AddInt64(&receivedCount, 1) == totalItems {
						return
					}
				} else if atomic.LoadInt64(&receivedCount) >= totalItems {
					return
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Wait()

	done := make(chan struct{})
	go func() {
		consumerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		require.Equal(t, sentSum, receivedSum)
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for consumers, received %d/%d", atomic.LoadInt64(&receivedCount), totalItems)
	}
}
