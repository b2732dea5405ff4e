package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAddJobRunsAndStops(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var ran atomic.Bool
	require.True(t, l.AddJob(Med, func() {
		ran.Store(true)
		l.Stop()
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	require.True(t, ran.Load())
}

func TestAddTimerFiresAtDeadline(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := make(chan struct{}, 1)
	l.AddTimer(time.Now().Add(20*time.Millisecond), func(any) {
		fired <- struct{}{}
		l.Stop()
	}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	<-done
}

func TestDelTimerCancelsBeforeFiring(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	h := l.AddTimer(time.Now().Add(time.Hour), func(any) {
		t.Error("canceled timer must not fire")
	}, nil)
	require.NoError(t, l.DelTimer(h))
	require.Error(t, l.DelTimer(h), "double delete should fail")
}

func TestAddFdDispatchesOnReadable(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	delivered := make(chan []byte, 1)
	_, err = l.AddFd(fds[0], EventRead, High, func(fd int, revents Events, data any) int {
		buf := make([]byte, 16)
		n, _ := unix.Read(fd, buf)
		delivered <- buf[:n]
		l.Stop()
		return 0
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	select {
	case got := <-delivered:
		require.Equal(t, "ping", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("fd event never dispatched")
	}
	<-done
}

func TestAntiStarvationRotatesPriority(t *testing.T) {
	require.Equal(t, High, rotate(Low))
	require.Equal(t, Med, rotate(High))
	require.Equal(t, Low, rotate(Med))
}
