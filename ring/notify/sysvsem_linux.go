//go:build linux

// File: ring/notify/sysvsem_linux.go
//
// SysV semaphore notifier (spec §4.3 "sysv-sem" variant): post is
// `semop +1`, timedwait is `semtimedop -1` with a relative duration,
// chunks_used is `semctl GETVAL`. This is also the variant standing in
// for the `posix-sem (pshared)` row in spec.md's table: both model a
// process-shared counting semaphore, and Go's stdlib has no pshared
// sem_init without cgo (see SPEC_FULL.md §4 for the grounding).

package notify

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

const (
	semGetVal = 12 // IPC_GETVAL (Linux asm-generic/sem.h)
	semRmID   = 0  // IPC_RMID
)

type sysvSemNotifier struct {
	id int
}

// NewSysvSem creates a private (IPC_PRIVATE-keyed) semaphore set of one
// member, initialized to zero.
func NewSysvSem() (Notifier, error) {
	id, err := unix.Semget(unix.IPC_PRIVATE, 1, unix.IPC_CREAT|0600)
	if err != nil {
		return nil, api.NewSyscallError("semget", err)
	}
	return &sysvSemNotifier{id: id}, nil
}

// NewSysvSemFromID adopts an existing semaphore set id, e.g. one shared
// via the RB header's notifier_token field rather than SCM_RIGHTS (sysv
// sem ids are process-wide integers, not file descriptors).
func NewSysvSemFromID(id int) Notifier { return &sysvSemNotifier{id: id} }

func (n *sysvSemNotifier) ID() int { return n.id }

func (n *sysvSemNotifier) Post(count uint32) error {
	op := []unix.Sembuf{{SemNum: 0, SemOp: int16(count)}}
	if err := unix.Semop(n.id, op); err != nil {
		return api.NewSyscallError("semop post", err)
	}
	return nil
}

func (n *sysvSemNotifier) TimedWait(timeoutMs int) error {
	op := []unix.Sembuf{{SemNum: 0, SemOp: -1}}
	if timeoutMs < 0 {
		for {
			err := unix.Semop(n.id, op)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return translateSemErr(err)
			}
			return nil
		}
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ts := unix.NsecToTimespec(remaining.Nanoseconds())
		err := unix.Semtimedop(n.id, op, &ts)
		if err == unix.EINTR {
			if time.Now().After(deadline) {
				return api.ErrTimedOut
			}
			continue
		}
		if err == unix.EAGAIN {
			return api.ErrTimedOut
		}
		if err != nil {
			return translateSemErr(err)
		}
		return nil
	}
}

func (n *sysvSemNotifier) ChunksUsed() uint32 {
	v, err := unix.Semctl(n.id, 0, semGetVal)
	if err != nil || v < 0 {
		return 0
	}
	return uint32(v)
}

func (n *sysvSemNotifier) FD() uintptr { return ^uintptr(0) }

func (n *sysvSemNotifier) Close() error {
	_, err := unix.Semctl(n.id, 0, semRmID)
	return err
}

func translateSemErr(err error) error {
	if err == unix.EIDRM {
		return api.ErrNotifierRemoved
	}
	return api.NewSyscallError("semop", err)
}
