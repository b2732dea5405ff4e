//go:build linux

package shm

import "golang.org/x/sys/unix"

func fallocate(f interface{ Fd() uintptr }, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err != nil && err != unix.ENOSYS && err != unix.EOPNOTSUPP {
		return err
	}
	return nil
}
