//go:build !linux

// File: internal/shm/mmap_other.go
//
// The double-mapping trick relies on MAP_FIXED re-mapping a just-reserved
// address range, which golang.org/x/sys/unix exposes without a raw
// syscall shim only on Linux in this module. Other POSIX platforms are
// left as a documented gap (spec §9 "platform variance") rather than
// fabricating an untested raw-syscall path per target OS.

package shm

import "os"

import "github.com/loopmesh/qbipc/api"

func CircularMmap(f *os.File, bytes int) ([]byte, error) {
	return nil, api.ErrNotSupported
}

func CircularMunmap(data []byte) error {
	return api.ErrNotSupported
}
