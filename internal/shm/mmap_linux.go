//go:build linux

// File: internal/shm/mmap_linux.go
// Author: momentics <momentics@gmail.com>
//
// circular_mmap per spec §4.1: reserve 2*bytes of address space, then map
// the file at that base and again at base+bytes, both MAP_FIXED|MAP_SHARED,
// so that any [0, 2*bytes) offset is addressable as a contiguous span and
// rb[i] == rb[i+word_size*4] for all i. Grounded on the double-mmap
// technique in other_examples' paultag/go-diskring ring.go (mmap a
// PROT_NONE placeholder twice the size, then two MAP_FIXED submaps).

package shm

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CircularMmap maps f's first `bytes` bytes twice at contiguous virtual
// addresses, returning a 2*bytes slice over the doubled mapping.
func CircularMmap(f *os.File, bytes int) ([]byte, error) {
	if bytes <= 0 {
		return nil, errInvalidSize
	}
	fd := int(f.Fd())
	total := bytes * 2

	base, err := mmapRaw(0, total, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE, -1, 0)
	if err != nil {
		return nil, wrapMmapErr("reserve placeholder", err)
	}

	one, err := mmapRaw(base, bytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_FIXED|unix.MAP_SHARED, fd, 0)
	if err != nil {
		munmapRaw(base, uintptr(total))
		return nil, wrapMmapErr("map first half", err)
	}
	if one != base {
		munmapRaw(base, uintptr(total))
		return nil, errSplitFixed
	}

	two, err := mmapRaw(base+uintptr(bytes), bytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_FIXED|unix.MAP_SHARED, fd, 0)
	if err != nil {
		munmapRaw(base, uintptr(total))
		return nil, wrapMmapErr("map mirror half", err)
	}
	if two != base+uintptr(bytes) {
		munmapRaw(base, uintptr(total))
		return nil, errSplitFixed
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(base)), total), nil
}

// CircularMunmap releases a mapping previously returned by CircularMmap.
func CircularMunmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	base := uintptr(unsafe.Pointer(&data[0]))
	return munmapRaw(base, uintptr(len(data)))
}

func mmapRaw(addr uintptr, length int, prot, flags, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length), uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}

func munmapRaw(addr, length uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, length, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
