// File: internal/shm/segment.go
// Package shm implements the name-addressed, file-backed shared-memory
// segment that the ring buffer is built on (spec §4.1).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loopmesh/qbipc/api"
)

// envForceSocketsFile, when set, forces filesystem-bound sockets/segments
// even on Linux where /dev/shm would otherwise be preferred.
const envForceSocketsFile = "FORCESOCKETSFILE"

// envSocketDir overrides the fallback directory when /dev/shm is unusable.
const envSocketDir = "SOCKETDIR"

const devShmDir = "/dev/shm"

// ResolvePath computes the backing path for a named segment per spec §4.1:
// an absolute name is used as-is; otherwise /dev/shm/qb-<name> is tried
// first, falling back to $SOCKETDIR/<name> (or os.TempDir()/<name>) when
// /dev/shm is unusable or FORCESOCKETSFILE is set.
func ResolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if os.Getenv(envForceSocketsFile) == "" {
		if st, err := os.Stat(devShmDir); err == nil && st.IsDir() {
			return filepath.Join(devShmDir, "qb-"+name)
		}
	}
	dir := os.Getenv(envSocketDir)
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name)
}

// OpenFile creates (or opens) the backing file for a segment, truncated
// to bytes and pre-allocated, per spec §4.1. When name contains the
// literal "XXXXXX" placeholder it is replaced via atomic temp-file
// creation (os.CreateTemp) under a 0077 umask-equivalent permission
// mask; the resolved path is returned so the caller can publish it.
func OpenFile(name string, bytes int64, create bool) (*os.File, string, error) {
	if strings.Contains(name, "XXXXXX") {
		dir := filepath.Dir(ResolvePath(name))
		pattern := strings.Replace(filepath.Base(name), "XXXXXX", "*", 1)
		f, err := os.CreateTemp(dir, pattern)
		if err != nil {
			return nil, "", api.NewError(api.ErrCodeResourceExhausted, "shm: create temp file").WithCause(err)
		}
		if err := f.Chmod(0600); err != nil {
			f.Close()
			return nil, "", api.NewError(api.ErrCodeInternal, "shm: chmod temp file").WithCause(err)
		}
		if err := preallocate(f, bytes); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, "", err
		}
		return f, f.Name(), nil
	}

	path := ResolvePath(name)
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, "", api.NewError(api.ErrCodeInternal, "shm: open "+path).WithCause(err)
	}
	if create {
		if err := preallocate(f, bytes); err != nil {
			f.Close()
			return nil, "", err
		}
	}
	return f, path, nil
}

// preallocate truncates f to size and attempts posix_fallocate-style
// pre-allocation; falls back to a plain truncate when fallocate is
// unsupported (e.g. on tmpfs, where the OS already backs pages eagerly).
func preallocate(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return api.NewError(api.ErrCodeResourceExhausted, fmt.Sprintf("shm: truncate to %d bytes", size)).WithCause(err)
	}
	return fallocate(f, size)
}

// Unlink removes the backing file. Safe to call more than once.
func Unlink(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
