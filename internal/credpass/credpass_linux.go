//go:build linux

// File: internal/credpass/credpass_linux.go
//
// Reads the peer's pid/uid/gid of a connected unix socket with
// getsockopt(SO_PEERCRED) (spec.md §4.7 step 2); no SCM_CREDENTIALS
// ancillary data is used.

package credpass

import (
	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

// EnablePassCred arms SO_PASSCRED on a listening or accepted socket.
func EnablePassCred(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PASSCRED, 1); err != nil {
		return api.NewSyscallError("setsockopt SO_PASSCRED", err)
	}
	return nil
}

// PeerCreds reads SO_PEERCRED directly; simpler and just as reliable
// as parsing SCM_CREDENTIALS ancillary data for a connected stream
// socket, since the kernel always has the peer ucred available.
func PeerCreds(fd int) (Creds, error) {
	uc, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return Creds{}, api.NewSyscallError("getsockopt SO_PEERCRED", err)
	}
	return Creds{PID: uint32(uc.Pid), UID: uc.Uid, GID: uc.Gid}, nil
}
