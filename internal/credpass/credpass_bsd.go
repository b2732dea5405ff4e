//go:build darwin || freebsd || netbsd || openbsd

// File: internal/credpass/credpass_bsd.go
//
// BSD/Darwin expose peer identity via getpeereid(3), which has no pid
// component (spec.md §4.7: "getpeereid (most BSD)").

package credpass

import (
	"golang.org/x/sys/unix"

	"github.com/loopmesh/qbipc/api"
)

// EnablePassCred is a no-op on platforms where getpeereid needs no
// prior socket option.
func EnablePassCred(fd int) error { return nil }

// PeerCreds resolves uid/gid via getpeereid; pid is left as zero since
// getpeereid does not report it.
func PeerCreds(fd int) (Creds, error) {
	uid, gid, err := unix.Getpeereid(fd)
	if err != nil {
		return Creds{}, api.NewSyscallError("getpeereid", err)
	}
	return Creds{UID: uint32(uid), GID: uint32(gid)}, nil
}
