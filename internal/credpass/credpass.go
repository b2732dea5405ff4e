// File: internal/credpass/credpass.go
// Package credpass resolves the peer uid/gid of a connected unix
// socket, per spec.md §4.7 step 2: the SO_PEERCRED socket option on
// Linux, getpeereid on BSD/Darwin, zeros where unsupported.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package credpass

// Creds holds the authenticated peer identity for an accepted
// connection.
type Creds struct {
	PID uint32
	UID uint32
	GID uint32
}
