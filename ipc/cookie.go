// File: ipc/cookie.go
// Connection cookies (spec.md §6.1 "ipc_connection_response.cookie"),
// grounded on runZeroInc-sockstats' use of github.com/rs/xid for
// per-connection identifiers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ipc

import "github.com/rs/xid"

// newConnectionCookie mints a connection_cookie for a setup response.
// xid's 12-byte id is truncated to the wire's 64-bit cookie field by
// folding its machine+pid+counter bytes, rather than exposing the full
// id (the wire format is fixed at spec.md §6.1, u64).
func newConnectionCookie() uint64 {
	id := xid.New()
	b := id.Bytes()
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
