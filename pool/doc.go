// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// A scratch buffer pool (one sync.Pool, no size classes) for callers
// that want to avoid allocating per message; no other package of this
// module imports it.
// All methods are safe for concurrent use.
package pool
