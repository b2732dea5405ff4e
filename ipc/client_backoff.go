// File: ipc/client_backoff.go
// Client reconnect/retry backoff, grounded on sakateka-yanet2's
// bird-adapter service.go use of backoff.ExponentialBackOff +
// backoff.NewTicker for its stream-reconnect loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ipc

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectBackoff configures a client's automatic reconnect policy
// after a transport-level disconnect (spec.md §7 "Disconnect" errors:
// ENOTCONN/EPIPE/ECONNRESET/ESHUTDOWN).
type ReconnectBackoff struct {
	policy *backoff.ExponentialBackOff
}

// NewReconnectBackoff builds the default reconnect policy.
func NewReconnectBackoff() *ReconnectBackoff {
	return &ReconnectBackoff{policy: &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
	}}
}

// Reset restarts the backoff sequence after a successful connect.
func (r *ReconnectBackoff) Reset() {
	r.policy.Reset()
}

// NextBackOff returns how long to wait before the next reconnect
// attempt.
func (r *ReconnectBackoff) NextBackOff() time.Duration {
	return r.policy.NextBackOff()
}

// Ticker emits reconnect attempts until the client stops it, mirroring
// the teacher pack's backoff.NewTicker reconnect loop shape.
func (r *ReconnectBackoff) Ticker() *backoff.Ticker {
	return backoff.NewTicker(r.policy)
}
