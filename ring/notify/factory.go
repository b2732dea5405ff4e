package notify

import "github.com/loopmesh/qbipc/api"

// New creates a notifier of the requested kind, falling back to the
// portable socket-token implementation where a kind is unavailable on
// the running platform (spec §9 "platform variance").
func New(kind Kind) (Notifier, error) {
	switch kind {
	case KindNone:
		return NewNone(), nil
	case KindEventfd:
		return newEventfdPlatform()
	case KindSysvSem:
		return newSysvSemPlatform()
	case KindSockToken:
		a, _, err := NewSockTokenPair()
		return a, err
	default:
		return nil, api.ErrInvalidArgument
	}
}
