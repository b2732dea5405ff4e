//go:build !linux

package notify

// Neither eventfd nor SysV semaphores are wired on non-Linux platforms
// in this module; both requests degrade to the socket-token variant,
// which is sufficient everywhere a process-shared wake is needed.
func newEventfdPlatform() (Notifier, error) {
	a, _, err := NewSockTokenPair()
	return a, err
}

func newSysvSemPlatform() (Notifier, error) {
	a, _, err := NewSockTokenPair()
	return a, err
}
