//go:build linux

package notify

func newEventfdPlatform() (Notifier, error) { return NewEventfd() }
func newSysvSemPlatform() (Notifier, error) { return NewSysvSem() }
