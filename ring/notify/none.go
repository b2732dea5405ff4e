package notify

// noneNotifier implements the `none` variant: no-op post, always-ready
// wait. Used when a ring buffer is driven purely by its owner polling
// space_used directly (e.g. the offline blackbox dump path).
type noneNotifier struct{}

// NewNone returns the no-op Notifier.
func NewNone() Notifier { return noneNotifier{} }

func (noneNotifier) Post(uint32) error      { return nil }
func (noneNotifier) TimedWait(int) error    { return nil }
func (noneNotifier) ChunksUsed() uint32     { return 0 }
func (noneNotifier) FD() uintptr            { return ^uintptr(0) }
func (noneNotifier) Close() error           { return nil }
