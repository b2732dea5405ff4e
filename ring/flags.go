package ring

// Flags control a ring buffer's lifecycle ownership and on-full policy
// (spec §3 "Flags").
type Flags uint32

const (
	// Create marks the opener as owner of the segment's lifecycle: it
	// truncates/initializes the backing files and unlinks them on Close.
	Create Flags = 1 << iota
	// Overwrite selects the on-full policy: chunk_alloc reclaims the
	// oldest chunk(s) to make room instead of returning ErrWouldBlock.
	Overwrite
	// SharedProcess marks a notifier that must work across processes
	// (the default for every notifier kind this module implements).
	SharedProcess
	// SharedThread marks a notifier only ever used within one process;
	// accepted for API symmetry with the source library but has no
	// distinct Go implementation since every notifier here is already
	// safe for same-process use.
	SharedThread
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }
