package shm

import "errors"

var (
	errInvalidSize = errors.New("shm: size must be positive")
	errSplitFixed  = errors.New("shm: kernel placed a MAP_FIXED mapping at an unexpected address")
)

func wrapMmapErr(op string, err error) error {
	return &mmapErr{op: op, err: err}
}

type mmapErr struct {
	op  string
	err error
}

func (e *mmapErr) Error() string { return "shm: " + e.op + ": " + e.err.Error() }
func (e *mmapErr) Unwrap() error { return e.err }
