// File: ipc/transport/shm.go
// Shm is the SHM transport variant (spec.md §4.5): three RBs per
// connection (request, response, event) plus a 4-byte flow-control
// word held in the response RB's user-data region.
package transport

import (
	"sync/atomic"
	"unsafe"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/ring"
	"github.com/loopmesh/qbipc/ring/notify"
)

const fcUserDataBytes = 4

// ShmOptions configures the three RBs a Shm transport creates.
type ShmOptions struct {
	NamePrefix        string // backing files are "<prefix>-request" etc.
	RequestBytes      int
	ResponseBytes     int
	EventBytes        int
	Owner             bool // true on the server side, which creates the RBs
	RequestOverwrite  bool
	ResponseOverwrite bool
	Notifier          notify.Kind
}

// Shm implements Transport over three shared-memory ring buffers.
type Shm struct {
	request  *ring.Ring
	response *ring.Ring
	event    *ring.Ring
}

var _ Transport = (*Shm)(nil)

// NewShm opens (or creates, if opts.Owner) the three RBs a connection
// needs.
func NewShm(opts ShmOptions) (*Shm, error) {
	reqFlags := ring.Flags(0)
	respFlags := ring.Flags(0)
	if opts.Owner {
		reqFlags |= ring.Create
		respFlags |= ring.Create
	}
	if opts.RequestOverwrite {
		reqFlags |= ring.Overwrite
	}
	if opts.ResponseOverwrite {
		respFlags |= ring.Overwrite
	}
	eventFlags := ring.Flags(0) // spec.md §4.5: event RB is overwrite-policy off, always
	if opts.Owner {
		eventFlags |= ring.Create
	}

	req, err := ring.Open(opts.NamePrefix+"-request", opts.RequestBytes, ring.Options{Flags: reqFlags, Notifier: opts.Notifier})
	if err != nil {
		return nil, err
	}
	resp, err := ring.Open(opts.NamePrefix+"-response", opts.ResponseBytes, ring.Options{Flags: respFlags, UserDataBytes: fcUserDataBytes, Notifier: opts.Notifier})
	if err != nil {
		req.Close()
		return nil, err
	}
	ev, err := ring.Open(opts.NamePrefix+"-event", opts.EventBytes, ring.Options{Flags: eventFlags, Notifier: opts.Notifier})
	if err != nil {
		req.Close()
		resp.Close()
		return nil, err
	}

	return &Shm{request: req, response: resp, event: ev}, nil
}

// OpenShm attaches to three already-created RBs by their full names
// (as returned in a setup response's transport-specific names), for
// the client side of the handshake.
func OpenShm(requestName, responseName, eventName string, maxMsgSize int) (*Shm, error) {
	req, err := ring.Open(requestName, maxMsgSize, ring.Options{})
	if err != nil {
		return nil, err
	}
	resp, err := ring.Open(responseName, maxMsgSize, ring.Options{UserDataBytes: fcUserDataBytes})
	if err != nil {
		req.Close()
		return nil, err
	}
	ev, err := ring.Open(eventName, maxMsgSize, ring.Options{})
	if err != nil {
		req.Close()
		resp.Close()
		return nil, err
	}
	return &Shm{request: req, response: resp, event: ev}, nil
}

func (s *Shm) ringFor(dir Direction) (*ring.Ring, error) {
	switch dir {
	case Request:
		return s.request, nil
	case Response:
		return s.response, nil
	case Event:
		return s.event, nil
	default:
		return nil, api.ErrInvalidArgument
	}
}

func (s *Shm) Send(dir Direction, msg []byte) error {
	r, err := s.ringFor(dir)
	if err != nil {
		return err
	}
	return r.ChunkWrite(msg)
}

func (s *Shm) SendV(dir Direction, iov [][]byte) error {
	r, err := s.ringFor(dir)
	if err != nil {
		return err
	}
	total := 0
	for _, b := range iov {
		total += len(b)
	}
	payload, err := r.ChunkAlloc(total)
	if err != nil {
		return err
	}
	off := 0
	for _, b := range iov {
		off += copy(payload[off:], b)
	}
	return r.ChunkCommit(total)
}

func (s *Shm) Recv(dir Direction, buf []byte, timeoutMs int) (int, error) {
	r, err := s.ringFor(dir)
	if err != nil {
		return 0, err
	}
	return r.ChunkRead(buf, timeoutMs)
}

func (s *Shm) Peek(dir Direction, timeoutMs int) ([]byte, error) {
	r, err := s.ringFor(dir)
	if err != nil {
		return nil, err
	}
	return r.ChunkPeek(timeoutMs)
}

func (s *Shm) Reclaim(dir Direction) error {
	r, err := s.ringFor(dir)
	if err != nil {
		return err
	}
	return r.ChunkReclaim()
}

func fcWord(r *ring.Ring) *uint32 {
	ud := r.UserData()
	return (*uint32)(unsafe.Pointer(&ud[0]))
}

// FCSet publishes a new flow-control level into the response RB's
// user-data region (spec.md §4.5: "Server sets it (0/1/2) via fc_set").
func (s *Shm) FCSet(level uint32) error {
	atomic.StoreUint32(fcWord(s.response), level)
	return nil
}

// FCGet reads the flow-control level (spec.md §4.5: "client reads it
// via fc_get").
func (s *Shm) FCGet() (uint32, error) {
	return atomic.LoadUint32(fcWord(s.response)), nil
}

// QLenGet reports dir's outstanding chunk count via its notifier.
func (s *Shm) QLenGet(dir Direction) (uint32, error) {
	r, err := s.ringFor(dir)
	if err != nil {
		return 0, err
	}
	return r.ChunksUsed(), nil
}

// FD exposes dir's notifier descriptor for loop registration.
func (s *Shm) FD(dir Direction) uintptr {
	r, err := s.ringFor(dir)
	if err != nil {
		return ^uintptr(0)
	}
	return r.NotifierFD()
}

// Disconnect closes all three RBs (spec.md §4.5 "Disconnect": "drops
// its RB references").
func (s *Shm) Disconnect() error {
	s.request.Close()
	s.response.Close()
	s.event.Close()
	return nil
}
