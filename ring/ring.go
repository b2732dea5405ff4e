// File: ring/ring.go
// Package ring implements the chunk-granular, single-producer/single-
// consumer shared-memory FIFO (spec §3, §4.1-§4.3): a doubly-mapped data
// region plus a small fixed header, with a pluggable cross-process
// notifier waking the consumer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/internal/shm"
	"github.com/loopmesh/qbipc/ring/notify"
	"golang.org/x/sys/unix"
)

const headerSuffix = "-header"
const dataSuffix = "-data"

// Ring is a chunk-granular SPSC ring buffer backed by shared memory.
// One goroutine (per process) may write; one may read. Safe for exactly
// one writer and one reader at a time, matching the source library's
// contract (spec §9 "Concurrency model").
type Ring struct {
	mu sync.Mutex

	name  string
	flags Flags
	owner bool

	hdrFile  *os.File
	hdrPath  string
	dataFile *os.File
	dataPath string

	hdrMmap []byte // plain single mapping, hdrFixedSize+userDataBytes
	hdr     header

	data     []byte // doubly mapped, len == 2*wordSize*wordBytes
	wordSize uint32

	notifier notify.Notifier

	pendingAllocWp    uint32
	pendingAllocWords uint32
	lastPeekWords     uint32

	closed bool
}

// Options configures Open.
type Options struct {
	Flags         Flags
	UserDataBytes int
	Notifier      notify.Kind
}

// Open creates or attaches to a named ring buffer of at least bytes
// capacity (rounded up to a page multiple), per spec §4.1.
func Open(name string, bytes int, opts Options) (*Ring, error) {
	if bytes <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ring: bytes must be positive")
	}
	create := opts.Flags.has(Create)

	page := os.Getpagesize()
	dataBytes := roundUp(bytes, page)
	wordSize := uint32(dataBytes / wordBytes)

	hdrPath0 := name + headerSuffix
	dataPath0 := name + dataSuffix

	hdrFile, hdrPath, err := shm.OpenFile(hdrPath0, headerFileSize(opts.UserDataBytes), create)
	if err != nil {
		return nil, err
	}
	dataFile, dataPath, err := shm.OpenFile(dataPath0, int64(dataBytes), create)
	if err != nil {
		hdrFile.Close()
		if create {
			shm.Unlink(hdrPath)
		}
		return nil, err
	}

	hdrMmap, err := unix.Mmap(int(hdrFile.Fd()), 0, int(headerFileSize(opts.UserDataBytes)), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		hdrFile.Close()
		dataFile.Close()
		if create {
			shm.Unlink(hdrPath)
			shm.Unlink(dataPath)
		}
		return nil, api.NewSyscallError("mmap header", err)
	}

	data, err := shm.CircularMmap(dataFile, dataBytes)
	if err != nil {
		unix.Munmap(hdrMmap)
		hdrFile.Close()
		dataFile.Close()
		if create {
			shm.Unlink(hdrPath)
			shm.Unlink(dataPath)
		}
		return nil, err
	}

	r := &Ring{
		name:     name,
		flags:    opts.Flags,
		owner:    create,
		hdrFile:  hdrFile,
		hdrPath:  hdrPath,
		dataFile: dataFile,
		dataPath: dataPath,
		hdrMmap:  hdrMmap,
		hdr:      header{buf: hdrMmap},
		data:     data,
		wordSize: wordSize,
	}

	if create {
		r.hdr.setWritePt(0)
		r.hdr.setReadPt(0)
		r.hdr.setWordSize(wordSize)
		r.hdr.setFlags(uint32(opts.Flags))
		r.hdr.setUserDataLen(uint32(opts.UserDataBytes))
		r.hdr.refCountAdd(1)

		n, err := notify.New(opts.Notifier)
		if err != nil {
			r.teardown(true)
			return nil, err
		}
		r.notifier = n
		r.hdr.setNotifierKind(uint32(opts.Notifier))
		r.hdr.setNotifierToken(notifierToken(n))
	} else {
		r.wordSize = r.hdr.wordSize()
		r.hdr.refCountAdd(1)
		n, err := adoptNotifier(notify.Kind(r.hdr.notifierKind()), r.hdr.notifierToken())
		if err != nil {
			r.teardown(false)
			return nil, err
		}
		r.notifier = n
	}

	return r, nil
}

// notifierToken extracts the process-wide integer identifying n, for
// publication in the shared header so a later attacher can adopt the
// same underlying notifier instead of constructing an unrelated one.
// Only sysv semaphores have such an id; other kinds return 0 and rely
// on adoptNotifier's fallback.
func notifierToken(n notify.Notifier) uint32 {
	if s, ok := n.(interface{ ID() int }); ok {
		return uint32(s.ID())
	}
	return 0
}

// adoptNotifier builds the attaching side's Notifier for a ring the
// caller did not create (spec §4.3 "cross-process notifier"), from
// whatever the creator actually published in the header — opts.Notifier
// is only consulted on create. For KindSysvSem it reconnects to the
// creator's real semaphore set via the token, since sysv sem ids are
// valid process-wide. KindEventfd and KindSockToken need their fd
// handed over out of band (e.g. SCM_RIGHTS) and cannot be reconstructed
// from an integer alone, so Open.Options has no attach-side knob for
// them; a caller holding such an fd already (e.g. ipc.Client after
// SCM_RIGHTS) must drive that channel directly rather than through
// ring.Open.
func adoptNotifier(created notify.Kind, token uint32) (notify.Notifier, error) {
	switch created {
	case notify.KindSysvSem:
		return notify.NewSysvSemFromID(int(token)), nil
	case notify.KindNone:
		return notify.NewNone(), nil
	default:
		return nil, api.NewError(api.ErrCodeInvalidArgument,
			"ring: attach cannot adopt a "+notifyKindName(created)+" notifier without out-of-band fd passing; use KindSysvSem or KindNone")
	}
}

func notifyKindName(k notify.Kind) string {
	switch k {
	case notify.KindNone:
		return "none"
	case notify.KindEventfd:
		return "eventfd"
	case notify.KindSysvSem:
		return "sysv-sem"
	case notify.KindSockToken:
		return "sock-token"
	default:
		return "unknown"
	}
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + multiple - n%multiple
}

// Name returns the name Open was called with.
func (r *Ring) Name() string { return r.name }

// UserData returns the opaque trailing header region reserved for
// protocol-specific state (e.g. the IPC 4-byte flow-control word, spec §4.5).
func (r *Ring) UserData() []byte { return r.hdr.userData() }

// NotifierFD returns the underlying notifier's pollable descriptor, or
// -1 if the notifier variant has none (spec §4.3; used by the IPC
// layer to register a ring's readiness with the event loop).
func (r *Ring) NotifierFD() uintptr { return r.notifier.FD() }

// Close detaches from the ring buffer. The last owner to close unlinks
// the backing files and destroys the notifier (spec §5 "ref_count").
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	remaining := r.hdr.refCountAdd(-1)
	unlink := r.owner && remaining == 0
	return r.teardown(unlink)
}

// ForceClose tears the ring buffer down unconditionally, ignoring
// ref_count — used when a peer is known dead and its attach can never
// be balanced by a matching Close (spec §5, supplemented feature).
func (r *Ring) ForceClose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.teardown(true)
}

// teardown unmaps and closes this process's view of the ring. unlink
// additionally destroys the shared state itself (the backing files and
// the notifier) and must only be true once the last reference is gone
// (spec §4.2 "close", §5: "destroyed only if this is the last
// reference") — never on a non-owning attacher still sharing the
// creator's notifier (e.g. an adopted sysv semaphore set), or Close on
// one side would rip the channel out from under the other.
func (r *Ring) teardown(unlink bool) error {
	r.closed = true
	if unlink && r.notifier != nil {
		r.notifier.Close()
	}
	shm.CircularMunmap(r.data)
	unix.Munmap(r.hdrMmap)
	r.hdrFile.Close()
	r.dataFile.Close()
	if unlink {
		shm.Unlink(r.hdrPath)
		shm.Unlink(r.dataPath)
	}
	return nil
}

func (r *Ring) usedWords() uint32 {
	wp := r.hdr.writePt()
	rp := r.hdr.readPt()
	return (wp - rp + r.wordSize) % r.wordSize
}

// SpaceUsed returns the number of bytes currently occupied by committed
// and uncommitted chunks.
func (r *Ring) SpaceUsed() int { return int(r.usedWords()) * wordBytes }

// SpaceFree returns the number of bytes available for chunk_alloc,
// reserving the one-word gap that disambiguates full from empty.
func (r *Ring) SpaceFree() int {
	free := r.wordSize - 1 - r.usedWords()
	return int(free) * wordBytes
}

// ChunksUsed returns the notifier's count of chunks posted and not yet
// consumed by a wait (ChunkPeek/ChunkRead); the none notifier always
// reports 0.
func (r *Ring) ChunksUsed() uint32 {
	if r.notifier == nil {
		return 0
	}
	return r.notifier.ChunksUsed()
}

// ChunkAlloc reserves space for a chunk of length bytes and returns a
// slice over the shared memory region to fill in place. The slice is
// valid only until the matching ChunkCommit (spec §3 "Producer API").
func (r *Ring) ChunkAlloc(length int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if length < 0 {
		return nil, api.ErrInvalidArgument
	}
	needed := length + allocMarginWords*wordBytes

	for r.SpaceFree() < needed {
		if !r.flags.has(Overwrite) {
			return nil, api.ErrWouldBlock
		}
		if !r.reclaimOldestLocked() {
			return nil, api.ErrResourceExhausted
		}
	}

	wp := r.hdr.writePt()
	base := int(wp) * wordBytes
	storeU32(r.data, base, 0)
	storeU32(r.data, base+wordBytes, chunkMagic)

	r.pendingAllocWp = wp
	r.pendingAllocWords = chunkWords(length)

	payloadOff := base + headerWords*wordBytes
	return r.data[payloadOff : payloadOff+length : payloadOff+length], nil
}

// ChunkCommit finalizes the chunk most recently returned by ChunkAlloc
// and wakes the consumer.
func (r *Ring) ChunkCommit(length int) error {
	r.mu.Lock()
	if r.pendingAllocWords == 0 {
		r.mu.Unlock()
		return api.NewError(api.ErrCodeInvalidArgument, "ring: commit without a pending alloc")
	}
	base := int(r.pendingAllocWp) * wordBytes
	storeU32(r.data, base, uint32(length))
	r.hdr.setWritePt((r.pendingAllocWp + r.pendingAllocWords) % r.wordSize)
	r.pendingAllocWords = 0
	r.mu.Unlock()
	return r.notifier.Post(1)
}

// ChunkWrite is the alloc+copy+commit convenience form.
func (r *Ring) ChunkWrite(buf []byte) error {
	payload, err := r.ChunkAlloc(len(buf))
	if err != nil {
		return err
	}
	copy(payload, buf)
	return r.ChunkCommit(len(buf))
}

// ChunkPeek waits (per timeoutMs, spec §4.3 "wait semantics") for the
// next chunk and returns a view over its payload without consuming it.
// The returned slice is valid until the next ChunkReclaim.
func (r *Ring) ChunkPeek(timeoutMs int) ([]byte, error) {
	if err := r.notifier.TimedWait(timeoutMs); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rp := r.hdr.readPt()
	base := int(rp) * wordBytes
	size := loadU32(r.data, base)
	if size == 0 {
		return nil, api.ErrNoMessage
	}
	magic := loadU32(r.data, base+wordBytes)
	if magic != chunkMagic {
		return nil, api.ErrCorrupt
	}

	r.lastPeekWords = chunkWords(int(size))
	payloadOff := base + headerWords*wordBytes
	return r.data[payloadOff : payloadOff+int(size) : payloadOff+int(size)], nil
}

// ChunkRead peeks the next chunk, copies it into buf, and reclaims it.
// Returns api.ErrBufferTooSmall if buf cannot hold the chunk.
func (r *Ring) ChunkRead(buf []byte, timeoutMs int) (int, error) {
	payload, err := r.ChunkPeek(timeoutMs)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(payload) {
		return 0, api.ErrBufferTooSmall
	}
	n := copy(buf, payload)
	if err := r.ChunkReclaim(); err != nil {
		return 0, err
	}
	return n, nil
}

// ChunkReclaim releases the chunk most recently returned by ChunkPeek
// or ChunkRead, advancing read_pt.
func (r *Ring) ChunkReclaim() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPeekWords == 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "ring: reclaim without a pending peek")
	}
	rp := r.hdr.readPt()
	base := int(rp) * wordBytes
	storeU32(r.data, base, 0)
	storeU32(r.data, base+wordBytes, 0)
	r.hdr.setReadPt((rp + r.lastPeekWords) % r.wordSize)
	r.lastPeekWords = 0
	return nil
}

// WriteToFile dumps a read-only, non-live snapshot of the ring buffer
// for offline inspection (spec §5 "Blackbox-style offline RB dump"):
// word_size, one copy of the data region, write_pt, read_pt — readable
// by ring/dump.Inspect without mmapping anything.
func (r *Ring) WriteToFile(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := binary.Write(w, binary.LittleEndian, r.wordSize); err != nil {
		return api.NewSyscallError("ring: write word_size", err)
	}
	if _, err := w.Write(r.data[:int(r.wordSize)*wordBytes]); err != nil {
		return api.NewSyscallError("ring: write data region", err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.hdr.writePt()); err != nil {
		return api.NewSyscallError("ring: write write_pt", err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.hdr.readPt()); err != nil {
		return api.NewSyscallError("ring: write read_pt", err)
	}
	return nil
}

// reclaimOldestLocked drops the oldest committed chunk without waiting
// on the notifier, used by ChunkAlloc's Overwrite on-full policy. r.mu
// must be held. Returns false when there is nothing eligible to drop.
func (r *Ring) reclaimOldestLocked() bool {
	if r.usedWords() == 0 {
		return false
	}
	rp := r.hdr.readPt()
	base := int(rp) * wordBytes
	size := loadU32(r.data, base)
	if size == 0 {
		return false
	}
	words := chunkWords(int(size))
	storeU32(r.data, base, 0)
	storeU32(r.data, base+wordBytes, 0)
	r.hdr.setReadPt((rp + words) % r.wordSize)
	return true
}
