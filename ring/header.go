package ring

// Shared header layout (spec §3 "Header fields"). Lives in its own
// mmap'd backing file, separate from the doubly-mapped data region.
const (
	hdrOffWritePt       = 0
	hdrOffReadPt        = 4
	hdrOffWordSize      = 8
	hdrOffRefCount      = 12
	hdrOffFlags         = 16
	hdrOffUserDataLen   = 20
	hdrOffNotifierKind  = 24
	hdrOffNotifierToken = 28
	hdrFixedSize        = 32
)

// header is a thin view over the mmap'd header bytes. All fields are
// single-writer except ref_count, which every opener atomically
// increments/decrements on attach/detach (spec §5).
type header struct {
	buf []byte
}

func (h header) writePt() uint32        { return loadU32(h.buf, hdrOffWritePt) }
func (h header) setWritePt(v uint32)     { storeU32(h.buf, hdrOffWritePt, v) }
func (h header) readPt() uint32          { return loadU32(h.buf, hdrOffReadPt) }
func (h header) setReadPt(v uint32)      { storeU32(h.buf, hdrOffReadPt, v) }
func (h header) wordSize() uint32        { return loadU32(h.buf, hdrOffWordSize) }
func (h header) setWordSize(v uint32)    { storeU32(h.buf, hdrOffWordSize, v) }
func (h header) flags() uint32           { return loadU32(h.buf, hdrOffFlags) }
func (h header) setFlags(v uint32)       { storeU32(h.buf, hdrOffFlags, v) }
func (h header) userDataLen() uint32     { return loadU32(h.buf, hdrOffUserDataLen) }
func (h header) setUserDataLen(v uint32) { storeU32(h.buf, hdrOffUserDataLen, v) }

func (h header) refCountLoad() uint32 { return loadU32(h.buf, hdrOffRefCount) }
func (h header) refCountAdd(delta int64) uint32 {
	return addU32(h.buf, hdrOffRefCount, delta)
}

// notifierKind/notifierToken let a non-creating attacher adopt the
// creator's real notifier instead of constructing an unrelated one
// (spec §4.3 "cross-process notifier"): the creator publishes what it
// built here, keyed by notify.Kind, so e.g. a sysv semaphore set id
// survives the attach path.
func (h header) notifierKind() uint32      { return loadU32(h.buf, hdrOffNotifierKind) }
func (h header) setNotifierKind(v uint32)   { storeU32(h.buf, hdrOffNotifierKind, v) }
func (h header) notifierToken() uint32     { return loadU32(h.buf, hdrOffNotifierToken) }
func (h header) setNotifierToken(v uint32) { storeU32(h.buf, hdrOffNotifierToken, v) }

// userData returns the trailing opaque region reserved for
// notifier-specific or protocol-specific state (e.g. the IPC 4-byte
// flow control word, spec §4.5).
func (h header) userData() []byte {
	n := h.userDataLen()
	return h.buf[hdrFixedSize : hdrFixedSize+n]
}

func headerFileSize(userDataBytes int) int64 {
	return int64(hdrFixedSize + userDataBytes)
}
