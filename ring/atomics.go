package ring

import (
	"sync/atomic"
	"unsafe"
)

func loadU32(b []byte, off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[off])))
}

func storeU32(b []byte, off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[off])), v)
}

func addU32(b []byte, off int, delta int64) uint32 {
	p := (*uint32)(unsafe.Pointer(&b[off]))
	if delta >= 0 {
		return atomic.AddUint32(p, uint32(delta))
	}
	return atomic.AddUint32(p, ^uint32(-delta-1))
}
