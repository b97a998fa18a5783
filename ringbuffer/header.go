package ringbuffer

import (
	"sync/atomic"
	"unsafe"
)

// Lazy-initialization states for header.initialized (spec.md §4.2.2).
const (
	stateUninit     uint32 = 0
	stateInProgress uint32 = 1
	stateReady      uint32 = 2
)

// header is the fixed part placed at offset 0 of the segment
// (spec.md §3's "RingBuffer header" table, in declaration order). Its
// unsafe.Sizeof is H in the normative layout of spec.md §6.
type header struct {
	initialized uint32 // atomic flag: stateUninit/stateInProgress/stateReady
	mutexWord   uint32 // ipcsync.Mutex word
	condWord    uint32 // ipcsync.Cond word
	_           uint32 // padding so elementSize/bufNum land on an 8-byte boundary
	elementSize uint64
	bufNum      uint64
}

var headerSize = unsafe.Sizeof(header{})

// RequiredSize is the pure function (spec.md §4.2.1) both writers and
// readers use to compute the total segment size for a given element
// size and slot count: header + N timestamps (8 bytes each) + N payload
// slots of elementSize bytes, with no stored offsets anywhere.
func RequiredSize(elementSize, bufNum uint64) uintptr {
	return headerSize + 8*uintptr(bufNum) + uintptr(elementSize)*uintptr(bufNum)
}

// layout is a set of pure offset computations over a mapped segment
// base address, given the dimensions read from (or about to be written
// to) the header. It stores no pointers beyond base itself, per
// spec.md §3's invariant that writer and reader "compute offsets
// identically from buf_num and element_size alone."
type layout struct {
	base        unsafe.Pointer
	elementSize uint64
	bufNum      uint64
}

func newLayout(base unsafe.Pointer, elementSize, bufNum uint64) layout {
	return layout{base: base, elementSize: elementSize, bufNum: bufNum}
}

func (l layout) header() *header {
	return (*header)(l.base)
}

// timestamp returns the atomic u64 timestamp word for slot i.
func (l layout) timestamp(i uint64) *atomic.Uint64 {
	addr := uintptr(l.base) + headerSize + 8*uintptr(i)
	return (*atomic.Uint64)(unsafe.Pointer(addr))
}

// slot returns the raw elementSize-byte payload region for slot i.
func (l layout) slot(i uint64) []byte {
	slotsBase := uintptr(l.base) + headerSize + 8*uintptr(l.bufNum)
	addr := slotsBase + uintptr(i)*uintptr(l.elementSize)
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), l.elementSize)
}
