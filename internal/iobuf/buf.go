// Buffer views handed to the kernel as io targets
package iobuf

import "unsafe"

// View is anything that can hand the kernel a raw (address, length) pair.
//
// WARN: whatever backs the view must not move, shrink or be freed while an
// operation referencing it is in flight. Go never moves heap slices, but it will
// happily reuse them once nothing references them, so the ring holds on to the
// View itself until the kernel is done with it.
type View interface {
	IoVec() (base *byte, n int)
}

// MutView certifies that the region may be written by an operation (reads).
// Reading AsMut() before the operation resolves races with the kernel.
type MutView interface {
	View
	AsMut() []byte
}

// Bytes adapts any caller-owned slice.
type Bytes []byte

func (b Bytes) IoVec() (*byte, int) {
	if len(b) == 0 { return nil, 0 }
	return unsafe.SliceData(b), len(b)
}

func (b Bytes) AsMut() []byte {
	return b
}
