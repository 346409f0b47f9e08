//go:build linux

package iobuf

import (
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

const ALIGN			= uint64(0x1000)
const MMAP_MODE   	= unix.MAP_ANON  | unix.MAP_PRIVATE
const MMAP_PROT   	= unix.PROT_READ | unix.PROT_WRITE

// For fixed/aligned buffers - not for io_uring itself, liburing handles mmap-ing for
// io_uring setup. This allocation will be aligned to the system page size (check using:
// `getconf PAGESIZE`. This will basically always be 0x1000 (4096))
//
// Slab memory is outside the go heap so it never moves and the GC never frees it,
// which makes it the safest thing to hand the kernel. It must be freed with Free.
type Slab struct {
	raw		[]byte
}

func AllocSlab(size int) (*Slab, error) {
	raw, err := unix.Mmap(-1, 0, size, MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("AllocSlab", "err", err)
		return nil, err
	}
	return &Slab{ raw: raw }, nil
}

func (s *Slab) Free() error {
	if s.raw == nil { return nil }
	err := unix.Munmap(s.raw)
	if err != nil {
		slog.Error("DeallocSlab", "err", err)
	}
	s.raw = nil
	return err
}

func (s *Slab) Len() int {
	return len(s.raw)
}

func (s *Slab) IoVec() (*byte, int) {
	if len(s.raw) == 0 { return nil, 0 }
	return unsafe.SliceData(s.raw), len(s.raw)
}

func (s *Slab) AsMut() []byte {
	return s.raw
}

// Frame i of the slab when carved into size byte frames. The last frame may be short
// if size doesn't divide the slab evenly. Panics if i is past the end like a slice would.
func (s *Slab) Frame(i int, size int) Bytes {
	start := i * size
	end := min(start + size, len(s.raw))
	return Bytes(s.raw[start:end:end])
}
