package pager

import (
	"mooring/internal/iobuf"
)

// A Frame is one page-sized window of the pager's slab. Between ReadPages handing it
// out and Release it belongs to the caller, after Release the pager reuses it for the
// next page and Data() is garbage.
type Frame struct {
	index		int
	data		iobuf.Bytes
	n			int

	PageId		uint64
	Sum			uint64 // xxhash of Data()
}

// Only the bytes the read actually returned, short for the last page of the file.
func (f *Frame) Data() []byte {
	return f.data[:f.n]
}
