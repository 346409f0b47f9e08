// Constants
package internal

const _OS_PAGE			= 0x1000
const _PAGE_SIZE_PWR	= 1 // can be from 1-5 (inclusive)
const PAGE_SIZE 		= _OS_PAGE << (_PAGE_SIZE_PWR - 1)

// Queue depth for rings created without an explicit depth. The slot arena is sized
// to match, so this is also the max number of reads in flight per ring.
const DEFAULT_DEPTH		= 0x40

// The kernel caps a single read at this many bytes (MAX_RW_COUNT), anything larger
// is just a short read so we clamp before it goes into the 32-bit SQE length field.
const MAX_RW_COUNT		= 0x7ffff000

func PageIdToOffset(pageId uint64) uint64 {
	return pageId * PAGE_SIZE
}
