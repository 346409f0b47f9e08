package util

import (
	"github.com/negrel/assert"
)

func mod(a int, b int) int {
	return ((a % b) + b) % b
}

// fixed-size ring-buffer queue
type Queue[T any] struct {
	data	[]T
	head	int // next slot to write to
	cnt 	int
}

func CreateQueue[T any](size int) Queue[T] {
	return Queue[T] {
		head: 	0,
		cnt: 	0,
		data: 	make([]T, size),
	}
}

func (q *Queue[T]) Cnt() int {
	return q.cnt
}

// will panic if out of space.
func (q *Queue[T]) Push(val T) {
	if q.cnt == len(q.data) { panic("queue overflow") }
	q.data[q.head] = val
	q.head = mod((q.head + 1), len(q.data))
	q.cnt++
}

func (q *Queue[T]) Pop() T {
	if q.cnt == 0 { panic("queue underflow") }
	i := mod((q.head - q.cnt), len(q.data))
	q.cnt--
	return q.data[i]
}


// Handle names one lifetime of one arena slot: generation in bits 32-62, index in the
// low 32. It round-trips through io_uring UserData unchanged. Generations start at 1
// so the zero Handle is never valid, and stop at MAX_GEN so bit 63 is always clear
// and free for callers to tag tokens with.
type Handle uint64

const MAX_GEN = 1<<31 - 1

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen) << 32 | uint64(uint32(index)))
}

func (h Handle) Index() int {
	return int(uint32(h))
}

func (h Handle) Gen() uint32 {
	return uint32(h >> 32)
}

type arenaSlot[T any] struct {
	gen		uint32
	live	bool
	val		T
}

// Arena is a fixed pool of slots handed out as generation checked Handles. The
// slots never move (the backing array is allocated once), and once a slot is
// released its generation is bumped so any Handle from an older lifetime stops
// resolving, even after the index gets reused.
//
// Not safe for concurrent use - callers hold their own lock.
type Arena[T any] struct {
	free	Queue[int]
	slots	[]arenaSlot[T]
}

func CreateArena[T any](size int) Arena[T] {
	free := CreateQueue[int](size)
	slots := make([]arenaSlot[T], size)
	for i := range size {
		free.Push(i)
		slots[i].gen = 1
	}

	return Arena[T]{
		free: free,
		slots: slots,
	}
}

func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

func (a *Arena[T]) Live() int {
	return len(a.slots) - a.free.Cnt()
}

// Returns false if every slot is live. The slot value is zeroed.
func (a *Arena[T]) Acquire() (Handle, *T, bool) {
	if a.free.Cnt() == 0 { return 0, nil, false }
	i := a.free.Pop()
	s := &a.slots[i]
	assert.True(!s.live, "acquired a live slot")
	assert.True(s.gen >= 1 && s.gen <= MAX_GEN, "slot generation out of range")
	s.live = true
	var zero T
	s.val = zero
	return makeHandle(i, s.gen), &s.val, true
}

// nil if h is stale (released or from another lifetime) or garbage
func (a *Arena[T]) Get(h Handle) *T {
	i := h.Index()
	if i >= len(a.slots) { return nil }
	s := &a.slots[i]
	if !s.live || s.gen != h.Gen() { return nil }
	return &s.val
}

// Returns false if h was already stale.
func (a *Arena[T]) Release(h Handle) bool {
	i := h.Index()
	if i >= len(a.slots) { return false }
	s := &a.slots[i]
	if !s.live || s.gen != h.Gen() { return false }

	var zero T
	s.val = zero
	s.live = false
	s.gen++
	if s.gen > MAX_GEN { s.gen = 1 } // wrapped
	a.free.Push(i)
	return true
}

// Calls fn for every live slot, in index order.
func (a *Arena[T]) Each(fn func(Handle, *T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(makeHandle(i, s.gen), &s.val)
		}
	}
}
