package util_test

import (
	"mooring/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Queue(t *testing.T) {
	q := util.CreateQueue[int](8)
	assert.Equal(t, q.Cnt(), 0)

	for range 3 {
		for i := range 5 {
			q.Push(i)
		}
		assert.Equal(t, q.Cnt(), 5)
		for i := range 5 {
			res := q.Pop()
			assert.Equal(t, res, i)
		}
		assert.Equal(t, q.Cnt(), 0)
	}

	for range 8 {
		q.Push(0)
	}
	assert.Panics(t, func() { q.Push(0) })
	for range 8 {
		q.Pop()
	}
	assert.Panics(t, func() { q.Pop() })
}

func Test_Arena_Exhaust(t *testing.T) {
	a := util.CreateArena[int](4)
	assert.Equal(t, 4, a.Cap())

	handles := make([]util.Handle, 0, 4)
	for i := range 4 {
		h, v, ok := a.Acquire()
		assert.True(t, ok)
		assert.NotZero(t, h)
		*v = i
		handles = append(handles, h)
	}
	assert.Equal(t, 4, a.Live())

	_, v, ok := a.Acquire()
	assert.False(t, ok)
	assert.Nil(t, v)

	for i, h := range handles {
		assert.Equal(t, i, *a.Get(h))
	}

	assert.True(t, a.Release(handles[1]))
	assert.Equal(t, 3, a.Live())

	h, v, ok := a.Acquire()
	assert.True(t, ok)
	assert.Zero(t, *v, "reacquired slot should be zeroed")
	assert.Equal(t, handles[1].Index(), h.Index())
	assert.NotEqual(t, handles[1], h)
}

func Test_Arena_Stale_Handles(t *testing.T) {
	a := util.CreateArena[string](2)

	h1, v, _ := a.Acquire()
	*v = "first"
	assert.True(t, a.Release(h1))

	// stale after release, even once the index is reused
	assert.Nil(t, a.Get(h1))
	assert.False(t, a.Release(h1))

	var h2 util.Handle
	for {
		h, v, ok := a.Acquire()
		assert.True(t, ok)
		if h.Index() == h1.Index() {
			h2 = h
			*v = "second"
			break
		}
	}
	assert.Equal(t, h1.Index(), h2.Index())
	assert.Equal(t, h1.Gen() + 1, h2.Gen())
	assert.Nil(t, a.Get(h1))
	assert.Equal(t, "second", *a.Get(h2))

	// garbage index
	assert.Nil(t, a.Get(util.Handle(1 << 32 | 99)))
	assert.Nil(t, a.Get(0))
}

func Test_Arena_Each(t *testing.T) {
	a := util.CreateArena[int](8)
	var live []util.Handle
	for i := range 5 {
		h, v, _ := a.Acquire()
		*v = i
		live = append(live, h)
	}
	a.Release(live[2])

	seen := 0
	a.Each(func(h util.Handle, v *int) {
		assert.NotEqual(t, live[2], h)
		assert.Equal(t, a.Get(h), v)
		seen++
	})
	assert.Equal(t, 4, seen)
}
