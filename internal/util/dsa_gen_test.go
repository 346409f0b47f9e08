package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a slot that has been reused MAX_GEN times wraps back to 1, and the top bit of its
// handles stays clear the whole way
func Test_Arena_Generation_Wrap(t *testing.T) {
	a := CreateArena[int](1)
	a.slots[0].gen = MAX_GEN

	h, _, ok := a.Acquire()
	require.True(t, ok)
	assert.Equal(t, uint32(MAX_GEN), h.Gen())
	assert.Zero(t, uint64(h) >> 63)
	require.True(t, a.Release(h))

	h2, _, ok := a.Acquire()
	require.True(t, ok)
	assert.Equal(t, uint32(1), h2.Gen())
	assert.Equal(t, h.Index(), h2.Index())
	assert.Zero(t, uint64(h2) >> 63)

	// the old lifetime doesn't resolve after the wrap
	assert.Nil(t, a.Get(h))
	assert.NotNil(t, a.Get(h2))
}
