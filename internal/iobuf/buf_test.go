//go:build linux

package iobuf

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Bytes_IoVec(t *testing.T) {
	buf := make([]byte, 64)
	base, n := Bytes(buf).IoVec()
	assert.Equal(t, 64, n)
	assert.Equal(t, unsafe.Pointer(&buf[0]), unsafe.Pointer(base))

	sub := Bytes(buf[8:16])
	base, n = sub.IoVec()
	assert.Equal(t, 8, n)
	assert.Equal(t, unsafe.Pointer(&buf[8]), unsafe.Pointer(base))

	// writes through AsMut land in the caller's storage
	sub.AsMut()[0] = 0xaa
	assert.Equal(t, byte(0xaa), buf[8])
}

func Test_Bytes_Empty(t *testing.T) {
	base, n := Bytes(nil).IoVec()
	assert.Nil(t, base)
	assert.Zero(t, n)

	base, n = Bytes([]byte{}).IoVec()
	assert.Nil(t, base)
	assert.Zero(t, n)
}

func Test_Slab_Frames(t *testing.T) {
	slab, err := AllocSlab(int(ALIGN) * 2)
	require.NoError(t, err)
	defer slab.Free()

	base, n := slab.IoVec()
	assert.Equal(t, int(ALIGN) * 2, n)
	assert.Zero(t, uintptr(unsafe.Pointer(base)) % uintptr(ALIGN), "slab not page aligned")

	f0 := slab.Frame(0, 3000)
	f2 := slab.Frame(2, 3000)
	assert.Len(t, f0, 3000)
	assert.Len(t, f2, int(ALIGN) * 2 - 6000)

	f0[0] = 1
	assert.Equal(t, byte(1), slab.AsMut()[0])

	assert.NoError(t, slab.Free())
	assert.NoError(t, slab.Free()) // double free is a noop
	assert.Zero(t, slab.Len())
}
