//go:build linux

package iomgr

import (
	"context"
	"strings"
	"testing"

	"mooring/internal/iobuf"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Collector(t *testing.T) {
	f := tempfile(t, []byte("moo moo moo"))
	r := createRing(t, 4)

	for i := range 3 {
		_, err := r.ReadAt(f, iobuf.Bytes(make([]byte, 3)), uint64(i * 4)).Wait(context.Background())
		require.NoError(t, err)
	}

	coll := NewCollector(r, "test")
	assert.Equal(t, 7, testutil.CollectAndCount(coll))

	expected := `
# HELP mooring_ring_submitted_total Reads pushed to the submission queue.
# TYPE mooring_ring_submitted_total counter
mooring_ring_submitted_total{ring="test"} 3
# HELP mooring_ring_completed_total Completions matched to a slot.
# TYPE mooring_ring_completed_total counter
mooring_ring_completed_total{ring="test"} 3
# HELP mooring_ring_depth Max reads in flight.
# TYPE mooring_ring_depth gauge
mooring_ring_depth{ring="test"} 4
`
	err := testutil.CollectAndCompare(coll, strings.NewReader(expected),
		"mooring_ring_submitted_total", "mooring_ring_completed_total", "mooring_ring_depth")
	assert.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	assert.NoError(t, reg.Register(coll))
}

func Test_Debug_Strings(t *testing.T) {
	r := createRing(t, 2)
	pipe := emptyPipe(t)

	op := r.ReadAt(pipe, iobuf.Bytes(make([]byte, 8)), 0x10)
	assert.Contains(t, op.String(), "UNSUBMITTED")

	_, ok := op.Poll(nil)
	require.False(t, ok)
	assert.NotContains(t, op.String(), "UNSUBMITTED")

	dump := r.Dump()
	assert.Contains(t, dump, "inflight: 1")
	assert.Contains(t, dump, "INFLIGHT")
	assert.Contains(t, dump, "Off: 0x00000010")

	op.Cancel()
	_, err := op.Wait(context.Background())
	assert.Error(t, err)
	assert.Contains(t, op.String(), "RESOLVED")
}
