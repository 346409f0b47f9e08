package util_test

import (
	"mooring/internal/util"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_HexDump(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}

	out := util.HexDump(data)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	// header + 2 lines of 32 bytes
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "+0000 | 0001 0203"))
	assert.True(t, strings.HasPrefix(lines[2], "+0020 | 2021 2223"))
}

func Test_HexDump_Empty(t *testing.T) {
	out := util.HexDumpCfg(nil, 4, 4)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}
