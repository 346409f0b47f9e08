package util

import (
	"fmt"
	"strings"
)

func HexDump(raw []byte) string {
	return HexDumpCfg(raw, 2, 16)
}

// group bytes per space-separated group, cols groups per line, each line prefixed with
// its offset
func HexDumpCfg(raw []byte, group int, cols int) string {
	if group <= 0 { group = 1 }
	if cols <= 0 { cols = 1 }
	perLine := group * cols

	var b strings.Builder
	b.WriteString("        ")
	for i := range perLine {
		fmt.Fprintf(&b, "%02x", i)
		if (i+1)%group == 0 {
			b.WriteByte(' ')
		}
	}

	for i := range raw {
		if i%perLine == 0 {
			fmt.Fprintf(&b, "\n+%04x | ", i)
		}

		fmt.Fprintf(&b, "%02x", raw[i])

		if (i+1)%group == 0 {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('\n')

	return b.String()
}
