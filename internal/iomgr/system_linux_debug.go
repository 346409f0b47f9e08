//go:build linux
package iomgr

import (
	"fmt"
	"strings"

	"mooring/internal/util"
)

func (s *slot) String(h util.Handle) string {
	if s == nil {
		return "<nil>"
	}
	state := "INFLIGHT"
	if s.state == slotDone {
		state = "DONE"
	}
	return fmt.Sprintf("Slot [%02d gen %d] %-8s | Fd: 0x%x | Len: 0x%08x | Off: 0x%08x | Res: %d | orphan: %v, cancelled: %v",
		h.Index(), h.Gen(), state, s.fd, s.len, s.off, s.res, s.orphan, s.cancelled)
}

func (op *ReadOp) String() string {
	if op == nil {
		return "<nil>"
	}

	var state string
	switch op.state {
	case opUnsubmitted:
		state = "UNSUBMITTED"
	case opSubmitted:
		state = "SUBMITTED"
	case opResolved:
		state = "RESOLVED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ReadOp | %s | Len: 0x%08x | Off: 0x%08x", state, op.n, op.off)
	if op.state != opUnsubmitted {
		fmt.Fprintf(&b, " | Slot: %d gen %d", op.slot.Index(), op.slot.Gen())
	}
	if op.state == opResolved {
		fmt.Fprintf(&b, " | N: %d, Err: %v", op.res.N, op.res.Err)
	}
	return b.String()
}

// One line per live slot, for when something's stuck.
func (r *Ring) Dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Ring | depth: %d, inflight: %d, closing: %v\n", r.slots.Cap(), r.inflight, r.closing)
	r.slots.Each(func(h util.Handle, s *slot) {
		fmt.Fprintf(&b, "   %s\n", s.String(h))
	})
	return b.String()
}
