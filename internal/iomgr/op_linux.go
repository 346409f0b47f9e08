//go:build linux

package iomgr

import (
	"context"
	"errors"
	"os"
	"runtime"

	"mooring/internal/iobuf"
	"mooring/internal/util"

	"golang.org/x/sys/unix"
)

// Waker is how whoever drives Poll asks to be polled again. Wake may be called from
// any goroutine (including the reaper) and must not block.
type Waker interface {
	Wake()
}

type WakerFunc func()

func (f WakerFunc) Wake() { f() }

type Result struct {
	N	int
	Err	error
}

type opState uint8
const (
	opUnsubmitted opState = iota
	opSubmitted
	opResolved
)

// ReadOp is one positioned read. It does nothing until polled. Only one goroutine may
// poll a given ReadOp at a time; different ReadOps on the same Ring are fine.
//
// The buffer belongs to the kernel from the first Poll that submits until the op
// resolves - don't touch it in between.
type ReadOp struct {
	ring	*Ring
	desc	Descriptor
	buf		iobuf.MutView
	off		uint64
	n		int

	state	opState
	slot	util.Handle
	res		Result
	cleanup	runtime.Cleanup
	parked	Waker // set while queued on a full ring, guarded by ring.mu
}

func (op *ReadOp) Submitted() bool {
	return op.state != opUnsubmitted
}

func (op *ReadOp) Resolved() bool {
	return op.state == opResolved
}

// Returns (result, true) once the read is done, every later Poll returns the same
// result. Returns (_, false) if it isn't, in which case w gets woken when it's worth
// polling again: either the read completed or a slot freed up for submission.
func (op *ReadOp) Poll(w Waker) (Result, bool) {
	if op.state == opResolved { return op.res, true }

	if op.n == 0 {
		// nothing for the kernel to do
		return op.resolve(Result{}), true
	}

	r := op.ring

	if op.state == opUnsubmitted {
		r.mu.Lock()
		h, err := r.push(op, w)
		r.mu.Unlock()

		if errors.Is(err, ErrQueueFull) {
			return Result{}, false
		} else if err != nil {
			return op.resolve(Result{ Err: err }), true
		}

		op.slot = h
		op.state = opSubmitted
		// if the caller drops us before we resolve, the ring keeps the slot (and buffer)
		// until the kernel lets go of it
		op.cleanup = runtime.AddCleanup(op, func(a abandonArg) { a.ring.orphan(a.slot) },
			abandonArg{ ring: r, slot: h })
	}

	r.mu.Lock()
	wake, err := r.flushAndDrain()
	if err != nil {
		wake = r.abandon(op.slot, wake)
		r.mu.Unlock()
		wakeAll(wake)
		return op.resolve(Result{ Err: err }), true
	}

	s := r.slots.Get(op.slot)
	if s == nil {
		// slot released out from under us, only happens if the ring blew up
		r.mu.Unlock()
		wakeAll(wake)
		return op.resolve(Result{ Err: ErrClosed }), true
	}

	if s.state == slotDone {
		res := s.res
		wake = r.release(op.slot, wake)
		r.mu.Unlock()
		wakeAll(wake)
		return op.resolve(resultOf(res)), true
	}

	s.waker = w
	r.mu.Unlock()
	wakeAll(wake)
	return Result{}, false
}

// Asks the kernel to give up on the read. The op still has to be polled to resolve,
// it resolves with ECANCELED if the cancel won or with the read's result if it didn't.
// An op that never made it into the queue resolves with ECANCELED right away.
func (op *ReadOp) Cancel() {
	switch op.state {
	case opUnsubmitted:
		op.resolve(Result{ Err: os.NewSyscallError("pread", unix.ECANCELED) })
	case opSubmitted:
		r := op.ring
		r.mu.Lock()
		if s := r.slots.Get(op.slot); s != nil && s.state == slotInflight {
			r.cancel(op.slot, s)
		}
		r.mu.Unlock()
	}
}

// Drives Poll until the read resolves. If ctx ends first the read is cancelled, but Wait
// still waits for the kernel to let go of the buffer before returning ctx.Err().
func (op *ReadOp) Wait(ctx context.Context) (int, error) {
	ch := make(chan struct{}, 1)
	w := WakerFunc(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	cancelled := false
	for {
		res, ok := op.Poll(w)
		if ok {
			if cancelled && errors.Is(res.Err, unix.ECANCELED) {
				return res.N, ctx.Err()
			}
			return res.N, res.Err
		}

		if cancelled {
			<- ch
			continue
		}

		select {
		case <- ch:
		case <- ctx.Done():
			cancelled = true
			op.Cancel()
		}
	}
}

func (op *ReadOp) resolve(res Result) Result {
	if op.state == opSubmitted {
		op.cleanup.Stop()
	}
	op.state = opResolved
	op.res = res
	return res
}

type abandonArg struct {
	ring	*Ring
	slot	util.Handle
}

func resultOf(res int32) Result {
	if res < 0 {
		return Result{ Err: os.NewSyscallError("pread", unix.Errno(-res)) }
	}
	return Result{ N: int(res) }
}
