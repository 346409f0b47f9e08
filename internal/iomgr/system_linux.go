//go:build linux

package iomgr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"unsafe"

	c "mooring/internal"
	"mooring/internal/iobuf"
	"mooring/internal/util"

	"github.com/aethne0/giouring"
	"github.com/eapache/queue"
	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

// PERF:
// 1. read fixed + register buffer (slabs are already fixed, just not registered)
// 2. register file
// 3. the ring mutex is taken on every poll AND by the reaper, a sharded ring per core
//    would get rid of most of the contention if it ever shows up in a profile

var (
	ErrInit			= errors.New("iomgr: couldn't create ring")
	ErrQueueFull	= errors.New("iomgr: submission queue full")
	ErrClosed		= errors.New("iomgr: ring closed")
)

// Cancel SQEs carry the token of the read they target with this bit set, so their
// CQEs never resolve to a slot.
const CANCEL_BIT = uint64(1) << 63

type Config struct {
	// Max reads in flight. Sizes both the SQ and the completion slot arena.
	Depth		uint32
	// Core to pin the reaper thread to, <0 leaves it to the scheduler.
	ReaperCPU	int
	Logger		*slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Depth: 		c.DEFAULT_DEPTH,
		ReaperCPU: 	-1,
	}
}

// Anything with a raw file descriptor (*os.File included).
type Descriptor interface {
	Fd() uintptr
}

type RawFd int

func (fd RawFd) Fd() uintptr { return uintptr(fd) }

type slotState uint8
const (
	slotInflight slotState = iota
	slotDone
)

// A slot is the mailbox for one read. It is owned by the ring, not the ReadOp, and is
// only released once the kernel is done with it AND nobody is waiting on the result
// (consumed or orphaned), so the buffer/fd it keeps alive can't go away under the kernel.
type slot struct {
	state		slotState
	res			int32

	waker		Waker
	orphan		bool // op is gone, release as soon as the terminal cqe shows up
	cancelled	bool // cancel sqe already pushed
	wantCancel	bool // cancel asked for but there was no sqe, retried on drain

	buf			iobuf.View
	desc		Descriptor
	pin			runtime.Pinner

	// debug
	fd			int
	len			int
	off			uint64
}

type Ring struct {
	log			*slog.Logger
	cfg			Config

	mu			sync.Mutex
	ring		*giouring.Ring
	submit		func() (uint, error)
	slots		util.Arena[slot]
	waiters		*queue.Queue // ReadOps parked on a full queue
	inflight	int // slots the kernel still owns
	cancelRetry	bool // some slot has wantCancel set
	closing		bool
	exited		bool

	efd			int
	done		chan struct{} // reaper exited
	closeOnce	sync.Once

	stats		counters
}

type counters struct {
	submitted	uint64
	completed	uint64
	retries		uint64
	cancels		uint64
	stale		uint64
}

type Stats struct {
	Depth		int
	Inflight	int
	Submitted	uint64
	Completed	uint64
	Retries		uint64 // polls that hit a full queue
	Cancels		uint64
	Stale		uint64 // cqes whose token no longer named a live slot
}

func CreateRing(cfg Config) (*Ring, error) {
	log := cfg.Logger
	if log == nil { log = slog.Default() }
	log = log.With("src", "Ring")

	if cfg.Depth == 0 {
		return nil, fmt.Errorf("%w: depth must be > 0", ErrInit)
	}

	ring, err := giouring.CreateRing(cfg.Depth)
	if err != nil { return nil, fmt.Errorf("%w: %w", ErrInit, err) }

	// the reaper sleeps on this instead of holding the ring lock in a wait
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		ring.QueueExit()
		return nil, fmt.Errorf("%w: eventfd: %w", ErrInit, err)
	}
	if _, err := ring.RegisterEventFd(efd); err != nil {
		ring.QueueExit()
		unix.Close(efd)
		return nil, fmt.Errorf("%w: register eventfd: %w", ErrInit, err)
	}

	r := &Ring{
		log: 		log,
		cfg: 		cfg,
		ring: 		ring,
		submit: 	ring.Submit,
		slots: 		util.CreateArena[slot](int(cfg.Depth)),
		waiters: 	queue.New(),
		efd: 		efd,
		done: 		make(chan struct{}),
	}

	log.Debug("CreateRing", "depth", cfg.Depth, "efd", efd)

	go r.ringlord()
	return r, nil
}

// Builds the handle, nothing is submitted until the first Poll.
func (r *Ring) ReadAt(fd Descriptor, buf iobuf.MutView, offset uint64) *ReadOp {
	_, n := buf.IoVec()
	return &ReadOp{
		ring: 	r,
		desc: 	fd,
		buf: 	buf,
		off: 	offset,
		n: 		min(n, c.MAX_RW_COUNT),
	}
}

func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Depth: 		r.slots.Cap(),
		Inflight: 	r.inflight,
		Submitted: 	r.stats.submitted,
		Completed: 	r.stats.completed,
		Retries: 	r.stats.retries,
		Cancels: 	r.stats.cancels,
		Stale: 		r.stats.stale,
	}
}

// Stops taking new reads, cancels whatever is in flight and waits for the kernel to
// hand every slot back before tearing the ring down. Ops that already completed can
// still be polled for their result afterwards.
func (r *Ring) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closing = true
		r.slots.Each(func(h util.Handle, s *slot) {
			if s.state == slotInflight {
				r.log.Debug("Close: cancelling", "slot", s.String(h))
				r.cancel(h, s)
			}
		})
		wake := r.drainWaiters(nil)
		r.mu.Unlock()
		wakeAll(wake)

		r.kick()
		<- r.done

		r.mu.Lock()
		r.exited = true
		r.ring.QueueExit()
		r.mu.Unlock()

		if err := unix.Close(r.efd); err != nil {
			r.log.Warn("Close eventfd", "err", err)
		}
	})
	return nil
}

// "Those who sow the good seed
// Shall surely reap"
//
// Blocks on the eventfd the kernel bumps whenever it posts a CQE, then drains. Whoever
// drains wakes the waker parked on each completed slot, so this is only here to make
// sure somebody always does, even when nothing is polling.
func (r *Ring) ringlord() {
	defer close(r.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if r.cfg.ReaperCPU >= 0 {
		var cpuSet unix.CPUSet
		cpuSet.Zero()
		cpuSet.Set(r.cfg.ReaperCPU)
		err := unix.SchedSetaffinity(0, &cpuSet)
		if err != nil { r.log.Warn("Couldn't set core affinity for reaper", "cpu", r.cfg.ReaperCPU, "err", err) }
	}

	var efdbuf [8]byte
	for {
		_, err := unix.Read(r.efd, efdbuf[:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		} else if err != nil {
			r.log.Error("eventfd read, reaper exiting", "err", err)
			return
		}

		r.mu.Lock()
		wake, err := r.flushAndDrain()
		exit := r.closing && r.inflight == 0
		r.mu.Unlock()

		wakeAll(wake)
		if err != nil {
			r.log.Error("reaper drain", "err", err)
		}
		if exit { return }
	}
}

// poke the reaper
func (r *Ring) kick() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(r.efd, one[:]); err != nil {
		r.log.Warn("kick", "err", err)
	}
}

// r.mu must be held. Flushes pushed SQEs then takes every CQE the kernel has for us,
// writing each result into the slot its token names. Returns the wakers to call once
// the lock is dropped.
func (r *Ring) flushAndDrain() ([]Waker, error) {
	if r.exited { return nil, nil }

	var wake []Waker

	_, err := r.submit()
	if err != nil && !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EBUSY) {
		r.log.Error("Submit", "err", err)
		return nil, os.NewSyscallError("io_uring_enter", err)
	}

	for {
		cqe, err := r.ring.PeekCQE()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			break
		} else if err != nil {
			r.log.Error("PeekCQE", "err", err)
			return wake, os.NewSyscallError("io_uring_peek_cqe", err)
		}
		if cqe == nil { break }

		wake = r.complete(cqe.UserData, cqe.Res, wake)
		r.ring.CQESeen(cqe)
	}

	// the drain may have freed up SQ space for cancels that didn't fit earlier
	if r.cancelRetry {
		r.cancelRetry = false
		r.slots.Each(func(h util.Handle, s *slot) {
			if s.wantCancel && s.state == slotInflight {
				r.cancel(h, s)
			}
		})
	}

	return wake, nil
}

// r.mu must be held
func (r *Ring) complete(token uint64, res int32, wake []Waker) []Waker {
	if token & CANCEL_BIT != 0 {
		// -ENOENT/-EALREADY just mean the read beat the cancel, the read's own cqe
		// still shows up and does the cleanup
		return wake
	}

	h := util.Handle(token)
	s := r.slots.Get(h)
	if s == nil || s.state != slotInflight {
		r.stats.stale++
		r.log.Warn("cqe for stale slot", "index", h.Index(), "gen", h.Gen(), "res", res)
		return wake
	}

	s.state = slotDone
	s.res = res
	s.pin.Unpin()
	s.buf = nil
	s.desc = nil
	r.inflight--
	r.stats.completed++
	assert.True(r.inflight >= 0, "negative inflight")

	if s.orphan {
		return r.release(h, wake)
	}
	if s.waker != nil {
		wake = append(wake, s.waker)
		s.waker = nil
	}
	return wake
}

// r.mu must be held. Takes a slot and pushes the read SQE for op.
func (r *Ring) push(op *ReadOp, w Waker) (util.Handle, error) {
	if r.closing { return 0, ErrClosed }

	h, s, ok := r.slots.Acquire()
	if !ok {
		r.park(op, w)
		return 0, ErrQueueFull
	}
	assert.True(uint64(h) & CANCEL_BIT == 0, "slot token collides with CANCEL_BIT")

	sqe := r.ring.GetSQE()
	if sqe == nil {
		// SQ full of unflushed entries, flush once and retry
		if _, err := r.submit(); err == nil {
			sqe = r.ring.GetSQE()
		}
		if sqe == nil {
			r.slots.Release(h)
			r.park(op, w)
			return 0, ErrQueueFull
		}
	}

	base, _ := op.buf.IoVec()
	fd := int(op.desc.Fd())

	sqe.PrepareRead(fd, uintptr(unsafe.Pointer(base)), uint32(op.n), op.off)
	sqe.UserData = uint64(h)

	s.state = slotInflight
	s.buf = op.buf
	s.desc = op.desc
	if base != nil { s.pin.Pin(base) }
	s.fd = fd
	s.len = op.n
	s.off = op.off

	r.inflight++
	r.stats.submitted++
	return h, nil
}

// r.mu must be held. An op is queued at most once, re-polling it while it's parked
// only swaps in the newer waker.
func (r *Ring) park(op *ReadOp, w Waker) {
	r.stats.retries++
	if w == nil { return }
	if op.parked == nil {
		r.waiters.Add(op)
	}
	op.parked = w
}

// r.mu must be held. Every parked waker gets woken when a slot frees, waking just one
// could hand the slot to an op nobody is polling anymore.
func (r *Ring) drainWaiters(wake []Waker) []Waker {
	for r.waiters.Length() > 0 {
		op := r.waiters.Remove().(*ReadOp)
		wake = append(wake, op.parked)
		op.parked = nil
	}
	return wake
}

// r.mu must be held
func (r *Ring) release(h util.Handle, wake []Waker) []Waker {
	if !r.slots.Release(h) { return wake }
	return r.drainWaiters(wake)
}

// r.mu must be held. The op behind h is gone (gc'd, or gave up after a drain error).
// If the kernel is done the slot goes back right away, otherwise it is cancelled and
// complete() frees it when the terminal cqe arrives.
func (r *Ring) abandon(h util.Handle, wake []Waker) []Waker {
	s := r.slots.Get(h)
	if s == nil { return wake }
	if s.state == slotDone {
		return r.release(h, wake)
	}
	s.orphan = true
	s.waker = nil
	r.cancel(h, s)
	return wake
}

// Locks, for runtime cleanups.
func (r *Ring) orphan(h util.Handle) {
	r.mu.Lock()
	wake := r.abandon(h, nil)
	r.mu.Unlock()
	wakeAll(wake)
}

// r.mu must be held. If the SQ is full even after a flush, the slot is marked and the
// cancel goes out on the next drain.
func (r *Ring) cancel(h util.Handle, s *slot) {
	if s.cancelled || r.exited { return }

	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.submit(); err == nil {
			sqe = r.ring.GetSQE()
		}
		if sqe == nil {
			r.log.Warn("no sqe for cancel, retrying on next drain", "slot", s.String(h))
			s.wantCancel = true
			r.cancelRetry = true
			return
		}
	}
	sqe.PrepareCancel64(uint64(h), 0)
	sqe.UserData = uint64(h) | CANCEL_BIT
	s.cancelled = true
	s.wantCancel = false
	r.stats.cancels++

	// nobody may be polling, flush it ourselves
	if _, err := r.submit(); err != nil && !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EBUSY) {
		r.log.Warn("Submit cancel", "err", err)
	}
}

func wakeAll(wake []Waker) {
	for _, w := range wake {
		w.Wake()
	}
}
