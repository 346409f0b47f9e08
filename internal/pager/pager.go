//go:build linux

package pager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	c "mooring/internal"
	"mooring/internal/iobuf"
	"mooring/internal/iomgr"
	"mooring/internal/util"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/errgroup"
)

// PERF: frames are read one ReadOp per page, the ring caps how many are actually in
// flight. Registering the slab with the ring would let these be fixed reads.

const PAGER_FRAME_CNT = 0x10

// bytes of each page hexdumped at debug level
const DEBUG_DUMP_LEN = 0x40

var (
	ErrInvalidArg 	= errors.New("pager: invalid arg")
	ErrIO 			= errors.New("pager: io error")
)

type Config struct {
	PageSize	int
	Frames		int
	Logger		*slog.Logger
}

func DefaultConfig() Config {
	return Config{
		PageSize: 	c.PAGE_SIZE,
		Frames: 	PAGER_FRAME_CNT,
	}
}

// Pager reads a file page by page through a shared ring into a fixed set of frames.
// The ring is borrowed, closing the pager doesn't close it.
type Pager struct {
	log			*slog.Logger

	ring		*iomgr.Ring
	file		*os.File
	size		int64
	pageSize	int

	slab		*iobuf.Slab // to free later
	frames		[]Frame
	framesFree	chan int
}

// No allocations after function (apart from the ReadOps).
func CreatePager(ring *iomgr.Ring, file *os.File, cfg Config) (*Pager, error) {
	log := cfg.Logger
	if log == nil { log = slog.Default() }
	log = log.With("src", "Pager")

	if cfg.PageSize <= 0 || cfg.Frames <= 0 {
		return nil, fmt.Errorf("%w: page size %d, frames %d", ErrInvalidArg, cfg.PageSize, cfg.Frames)
	}

	st, err := file.Stat()
	if err != nil { return nil, err }

	slab, err := iobuf.AllocSlab(cfg.PageSize * cfg.Frames)
	if err != nil { return nil, err }
	log.Debug("CreatePager", "file", file.Name(), "bytes", st.Size(), "frames", cfg.Frames, "pageSize", cfg.PageSize)

	frames := make([]Frame, cfg.Frames)
	framesFree := make(chan int, cfg.Frames)
	for i := range frames {
		f := &frames[i]
		f.index = i
		f.data = slab.Frame(i, cfg.PageSize)
		framesFree <- i
	}

	return &Pager{
		log: 		log,
		ring: 		ring,
		file: 		file,
		size: 		st.Size(),
		pageSize: 	cfg.PageSize,
		slab: 		slab,
		frames: 	frames,
		framesFree: framesFree,
	}, nil
}

// Every frame has to be released before this.
func (p *Pager) Close() error {
	return p.slab.Free()
}

func (p *Pager) Pages() uint64 {
	ps := int64(p.pageSize)
	return uint64((p.size + ps - 1) / ps)
}

func (p *Pager) pageOffset(pageId uint64) uint64 {
	return pageId * uint64(p.pageSize)
}

// The frames come back in the order you requested them. Blocks until enough frames are
// free, so asking for more than the pager has is an error rather than a deadlock.
func (p *Pager) ReadPages(ctx context.Context, pages []uint64) ([]*Frame, error) {
	if len(pages) > len(p.frames) { return nil, ErrInvalidArg }

	out := make([]*Frame, 0, len(pages))
	for range pages {
		select {
		case i := <- p.framesFree:
			out = append(out, &p.frames[i])
		case <- ctx.Done():
			p.Release(out...)
			return nil, ctx.Err()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, pageId := range pages {
		f := out[i]
		f.PageId = pageId
		f.n = 0
		f.Sum = 0
		g.Go(func() error {
			n, err := p.ring.ReadAt(p.file, f.data, p.pageOffset(pageId)).Wait(gctx)
			if err != nil {
				return fmt.Errorf("%w: page %d: %w", ErrIO, pageId, err)
			}
			f.n = n
			f.Sum = xxhash.Sum64(f.Data())
			if p.log.Enabled(gctx, slog.LevelDebug) {
				p.log.Debug("read page", "page", pageId, "n", n, "sum", f.Sum,
					"head", "\n" + util.HexDump(f.Data()[:min(n, DEBUG_DUMP_LEN)]))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.log.Error("error reading pages", "err", err)
		p.Release(out...)
		return nil, err
	}
	return out, nil
}

func (p *Pager) Release(frames ...*Frame) {
	for _, f := range frames {
		p.framesFree <- f.index
	}
}

// Streams the whole file in page order, reading up to a full set of frames at a time.
// fn sees each frame once, frames are released after it returns.
func (p *Pager) Scan(ctx context.Context, fn func(*Frame) error) error {
	total := p.Pages()
	batch := uint64(len(p.frames))
	ids := make([]uint64, 0, batch)

	for start := uint64(0); start < total; start += batch {
		ids = ids[:0]
		for id := start; id < min(start + batch, total); id++ {
			ids = append(ids, id)
		}

		frames, err := p.ReadPages(ctx, ids)
		if err != nil { return err }

		for _, f := range frames {
			if err = fn(f); err != nil { break }
		}
		p.Release(frames...)
		if err != nil { return err }
	}
	return nil
}

// xxhash of the whole file, same as xxhash.Sum64 over its contents.
func (p *Pager) Sum(ctx context.Context) (uint64, error) {
	d := xxhash.New()
	err := p.Scan(ctx, func(f *Frame) error {
		_, err := d.Write(f.Data())
		return err
	})
	if err != nil { return 0, err }
	return d.Sum64(), nil
}

func (p *Pager) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var total int64
	err := p.Scan(ctx, func(f *Frame) error {
		n, err := w.Write(f.Data())
		total += int64(n)
		return err
	})
	return total, err
}
