package geosbridge

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

// Bridge moves geometries between native trees and an Engine. A Bridge may
// be shared between goroutines; calls are serialized because they share one
// warm transfer buffer.
type Bridge struct {
	mu      sync.Mutex
	engine  Engine
	scratch *scratch
	log     *zap.Logger
}

// New creates a Bridge over engine and allocates its warm transfer buffer.
func New(ctx context.Context, engine Engine, opts *Options) (*Bridge, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s, err := newScratch(ctx, engine, opts.ScratchSize, log)
	if err != nil {
		return nil, err
	}
	return &Bridge{engine: engine, scratch: s, log: log}, nil
}

// Close frees the warm transfer buffer. Geometries created through the
// Bridge are not affected.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scratch == nil {
		return nil
	}
	err := b.scratch.close(ctx)
	b.scratch = nil
	return err
}

// EncodeGeometry builds g in the engine and returns its handle.
func (b *Bridge) EncodeGeometry(ctx context.Context, g Geometry, layout Layout) (Handle, error) {
	hs, err := b.EncodeBatch(ctx, []Geometry{g}, layout)
	if err != nil {
		return 0, err
	}
	return hs[0], nil
}

// EncodeBatch validates every geometry, then builds all of them in the
// engine with one transfer buffer. Validation failures are returned before
// the engine is called.
func (b *Bridge) EncodeBatch(ctx context.Context, geoms []Geometry, layout Layout) ([]Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scratch == nil {
		return nil, ErrClosed
	}
	if len(geoms) == 0 {
		return nil, nil
	}

	var c counts
	for _, g := range geoms {
		if _, err := measure(g, layout, &c); err != nil {
			return nil, err
		}
	}
	size, err := c.size()
	if err != nil {
		return nil, err
	}
	b.log.Debug("encode batch",
		zap.Int("geometries", len(geoms)),
		zap.Uint32("d", c.d),
		zap.Uint32("s", c.s),
		zap.Uint32("f", c.f),
		zap.Stringer("layout", layout))

	var handles []Handle
	err = b.scratch.with(ctx, size, func(ptr uint32) error {
		var err error
		handles, err = b.encode(ctx, ptr, size, geoms, layout, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return handles, nil
}

func (b *Bridge) encode(
	ctx context.Context, ptr, size uint32, geoms []Geometry, layout Layout, c counts,
) ([]Handle, error) {
	mem := b.engine.Memory()
	view, ok := mem.Read(ptr, size)
	if !ok {
		return nil, errors.Newf("geosbridge: transfer buffer at %d (+%d bytes) out of bounds", ptr, size)
	}
	enc := newEncoder(view, c, layout)
	for _, g := range geoms {
		if err := enc.encode(g); err != nil {
			return nil, err
		}
	}
	if err := enc.finish(c); err != nil {
		return nil, err
	}

	if c.s > 0 {
		if err := b.engine.AllocateSequences(ctx, ptr); err != nil {
			return nil, errors.Wrap(err, "allocate sequences")
		}
		if err := populate(mem, ptr, c, enc.pending, layout); err != nil {
			return nil, err
		}
	}
	if err := b.engine.BuildGeometries(ctx, ptr); err != nil {
		return nil, errors.Wrap(err, "build geometries")
	}

	cells, ok := mem.Read(ptr+wire.DOffset, uint32(len(geoms))*4)
	if !ok {
		return nil, errors.Newf("geosbridge: result cells at %d out of bounds", ptr+wire.DOffset)
	}
	handles := make([]Handle, len(geoms))
	for i := range handles {
		handles[i] = Handle(getU32(cells, uint32(i)))
	}
	return handles, nil
}

// DecodeGeometry describes the geometry behind h as a native tree.
func (b *Bridge) DecodeGeometry(ctx context.Context, h Handle, layout Layout, extended bool) (Geometry, error) {
	gs, err := b.DecodeBatch(ctx, []Handle{h}, layout, extended)
	if err != nil {
		return nil, err
	}
	return gs[0], nil
}

// DecodeBatch describes the geometries behind handles as native trees. Unless
// extended is set, any curved kind fails the whole batch with an
// *UnsupportedGeometryError before coordinates are read.
func (b *Bridge) DecodeBatch(
	ctx context.Context, handles []Handle, layout Layout, extended bool,
) ([]Geometry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scratch == nil {
		return nil, ErrClosed
	}
	if len(handles) == 0 {
		return nil, nil
	}

	nb, nf, err := b.engine.MeasureDecode(ctx, handles)
	if err != nil {
		return nil, errors.Wrap(err, "measure decode buffer")
	}
	size, err := counts{d: nb, f: nf}.size()
	if err != nil {
		return nil, err
	}
	b.log.Debug("decode batch",
		zap.Int("geometries", len(handles)),
		zap.Uint32("b", nb),
		zap.Uint32("f", nf),
		zap.Stringer("layout", layout),
		zap.Bool("extended", extended))

	var out []Geometry
	err = b.scratch.with(ctx, size, func(ptr uint32) error {
		if err := b.engine.WriteDecode(ctx, handles, ptr); err != nil {
			return errors.Wrap(err, "write decode buffer")
		}
		view, ok := b.engine.Memory().Read(ptr, size)
		if !ok {
			return errors.Newf("geosbridge: decode buffer at %d (+%d bytes) out of bounds", ptr, size)
		}
		if gotB, gotF := getU32(view, 0), getU32(view, 1); gotB != nb || gotF != nf {
			return errors.Newf("geosbridge: engine wrote %d/%d cells, measured %d/%d", gotB, gotF, nb, nf)
		}
		var err error
		out, err = newDecoder(view, b.engine.Memory(), nb, nf, layout, extended).decode(len(handles))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FreeGeometry releases a geometry owned by the engine.
func (b *Bridge) FreeGeometry(ctx context.Context, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Wrapf(b.engine.FreeGeometry(ctx, h), "free geometry %d", h)
}

// FreeGeometries releases every handle, continuing past failures.
func (b *Bridge) FreeGeometries(ctx context.Context, handles []Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, h := range handles {
		err = errors.CombineErrors(err, errors.Wrapf(b.engine.FreeGeometry(ctx, h), "free geometry %d", h))
	}
	return err
}
