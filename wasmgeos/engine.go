// Package wasmgeos binds a WebAssembly build of the geometry engine, loaded
// with wazero, to the geosbridge Engine interface.
//
// The module must export its linear memory as "memory" and the functions
//
//	malloc(size) ptr
//	free(ptr)
//	GEOS_init_r() ctx
//	geosify_geomsCoords(buf)
//	geosify_geoms_r(ctx, buf)
//	jsonify_measure(buf)       buf = [n][h0..hn-1][b][f], writes b and f
//	jsonify_geoms(hbuf, out)   hbuf = [n][h0..hn-1]
//	GEOSGeom_destroy_r(ctx, geom)
//
// with every parameter and result an i32.
package wasmgeos

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

var exportNames = [...]string{
	"malloc",
	"free",
	"GEOS_init_r",
	"geosify_geomsCoords",
	"geosify_geoms_r",
	"jsonify_measure",
	"jsonify_geoms",
	"GEOSGeom_destroy_r",
}

// MissingExportError reports an export the module does not provide.
type MissingExportError struct {
	Name string
}

func (e *MissingExportError) Error() string {
	return "wasmgeos: module does not export " + e.Name
}

type exports struct {
	malloc, free       api.Function
	initCtx            api.Function
	geomsCoords, geoms api.Function
	measure, describe  api.Function
	destroy            api.Function
}

func resolve(mod api.Module) (*exports, error) {
	fns := make(map[string]api.Function, len(exportNames))
	for _, name := range exportNames {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, &MissingExportError{Name: name}
		}
		fns[name] = fn
	}
	return &exports{
		malloc:      fns["malloc"],
		free:        fns["free"],
		initCtx:     fns["GEOS_init_r"],
		geomsCoords: fns["geosify_geomsCoords"],
		geoms:       fns["geosify_geoms_r"],
		measure:     fns["jsonify_measure"],
		describe:    fns["jsonify_geoms"],
		destroy:     fns["GEOSGeom_destroy_r"],
	}, nil
}

// Engine drives an instantiated engine module. It is not safe for
// concurrent use.
type Engine struct {
	mod api.Module
	mem api.Memory
	fn  *exports
	ctx uint32 // engine context handle from GEOS_init_r
	log *zap.Logger
}

// New resolves the engine exports of mod and initializes an engine context.
// A nil logger disables logging.
func New(ctx context.Context, mod api.Module, log *zap.Logger) (*Engine, error) {
	fn, err := resolve(mod)
	if err != nil {
		return nil, err
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		return nil, &MissingExportError{Name: "memory"}
	}
	return bind(ctx, mod, fn, mem, log)
}

func bind(ctx context.Context, mod api.Module, fn *exports, mem api.Memory, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{mod: mod, mem: mem, fn: fn, log: log}
	h, err := e.call(ctx, fn.initCtx, "GEOS_init_r")
	if err != nil {
		return nil, err
	}
	e.ctx = h
	log.Debug("engine initialized", zap.String("module", mod.Name()), zap.Uint32("context", h))
	return e, nil
}

// call invokes fn and returns its first result, or zero for void exports.
func (e *Engine) call(ctx context.Context, fn api.Function, name string, params ...uint32) (uint32, error) {
	args := make([]uint64, len(params))
	for i, p := range params {
		args[i] = api.EncodeU32(p)
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "wasmgeos: %s", name)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return api.DecodeU32(res[0]), nil
}

// Close closes the module.
func (e *Engine) Close(ctx context.Context) error {
	return e.mod.Close(ctx)
}

func (e *Engine) Memory() api.Memory {
	return e.mem
}

func (e *Engine) Malloc(ctx context.Context, size uint32) (uint32, error) {
	ptr, err := e.call(ctx, e.fn.malloc, "malloc", size)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, errors.Newf("wasmgeos: malloc(%d) failed", size)
	}
	return ptr, nil
}

func (e *Engine) Free(ctx context.Context, ptr uint32) error {
	_, err := e.call(ctx, e.fn.free, "free", ptr)
	return err
}

func (e *Engine) AllocateSequences(ctx context.Context, buf uint32) error {
	_, err := e.call(ctx, e.fn.geomsCoords, "geosify_geomsCoords", buf)
	return err
}

func (e *Engine) BuildGeometries(ctx context.Context, buf uint32) error {
	_, err := e.call(ctx, e.fn.geoms, "geosify_geoms_r", e.ctx, buf)
	return err
}

// stage copies handles into a temporary engine allocation laid out as
// [n][h0..hn-1] followed by extra zeroed cells.
func (e *Engine) stage(ctx context.Context, handles []wire.Handle, extra uint32) (uint32, error) {
	cells := 1 + uint32(len(handles)) + extra
	ptr, err := e.Malloc(ctx, cells*4)
	if err != nil {
		return 0, err
	}
	view, ok := e.mem.Read(ptr, cells*4)
	if !ok {
		return 0, errors.CombineErrors(
			errors.Newf("wasmgeos: staging buffer at %d out of bounds", ptr),
			e.Free(ctx, ptr))
	}
	binary.LittleEndian.PutUint32(view, uint32(len(handles)))
	for i, h := range handles {
		binary.LittleEndian.PutUint32(view[4+4*i:], uint32(h))
	}
	for i := 1 + uint32(len(handles)); i < cells; i++ {
		binary.LittleEndian.PutUint32(view[4*i:], 0)
	}
	return ptr, nil
}

func (e *Engine) MeasureDecode(ctx context.Context, handles []wire.Handle) (b, f uint32, err error) {
	ptr, err := e.stage(ctx, handles, 2)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		err = errors.CombineErrors(err, e.Free(ctx, ptr))
	}()

	if _, err = e.call(ctx, e.fn.measure, "jsonify_measure", ptr); err != nil {
		return 0, 0, err
	}
	off := ptr + 4 + 4*uint32(len(handles))
	b, ok1 := e.mem.ReadUint32Le(off)
	f, ok2 := e.mem.ReadUint32Le(off + 4)
	if !ok1 || !ok2 {
		return 0, 0, errors.Newf("wasmgeos: measure result at %d out of bounds", off)
	}
	return b, f, nil
}

func (e *Engine) WriteDecode(ctx context.Context, handles []wire.Handle, buf uint32) (err error) {
	ptr, err := e.stage(ctx, handles, 0)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, e.Free(ctx, ptr))
	}()
	_, err = e.call(ctx, e.fn.describe, "jsonify_geoms", ptr, buf)
	return err
}

func (e *Engine) FreeGeometry(ctx context.Context, h wire.Handle) error {
	_, err := e.call(ctx, e.fn.destroy, "GEOSGeom_destroy_r", e.ctx, uint32(h))
	return err
}
