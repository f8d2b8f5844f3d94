// Package refengine is an in-process geometry engine that speaks the bridge's
// buffer protocol over a real wasm linear memory. It builds geometries from
// transfer buffers and describes them back, without any geometric
// operations of its own. It is used to test the bridge end to end and as the
// engine of the demo server.
package refengine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

// memoryModule is a wasm module with one page of growable memory exported
// as "memory".
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // "memory"
	0x02, 0x00, // memory index 0
}

// Stats counts calls to Malloc and Free made by the engine's callers.
// Allocations the engine makes for its own sequences are not included.
type Stats struct {
	Mallocs     int
	Frees       int
	MallocSizes []uint32

	Geometries int // live geometries
	Sequences  int // live sequences not yet owned by a geometry
	HeapBlocks int
	HeapBytes  uint64
}

// Engine is the reference engine. It is not safe for concurrent use.
type Engine struct {
	rt   wazero.Runtime
	mem  api.Memory
	log  *zap.Logger
	heap *heap

	next  wire.Handle
	seqs  map[wire.Handle]*sequence
	geoms map[wire.Handle]*node

	mallocs     int
	frees       int
	mallocSizes []uint32
}

// New starts a wazero runtime and instantiates the engine memory. A nil
// logger disables logging.
func New(ctx context.Context, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, memoryModule)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "compile memory module")
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("refengine"))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "instantiate memory module")
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, errors.New("refengine: memory module has no memory export")
	}
	return &Engine{
		rt:    rt,
		mem:   mem,
		log:   log,
		heap:  newHeap(mem, log),
		seqs:  make(map[wire.Handle]*sequence),
		geoms: make(map[wire.Handle]*node),
	}, nil
}

// Close shuts down the runtime. Every handle becomes invalid.
func (e *Engine) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}

func (e *Engine) Memory() api.Memory {
	return e.mem
}

func (e *Engine) Malloc(_ context.Context, size uint32) (uint32, error) {
	e.mallocs++
	e.mallocSizes = append(e.mallocSizes, size)
	return e.heap.alloc(size)
}

func (e *Engine) Free(_ context.Context, ptr uint32) error {
	e.frees++
	return e.heap.release(ptr)
}

// Stats returns a snapshot of the call counters and live objects.
func (e *Engine) Stats() Stats {
	blocks, bytes := e.heap.inUse()
	return Stats{
		Mallocs:     e.mallocs,
		Frees:       e.frees,
		MallocSizes: append([]uint32(nil), e.mallocSizes...),
		Geometries:  len(e.geoms),
		Sequences:   len(e.seqs),
		HeapBlocks:  blocks,
		HeapBytes:   bytes,
	}
}

// ResetStats zeroes the Malloc and Free counters.
func (e *Engine) ResetStats() {
	e.mallocs, e.frees, e.mallocSizes = 0, 0, nil
}

func (e *Engine) handle() wire.Handle {
	e.next++
	return e.next
}

func (e *Engine) FreeGeometry(_ context.Context, h wire.Handle) error {
	n, ok := e.geoms[h]
	if !ok {
		return errors.Newf("refengine: unknown geometry handle %d", h)
	}
	delete(e.geoms, h)
	return e.destroy(n)
}

// destroy releases the sequences a node tree owns.
func (e *Engine) destroy(n *node) error {
	var err error
	if n.seq != nil && n.seq.ptr != 0 {
		err = e.heap.release(n.seq.ptr)
	}
	for _, c := range n.children {
		err = errors.CombineErrors(err, e.destroy(c))
	}
	return err
}

// Info summarizes a geometry.
type Info struct {
	Type     wire.TypeID
	Empty    bool
	HasZ     bool
	HasM     bool
	Children int // rings, members or segments
	Points   int // points in the whole tree
}

// Describe returns a summary of the geometry behind h.
func (e *Engine) Describe(h wire.Handle) (Info, error) {
	n, ok := e.geoms[h]
	if !ok {
		return Info{}, errors.Newf("refengine: unknown geometry handle %d", h)
	}
	return Info{
		Type:     n.typ,
		Empty:    n.empty(),
		HasZ:     n.hasZ,
		HasM:     n.hasM,
		Children: len(n.children),
		Points:   n.numPoints(),
	}, nil
}
