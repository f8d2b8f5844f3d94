package geosbridge

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tingold/orb-geosbridge/internal/wire"
)

// Handle references a geometry owned by the engine.
type Handle = wire.Handle

// Engine is the capability surface of the foreign geometry engine. All
// pointers are byte offsets into Memory. Implementations are not required to
// be safe for concurrent use; the Bridge serializes its calls.
type Engine interface {
	// Memory returns the engine's linear memory. Views obtained from it are
	// only valid until the next engine call, which may grow the memory.
	Memory() api.Memory

	Malloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error

	// AllocateSequences allocates one coordinate sequence per S cell of the
	// transfer buffer at buf. The size of each sequence is read from its D
	// placeholder cell, which is then overwritten with the sequence handle;
	// the S cell receives a pointer to the sequence data.
	AllocateSequences(ctx context.Context, buf uint32) error

	// BuildGeometries constructs geometries from the completed recipe at buf
	// and writes one geometry handle per top-level record into D cells
	// 0..n-1.
	BuildGeometries(ctx context.Context, buf uint32) error

	// MeasureDecode returns the exact number of B (u32) and F (f64) cells
	// WriteDecode needs to describe handles.
	MeasureDecode(ctx context.Context, handles []Handle) (b, f uint32, err error)

	// WriteDecode writes the descriptive buffer for handles at buf.
	WriteDecode(ctx context.Context, handles []Handle, buf uint32) error

	FreeGeometry(ctx context.Context, h Handle) error
}
