package refengine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func TestHeapReuseAndGrowth(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Malloc(ctx, 10)
	require.NoError(t, err)
	require.NotZero(t, a)
	require.Zero(t, a%alignment)

	b, err := e.Malloc(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, e.Free(ctx, a))

	c, err := e.Malloc(ctx, 16)
	require.NoError(t, err)
	require.Equal(t, a, c, "freed block should be reused")
	require.NotEqual(t, b, c)

	before := e.Memory().Size()
	big, err := e.Malloc(ctx, 3*pageSize)
	require.NoError(t, err)
	require.Greater(t, e.Memory().Size(), before)
	_, ok := e.Memory().Read(big, 3*pageSize)
	require.True(t, ok)

	require.Error(t, e.Free(ctx, big+8))

	s := e.Stats()
	require.Equal(t, 4, s.Mallocs)
	require.Equal(t, 2, s.Frees)
	require.Equal(t, []uint32{10, 100, 16, 3 * pageSize}, s.MallocSizes[:4])
}

// recipeBuffer writes count cells, D cells and F values into engine memory.
func recipeBuffer(t *testing.T, e *Engine, d []uint32, s uint32, f []float64) uint32 {
	t.Helper()
	nd := uint32(len(d))
	size := wire.BufferSize(nd, s, uint32(len(f)))
	buf, err := e.Malloc(context.Background(), size)
	require.NoError(t, err)

	mem := e.Memory()
	require.True(t, mem.WriteUint32Le(buf, nd))
	require.True(t, mem.WriteUint32Le(buf+4, s))
	for i, v := range d {
		require.True(t, mem.WriteUint32Le(buf+wire.DOffset+4*uint32(i), v))
	}
	fBase := buf + wire.FOffset(nd, s)
	for i, v := range f {
		require.True(t, mem.WriteFloat64Le(fBase+8*uint32(i), v))
	}
	return buf
}

func TestBuildAndDescribe(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	point := wire.MakeHeader(wire.TypePoint, false, true, false)
	line := wire.MakeHeader(wire.TypeLineString, false, false, false)
	buf := recipeBuffer(t, e,
		[]uint32{uint32(point), uint32(line), 2},
		1,
		[]float64{1, 2, 3},
	)

	require.NoError(t, e.AllocateSequences(ctx, buf))
	require.Equal(t, 1, e.Stats().Sequences)

	dataPtr, ok := e.Memory().ReadUint32Le(buf + wire.SOffset(3))
	require.True(t, ok)
	require.NotZero(t, dataPtr)
	for i, v := range []float64{10, 20, math.NaN(), 30, 40, math.NaN()} {
		require.True(t, e.Memory().WriteFloat64Le(dataPtr+8*uint32(i), v))
	}

	require.NoError(t, e.BuildGeometries(ctx, buf))
	require.Zero(t, e.Stats().Sequences, "sequences belong to the geometry")

	h0, _ := e.Memory().ReadUint32Le(buf + wire.DOffset)
	h1, _ := e.Memory().ReadUint32Le(buf + wire.DOffset + 4)

	info, err := e.Describe(wire.Handle(h0))
	require.NoError(t, err)
	require.Equal(t, Info{Type: wire.TypePoint, HasZ: true, Points: 1}, info)

	info, err = e.Describe(wire.Handle(h1))
	require.NoError(t, err)
	require.Equal(t, Info{Type: wire.TypeLineString, Points: 2}, info)

	handles := []wire.Handle{wire.Handle(h0), wire.Handle(h1)}
	nb, nf, err := e.MeasureDecode(ctx, handles)
	require.NoError(t, err)
	require.Equal(t, uint32(4), nb)
	require.Equal(t, uint32(3), nf)

	out, err := e.Malloc(ctx, wire.BufferSize(nb, 0, nf))
	require.NoError(t, err)
	require.NoError(t, e.WriteDecode(ctx, handles, out))

	mem := e.Memory()
	cells := make([]uint32, 2+nb)
	for i := range cells {
		cells[i], _ = mem.ReadUint32Le(out + 4*uint32(i))
	}
	require.Equal(t, []uint32{nb, nf, uint32(point), uint32(line), 2, dataPtr}, cells)

	z, _ := mem.ReadFloat64Le(out + wire.FOffset(nb, 0) + 16)
	require.Equal(t, 3.0, z)

	require.NoError(t, e.FreeGeometry(ctx, wire.Handle(h1)))
	require.Error(t, e.FreeGeometry(ctx, wire.Handle(h1)))
	require.Equal(t, 1, e.Stats().Geometries)
}

func TestBuildRejectsMalformedRecipes(t *testing.T) {
	testCases := []struct {
		desc string
		d    []uint32
		s    uint32
	}{
		{
			desc: "unknown type",
			d:    []uint32{13},
		},
		{
			desc: "top level linear ring",
			d:    []uint32{uint32(wire.TypeLinearRing), 0},
		},
		{
			desc: "truncated collection",
			d:    []uint32{uint32(wire.TypeGeometryCollection), 2, uint32(wire.MakeHeader(wire.TypePoint, true, false, false))},
		},
		{
			desc: "compound curve holding a point",
			d: []uint32{
				uint32(wire.TypeCompoundCurve), 1,
				uint32(wire.MakeHeader(wire.TypePoint, true, false, false)),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			e := newTestEngine(t)
			buf := recipeBuffer(t, e, tc.d, tc.s, nil)
			require.Error(t, e.BuildGeometries(context.Background(), buf))
			require.Zero(t, e.Stats().Geometries)
		})
	}
}

func TestAllocateSequencesCountMismatch(t *testing.T) {
	e := newTestEngine(t)
	line := uint32(wire.MakeHeader(wire.TypeLineString, false, false, false))
	buf := recipeBuffer(t, e, []uint32{line, 2}, 2, nil)
	require.Error(t, e.AllocateSequences(context.Background(), buf))
}

func TestUnknownHandle(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.MeasureDecode(context.Background(), []wire.Handle{42})
	require.Error(t, err)
	_, err = e.Describe(42)
	require.Error(t, err)
}
