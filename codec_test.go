package geosbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

func TestMeasure(t *testing.T) {
	cases := []struct {
		name   string
		g      Geometry
		layout Layout
		want   counts
	}{
		{"empty point", Point{}, XYZM, counts{d: 1}},
		{"point xy", Point{Coordinates: Coord{1, 2}}, XYZM, counts{d: 1, f: 2}},
		{"point xyz", Point{Coordinates: Coord{1, 2, 3}}, XYZM, counts{d: 1, f: 3}},
		{"point xym", Point{Coordinates: Coord{1, 2, 3}}, XYM, counts{d: 1, f: 4}},
		{"point xyzm as xy", Point{Coordinates: Coord{1, 2, 3, 4}}, XY, counts{d: 1, f: 2}},
		{"multipoint", MultiPoint{Coordinates: []Coord{{1, 2, 3}, {4, 5, 6}}}, XYZ, counts{d: 2, f: 6}},
		{"empty multipoint", MultiPoint{}, XYZM, counts{d: 2}},
		{"linestring", LineString{Coordinates: []Coord{{0, 0}, {1, 1}}}, XY, counts{d: 2, s: 1}},
		{"empty linestring", LineString{}, XY, counts{d: 2, s: 1}},
		{"polygon", Polygon{Coordinates: [][]Coord{square(0, 0, 2), square(0, 0, 1)}}, XY, counts{d: 4, s: 2}},
		{"multilinestring", MultiLineString{Coordinates: [][]Coord{{{0, 0}, {1, 1}}}}, XY, counts{d: 3, s: 1}},
		{"multipolygon", MultiPolygon{Coordinates: [][][]Coord{
			{square(0, 0, 1)},
			{square(0, 0, 2), square(0, 0, 1)},
		}}, XY, counts{d: 7, s: 3}},
		{"collection", GeometryCollection{Geometries: []Geometry{
			Point{Coordinates: Coord{1, 2}},
			LineString{Coordinates: []Coord{{0, 0}, {1, 1}}},
		}}, XY, counts{d: 5, s: 1, f: 2}},
		{"compound", CompoundCurve{Segments: []Geometry{
			CircularString{Coordinates: []Coord{{0, 0}, {1, 1}, {2, 0}}},
			LineString{Coordinates: []Coord{{2, 0}, {3, 0}}},
		}}, XY, counts{d: 6, s: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c counts
			k, err := measure(tc.g, tc.layout, &c)
			require.NoError(t, err)
			require.Equal(t, tc.g.Kind(), k)
			require.Equal(t, tc.want, c)
		})
	}
}

func TestCountsSize(t *testing.T) {
	size, err := counts{d: 1000, f: 2000}.size()
	require.NoError(t, err)
	require.Equal(t, uint32(20008), size)

	// Odd cell counts are padded so F stays 8-byte aligned.
	size, err = counts{d: 1, s: 0, f: 1}.size()
	require.NoError(t, err)
	require.Equal(t, uint32(24), size)

	_, err = counts{d: 1 << 30, f: 1 << 30}.size()
	require.Error(t, err)
}

func TestEncoder(t *testing.T) {
	gs := []Geometry{
		Polygon{Coordinates: [][]Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
		Point{Coordinates: Coord{1, 2, 3}},
	}
	var c counts
	for _, g := range gs {
		_, err := measure(g, XYZ, &c)
		require.NoError(t, err)
	}
	require.Equal(t, counts{d: 4, s: 1, f: 3}, c)
	size, err := c.size()
	require.NoError(t, err)
	require.Equal(t, uint32(56), size)
	require.Equal(t, uint32(32), wire.FOffset(c.d, c.s))

	buf := make([]byte, size)
	enc := newEncoder(buf, c, XYZ)
	for _, g := range gs {
		require.NoError(t, enc.encode(g))
	}
	require.NoError(t, enc.finish(c))

	cells := []uint32{
		4, 1, // counts
		uint32(wire.MakeHeader(wire.TypePolygon, false, false, false)), 1, 4,
		uint32(wire.MakeHeader(wire.TypePoint, false, true, false)),
		0, // S cell
	}
	for i, want := range cells {
		require.Equal(t, want, getU32(buf, uint32(i)), "cell %d", i)
	}
	require.Equal(t, 1.0, getF64(buf, 32))
	require.Equal(t, 2.0, getF64(buf, 40))
	require.Equal(t, 3.0, getF64(buf, 48))

	require.Len(t, enc.pending, 1)
	require.Len(t, enc.pending[0].coords, 4)
	require.False(t, enc.pending[0].hasM)
}

func TestEncoder_EmptyHeaders(t *testing.T) {
	gs := []Geometry{Point{}, LineString{}, GeometryCollection{}}
	var c counts
	for _, g := range gs {
		_, err := measure(g, XYZM, &c)
		require.NoError(t, err)
	}
	size, err := c.size()
	require.NoError(t, err)

	buf := make([]byte, size)
	enc := newEncoder(buf, c, XYZM)
	for _, g := range gs {
		require.NoError(t, enc.encode(g))
	}
	require.NoError(t, enc.finish(c))

	cells := []uint32{
		uint32(wire.MakeHeader(wire.TypePoint, true, false, false)),
		uint32(wire.MakeHeader(wire.TypeLineString, true, false, false)), 0,
		uint32(wire.MakeHeader(wire.TypeGeometryCollection, true, false, false)), 0,
	}
	for i, want := range cells {
		require.Equal(t, want, getU32(buf, wire.CountCells+uint32(i)), "D cell %d", i)
	}
}

func TestEncoder_FinishMismatch(t *testing.T) {
	c := counts{d: 1, f: 2}
	size, err := c.size()
	require.NoError(t, err)
	enc := newEncoder(make([]byte, size), c, XY)
	require.Error(t, enc.finish(c))
}

// decodeBuffer lays out B cells and F values the way an engine would.
func decodeBuffer(b []uint32, f []float64) []byte {
	nb, nf := uint32(len(b)), uint32(len(f))
	buf := make([]byte, wire.BufferSize(nb, 0, nf))
	putU32(buf, 0, nb)
	putU32(buf, 1, nf)
	for i, v := range b {
		putU32(buf, wire.CountCells+uint32(i), v)
	}
	base := int(wire.FOffset(nb, 0))
	for i, v := range f {
		putF64(buf, base+8*i, v)
	}
	return buf
}

func TestDecoder_UnknownTag(t *testing.T) {
	buf := decodeBuffer([]uint32{13}, nil)
	_, err := newDecoder(buf, nil, 1, 0, XYZM, true).decode(1)

	var unsupported *UnsupportedGeometryError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, uint32(13), unsupported.Tag)
	require.False(t, unsupported.Kind.Valid())
	require.EqualError(t, err, "unsupported geometry: unknown type tag 13")
}

func TestDecoder_CurveGateBeforeRead(t *testing.T) {
	// The curve's data pointer is bogus and memory is nil: the check pass
	// must reject the record before anything dereferences it.
	b := []uint32{
		uint32(wire.MakeHeader(wire.TypePoint, false, false, false)),
		uint32(wire.MakeHeader(wire.TypeGeometryCollection, false, false, false)), 1,
		uint32(wire.MakeHeader(wire.TypeCircularString, false, false, false)), 3, 0xdeadbeef,
	}
	buf := decodeBuffer(b, []float64{1, 2})
	_, err := newDecoder(buf, nil, uint32(len(b)), 2, XY, false).decode(2)

	var unsupported *UnsupportedGeometryError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, KindCircularString, unsupported.Kind)
	require.Equal(t, uint32(wire.TypeCircularString), unsupported.Tag)
}

func TestDecoder_PointsAndLinearRing(t *testing.T) {
	b := []uint32{
		uint32(wire.MakeHeader(wire.TypePoint, false, true, true)),
		uint32(wire.MakeHeader(wire.TypeMultiPoint, false, false, false)), 2,
		uint32(wire.MakeHeader(wire.TypeLinearRing, true, false, false)),
		uint32(wire.MakeHeader(wire.TypePoint, true, false, false)),
	}
	f := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	buf := decodeBuffer(b, f)
	gs, err := newDecoder(buf, nil, uint32(len(b)), uint32(len(f)), XYZM, false).decode(4)
	require.NoError(t, err)
	require.Equal(t, []Geometry{
		Point{Coordinates: Coord{1, 2, 3, 4}},
		MultiPoint{Coordinates: []Coord{{5, 6}, {7, 8}}},
		LineString{},
		Point{},
	}, gs)
}

func TestDecoder_Overrun(t *testing.T) {
	cases := map[string][]uint32{
		"missing count": {uint32(wire.MakeHeader(wire.TypePolygon, false, false, false))},
		"missing pair":  {uint32(wire.MakeHeader(wire.TypeLineString, false, false, false)), 2},
		"missing child": {uint32(wire.MakeHeader(wire.TypeGeometryCollection, false, false, false)), 1},

		// Counts whose cell or slot totals wrap a uint32.
		"huge ring count":  {uint32(wire.MakeHeader(wire.TypePolygon, false, false, false)), 0x80000000},
		"huge line count":  {uint32(wire.MakeHeader(wire.TypeMultiLineString, false, false, false)), 0x80000000},
		"huge point count": {uint32(wire.MakeHeader(wire.TypeMultiPoint, false, false, false)), 0x80000000},
		"huge polygon rings": {
			uint32(wire.MakeHeader(wire.TypeMultiPolygon, false, false, false)), 1, 0x80000000,
		},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			buf := decodeBuffer(b, nil)
			_, err := newDecoder(buf, nil, uint32(len(b)), 0, XY, false).decode(1)
			require.ErrorIs(t, err, errOverrun)
		})
	}

	// Point values beyond F.
	b := []uint32{uint32(wire.MakeHeader(wire.TypePoint, false, false, false))}
	_, err := newDecoder(decodeBuffer(b, []float64{1}), nil, 1, 1, XY, false).decode(1)
	require.ErrorIs(t, err, errOverrun)
}

func TestDecoder_Slack(t *testing.T) {
	// An engine may measure an empty record at full size.
	b := []uint32{uint32(wire.MakeHeader(wire.TypeLineString, true, false, false)), 0, 0}
	gs, err := newDecoder(decodeBuffer(b, nil), nil, 3, 0, XY, false).decode(1)
	require.NoError(t, err)
	require.Equal(t, []Geometry{LineString{}}, gs)
}

func TestMeasure_ClosedRingRevalidates(t *testing.T) {
	ring := square(0, 0, 3)
	p := Polygon{Coordinates: [][]Coord{ring}}
	var first, second counts
	_, err := measure(p, XY, &first)
	require.NoError(t, err)
	_, err = measure(p, XY, &second)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, p.Coordinates[0], 5)
	require.Equal(t, square(0, 0, 3), p.Coordinates[0])
}
