package geosbridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestLayoutFromGeom(t *testing.T) {
	for gl, want := range map[geom.Layout]Layout{
		geom.NoLayout: XY,
		geom.XY:       XY,
		geom.XYZ:      XYZ,
		geom.XYM:      XYM,
		geom.XYZM:     XYZM,
	} {
		got, err := LayoutFromGeom(gl)
		require.NoError(t, err)
		require.Equal(t, want, got)
		if gl != geom.NoLayout {
			require.Equal(t, gl, got.GeomLayout())
		}
	}
}

func TestFromGeomT(t *testing.T) {
	ls := geom.NewLineString(geom.XYM).MustSetCoords([]geom.Coord{{0, 0, 1}, {1, 1, 2}})
	g, err := FromGeomT(ls)
	require.NoError(t, err)
	require.Equal(t, LineString{Coordinates: []Coord{{0, 0, 1}, {1, 1, 2}}}, g)

	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	gc := geom.NewGeometryCollection().MustPush(poly, geom.NewPointEmpty(geom.XY))
	g, err = FromGeomT(gc)
	require.NoError(t, err)
	require.Equal(t, GeometryCollection{Geometries: []Geometry{
		Polygon{Coordinates: [][]Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
		Point{},
	}}, g)

	mp := geom.NewMultiPolygon(geom.XYZ).MustSetCoords([][][]geom.Coord{
		{{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 0, 1}}},
	})
	g, err = FromGeomT(mp)
	require.NoError(t, err)
	require.Equal(t, MultiPolygon{Coordinates: [][][]Coord{{{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 0, 1}}}}}, g)

	_, err = FromGeomT(nil)
	require.ErrorIs(t, err, ErrNilGeometry)
}

func TestToGeomT(t *testing.T) {
	g, err := ToGeomT(Point{Coordinates: Coord{1, 2, 5}}, XYM)
	require.NoError(t, err)
	require.Equal(t, geom.XYM, g.Layout())
	require.Equal(t, []float64{1, 2, 5}, g.FlatCoords())

	g, err = ToGeomT(LineString{Coordinates: []Coord{{0, 0}, {1, 1, 3}}}, XYZM)
	require.NoError(t, err)
	flat := g.FlatCoords()
	require.Len(t, flat, 8)
	require.Equal(t, []float64{0, 0}, flat[:2])
	require.True(t, math.IsNaN(flat[2]))
	require.Equal(t, []float64{1, 1, 3}, flat[4:7])
	require.True(t, math.IsNaN(flat[7]))

	g, err = ToGeomT(MultiLineString{Coordinates: [][]Coord{{{0, 0, 9}, {1, 1, 9}}}}, XY)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 1, 1}, g.FlatCoords())

	g, err = ToGeomT(Point{}, XY)
	require.NoError(t, err)
	require.True(t, g.Empty())

	_, err = ToGeomT(MultiSurface{}, XY)
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, err = ToGeomT(nil, XY)
	require.ErrorIs(t, err, ErrNilGeometry)
}

func TestToGeomT_ShortCoordinate(t *testing.T) {
	cases := []struct {
		name string
		in   Geometry
	}{
		{"point", Point{Coordinates: Coord{1}}},
		{"multipoint", MultiPoint{Coordinates: []Coord{{1, 2}, {}}}},
		{"linestring", LineString{Coordinates: []Coord{{0, 0}, {1}}}},
		{"polygon", Polygon{Coordinates: [][]Coord{{{0, 0}, {1, 0}, {1}, {0, 0}}}}},
		{"multilinestring", MultiLineString{Coordinates: [][]Coord{{{0, 0}, {1}}}}},
		{"multipolygon", MultiPolygon{Coordinates: [][][]Coord{{{{0}, {1, 0}, {1, 1}, {0, 0}}}}}},
		{"collection member", GeometryCollection{Geometries: []Geometry{Point{Coordinates: Coord{2}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, l := range []Layout{XY, XYZ, XYM, XYZM} {
				require.NotPanics(t, func() {
					g, err := ToGeomT(tc.in, l)
					var invalidErr *InvalidGeometryError
					require.ErrorAs(t, err, &invalidErr, l.String())
					require.Equal(t, msgOrdinates, invalidErr.Message)
					require.Nil(t, g)
				})
			}
		})
	}
}

func TestGeomThroughEngine(t *testing.T) {
	b, _ := newTestBridge(t, nil)

	in := geom.NewMultiPoint(geom.XYZM).MustSetCoords([]geom.Coord{{1, 2, 3, 4}, {5, 6, 7, 8}})
	l, err := LayoutFromGeom(in.Layout())
	require.NoError(t, err)
	g, err := FromGeomT(in)
	require.NoError(t, err)

	out := roundTrip(t, b, []Geometry{g}, l, false)
	back, err := ToGeomT(out[0], l)
	require.NoError(t, err)
	require.Equal(t, in.FlatCoords(), back.FlatCoords())
	require.Equal(t, geom.XYZM, back.Layout())
}
