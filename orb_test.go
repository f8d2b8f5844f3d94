package geosbridge

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestFromOrb(t *testing.T) {
	cases := []struct {
		name string
		in   orb.Geometry
		want Geometry
	}{
		{"point", orb.Point{1, 2}, Point{Coordinates: Coord{1, 2}}},
		{"multipoint", orb.MultiPoint{{1, 2}, {3, 4}}, MultiPoint{Coordinates: []Coord{{1, 2}, {3, 4}}}},
		{"linestring", orb.LineString{{0, 0}, {1, 1}}, LineString{Coordinates: []Coord{{0, 0}, {1, 1}}}},
		{"empty linestring", orb.LineString{}, LineString{}},
		{"ring", orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
			Polygon{Coordinates: [][]Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}},
			MultiLineString{Coordinates: [][]Coord{{{0, 0}, {1, 1}}}}},
		{"bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
			Polygon{Coordinates: [][]Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}}},
		{"collection", orb.Collection{orb.Point{1, 2}, nil},
			GeometryCollection{Geometries: []Geometry{Point{Coordinates: Coord{1, 2}}}}},
		{"nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FromOrb(tc.in))
		})
	}
}

func TestToOrb(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}, {{5.2, 5.1}, {5.8, 5.1}, {5.8, 5.5}, {5.2, 5.1}}},
	}
	g, err := ToOrb(FromOrb(mp))
	require.NoError(t, err)
	require.Equal(t, mp, g)

	g, err = ToOrb(Point{Coordinates: Coord{1, 2, 3, 4}})
	require.NoError(t, err)
	require.Equal(t, orb.Point{1, 2}, g)

	g, err = ToOrb(Point{})
	require.NoError(t, err)
	require.Equal(t, orb.Point{}, g)

	g, err = ToOrb(GeometryCollection{Geometries: []Geometry{LineString{Coordinates: []Coord{{0, 0}, {1, 1}}}}})
	require.NoError(t, err)
	require.Equal(t, orb.Collection{orb.LineString{{0, 0}, {1, 1}}}, g)

	_, err = ToOrb(CircularString{Coordinates: []Coord{{0, 0}, {1, 1}, {2, 0}}})
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, err = ToOrb(GeometryCollection{Geometries: []Geometry{CompoundCurve{}}})
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, err = ToOrb(nil)
	require.ErrorIs(t, err, ErrNilGeometry)
}

func TestToOrb_ShortCoordinate(t *testing.T) {
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
		{"collection member", GeometryCollection{Geometries: []Geometry{LineString{Coordinates: []Coord{{0}}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var g orb.Geometry
			require.NotPanics(t, func() {
				var err error
				g, err = ToOrb(tc.in)
				var invalidErr *InvalidGeometryError
				require.ErrorAs(t, err, &invalidErr)
				require.Equal(t, msgOrdinates, invalidErr.Message)
			})
			require.Nil(t, g)
		})
	}
}

func TestOrbThroughEngine(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	in := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
	}

	out := roundTrip(t, b, []Geometry{FromOrb(in)}, XY, false)
	g, err := ToOrb(out[0])
	require.NoError(t, err)
	require.Equal(t, in, g)

	_, err = b.EncodeGeometry(context.Background(), FromOrb(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}), XY)
	var invalidErr *InvalidGeometryError
	require.ErrorAs(t, err, &invalidErr)
}
