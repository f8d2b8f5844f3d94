package fgb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	geosbridge "github.com/tingold/orb-geosbridge"
)

func TestWrite_Points(t *testing.T) {
	geoms := []geosbridge.Geometry{
		geosbridge.Point{Coordinates: geosbridge.Coord{1, 2}},
		geosbridge.Point{Coordinates: geosbridge.Coord{3, 4}},
		geosbridge.Point{Coordinates: geosbridge.Coord{5, 6}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, geoms, nil))
	require.NotZero(t, buf.Len())

	// FlatGeobuf magic bytes
	require.Equal(t, []byte{0x66, 0x67, 0x62, 0x03}, buf.Bytes()[:4])
}

func TestWrite_Curves(t *testing.T) {
	arc := geosbridge.CircularString{Coordinates: []geosbridge.Coord{{0, 0}, {1, 1}, {2, 0}}}
	geoms := []geosbridge.Geometry{
		arc,
		geosbridge.CompoundCurve{Segments: []geosbridge.Geometry{
			arc,
			geosbridge.LineString{Coordinates: []geosbridge.Coord{{2, 0}, {3, 0}}},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, geoms, &Options{Layout: geosbridge.XY}))
	require.NotZero(t, buf.Len())
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, Write(&buf, nil, nil), ErrNoGeometries)
	require.ErrorIs(t, Write(&buf, []geosbridge.Geometry{nil}, nil), ErrNoGeometries)
}

func TestWrite_InvalidGeometry(t *testing.T) {
	geoms := []geosbridge.Geometry{
		geosbridge.Point{Coordinates: geosbridge.Coord{1, 2}},
		geosbridge.LineString{Coordinates: []geosbridge.Coord{{1}}},
	}
	var buf bytes.Buffer
	err := Write(&buf, geoms, &Options{IncludeIndex: false})
	require.ErrorIs(t, err, ErrInvalidData)
	require.Contains(t, err.Error(), "feature 1")
}

func TestWrite_NoIndex(t *testing.T) {
	geoms := []geosbridge.Geometry{geosbridge.Point{Coordinates: geosbridge.Coord{1, 2}}}

	var withIndex, withoutIndex bytes.Buffer
	require.NoError(t, Write(&withIndex, geoms, &Options{IncludeIndex: true}))
	require.NoError(t, Write(&withoutIndex, geoms, &Options{IncludeIndex: false}))
	require.Greater(t, withIndex.Len(), withoutIndex.Len())
}

func TestWriteFeatures_PropertyMismatch(t *testing.T) {
	features := []*Feature{
		{Geometry: geosbridge.Point{Coordinates: geosbridge.Coord{1, 2}}, Properties: map[string]interface{}{"v": true}},
		{Geometry: geosbridge.Point{Coordinates: geosbridge.Coord{3, 4}}, Properties: map[string]interface{}{"v": "no"}},
	}
	var buf bytes.Buffer
	err := WriteFeatures(&buf, features, nil)
	require.ErrorIs(t, err, ErrPropertyMismatch)
}

func TestWriteFeatures_Deterministic(t *testing.T) {
	features := []*Feature{{
		Geometry: geosbridge.Point{Coordinates: geosbridge.Coord{1, 2}},
		Properties: map[string]interface{}{
			"a": 1, "b": "two", "c": 3.0, "d": true, "e": "five",
		},
	}}

	var first, second bytes.Buffer
	require.NoError(t, WriteFeatures(&first, features, nil))
	require.NoError(t, WriteFeatures(&second, features, nil))
	require.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteFeature_Nil(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, WriteFeature(&buf, nil, nil), ErrNoGeometries)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.True(t, opts.IncludeIndex)
	require.Equal(t, geosbridge.XYZM, opts.Layout)
}

func TestWGS84(t *testing.T) {
	crs := WGS84()
	require.Equal(t, 4326, crs.Code)
	require.Equal(t, "WGS 84", crs.Name)
}
