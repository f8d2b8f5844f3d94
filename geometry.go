package geosbridge

import (
	"math"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

// Kind identifies a geometry node variant.
type Kind uint8

// Geometry kinds. The last five are only produced by the decoder in the
// extended flavor.
const (
	KindPoint Kind = iota + 1
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindGeometryCollection
	KindCircularString
	KindCompoundCurve
	KindCurvePolygon
	KindMultiCurve
	KindMultiSurface
)

var kindTypeIDs = [...]wire.TypeID{
	KindPoint:              wire.TypePoint,
	KindLineString:         wire.TypeLineString,
	KindPolygon:            wire.TypePolygon,
	KindMultiPoint:         wire.TypeMultiPoint,
	KindMultiLineString:    wire.TypeMultiLineString,
	KindMultiPolygon:       wire.TypeMultiPolygon,
	KindGeometryCollection: wire.TypeGeometryCollection,
	KindCircularString:     wire.TypeCircularString,
	KindCompoundCurve:      wire.TypeCompoundCurve,
	KindCurvePolygon:       wire.TypeCurvePolygon,
	KindMultiCurve:         wire.TypeMultiCurve,
	KindMultiSurface:       wire.TypeMultiSurface,
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= KindPoint && k <= KindMultiSurface
}

// IsCurved reports whether k belongs to the extended flavor.
func (k Kind) IsCurved() bool {
	return k >= KindCircularString && k <= KindMultiSurface
}

func (k Kind) typeID() wire.TypeID {
	return kindTypeIDs[k]
}

func (k Kind) String() string {
	if !k.Valid() {
		return "Unknown"
	}
	return k.typeID().String()
}

// kindFromTypeID maps a header type id back to a Kind. LinearRing decodes as
// a LineString.
func kindFromTypeID(t wire.TypeID) (Kind, bool) {
	if t == wire.TypeLinearRing {
		return KindLineString, true
	}
	for k := KindPoint; k <= KindMultiSurface; k++ {
		if kindTypeIDs[k] == t {
			return k, true
		}
	}
	return 0, false
}

// Coord is one coordinate tuple: x, y and optionally z and/or m. Which of
// the third and fourth ordinates are present is decided by the Layout used
// with it.
type Coord []float64

// Equal reports whether two tuples are equal component-wise. NaN marks a
// missing ordinate, so NaN equals NaN in the same position.
func (c Coord) Equal(o Coord) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] && !(math.IsNaN(c[i]) && math.IsNaN(o[i])) {
			return false
		}
	}
	return true
}

// Geometry is a native geometry node. The set of implementations is closed.
type Geometry interface {
	Kind() Kind
	isGeometry()
}

// Point is a single position. An empty point has no coordinates.
type Point struct {
	Coordinates Coord
}

// MultiPoint is a set of non-empty points.
type MultiPoint struct {
	Coordinates []Coord
}

// LineString is a linear curve of zero or at least two points.
type LineString struct {
	Coordinates []Coord
}

// Polygon is an exterior ring followed by interior rings.
type Polygon struct {
	Coordinates [][]Coord
}

// MultiLineString is a set of line strings.
type MultiLineString struct {
	Coordinates [][]Coord
}

// MultiPolygon is a set of polygons.
type MultiPolygon struct {
	Coordinates [][][]Coord
}

// GeometryCollection holds arbitrary child geometries.
type GeometryCollection struct {
	Geometries []Geometry
}

// CircularString is a run of circular arcs; consecutive arcs share their
// boundary point, so a non-empty string has an odd number of points.
type CircularString struct {
	Coordinates []Coord
}

// CompoundCurve is a continuous sequence of LineString and CircularString
// segments.
type CompoundCurve struct {
	Segments []Geometry
}

// CurvePolygon is a polygon whose rings are LineStrings, CircularStrings or
// CompoundCurves.
type CurvePolygon struct {
	Rings []Geometry
}

// MultiCurve holds LineStrings, CircularStrings and CompoundCurves.
type MultiCurve struct {
	Curves []Geometry
}

// MultiSurface holds Polygons and CurvePolygons.
type MultiSurface struct {
	Surfaces []Geometry
}

func (Point) Kind() Kind              { return KindPoint }
func (MultiPoint) Kind() Kind         { return KindMultiPoint }
func (LineString) Kind() Kind         { return KindLineString }
func (Polygon) Kind() Kind            { return KindPolygon }
func (MultiLineString) Kind() Kind    { return KindMultiLineString }
func (MultiPolygon) Kind() Kind       { return KindMultiPolygon }
func (GeometryCollection) Kind() Kind { return KindGeometryCollection }
func (CircularString) Kind() Kind     { return KindCircularString }
func (CompoundCurve) Kind() Kind      { return KindCompoundCurve }
func (CurvePolygon) Kind() Kind       { return KindCurvePolygon }
func (MultiCurve) Kind() Kind         { return KindMultiCurve }
func (MultiSurface) Kind() Kind       { return KindMultiSurface }

func (Point) isGeometry()              {}
func (MultiPoint) isGeometry()         {}
func (LineString) isGeometry()         {}
func (Polygon) isGeometry()            {}
func (MultiLineString) isGeometry()    {}
func (MultiPolygon) isGeometry()       {}
func (GeometryCollection) isGeometry() {}
func (CircularString) isGeometry()     {}
func (CompoundCurve) isGeometry()      {}
func (CurvePolygon) isGeometry()       {}
func (MultiCurve) isGeometry()         {}
func (MultiSurface) isGeometry()       {}

// IsEmpty reports whether g has no coordinates at all.
func IsEmpty(g Geometry) bool {
	_, ok := sampleCoord(g)
	return !ok
}

// sampleCoord returns the first coordinate of g in depth-first order. It
// decides the header dimensions of g.
func sampleCoord(g Geometry) (Coord, bool) {
	switch v := g.(type) {
	case Point:
		return v.Coordinates, len(v.Coordinates) > 0
	case MultiPoint:
		return firstCoord(v.Coordinates)
	case LineString:
		return firstCoord(v.Coordinates)
	case CircularString:
		return firstCoord(v.Coordinates)
	case Polygon:
		return firstCoord2(v.Coordinates)
	case MultiLineString:
		return firstCoord2(v.Coordinates)
	case MultiPolygon:
		for _, p := range v.Coordinates {
			if c, ok := firstCoord2(p); ok {
				return c, true
			}
		}
	case GeometryCollection:
		return firstChildCoord(v.Geometries)
	case CompoundCurve:
		return firstChildCoord(v.Segments)
	case CurvePolygon:
		return firstChildCoord(v.Rings)
	case MultiCurve:
		return firstChildCoord(v.Curves)
	case MultiSurface:
		return firstChildCoord(v.Surfaces)
	}
	return nil, false
}

// lastCoord returns the last coordinate of a curve, used for continuity and
// closure of composite curves.
func lastCoord(g Geometry) (Coord, bool) {
	switch v := g.(type) {
	case LineString:
		if n := len(v.Coordinates); n > 0 {
			return v.Coordinates[n-1], true
		}
	case CircularString:
		if n := len(v.Coordinates); n > 0 {
			return v.Coordinates[n-1], true
		}
	case CompoundCurve:
		for i := len(v.Segments) - 1; i >= 0; i-- {
			if c, ok := lastCoord(v.Segments[i]); ok {
				return c, true
			}
		}
	}
	return nil, false
}

func firstCoord(cs []Coord) (Coord, bool) {
	if len(cs) == 0 {
		return nil, false
	}
	return cs[0], true
}

func firstCoord2(css [][]Coord) (Coord, bool) {
	for _, cs := range css {
		if len(cs) > 0 {
			return cs[0], true
		}
	}
	return nil, false
}

func firstChildCoord(gs []Geometry) (Coord, bool) {
	for _, g := range gs {
		if g == nil {
			continue
		}
		if c, ok := sampleCoord(g); ok {
			return c, true
		}
	}
	return nil, false
}
