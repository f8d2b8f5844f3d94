package geosbridge

import (
	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
)

// GeomLayout returns the go-geom layout with the same ordinates as l.
func (l Layout) GeomLayout() geom.Layout {
	switch l {
	case XY:
		return geom.XY
	case XYZ:
		return geom.XYZ
	case XYM:
		return geom.XYM
	default:
		return geom.XYZM
	}
}

// LayoutFromGeom maps a go-geom layout to a Layout. NoLayout maps to XY.
func LayoutFromGeom(l geom.Layout) (Layout, error) {
	switch l {
	case geom.NoLayout, geom.XY:
		return XY, nil
	case geom.XYZ:
		return XYZ, nil
	case geom.XYM:
		return XYM, nil
	case geom.XYZM:
		return XYZM, nil
	}
	return 0, errors.Newf("geosbridge: unsupported go-geom layout %s", l)
}

// FromGeomT converts a go-geom geometry. Coordinates keep the stride of t,
// so the result should be encoded with LayoutFromGeom(t.Layout()).
func FromGeomT(t geom.T) (Geometry, error) {
	switch v := t.(type) {
	case *geom.Point:
		if v.Empty() {
			return Point{}, nil
		}
		return Point{Coordinates: fromGeomCoord(v.Coords())}, nil
	case *geom.MultiPoint:
		cs := v.Coords()
		out := make([]Coord, 0, len(cs))
		for i, c := range cs {
			if len(c) == 0 {
				return nil, errors.Newf("geosbridge: MultiPoint member %d is empty", i)
			}
			out = append(out, fromGeomCoord(c))
		}
		return MultiPoint{Coordinates: out}, nil
	case *geom.LineString:
		return LineString{Coordinates: fromGeomCoords(v.Coords())}, nil
	case *geom.Polygon:
		return Polygon{Coordinates: fromGeomCoords2(v.Coords())}, nil
	case *geom.MultiLineString:
		return MultiLineString{Coordinates: fromGeomCoords2(v.Coords())}, nil
	case *geom.MultiPolygon:
		polys := v.Coords()
		out := make([][][]Coord, len(polys))
		for i, p := range polys {
			out[i] = fromGeomCoords2(p)
		}
		return MultiPolygon{Coordinates: out}, nil
	case *geom.GeometryCollection:
		children := v.Geoms()
		out := make([]Geometry, len(children))
		for i, child := range children {
			g, err := FromGeomT(child)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return GeometryCollection{Geometries: out}, nil
	case nil:
		return nil, ErrNilGeometry
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%T", t)
}

// ToGeomT converts a node to a go-geom geometry with layout l. Missing
// ordinates become NaN and extra ones are dropped. Curved kinds fail with
// ErrUnsupportedType, and a coordinate with fewer than two ordinates with an
// *InvalidGeometryError.
func ToGeomT(g Geometry, l Layout) (geom.T, error) {
	gl := l.GeomLayout()
	stride := l.Stride()

	switch v := g.(type) {
	case Point:
		if len(v.Coordinates) == 0 {
			return geom.NewPointEmpty(gl), nil
		}
		c, err := toGeomCoord(g, v.Coordinates, l, stride)
		if err != nil {
			return nil, err
		}
		return geom.NewPoint(gl).SetCoords(c)
	case MultiPoint:
		cs, err := toGeomCoords(g, v.Coordinates, l, stride)
		if err != nil {
			return nil, err
		}
		return geom.NewMultiPoint(gl).SetCoords(cs)
	case LineString:
		cs, err := toGeomCoords(g, v.Coordinates, l, stride)
		if err != nil {
			return nil, err
		}
		return geom.NewLineString(gl).SetCoords(cs)
	case Polygon:
		css, err := toGeomCoords2(g, v.Coordinates, l, stride)
		if err != nil {
			return nil, err
		}
		return geom.NewPolygon(gl).SetCoords(css)
	case MultiLineString:
		css, err := toGeomCoords2(g, v.Coordinates, l, stride)
		if err != nil {
			return nil, err
		}
		return geom.NewMultiLineString(gl).SetCoords(css)
	case MultiPolygon:
		polys := make([][][]geom.Coord, len(v.Coordinates))
		for i, p := range v.Coordinates {
			css, err := toGeomCoords2(g, p, l, stride)
			if err != nil {
				return nil, err
			}
			polys[i] = css
		}
		return geom.NewMultiPolygon(gl).SetCoords(polys)
	case GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, child := range v.Geometries {
			t, err := ToGeomT(child, l)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(t); err != nil {
				return nil, errors.Wrap(err, "push collection member")
			}
		}
		return gc, nil
	case nil:
		return nil, ErrNilGeometry
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%s has no go-geom equivalent", g.Kind())
}

func fromGeomCoord(c geom.Coord) Coord {
	return append(Coord(nil), c...)
}

func fromGeomCoords(cs []geom.Coord) []Coord {
	if len(cs) == 0 {
		return nil
	}
	out := make([]Coord, len(cs))
	for i, c := range cs {
		out[i] = fromGeomCoord(c)
	}
	return out
}

func fromGeomCoords2(css [][]geom.Coord) [][]Coord {
	if len(css) == 0 {
		return nil
	}
	out := make([][]Coord, len(css))
	for i, cs := range css {
		out[i] = fromGeomCoords(cs)
	}
	return out
}

// toGeomCoord lays c out with the given stride. A 3-ordinate XYM source
// keeps its third ordinate as M, matching the encoder.
func toGeomCoord(g Geometry, c Coord, l Layout, stride int) (geom.Coord, error) {
	if err := checkOrdinates(g, c); err != nil {
		return nil, err
	}
	out := make(geom.Coord, stride)
	out[0], out[1] = c[0], c[1]
	z, m := l.ZM(c)
	switch l {
	case XYZ:
		out[2] = z
	case XYM:
		out[2] = m
	case XYZM:
		out[2], out[3] = z, m
	}
	return out, nil
}

func toGeomCoords(g Geometry, cs []Coord, l Layout, stride int) ([]geom.Coord, error) {
	out := make([]geom.Coord, len(cs))
	for i, c := range cs {
		gc, err := toGeomCoord(g, c, l, stride)
		if err != nil {
			return nil, err
		}
		out[i] = gc
	}
	return out, nil
}

func toGeomCoords2(g Geometry, css [][]Coord, l Layout, stride int) ([][]geom.Coord, error) {
	out := make([][]geom.Coord, len(css))
	for i, cs := range css {
		gcs, err := toGeomCoords(g, cs, l, stride)
		if err != nil {
			return nil, err
		}
		out[i] = gcs
	}
	return out, nil
}
