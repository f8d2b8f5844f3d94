package geosbridge

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// FromOrb converts an orb.Geometry to a 2D geometry node. orb.Ring and
// orb.Bound become Polygons. A nil geometry converts to nil.
func FromOrb(g orb.Geometry) Geometry {
	switch v := g.(type) {
	case orb.Point:
		return Point{Coordinates: pointCoord(v)}
	case orb.MultiPoint:
		return MultiPoint{Coordinates: pointsCoords(v)}
	case orb.LineString:
		return LineString{Coordinates: pointsCoords(v)}
	case orb.MultiLineString:
		lines := make([][]Coord, len(v))
		for i, ls := range v {
			lines[i] = pointsCoords(ls)
		}
		return MultiLineString{Coordinates: lines}
	case orb.Ring:
		return Polygon{Coordinates: [][]Coord{pointsCoords(v)}}
	case orb.Polygon:
		return Polygon{Coordinates: polygonCoords(v)}
	case orb.MultiPolygon:
		polys := make([][][]Coord, len(v))
		for i, p := range v {
			polys[i] = polygonCoords(p)
		}
		return MultiPolygon{Coordinates: polys}
	case orb.Collection:
		gs := make([]Geometry, 0, len(v))
		for _, child := range v {
			if c := FromOrb(child); c != nil {
				gs = append(gs, c)
			}
		}
		return GeometryCollection{Geometries: gs}
	case orb.Bound:
		return Polygon{Coordinates: polygonCoords(v.ToPolygon())}
	}
	return nil
}

func pointCoord(p orb.Point) Coord {
	return Coord{p[0], p[1]}
}

func pointsCoords[T ~[]orb.Point](ps T) []Coord {
	if len(ps) == 0 {
		return nil
	}
	out := make([]Coord, len(ps))
	for i, p := range ps {
		out[i] = pointCoord(p)
	}
	return out
}

func polygonCoords(p orb.Polygon) [][]Coord {
	if len(p) == 0 {
		return nil
	}
	rings := make([][]Coord, len(p))
	for i, r := range p {
		rings[i] = pointsCoords(r)
	}
	return rings
}

// ToOrb converts a node to an orb.Geometry, dropping Z and M. Curved kinds
// have no orb equivalent and fail with ErrUnsupportedType. An empty Point
// converts to the orb zero point. A coordinate with fewer than two ordinates
// fails with an *InvalidGeometryError.
func ToOrb(g Geometry) (orb.Geometry, error) {
	switch v := g.(type) {
	case Point:
		if len(v.Coordinates) == 0 {
			return orb.Point{}, nil
		}
		return orbPoint(g, v.Coordinates)
	case MultiPoint:
		ps, err := orbPoints(g, v.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.MultiPoint(ps), nil
	case LineString:
		ps, err := orbPoints(g, v.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.LineString(ps), nil
	case Polygon:
		return orbPolygon(g, v.Coordinates)
	case MultiLineString:
		mls := make(orb.MultiLineString, len(v.Coordinates))
		for i, cs := range v.Coordinates {
			ps, err := orbPoints(g, cs)
			if err != nil {
				return nil, err
			}
			mls[i] = ps
		}
		return mls, nil
	case MultiPolygon:
		mp := make(orb.MultiPolygon, len(v.Coordinates))
		for i, rings := range v.Coordinates {
			p, err := orbPolygon(g, rings)
			if err != nil {
				return nil, err
			}
			mp[i] = p
		}
		return mp, nil
	case GeometryCollection:
		coll := make(orb.Collection, 0, len(v.Geometries))
		for _, child := range v.Geometries {
			c, err := ToOrb(child)
			if err != nil {
				return nil, err
			}
			coll = append(coll, c)
		}
		return coll, nil
	case nil:
		return nil, ErrNilGeometry
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%s has no orb equivalent", g.Kind())
}

func orbPoint(g Geometry, c Coord) (orb.Point, error) {
	if err := checkOrdinates(g, c); err != nil {
		return orb.Point{}, err
	}
	return orb.Point{c[0], c[1]}, nil
}

func orbPoints(g Geometry, cs []Coord) ([]orb.Point, error) {
	ps := make([]orb.Point, len(cs))
	for i, c := range cs {
		p, err := orbPoint(g, c)
		if err != nil {
			return nil, err
		}
		ps[i] = p
	}
	return ps, nil
}

func orbPolygon(g Geometry, rings [][]Coord) (orb.Polygon, error) {
	p := make(orb.Polygon, len(rings))
	for i, r := range rings {
		ps, err := orbPoints(g, r)
		if err != nil {
			return nil, err
		}
		p[i] = orb.Ring(ps)
	}
	return p, nil
}
