package geosbridge

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/tingold/orb-geosbridge/internal/wire"
)

// counts holds the sizes of the D, S and F regions in cells.
type counts struct {
	d, s, f uint32
}

// size returns the transfer buffer size in bytes.
func (c counts) size() (uint32, error) {
	cells := uint64(wire.CountCells) + uint64(c.d) + uint64(c.s)
	cells += cells & 1
	n := cells*4 + uint64(c.f)*8
	if n > math.MaxUint32 {
		return 0, errors.Newf("geosbridge: batch needs %d bytes, more than a 32-bit memory can address", n)
	}
	return uint32(n), nil
}

const (
	msgNil            = "geometry must not be nil"
	msgOrdinates      = "Coordinate must have at least 2 ordinates"
	msgLineTooShort   = "LineString must have at least 2 points"
	msgRingTooShort   = "Polygon ring must have at least 4 points"
	msgRingOpen       = "Polygon ring must be closed"
	msgArcTooShort    = "CircularString must have at least one circular arc defined by 3 points"
	msgArcEven        = "CircularString must have an odd number of points"
	msgSegmentKind    = "CompoundCurve segment must be a LineString or CircularString"
	msgSegmentEmpty   = "CompoundCurve segment must not be empty"
	msgSegmentGap     = "CompoundCurve segments must be continuous"
	msgCurveRingKind  = "CurvePolygon ring must be a LineString, CircularString or CompoundCurve"
	msgCurveRingEmpty = "CurvePolygon ring must not be empty"
	msgCurveRingOpen  = "CurvePolygon ring must be closed"
	msgCurveKind      = "MultiCurve member must be a LineString, CircularString or CompoundCurve"
	msgSurfaceKind    = "MultiSurface member must be a Polygon or CurvePolygon"
)

// measure validates g and adds its region sizes to c. It returns the kind of
// g so containers can enforce their allow-lists. The counts are meaningless
// once an error is returned.
func measure(g Geometry, l Layout, c *counts) (Kind, error) {
	if g == nil {
		return 0, invalid(nil, msgNil, "")
	}
	switch v := g.(type) {
	case Point:
		c.d++
		if len(v.Coordinates) == 0 {
			return KindPoint, nil
		}
		if err := checkOrdinates(g, v.Coordinates); err != nil {
			return 0, err
		}
		c.f += uint32(l.slotsPerPoint(len(v.Coordinates)))

	case MultiPoint:
		c.d += 2
		for _, p := range v.Coordinates {
			if err := checkOrdinates(g, p); err != nil {
				return 0, err
			}
		}
		if len(v.Coordinates) > 0 {
			c.f += uint32(len(v.Coordinates) * l.slotsPerPoint(len(v.Coordinates[0])))
		}

	case LineString:
		if err := checkLine(g, v.Coordinates); err != nil {
			return 0, err
		}
		c.d += 2
		c.s++

	case CircularString:
		if err := checkArcs(g, v.Coordinates); err != nil {
			return 0, err
		}
		c.d += 2
		c.s++

	case Polygon:
		for _, ring := range v.Coordinates {
			if err := checkRing(g, ring); err != nil {
				return 0, err
			}
		}
		c.d += 2 + uint32(len(v.Coordinates))
		c.s += uint32(len(v.Coordinates))

	case MultiLineString:
		for _, line := range v.Coordinates {
			if err := checkLine(g, line); err != nil {
				return 0, err
			}
		}
		c.d += 2 + uint32(len(v.Coordinates))
		c.s += uint32(len(v.Coordinates))

	case MultiPolygon:
		c.d += 2
		for _, poly := range v.Coordinates {
			for _, ring := range poly {
				if err := checkRing(g, ring); err != nil {
					return 0, err
				}
			}
			c.d += 1 + uint32(len(poly))
			c.s += uint32(len(poly))
		}

	case GeometryCollection:
		c.d += 2
		for _, child := range v.Geometries {
			if _, err := measure(child, l, c); err != nil {
				return 0, err
			}
		}

	case CompoundCurve:
		c.d += 2
		var prev Geometry
		for i, seg := range v.Segments {
			k, err := measure(seg, l, c)
			if err != nil {
				return 0, err
			}
			if k != KindLineString && k != KindCircularString {
				return 0, invalid(g, msgSegmentKind, "found %s", k)
			}
			first, ok := sampleCoord(seg)
			if !ok {
				return 0, invalid(g, msgSegmentEmpty, "segment %d", i)
			}
			if prev != nil {
				last, _ := lastCoord(prev)
				if !last.Equal(first) {
					return 0, invalid(g, msgSegmentGap, "segment %d ends at %s, segment %d starts at %s",
						i-1, formatCoord(last), i, formatCoord(first))
				}
			}
			prev = seg
		}

	case CurvePolygon:
		c.d += 2
		for _, ring := range v.Rings {
			k, err := measure(ring, l, c)
			if err != nil {
				return 0, err
			}
			if k != KindLineString && k != KindCircularString && k != KindCompoundCurve {
				return 0, invalid(g, msgCurveRingKind, "found %s", k)
			}
			first, ok := sampleCoord(ring)
			if !ok {
				return 0, invalid(g, msgCurveRingEmpty, "")
			}
			if last, _ := lastCoord(ring); !last.Equal(first) {
				return 0, invalid(g, msgCurveRingOpen, "first point %s differs from last point %s",
					formatCoord(first), formatCoord(last))
			}
		}

	case MultiCurve:
		c.d += 2
		for _, curve := range v.Curves {
			k, err := measure(curve, l, c)
			if err != nil {
				return 0, err
			}
			if k != KindLineString && k != KindCircularString && k != KindCompoundCurve {
				return 0, invalid(g, msgCurveKind, "found %s", k)
			}
		}

	case MultiSurface:
		c.d += 2
		for _, surface := range v.Surfaces {
			k, err := measure(surface, l, c)
			if err != nil {
				return 0, err
			}
			if k != KindPolygon && k != KindCurvePolygon {
				return 0, invalid(g, msgSurfaceKind, "found %s", k)
			}
		}

	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "%T", g)
	}
	return g.Kind(), nil
}

func checkOrdinates(g Geometry, c Coord) error {
	if len(c) < 2 {
		return invalid(g, msgOrdinates, "found %d", len(c))
	}
	return nil
}

func checkRun(g Geometry, cs []Coord) error {
	for _, c := range cs {
		if err := checkOrdinates(g, c); err != nil {
			return err
		}
	}
	return nil
}

func checkLine(g Geometry, cs []Coord) error {
	if len(cs) == 1 {
		return invalid(g, msgLineTooShort, "found %d", len(cs))
	}
	return checkRun(g, cs)
}

// checkRing accepts empty rings; anything else needs four points and must
// end where it starts.
func checkRing(g Geometry, cs []Coord) error {
	if len(cs) == 0 {
		return nil
	}
	if len(cs) < 4 {
		return invalid(g, msgRingTooShort, "found %d", len(cs))
	}
	if err := checkRun(g, cs); err != nil {
		return err
	}
	first, last := cs[0], cs[len(cs)-1]
	if !first.Equal(last) {
		return invalid(g, msgRingOpen, "first point %s differs from last point %s",
			formatCoord(first), formatCoord(last))
	}
	return nil
}

func checkArcs(g Geometry, cs []Coord) error {
	switch n := len(cs); {
	case n == 0:
		return nil
	case n < 3:
		return invalid(g, msgArcTooShort, "found %d", n)
	case n%2 == 0:
		return invalid(g, msgArcEven, "found %d", n)
	}
	return checkRun(g, cs)
}
