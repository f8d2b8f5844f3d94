package fgb

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	geosbridge "github.com/tingold/orb-geosbridge"
)

var fgbTypes = map[geosbridge.Kind]flattypes.GeometryType{
	geosbridge.KindPoint:              flattypes.GeometryTypePoint,
	geosbridge.KindLineString:         flattypes.GeometryTypeLineString,
	geosbridge.KindPolygon:            flattypes.GeometryTypePolygon,
	geosbridge.KindMultiPoint:         flattypes.GeometryTypeMultiPoint,
	geosbridge.KindMultiLineString:    flattypes.GeometryTypeMultiLineString,
	geosbridge.KindMultiPolygon:       flattypes.GeometryTypeMultiPolygon,
	geosbridge.KindGeometryCollection: flattypes.GeometryTypeGeometryCollection,
	geosbridge.KindCircularString:     flattypes.GeometryTypeCircularString,
	geosbridge.KindCompoundCurve:      flattypes.GeometryTypeCompoundCurve,
	geosbridge.KindCurvePolygon:       flattypes.GeometryTypeCurvePolygon,
	geosbridge.KindMultiCurve:         flattypes.GeometryTypeMultiCurve,
	geosbridge.KindMultiSurface:       flattypes.GeometryTypeMultiSurface,
}

// geometryType returns the FlatGeobuf type of a node.
func geometryType(g geosbridge.Geometry) flattypes.GeometryType {
	if g == nil {
		return flattypes.GeometryTypeUnknown
	}
	if t, ok := fgbTypes[g.Kind()]; ok {
		return t
	}
	return flattypes.GeometryTypeUnknown
}

// commonType is the header type for a set of geometries: their shared type
// or Unknown when they differ.
func commonType(gs []geosbridge.Geometry) flattypes.GeometryType {
	if len(gs) == 0 {
		return flattypes.GeometryTypeUnknown
	}
	t := geometryType(gs[0])
	for _, g := range gs[1:] {
		if geometryType(g) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

// ordinates accumulates the flat xy, z and m arrays of one FlatGeobuf
// geometry. Which of z and m are kept is decided by the first coordinate.
type ordinates struct {
	layout     geosbridge.Layout
	started    bool
	hasZ, hasM bool
	xy, z, m   []float64
	ends       []uint32
	err        error
}

func (o *ordinates) add(cs ...geosbridge.Coord) {
	for _, c := range cs {
		if len(c) < 2 {
			if o.err == nil {
				o.err = errors.Wrapf(ErrInvalidData, "coordinate with %d ordinates", len(c))
			}
			return
		}
		if !o.started {
			o.hasZ, o.hasM = o.layout.Dims(len(c))
			o.started = true
		}
		o.xy = append(o.xy, c[0], c[1])
		z, m := o.layout.ZM(c)
		if o.hasZ {
			o.z = append(o.z, z)
		}
		if o.hasM {
			o.m = append(o.m, m)
		}
	}
}

// end closes a ring or line part.
func (o *ordinates) end() {
	o.ends = append(o.ends, uint32(len(o.xy)/2))
}

func (o *ordinates) apply(g *writer.Geometry) {
	if len(o.xy) > 0 {
		g.SetXY(o.xy)
	}
	if o.hasZ && len(o.z) > 0 {
		g.SetZ(o.z)
	}
	if o.hasM && len(o.m) > 0 {
		g.SetM(o.m)
	}
	if len(o.ends) > 1 {
		g.SetEnds(o.ends)
	}
}

// geometryToFGB converts a node to a FlatGeobuf writer.Geometry.
func geometryToFGB(geom geosbridge.Geometry, l geosbridge.Layout, builder *flatbuffers.Builder) (*writer.Geometry, error) {
	if geom == nil {
		return nil, geosbridge.ErrNilGeometry
	}

	g := writer.NewGeometry(builder)
	g.SetType(geometryType(geom))
	o := &ordinates{layout: l}

	switch v := geom.(type) {
	case geosbridge.Point:
		if len(v.Coordinates) > 0 {
			o.add(v.Coordinates)
		}
	case geosbridge.MultiPoint:
		o.add(v.Coordinates...)
	case geosbridge.LineString:
		o.add(v.Coordinates...)
	case geosbridge.CircularString:
		o.add(v.Coordinates...)
	case geosbridge.Polygon:
		for _, ring := range v.Coordinates {
			o.add(ring...)
			o.end()
		}
	case geosbridge.MultiLineString:
		for _, line := range v.Coordinates {
			o.add(line...)
			o.end()
		}
	case geosbridge.MultiPolygon:
		parts := make([]geosbridge.Geometry, len(v.Coordinates))
		for i, p := range v.Coordinates {
			parts[i] = geosbridge.Polygon{Coordinates: p}
		}
		return g, setParts(g, parts, l, builder)
	case geosbridge.GeometryCollection:
		return g, setParts(g, v.Geometries, l, builder)
	case geosbridge.CompoundCurve:
		return g, setParts(g, v.Segments, l, builder)
	case geosbridge.CurvePolygon:
		return g, setParts(g, v.Rings, l, builder)
	case geosbridge.MultiCurve:
		return g, setParts(g, v.Curves, l, builder)
	case geosbridge.MultiSurface:
		return g, setParts(g, v.Surfaces, l, builder)
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T", geom)
	}

	if o.err != nil {
		return nil, o.err
	}
	o.apply(g)
	return g, nil
}

func setParts(g *writer.Geometry, children []geosbridge.Geometry, l geosbridge.Layout, builder *flatbuffers.Builder) error {
	parts := make([]writer.Geometry, 0, len(children))
	for _, child := range children {
		part, err := geometryToFGB(child, l, builder)
		if err != nil {
			return err
		}
		parts = append(parts, *part)
	}
	g.SetParts(parts)
	return nil
}

// geometryFromFGB converts a FlatGeobuf geometry to a node. Parts without a
// type of their own take parentType, as MultiPolygon parts may.
func geometryFromFGB(fg *flattypes.Geometry, parentType flattypes.GeometryType) (geosbridge.Geometry, error) {
	if fg == nil {
		return nil, errors.Wrap(ErrInvalidData, "missing geometry")
	}
	t := fg.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = parentType
	}

	switch t {
	case flattypes.GeometryTypePoint:
		cs, err := readCoords(fg, 0, fg.XyLength()/2)
		if err != nil {
			return nil, err
		}
		if len(cs) == 0 {
			return geosbridge.Point{}, nil
		}
		return geosbridge.Point{Coordinates: cs[0]}, nil

	case flattypes.GeometryTypeMultiPoint:
		cs, err := readCoords(fg, 0, fg.XyLength()/2)
		if err != nil {
			return nil, err
		}
		return geosbridge.MultiPoint{Coordinates: cs}, nil

	case flattypes.GeometryTypeLineString:
		cs, err := readCoords(fg, 0, fg.XyLength()/2)
		if err != nil {
			return nil, err
		}
		return geosbridge.LineString{Coordinates: cs}, nil

	case flattypes.GeometryTypeCircularString:
		cs, err := readCoords(fg, 0, fg.XyLength()/2)
		if err != nil {
			return nil, err
		}
		return geosbridge.CircularString{Coordinates: cs}, nil

	case flattypes.GeometryTypePolygon:
		runs, err := readRuns(fg)
		if err != nil {
			return nil, err
		}
		return geosbridge.Polygon{Coordinates: runs}, nil

	case flattypes.GeometryTypeMultiLineString:
		runs, err := readRuns(fg)
		if err != nil {
			return nil, err
		}
		return geosbridge.MultiLineString{Coordinates: runs}, nil

	case flattypes.GeometryTypeMultiPolygon:
		parts, err := readParts(fg, flattypes.GeometryTypePolygon)
		if err != nil {
			return nil, err
		}
		polys := make([][][]geosbridge.Coord, 0, len(parts))
		for _, p := range parts {
			poly, ok := p.(geosbridge.Polygon)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidData, "MultiPolygon part is a %s", p.Kind())
			}
			polys = append(polys, poly.Coordinates)
		}
		return geosbridge.MultiPolygon{Coordinates: polys}, nil

	case flattypes.GeometryTypeGeometryCollection:
		parts, err := readParts(fg, flattypes.GeometryTypeUnknown)
		return geosbridge.GeometryCollection{Geometries: parts}, err
	case flattypes.GeometryTypeCompoundCurve:
		parts, err := readParts(fg, flattypes.GeometryTypeLineString)
		return geosbridge.CompoundCurve{Segments: parts}, err
	case flattypes.GeometryTypeCurvePolygon:
		parts, err := readParts(fg, flattypes.GeometryTypeLineString)
		return geosbridge.CurvePolygon{Rings: parts}, err
	case flattypes.GeometryTypeMultiCurve:
		parts, err := readParts(fg, flattypes.GeometryTypeLineString)
		return geosbridge.MultiCurve{Curves: parts}, err
	case flattypes.GeometryTypeMultiSurface:
		parts, err := readParts(fg, flattypes.GeometryTypePolygon)
		return geosbridge.MultiSurface{Surfaces: parts}, err
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%s", flattypes.EnumNamesGeometryType[t])
}

// readCoords reads points [start, end) using whichever of z and m the
// geometry stores. A z or m array shorter than the points is ErrInvalidData.
func readCoords(fg *flattypes.Geometry, start, end int) ([]geosbridge.Coord, error) {
	if end <= start {
		return nil, nil
	}
	hasZ := fg.ZLength() > 0
	hasM := fg.MLength() > 0
	if hasZ && fg.ZLength() < end {
		return nil, errors.Wrapf(ErrInvalidData, "%d z values for %d points", fg.ZLength(), end)
	}
	if hasM && fg.MLength() < end {
		return nil, errors.Wrapf(ErrInvalidData, "%d m values for %d points", fg.MLength(), end)
	}
	out := make([]geosbridge.Coord, 0, end-start)
	for i := start; i < end; i++ {
		x, y := fg.Xy(2*i), fg.Xy(2*i+1)
		switch {
		case hasM:
			z := math.NaN()
			if hasZ {
				z = fg.Z(i)
			}
			out = append(out, geosbridge.Coord{x, y, z, fg.M(i)})
		case hasZ:
			out = append(out, geosbridge.Coord{x, y, fg.Z(i)})
		default:
			out = append(out, geosbridge.Coord{x, y})
		}
	}
	return out, nil
}

// readRuns splits the points of a geometry at its ends. Without ends all
// points form one run.
func readRuns(fg *flattypes.Geometry) ([][]geosbridge.Coord, error) {
	n := fg.XyLength() / 2
	if n == 0 {
		return nil, nil
	}
	if fg.EndsLength() == 0 {
		cs, err := readCoords(fg, 0, n)
		if err != nil {
			return nil, err
		}
		return [][]geosbridge.Coord{cs}, nil
	}
	runs := make([][]geosbridge.Coord, 0, fg.EndsLength())
	start := 0
	for i := 0; i < fg.EndsLength(); i++ {
		end := int(fg.Ends(i))
		if end > n {
			end = n
		}
		cs, err := readCoords(fg, start, end)
		if err != nil {
			return nil, err
		}
		runs = append(runs, cs)
		start = end
	}
	return runs, nil
}

func readParts(fg *flattypes.Geometry, partType flattypes.GeometryType) ([]geosbridge.Geometry, error) {
	n := fg.PartsLength()
	if n == 0 {
		return nil, nil
	}
	out := make([]geosbridge.Geometry, 0, n)
	for i := 0; i < n; i++ {
		var part flattypes.Geometry
		if !fg.Parts(&part, i) {
			return nil, errors.Wrapf(ErrInvalidData, "missing part %d", i)
		}
		g, err := geometryFromFGB(&part, partType)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
