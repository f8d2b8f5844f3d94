package geosbridge

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero/api"
	"github.com/tingold/orb-geosbridge/internal/wire"
)

// decoder walks a descriptive buffer written by the engine. The B region
// holds headers, counts and [size][dataPtr] pairs for curves; the F region
// holds embedded point values. Curve coordinates are read straight from the
// engine's sequence storage.
type decoder struct {
	buf      []byte
	mem      api.Memory
	layout   Layout
	extended bool

	nb, nf uint32 // region sizes in cells
	b      uint32 // B cursor, cells
	f      uint32 // F cursor, cells
	fBase  int
}

func newDecoder(buf []byte, mem api.Memory, nb, nf uint32, l Layout, extended bool) *decoder {
	return &decoder{
		buf:      buf,
		mem:      mem,
		layout:   l,
		extended: extended,
		nb:       nb,
		nf:       nf,
		fBase:    int(wire.FOffset(nb, 0)),
	}
}

var errOverrun = errors.New("geosbridge: decode buffer overrun")

func (d *decoder) next() (uint32, error) {
	if d.b >= d.nb {
		return 0, errOverrun
	}
	v := getU32(d.buf, wire.CountCells+d.b)
	d.b++
	return v, nil
}

// skipCells and skipF take uint64 so a count times a slot width cannot wrap
// before it is compared with the region size.
func (d *decoder) skipCells(n uint64) error {
	if uint64(d.b)+n > uint64(d.nb) {
		return errOverrun
	}
	d.b += uint32(n)
	return nil
}

func (d *decoder) skipF(n uint64) error {
	if uint64(d.f)+n > uint64(d.nf) {
		return errOverrun
	}
	d.f += uint32(n)
	return nil
}

// decode checks every header of n top-level records, then rebuilds them.
// Nothing but header and count cells is read until the check succeeds.
func (d *decoder) decode(n int) ([]Geometry, error) {
	for i := 0; i < n; i++ {
		if err := d.check(); err != nil {
			return nil, err
		}
	}
	// Engines may reserve more cells than the records use (empty geometries
	// are measured at full size by some builds), never fewer.
	d.b, d.f = 0, 0

	out := make([]Geometry, n)
	for i := range out {
		g, err := d.geometry()
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

// check walks one record, validating type tags and the extended gate.
func (d *decoder) check() error {
	cell, err := d.next()
	if err != nil {
		return err
	}
	h := wire.Header(cell)
	kind, ok := kindFromTypeID(h.Type())
	if !ok {
		return &UnsupportedGeometryError{Tag: uint32(h.Type())}
	}
	if kind.IsCurved() && !d.extended {
		return &UnsupportedGeometryError{Kind: kind, Tag: uint32(h.Type())}
	}
	if h.Empty() {
		return nil
	}

	switch kind {
	case KindPoint:
		return d.skipF(uint64(wire.PointSlots(h.HasZ(), h.HasM())))

	case KindLineString, KindCircularString:
		return d.skipCells(2)

	case KindPolygon, KindMultiLineString:
		n, err := d.next()
		if err != nil {
			return err
		}
		return d.skipCells(2 * uint64(n))

	case KindMultiPoint:
		n, err := d.next()
		if err != nil {
			return err
		}
		return d.skipF(uint64(n) * uint64(wire.PointSlots(h.HasZ(), h.HasM())))

	case KindMultiPolygon:
		n, err := d.next()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			rings, err := d.next()
			if err != nil {
				return err
			}
			if err := d.skipCells(2 * uint64(rings)); err != nil {
				return err
			}
		}

	default:
		n, err := d.next()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := d.check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// geometry rebuilds one record. It relies on check having validated the
// structure.
func (d *decoder) geometry() (Geometry, error) {
	cell, _ := d.next()
	h := wire.Header(cell)
	kind, _ := kindFromTypeID(h.Type())

	switch kind {
	case KindPoint:
		if h.Empty() {
			return Point{}, nil
		}
		return Point{Coordinates: d.point(h)}, nil

	case KindMultiPoint:
		if h.Empty() {
			return MultiPoint{}, nil
		}
		n, _ := d.next()
		cs := make([]Coord, n)
		for i := range cs {
			cs[i] = d.point(h)
		}
		return MultiPoint{Coordinates: cs}, nil

	case KindLineString:
		if h.Empty() {
			return LineString{}, nil
		}
		cs, err := d.curve(h)
		return LineString{Coordinates: cs}, err

	case KindCircularString:
		if h.Empty() {
			return CircularString{}, nil
		}
		cs, err := d.curve(h)
		return CircularString{Coordinates: cs}, err

	case KindPolygon:
		if h.Empty() {
			return Polygon{}, nil
		}
		rings, err := d.rings(h)
		return Polygon{Coordinates: rings}, err

	case KindMultiLineString:
		if h.Empty() {
			return MultiLineString{}, nil
		}
		lines, err := d.rings(h)
		return MultiLineString{Coordinates: lines}, err

	case KindMultiPolygon:
		if h.Empty() {
			return MultiPolygon{}, nil
		}
		n, _ := d.next()
		polys := make([][][]Coord, n)
		for i := range polys {
			rings, err := d.rings(h)
			if err != nil {
				return nil, err
			}
			polys[i] = rings
		}
		return MultiPolygon{Coordinates: polys}, nil

	case KindGeometryCollection:
		gs, err := d.children(h)
		return GeometryCollection{Geometries: gs}, err
	case KindCompoundCurve:
		gs, err := d.children(h)
		return CompoundCurve{Segments: gs}, err
	case KindCurvePolygon:
		gs, err := d.children(h)
		return CurvePolygon{Rings: gs}, err
	case KindMultiCurve:
		gs, err := d.children(h)
		return MultiCurve{Curves: gs}, err
	case KindMultiSurface:
		gs, err := d.children(h)
		return MultiSurface{Surfaces: gs}, err
	}
	return nil, errors.AssertionFailedf("decoder reached unchecked type %d", h.Type())
}

func (d *decoder) point(h wire.Header) Coord {
	off := d.fBase + int(d.f)*8
	x, y := getF64(d.buf, off), getF64(d.buf, off+8)
	z, m := math.NaN(), math.NaN()
	if h.HasZ() {
		z = getF64(d.buf, off+16)
	}
	if h.HasM() {
		m = getF64(d.buf, off+24)
	}
	d.f += uint32(wire.PointSlots(h.HasZ(), h.HasM()))
	return d.layout.output(x, y, z, m, h.HasZ(), h.HasM())
}

// curve reads a [size][dataPtr] pair and the sequence behind it.
func (d *decoder) curve(h wire.Header) ([]Coord, error) {
	size, _ := d.next()
	ptr, _ := d.next()
	if size == 0 {
		return nil, nil
	}
	stride := wire.SequenceStride(h.HasM())
	n := uint64(size) * uint64(stride) * 8
	if n > math.MaxUint32 {
		return nil, errors.Newf("geosbridge: sequence of %d points is too large", size)
	}
	data, ok := d.mem.Read(ptr, uint32(n))
	if !ok {
		return nil, errors.Newf("geosbridge: sequence at %d (+%d bytes) out of bounds", ptr, n)
	}
	cs := make([]Coord, size)
	for i := range cs {
		off := i * stride * 8
		z, m := math.NaN(), math.NaN()
		if h.HasZ() {
			z = getF64(data, off+16)
		}
		if h.HasM() {
			m = getF64(data, off+24)
		}
		cs[i] = d.layout.output(getF64(data, off), getF64(data, off+8), z, m, h.HasZ(), h.HasM())
	}
	return cs, nil
}

func (d *decoder) rings(h wire.Header) ([][]Coord, error) {
	n, _ := d.next()
	rings := make([][]Coord, n)
	for i := range rings {
		cs, err := d.curve(h)
		if err != nil {
			return nil, err
		}
		rings[i] = cs
	}
	return rings, nil
}

func (d *decoder) children(h wire.Header) ([]Geometry, error) {
	if h.Empty() {
		return nil, nil
	}
	n, _ := d.next()
	gs := make([]Geometry, n)
	for i := range gs {
		g, err := d.geometry()
		if err != nil {
			return nil, err
		}
		gs[i] = g
	}
	return gs, nil
}
