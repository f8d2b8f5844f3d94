package geosbridge

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero/api"
	"github.com/tingold/orb-geosbridge/internal/wire"
)

// pendingSeq is a coordinate run waiting for engine-allocated storage. The
// encoder emits them in S-cell order and the populator consumes them in the
// same order.
type pendingSeq struct {
	coords []Coord
	hasM   bool
}

// encoder writes the D and F regions of a transfer buffer. Cursors are cell
// offsets relative to the start of their region, except f which counts bytes.
type encoder struct {
	buf    []byte
	layout Layout
	dBase  uint32 // first D cell
	fBase  int    // first F byte
	d, s   uint32
	f      int

	pending []pendingSeq
}

func newEncoder(buf []byte, c counts, l Layout) *encoder {
	putU32(buf, 0, c.d)
	putU32(buf, 1, c.s)
	return &encoder{
		buf:     buf,
		layout:  l,
		dBase:   wire.CountCells,
		fBase:   int(wire.FOffset(c.d, c.s)),
		pending: make([]pendingSeq, 0, c.s),
	}
}

func (e *encoder) putD(v uint32) {
	putU32(e.buf, e.dBase+e.d, v)
	e.d++
}

// sequence reserves one S cell and writes the point count as the D
// placeholder the engine replaces with the sequence handle.
func (e *encoder) sequence(cs []Coord, h wire.Header) {
	e.putD(uint32(len(cs)))
	e.s++
	e.pending = append(e.pending, pendingSeq{coords: cs, hasM: h.HasM()})
}

func (e *encoder) point(c Coord, h wire.Header) {
	e.f += e.layout.writePoint(e.buf[e.fBase+e.f:], c, h.HasZ(), h.HasM())
}

func (e *encoder) encode(g Geometry) error {
	sample, ok := sampleCoord(g)
	h := e.layout.header(g.Kind(), sample, !ok)
	e.putD(uint32(h))

	switch v := g.(type) {
	case Point:
		if ok {
			e.point(v.Coordinates, h)
		}

	case MultiPoint:
		e.putD(uint32(len(v.Coordinates)))
		for _, c := range v.Coordinates {
			e.point(c, h)
		}

	case LineString:
		e.sequence(v.Coordinates, h)

	case CircularString:
		e.sequence(v.Coordinates, h)

	case Polygon:
		e.rings(v.Coordinates, h)

	case MultiLineString:
		e.rings(v.Coordinates, h)

	case MultiPolygon:
		e.putD(uint32(len(v.Coordinates)))
		for _, poly := range v.Coordinates {
			e.rings(poly, h)
		}

	case GeometryCollection:
		return e.children(v.Geometries)
	case CompoundCurve:
		return e.children(v.Segments)
	case CurvePolygon:
		return e.children(v.Rings)
	case MultiCurve:
		return e.children(v.Curves)
	case MultiSurface:
		return e.children(v.Surfaces)

	default:
		return errors.AssertionFailedf("encoder reached unmeasured geometry %T", g)
	}
	return nil
}

func (e *encoder) rings(rings [][]Coord, h wire.Header) {
	e.putD(uint32(len(rings)))
	for _, ring := range rings {
		e.sequence(ring, h)
	}
}

func (e *encoder) children(gs []Geometry) error {
	e.putD(uint32(len(gs)))
	for _, g := range gs {
		if err := e.encode(g); err != nil {
			return err
		}
	}
	return nil
}

// finish checks that exactly the measured number of cells was written.
func (e *encoder) finish(c counts) error {
	if e.d != c.d || e.s != c.s || e.f != int(c.f)*8 {
		return errors.AssertionFailedf("encoder wrote D=%d S=%d F=%d cells, measured D=%d S=%d F=%d",
			e.d, e.s, e.f/8, c.d, c.s, c.f)
	}
	return nil
}

// populate copies every pending run into the engine storage whose data
// pointer the engine wrote into the matching S cell.
func populate(mem api.Memory, buf uint32, c counts, pending []pendingSeq, l Layout) error {
	if uint32(len(pending)) != c.s {
		return errors.AssertionFailedf("populator got %d sequences, measured %d", len(pending), c.s)
	}
	if c.s == 0 {
		return nil
	}
	slots, ok := mem.Read(buf+wire.SOffset(c.d), c.s*4)
	if !ok {
		return errors.Newf("geosbridge: S region at %d out of bounds", buf+wire.SOffset(c.d))
	}
	for i, p := range pending {
		if len(p.coords) == 0 {
			continue
		}
		ptr := binary.LittleEndian.Uint32(slots[i*4:])
		n := uint32(len(p.coords) * wire.SequenceStride(p.hasM) * 8)
		dst, ok := mem.Read(ptr, n)
		if !ok {
			return errors.Newf("geosbridge: sequence %d storage at %d (+%d bytes) out of bounds", i, ptr, n)
		}
		l.writeRun(dst, p.coords, p.hasM)
	}
	return nil
}
