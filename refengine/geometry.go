package refengine

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

// sequence is engine-owned coordinate storage. Points are stored as x, y, z
// or x, y, z, m depending on hasM; an empty sequence has no storage.
type sequence struct {
	ptr        uint32
	size       uint32
	hasZ, hasM bool
}

func (s *sequence) bytes() uint64 {
	return uint64(s.size) * uint64(wire.SequenceStride(s.hasM)) * 8
}

// node is a built geometry. Curves own a sequence, Points hold their values
// directly and everything else holds children: rings for polygons, members
// for collections and segments for compound curves.
type node struct {
	typ        wire.TypeID
	hasZ, hasM bool
	point      []float64 // x, y, z, m; nil when empty
	seq        *sequence
	children   []*node
}

func (n *node) empty() bool {
	switch n.typ {
	case wire.TypePoint:
		return n.point == nil
	case wire.TypeLineString, wire.TypeLinearRing, wire.TypeCircularString:
		return n.seq == nil || n.seq.size == 0
	case wire.TypePolygon, wire.TypeCurvePolygon:
		return len(n.children) == 0 || n.children[0].empty()
	}
	for _, c := range n.children {
		if !c.empty() {
			return false
		}
	}
	return true
}

func (n *node) numPoints() int {
	switch {
	case n.typ == wire.TypePoint:
		if n.point == nil {
			return 0
		}
		return 1
	case n.seq != nil:
		return int(n.seq.size)
	}
	total := 0
	for _, c := range n.children {
		total += c.numPoints()
	}
	return total
}

var errOverrun = errors.New("refengine: recipe overrun")

// recipe reads and patches the D and S regions of a transfer buffer in
// place. All offsets are recomputed from buf on each access because the
// engine may grow its memory while allocating sequences.
type recipe struct {
	e      *Engine
	buf    uint32
	nd, ns uint32
	d, s   uint32
	f      uint32
	fBase  uint32
}

func (e *Engine) recipe(buf uint32) (*recipe, error) {
	nd, ok1 := e.mem.ReadUint32Le(buf)
	ns, ok2 := e.mem.ReadUint32Le(buf + 4)
	if !ok1 || !ok2 {
		return nil, errors.Newf("refengine: transfer buffer at %d out of bounds", buf)
	}
	return &recipe{e: e, buf: buf, nd: nd, ns: ns, fBase: buf + wire.FOffset(nd, ns)}, nil
}

func (r *recipe) cell() (uint32, error) {
	if r.d >= r.nd {
		return 0, errOverrun
	}
	v, ok := r.e.mem.ReadUint32Le(r.buf + wire.DOffset + 4*r.d)
	if !ok {
		return 0, errors.Newf("refengine: D cell %d out of bounds", r.d)
	}
	r.d++
	return v, nil
}

func (r *recipe) setD(i, v uint32) error {
	if !r.e.mem.WriteUint32Le(r.buf+wire.DOffset+4*i, v) {
		return errors.Newf("refengine: D cell %d out of bounds", i)
	}
	return nil
}

// AllocateSequences creates one sequence per S cell, sized from the D
// placeholder cell that precedes it in traversal order.
func (e *Engine) AllocateSequences(_ context.Context, buf uint32) error {
	r, err := e.recipe(buf)
	if err != nil {
		return err
	}
	for r.d < r.nd {
		if err := r.allocate(); err != nil {
			return err
		}
	}
	if r.s != r.ns {
		return errors.Newf("refengine: recipe declares %d sequences, found %d", r.ns, r.s)
	}
	return nil
}

func (r *recipe) allocate() error {
	c, err := r.cell()
	if err != nil {
		return err
	}
	h := wire.Header(c)

	switch h.Type() {
	case wire.TypePoint:
		return nil

	case wire.TypeLineString, wire.TypeCircularString:
		return r.sequence(h)

	case wire.TypePolygon, wire.TypeMultiLineString:
		n, err := r.cell()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := r.sequence(h); err != nil {
				return err
			}
		}

	case wire.TypeMultiPoint:
		_, err := r.cell()
		return err

	case wire.TypeMultiPolygon:
		n, err := r.cell()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			rings, err := r.cell()
			if err != nil {
				return err
			}
			for j := uint32(0); j < rings; j++ {
				if err := r.sequence(h); err != nil {
					return err
				}
			}
		}

	case wire.TypeGeometryCollection, wire.TypeCompoundCurve, wire.TypeCurvePolygon,
		wire.TypeMultiCurve, wire.TypeMultiSurface:
		n, err := r.cell()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := r.allocate(); err != nil {
				return err
			}
		}

	default:
		return errors.Newf("refengine: unexpected %s in recipe", h.Type())
	}
	return nil
}

func (r *recipe) sequence(h wire.Header) error {
	if r.s >= r.ns {
		return errors.Newf("refengine: recipe needs more than %d sequences", r.ns)
	}
	at := r.d
	size, err := r.cell()
	if err != nil {
		return err
	}
	seq := &sequence{size: size, hasZ: h.HasZ(), hasM: h.HasM()}
	if size > 0 {
		n := seq.bytes()
		if n > math.MaxUint32 {
			return errors.Newf("refengine: sequence of %d points is too large", size)
		}
		if seq.ptr, err = r.e.heap.alloc(uint32(n)); err != nil {
			return err
		}
	}
	handle := r.e.handle()
	r.e.seqs[handle] = seq

	if err := r.setD(at, uint32(handle)); err != nil {
		return err
	}
	if !r.e.mem.WriteUint32Le(wire.SOffset(r.nd)+r.buf+4*r.s, seq.ptr) {
		return errors.Newf("refengine: S cell %d out of bounds", r.s)
	}
	r.s++
	return nil
}

// BuildGeometries builds every top-level record and writes its handle over
// D cell i. Geometries already built by a failing call are destroyed.
func (e *Engine) BuildGeometries(ctx context.Context, buf uint32) error {
	r, err := e.recipe(buf)
	if err != nil {
		return err
	}
	var built []wire.Handle
	for o := uint32(0); r.d < r.nd; o++ {
		n, err := r.build()
		if err == nil {
			h := e.handle()
			e.geoms[h] = n
			built = append(built, h)
			err = r.setD(o, uint32(h))
		}
		if err != nil {
			for _, h := range built {
				_ = e.FreeGeometry(ctx, h)
			}
			return err
		}
	}
	return nil
}

func (r *recipe) build() (*node, error) {
	c, err := r.cell()
	if err != nil {
		return nil, err
	}
	h := wire.Header(c)
	n := &node{typ: h.Type(), hasZ: h.HasZ(), hasM: h.HasM()}

	switch h.Type() {
	case wire.TypePoint:
		if !h.Empty() {
			n.point, err = r.point(h)
		}

	case wire.TypeLineString, wire.TypeCircularString:
		n.seq, err = r.take()

	case wire.TypePolygon:
		n.children, err = r.curves(h, wire.TypeLinearRing)

	case wire.TypeMultiLineString:
		n.children, err = r.curves(h, wire.TypeLineString)

	case wire.TypeMultiPoint:
		var count uint32
		if count, err = r.cell(); err != nil {
			break
		}
		for i := uint32(0); i < count && err == nil; i++ {
			p := &node{typ: wire.TypePoint, hasZ: h.HasZ(), hasM: h.HasM()}
			p.point, err = r.point(h)
			n.children = append(n.children, p)
		}

	case wire.TypeMultiPolygon:
		var count uint32
		if count, err = r.cell(); err != nil {
			break
		}
		for i := uint32(0); i < count && err == nil; i++ {
			p := &node{typ: wire.TypePolygon, hasZ: h.HasZ(), hasM: h.HasM()}
			p.children, err = r.curves(h, wire.TypeLinearRing)
			n.children = append(n.children, p)
		}

	case wire.TypeGeometryCollection, wire.TypeCompoundCurve, wire.TypeCurvePolygon,
		wire.TypeMultiCurve, wire.TypeMultiSurface:
		var count uint32
		if count, err = r.cell(); err != nil {
			break
		}
		for i := uint32(0); i < count && err == nil; i++ {
			var child *node
			if child, err = r.build(); child != nil {
				n.children = append(n.children, child)
			}
			if err == nil {
				err = checkMember(n.typ, child.typ)
			}
		}
		n.hasZ, n.hasM = false, false
		for _, child := range n.children {
			n.hasZ = n.hasZ || child.hasZ
			n.hasM = n.hasM || child.hasM
		}

	default:
		err = errors.Newf("refengine: unexpected %s in recipe", h.Type())
	}

	if err != nil {
		_ = r.e.destroy(n)
		return nil, err
	}
	return n, nil
}

// checkMember enforces which kinds a container may hold.
func checkMember(container, member wire.TypeID) error {
	ok := true
	switch container {
	case wire.TypeCompoundCurve:
		ok = member == wire.TypeLineString || member == wire.TypeCircularString
	case wire.TypeCurvePolygon, wire.TypeMultiCurve:
		ok = member == wire.TypeLineString || member == wire.TypeCircularString ||
			member == wire.TypeCompoundCurve
	case wire.TypeMultiSurface:
		ok = member == wire.TypePolygon || member == wire.TypeCurvePolygon
	}
	if !ok {
		return errors.Newf("refengine: %s cannot hold %s", container, member)
	}
	return nil
}

// take moves a sequence from the sequence table into a geometry.
func (r *recipe) take() (*sequence, error) {
	c, err := r.cell()
	if err != nil {
		return nil, err
	}
	seq, ok := r.e.seqs[wire.Handle(c)]
	if !ok {
		return nil, errors.Newf("refengine: unknown sequence handle %d", c)
	}
	delete(r.e.seqs, wire.Handle(c))
	return seq, nil
}

// curves builds a counted run of curve nodes. The nodes built so far are
// returned along with any error so the caller can destroy them.
func (r *recipe) curves(h wire.Header, typ wire.TypeID) ([]*node, error) {
	count, err := r.cell()
	if err != nil {
		return nil, err
	}
	out := make([]*node, 0, count)
	for i := uint32(0); i < count; i++ {
		seq, err := r.take()
		if err != nil {
			return out, err
		}
		out = append(out, &node{typ: typ, hasZ: h.HasZ(), hasM: h.HasM(), seq: seq})
	}
	return out, nil
}

func (r *recipe) point(h wire.Header) ([]float64, error) {
	p := []float64{0, 0, math.NaN(), math.NaN()}
	slots := uint32(wire.PointSlots(h.HasZ(), h.HasM()))
	for i := uint32(0); i < slots; i++ {
		v, ok := r.e.mem.ReadFloat64Le(r.fBase + 8*(r.f+i))
		if !ok {
			return nil, errors.Newf("refengine: F cell %d out of bounds", r.f+i)
		}
		p[i] = v
	}
	r.f += slots
	return p, nil
}
