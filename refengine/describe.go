package refengine

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/tingold/orb-geosbridge/internal/wire"
)

func (e *Engine) lookup(hs []wire.Handle) ([]*node, error) {
	out := make([]*node, len(hs))
	for i, h := range hs {
		n, ok := e.geoms[h]
		if !ok {
			return nil, errors.Newf("refengine: unknown geometry handle %d", h)
		}
		out[i] = n
	}
	return out, nil
}

// MeasureDecode returns the exact B and F cell counts WriteDecode uses.
func (e *Engine) MeasureDecode(_ context.Context, hs []wire.Handle) (b, f uint32, err error) {
	ns, err := e.lookup(hs)
	if err != nil {
		return 0, 0, err
	}
	for _, n := range ns {
		n.measure(&b, &f)
	}
	return b, f, nil
}

func (n *node) measure(b, f *uint32) {
	*b++ // header
	if n.empty() {
		return
	}
	slots := uint32(wire.PointSlots(n.hasZ, n.hasM))

	switch n.typ {
	case wire.TypePoint:
		*f += slots
	case wire.TypeLineString, wire.TypeLinearRing, wire.TypeCircularString:
		*b += 2
	case wire.TypePolygon, wire.TypeMultiLineString:
		*b += 1 + 2*uint32(len(n.children))
	case wire.TypeMultiPoint:
		*b++
		*f += slots * uint32(len(n.children))
	case wire.TypeMultiPolygon:
		*b++
		for _, p := range n.children {
			*b += 1 + 2*uint32(len(p.children))
		}
	default:
		*b++
		for _, c := range n.children {
			c.measure(b, f)
		}
	}
}

// describer writes a descriptive buffer: a header per record, counts, a
// [size][dataPtr] pair per curve and embedded point values in F.
type describer struct {
	e     *Engine
	bBase uint32
	fBase uint32
	b, f  uint32
	err   error
}

// WriteDecode writes the descriptive buffer for hs at buf. The caller sizes
// buf from MeasureDecode.
func (e *Engine) WriteDecode(_ context.Context, hs []wire.Handle, buf uint32) error {
	ns, err := e.lookup(hs)
	if err != nil {
		return err
	}
	var nb, nf uint32
	for _, n := range ns {
		n.measure(&nb, &nf)
	}

	w := &describer{
		e:     e,
		bBase: buf + wire.DOffset,
		fBase: buf + wire.FOffset(nb, 0),
	}
	if !e.mem.WriteUint32Le(buf, nb) || !e.mem.WriteUint32Le(buf+4, nf) {
		return errors.Newf("refengine: decode buffer at %d out of bounds", buf)
	}
	for _, n := range ns {
		w.write(n)
	}
	if w.err != nil {
		return w.err
	}
	if w.b != nb || w.f != nf {
		return errors.AssertionFailedf("wrote %d/%d cells, measured %d/%d", w.b, w.f, nb, nf)
	}
	return nil
}

func (w *describer) put(v uint32) {
	if w.err == nil && !w.e.mem.WriteUint32Le(w.bBase+4*w.b, v) {
		w.err = errors.Newf("refengine: B cell %d out of bounds", w.b)
	}
	w.b++
}

func (w *describer) putF(v float64) {
	if w.err == nil && !w.e.mem.WriteFloat64Le(w.fBase+8*w.f, v) {
		w.err = errors.Newf("refengine: F cell %d out of bounds", w.f)
	}
	w.f++
}

func (w *describer) write(n *node) {
	empty := n.empty()
	w.put(uint32(wire.MakeHeader(n.typ, empty, n.hasZ, n.hasM)))
	if empty {
		return
	}

	switch n.typ {
	case wire.TypePoint:
		w.point(n.point, n.hasZ, n.hasM)

	case wire.TypeLineString, wire.TypeLinearRing, wire.TypeCircularString:
		w.curve(n.seq)

	case wire.TypePolygon, wire.TypeMultiLineString:
		w.put(uint32(len(n.children)))
		for _, c := range n.children {
			w.curve(c.seq)
		}

	case wire.TypeMultiPoint:
		w.put(uint32(len(n.children)))
		for _, c := range n.children {
			w.point(c.point, n.hasZ, n.hasM)
		}

	case wire.TypeMultiPolygon:
		w.put(uint32(len(n.children)))
		for _, p := range n.children {
			w.put(uint32(len(p.children)))
			for _, c := range p.children {
				w.curve(c.seq)
			}
		}

	default:
		w.put(uint32(len(n.children)))
		for _, c := range n.children {
			w.write(c)
		}
	}
}

func (w *describer) point(p []float64, hasZ, hasM bool) {
	slots := wire.PointSlots(hasZ, hasM)
	for i := 0; i < slots; i++ {
		if p == nil {
			w.putF(math.NaN())
			continue
		}
		w.putF(p[i])
	}
}

func (w *describer) curve(seq *sequence) {
	if seq == nil {
		w.put(0)
		w.put(0)
		return
	}
	w.put(seq.size)
	w.put(seq.ptr)
}
