package geosbridge

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tingold/orb-geosbridge/internal/wire"
)

// Layout is the requested ordinate set. The zero Layout is XYZM.
type Layout uint8

const (
	XYZM Layout = iota
	XY
	XYZ
	XYM
)

func (l Layout) String() string {
	switch l {
	case XY:
		return "XY"
	case XYZ:
		return "XYZ"
	case XYM:
		return "XYM"
	default:
		return "XYZM"
	}
}

// Stride is the maximum number of ordinates a coordinate has in l.
func (l Layout) Stride() int {
	switch l {
	case XY:
		return 2
	case XYZ, XYM:
		return 3
	default:
		return 4
	}
}

// ParseLayout parses "XY", "XYZ", "XYM" or "XYZM" (case insensitive). An
// empty string selects XYZM.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToUpper(s) {
	case "", "XYZM":
		return XYZM, nil
	case "XY":
		return XY, nil
	case "XYZ":
		return XYZ, nil
	case "XYM":
		return XYM, nil
	}
	return 0, errors.Newf("geosbridge: unknown layout %q", s)
}

// Dims derives header flags from the arity of a sample coordinate.
func (l Layout) Dims(arity int) (hasZ, hasM bool) {
	switch l {
	case XY:
		return false, false
	case XYZ:
		return arity > 2, false
	case XYM:
		return false, arity > 2
	default:
		return arity > 2, arity > 3
	}
}

func (l Layout) slotsPerPoint(arity int) int {
	return wire.PointSlots(l.Dims(arity))
}

func (l Layout) header(k Kind, sample Coord, empty bool) wire.Header {
	hasZ, hasM := l.Dims(len(sample))
	return wire.MakeHeader(k.typeID(), empty, hasZ, hasM)
}

// ZM picks the Z and M values of c under l. Absent ordinates are NaN. An
// XYM source of arity 3 carries M in its third component, arity 4 in its
// fourth.
func (l Layout) ZM(c Coord) (z, m float64) {
	z, m = math.NaN(), math.NaN()
	switch l {
	case XYZ:
		if len(c) > 2 {
			z = c[2]
		}
	case XYM:
		if len(c) > 3 {
			m = c[3]
		} else if len(c) > 2 {
			m = c[2]
		}
	case XYZM:
		if len(c) > 2 {
			z = c[2]
		}
		if len(c) > 3 {
			m = c[3]
		}
	}
	return z, m
}

// writePoint writes one embedded point into dst and returns the number of
// bytes written. A point with M keeps its Z slot, NaN when absent.
func (l Layout) writePoint(dst []byte, c Coord, hasZ, hasM bool) int {
	putF64(dst, 0, c[0])
	putF64(dst, 8, c[1])
	if !hasZ && !hasM {
		return 16
	}
	z, m := l.ZM(c)
	putF64(dst, 16, z)
	if !hasM {
		return 24
	}
	putF64(dst, 24, m)
	return 32
}

// writeRun writes a run of points into engine sequence storage using the
// sequence stride for hasM.
func (l Layout) writeRun(dst []byte, cs []Coord, hasM bool) {
	stride := wire.SequenceStride(hasM) * 8
	off := 0
	for _, c := range cs {
		z, m := l.ZM(c)
		putF64(dst, off, c[0])
		putF64(dst, off+8, c[1])
		putF64(dst, off+16, z)
		if hasM {
			putF64(dst, off+24, m)
		}
		off += stride
	}
}

// output builds a decoded coordinate. x and y are always kept; z and m are
// kept when l asks for them and the record carries at least one of them.
func (l Layout) output(x, y, z, m float64, hasZ, hasM bool) Coord {
	switch {
	case l == XYZ && hasZ:
		return Coord{x, y, z}
	case l == XYM && hasM:
		return Coord{x, y, m}
	case l == XYZM && (hasZ || hasM):
		return Coord{x, y, z, m}
	}
	return Coord{x, y}
}

func putF64(b []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(v))
}

func getF64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

func putU32(b []byte, cell uint32, v uint32) {
	binary.LittleEndian.PutUint32(b[cell*4:], v)
}

func getU32(b []byte, cell uint32) uint32 {
	return binary.LittleEndian.Uint32(b[cell*4:])
}
