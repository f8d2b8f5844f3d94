// Package wire defines the binary contract shared by the bridge and the
// engines that consume or produce its transfer buffers.
//
// A transfer buffer starts with two u32 count cells followed by the D region
// (u32 cells), the S region (u32 cells) and, at the next 8-byte boundary, the
// F region (f64 cells). All values are little endian and all pointers are
// byte offsets into the engine's linear memory.
package wire

// Handle is an engine-side object reference: a geometry or a coordinate
// sequence. Zero is never a valid handle.
type Handle uint32

// TypeID identifies a geometry kind in a header cell.
type TypeID uint32

// Type identifiers. LinearRing is only ever produced by an engine.
const (
	TypePoint              TypeID = 0
	TypeLineString         TypeID = 1
	TypeLinearRing         TypeID = 2
	TypePolygon            TypeID = 3
	TypeMultiPoint         TypeID = 4
	TypeMultiLineString    TypeID = 5
	TypeMultiPolygon       TypeID = 6
	TypeGeometryCollection TypeID = 7
	TypeCircularString     TypeID = 8
	TypeCompoundCurve      TypeID = 9
	TypeCurvePolygon       TypeID = 10
	TypeMultiCurve         TypeID = 11
	TypeMultiSurface       TypeID = 12
)

// IsCurved reports whether t is only available in the extended flavor.
func (t TypeID) IsCurved() bool {
	return t >= TypeCircularString && t <= TypeMultiSurface
}

// Valid reports whether t is a known type identifier.
func (t TypeID) Valid() bool {
	return t <= TypeMultiSurface
}

var typeNames = [...]string{
	"Point",
	"LineString",
	"LinearRing",
	"Polygon",
	"MultiPoint",
	"MultiLineString",
	"MultiPolygon",
	"GeometryCollection",
	"CircularString",
	"CompoundCurve",
	"CurvePolygon",
	"MultiCurve",
	"MultiSurface",
}

func (t TypeID) String() string {
	if !t.Valid() {
		return "Unknown"
	}
	return typeNames[t]
}

const (
	typeMask  = 0x0f
	flagEmpty = 1 << 4
	flagZ     = 1 << 5
	flagM     = 1 << 6
)

// Header is a packed header cell: typeId | isEmpty<<4 | hasZ<<5 | hasM<<6.
type Header uint32

// MakeHeader packs a header cell.
func MakeHeader(t TypeID, empty, hasZ, hasM bool) Header {
	h := Header(t) & typeMask
	if empty {
		h |= flagEmpty
	}
	if hasZ {
		h |= flagZ
	}
	if hasM {
		h |= flagM
	}
	return h
}

func (h Header) Type() TypeID { return TypeID(h & typeMask) }
func (h Header) Empty() bool  { return h&flagEmpty != 0 }
func (h Header) HasZ() bool   { return h&flagZ != 0 }
func (h Header) HasM() bool   { return h&flagM != 0 }

// CountCells is the number of u32 cells preceding the D region.
const CountCells = 2

// DOffset is the byte offset of the D region.
const DOffset = CountCells * 4

// SOffset returns the byte offset of the S region for a D region of d cells.
func SOffset(d uint32) uint32 {
	return DOffset + d*4
}

// FOffset returns the byte offset of the F region. The u32 cells before it
// are padded to a multiple of 8 bytes.
func FOffset(d, s uint32) uint32 {
	cells := CountCells + d + s
	cells += cells & 1
	return cells * 4
}

// BufferSize returns the exact size in bytes of a buffer holding d and s u32
// cells and f f64 cells.
func BufferSize(d, s, f uint32) uint32 {
	return FOffset(d, s) + f*8
}

// PointSlots returns how many F cells one embedded point occupies. A point
// with M always reserves the Z slot.
func PointSlots(hasZ, hasM bool) int {
	switch {
	case hasM:
		return 4
	case hasZ:
		return 3
	default:
		return 2
	}
}

// SequenceStride returns the number of f64 values per point in engine-owned
// coordinate sequences: x, y, z without M and x, y, z, m with it.
func SequenceStride(hasM bool) int {
	if hasM {
		return 4
	}
	return 3
}
