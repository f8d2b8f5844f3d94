// Package geosbridge marshals geometry trees into and out of a foreign
// geometry engine that lives in a separate linear memory.
//
// Instead of crossing the memory boundary once per vertex, a batch of
// geometries is measured and validated, flattened into one self-describing
// transfer buffer, and materialized by the engine in a fixed number of calls.
// The reverse direction asks the engine to describe existing geometries in an
// analogous buffer and rebuilds the native tree from it.
package geosbridge

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Common errors returned by this package.
var (
	ErrNilGeometry     = errors.New("geosbridge: nil geometry")
	ErrUnsupportedType = errors.New("geosbridge: unsupported geometry type")
	ErrClosed          = errors.New("geosbridge: bridge is closed")
)

// InvalidGeometryError is returned when a geometry fails structural
// validation. It is always raised before the engine is asked to allocate
// anything.
type InvalidGeometryError struct {
	Geometry Geometry // offending node
	Message  string
	Detail   string // observed values, optional
}

func (e *InvalidGeometryError) Error() string {
	if e.Detail == "" {
		return "invalid geometry: " + e.Message
	}
	return "invalid geometry: " + e.Message + ": " + e.Detail
}

func invalid(g Geometry, msg string, detailFormat string, args ...interface{}) error {
	e := &InvalidGeometryError{Geometry: g, Message: msg}
	if detailFormat != "" {
		e.Detail = fmt.Sprintf(detailFormat, args...)
	}
	return e
}

// UnsupportedGeometryError is returned by the decoder for curved kinds when
// the extended flavor was not requested, and for unknown header tags.
type UnsupportedGeometryError struct {
	Kind Kind   // zero when Tag is not a known kind
	Tag  uint32 // raw type id found in the header cell
}

func (e *UnsupportedGeometryError) Error() string {
	if !e.Kind.Valid() {
		return fmt.Sprintf("unsupported geometry: unknown type tag %d", e.Tag)
	}
	return fmt.Sprintf("unsupported geometry: %s requires the extended flavor", e.Kind)
}

// Is lets errors.Is(err, ErrUnsupportedType) match decoder failures.
func (e *UnsupportedGeometryError) Is(target error) bool {
	return target == ErrUnsupportedType
}

// DefaultScratchSize is the capacity in bytes of the warm transfer buffer.
const DefaultScratchSize = 8 << 10

// Options configures a Bridge.
type Options struct {
	ScratchSize uint32      // Warm buffer capacity in bytes (default: DefaultScratchSize)
	Logger      *zap.Logger // Logger (default: no-op)
}

// DefaultOptions returns default options for a Bridge.
func DefaultOptions() *Options {
	return &Options{
		ScratchSize: DefaultScratchSize,
		Logger:      zap.NewNop(),
	}
}

func formatCoord(c Coord) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range c {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(')')
	return b.String()
}
