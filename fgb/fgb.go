// Package fgb reads and writes FlatGeobuf files as geosbridge geometry nodes,
// including Z and M ordinates and the curved geometry kinds.
//
// Decoded coordinates follow the XYZM convention: [x y], [x y z] or
// [x y z m], with z set to NaN when only M is stored.
package fgb

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"

	geosbridge "github.com/tingold/orb-geosbridge"
)

// Common errors returned by this package.
var (
	ErrNoGeometries     = errors.New("fgb: no geometries to write")
	ErrUnsupportedType  = errors.New("fgb: unsupported geometry type")
	ErrInvalidData      = errors.New("fgb: invalid data")
	ErrNoIndex          = errors.New("fgb: file has no spatial index")
	ErrPropertyMismatch = errors.New("fgb: property type mismatch")
)

// CRS represents a coordinate reference system.
type CRS struct {
	Code        int    // EPSG code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// Options configures FlatGeobuf writing.
type Options struct {
	Name         string            // Layer name
	Description  string            // Layer description
	IncludeIndex bool              // Include spatial index (default: true)
	CRS          *CRS              // Coordinate reference system (optional)
	Layout       geosbridge.Layout // How input coordinates are read (default: XYZM)
}

// DefaultOptions returns default options for writing FlatGeobuf files.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
		Layout:       geosbridge.XYZM,
	}
}

// Feature is a geometry with optional properties.
type Feature struct {
	Geometry   geosbridge.Geometry
	Properties map[string]interface{}
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name        string
	Type        string // "Bool", "Int", "Long", "Double", "String", "Json", ...
	Title       string
	Description string
	Nullable    bool
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string
	Description   string
	GeometryType  string // "Point", "CircularString", "Unknown", ...
	FeaturesCount uint64
	Envelope      orb.Bound
	CRS           *CRS
	HasIndex      bool
	Columns       []ColumnInfo
}
