package fgb

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	geosbridge "github.com/tingold/orb-geosbridge"
)

// Write writes geometries without properties.
func Write(w io.Writer, geometries []geosbridge.Geometry, opts *Options) error {
	features := make([]*Feature, 0, len(geometries))
	for _, g := range geometries {
		features = append(features, &Feature{Geometry: g})
	}
	return WriteFeatures(w, features, opts)
}

// WriteFeature writes a single feature.
func WriteFeature(w io.Writer, f *Feature, opts *Options) error {
	if f == nil {
		return ErrNoGeometries
	}
	return WriteFeatures(w, []*Feature{f}, opts)
}

// WriteFeatures writes features and their properties. Features with a nil
// geometry are skipped. Property columns are inferred from all features.
func WriteFeatures(w io.Writer, features []*Feature, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	kept := make([]*Feature, 0, len(features))
	geoms := make([]geosbridge.Geometry, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		kept = append(kept, f)
		geoms = append(geoms, f.Geometry)
	}
	if len(kept) == 0 {
		return ErrNoGeometries
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(commonType(geoms))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	s := inferSchema(kept)
	if s != nil {
		header.SetColumns(s.columns(builder))
	}
	if opts.CRS != nil {
		header.SetCrs(crsToFGB(opts.CRS, builder))
	}

	gen := &featureGenerator{features: kept, schema: s, layout: opts.Layout}
	fw := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	if _, err := fw.Write(w); err != nil {
		return errors.Wrap(err, "fgb: write")
	}
	return gen.err
}

func crsToFGB(c *CRS, builder *flatbuffers.Builder) *writer.Crs {
	crs := writer.NewCrs(builder)
	crs.SetOrg("EPSG")
	if c.Code > 0 {
		crs.SetCode(int32(c.Code))
	}
	if c.Name != "" {
		crs.SetName(c.Name)
	}
	switch {
	case c.Description != "":
		crs.SetDescription(c.Description)
	case c.WKT != "":
		crs.SetDescription(c.WKT)
	}
	return crs
}

// featureGenerator feeds features to the FlatGeobuf writer. The writer
// cannot take an error, so the first failure ends the stream and is kept in
// err.
type featureGenerator struct {
	features []*Feature
	schema   *schema
	layout   geosbridge.Layout
	index    int
	err      error
}

func (g *featureGenerator) Generate() *writer.Feature {
	if g.err != nil || g.index >= len(g.features) {
		return nil
	}
	f := g.features[g.index]
	g.index++

	builder := flatbuffers.NewBuilder(1024)
	geom, err := geometryToFGB(f.Geometry, g.layout, builder)
	if err != nil {
		g.err = errors.Wrapf(err, "fgb: feature %d", g.index-1)
		return nil
	}
	props, err := g.schema.encode(f.Properties)
	if err != nil {
		g.err = errors.Wrapf(err, "fgb: feature %d", g.index-1)
		return nil
	}

	feature := writer.NewFeature(builder)
	feature.SetGeometry(geom)
	if len(props) > 0 {
		feature.SetProperties(props)
	}
	return feature
}

// typeName is the header name of a geometry type.
func typeName(t flattypes.GeometryType) string {
	if name, ok := flattypes.EnumNamesGeometryType[t]; ok {
		return name
	}
	return "Unknown"
}
