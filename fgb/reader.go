package fgb

import (
	"github.com/cockroachdb/errors"
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	geosbridge "github.com/tingold/orb-geosbridge"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader opens a FlatGeobuf file. The file is memory-mapped.
func NewReader(path string) (*Reader, error) {
	f, err := flatgeobuf.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fgb: open %s", path)
	}
	return &Reader{fgb: f}, nil
}

// NewReaderFromData reads a FlatGeobuf file held in memory.
func NewReaderFromData(data []byte) (*Reader, error) {
	f, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, errors.Wrap(err, "fgb: parse")
	}
	return &Reader{fgb: f}, nil
}

// Header returns the file metadata.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	out := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  typeName(h.GeometryType()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}
	if b, ok := envelope(h); ok {
		out.Envelope = b
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		out.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if !h.Columns(&col, i) {
			continue
		}
		out.Columns = append(out.Columns, ColumnInfo{
			Name:        string(col.Name()),
			Type:        flattypes.EnumNamesColumnType[col.Type()],
			Title:       string(col.Title()),
			Description: string(col.Description()),
			Nullable:    col.Nullable(),
		})
	}
	return out
}

func envelope(h *flattypes.Header) (orb.Bound, bool) {
	if h.EnvelopeLength() < 4 {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{h.Envelope(0), h.Envelope(1)},
		Max: orb.Point{h.Envelope(2), h.Envelope(3)},
	}, true
}

// ReadAll reads every feature. Features are located through the spatial
// index, so files written without one fail with ErrNoIndex.
func (r *Reader) ReadAll() ([]*Feature, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}
	if h.FeaturesCount() == 0 {
		return nil, nil
	}
	b, ok := envelope(h)
	if !ok {
		return nil, ErrNoIndex
	}
	return r.Search(b)
}

// ReadGeometries reads every geometry without properties.
func (r *Reader) ReadGeometries() ([]geosbridge.Geometry, error) {
	fs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return geometries(fs), nil
}

// Search returns the features whose bounding boxes intersect bounds.
func (r *Reader) Search(bounds orb.Bound) ([]*Feature, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	found, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, errors.Wrap(err, "fgb: search")
	}

	out := make([]*Feature, 0, len(found))
	for i, ff := range found {
		f, err := readFeature(ff, h)
		if err != nil {
			return nil, errors.Wrapf(err, "fgb: feature %d", i)
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// SearchGeometries is Search without properties.
func (r *Reader) SearchGeometries(bounds orb.Bound) ([]geosbridge.Geometry, error) {
	fs, err := r.Search(bounds)
	if err != nil {
		return nil, err
	}
	return geometries(fs), nil
}

// Close drops the reader's reference to the file.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}

func geometries(fs []*Feature) []geosbridge.Geometry {
	out := make([]geosbridge.Geometry, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Geometry)
	}
	return out
}

// readFeature converts a stored feature. Features without a geometry are
// skipped with a nil result.
func readFeature(ff *flattypes.Feature, h *flattypes.Header) (*Feature, error) {
	if ff == nil {
		return nil, nil
	}
	var fg flattypes.Geometry
	if ff.Geometry(&fg) == nil {
		return nil, nil
	}
	g, err := geometryFromFGB(&fg, h.GeometryType())
	if err != nil {
		return nil, err
	}

	f := &Feature{Geometry: g}
	if n := ff.PropertiesLength(); n > 0 && h.ColumnsLength() > 0 {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(ff.Properties(i))
		}
		f.Properties = decodeProperties(data, h)
	}
	return f, nil
}
