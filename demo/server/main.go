package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	geosbridge "github.com/tingold/orb-geosbridge"
	"github.com/tingold/orb-geosbridge/fgb"
	"github.com/tingold/orb-geosbridge/refengine"
	"github.com/tingold/orb-geosbridge/wasmgeos"
)

type City struct {
	Name       string
	Country    string
	Longitude  float64
	Latitude   float64
	Population int
	Capital    bool
}

var cities = []City{
	{"Tokyo", "Japan", 139.6917, 35.6895, 13960000, true},
	{"New York", "United States", -73.9857, 40.7484, 8336817, false},
	{"London", "United Kingdom", -0.1276, 51.5074, 8982000, true},
	{"Paris", "France", 2.3522, 48.8566, 2161000, true},
	{"Beijing", "China", 116.4074, 39.9042, 21540000, true},
	{"Cairo", "Egypt", 31.2357, 30.0444, 10230000, true},
	{"Sydney", "Australia", 151.2093, -33.8688, 5312000, false},
	{"Berlin", "Germany", 13.4050, 52.5200, 3669491, true},
}

var opt struct {
	addr        string
	layout      string
	extended    bool
	scratchSize uint32
	wasm        string
	debug       bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Round-trips FlatGeobuf geometries through a geometry engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	flag := cmd.Flags()
	flag.StringVar(&opt.addr, "addr", ":8080", "Address to listen on")
	flag.StringVar(&opt.layout, "layout", "XYZM", "Default output layout: XY, XYZ, XYM or XYZM")
	flag.BoolVar(&opt.extended, "extended", false, "Decode curved geometry kinds by default")
	flag.Uint32Var(&opt.scratchSize, "scratch-size", geosbridge.DefaultScratchSize, "Warm transfer buffer size in bytes")
	flag.StringVar(&opt.wasm, "wasm", "", "WebAssembly engine build to load instead of the reference engine")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log, err := newLogger(opt.debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	layout, err := geosbridge.ParseLayout(opt.layout)
	if err != nil {
		return err
	}

	engine, closeEngine, err := openEngine(ctx, log)
	if err != nil {
		return err
	}
	defer closeEngine()

	bridge, err := geosbridge.New(ctx, engine, &geosbridge.Options{
		ScratchSize: opt.scratchSize,
		Logger:      log.Named("bridge"),
	})
	if err != nil {
		return errors.Wrap(err, "start bridge")
	}
	defer func() { _ = bridge.Close(ctx) }()

	sample, err := citiesFGB()
	if err != nil {
		return err
	}

	s := &server{bridge: bridge, log: log, layout: layout, extended: opt.extended}
	mux := http.NewServeMux()
	mux.HandleFunc("/roundtrip", s.roundTrip)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/data.fgb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write(sample)
	})

	log.Info("server starting", zap.String("addr", opt.addr), zap.Stringer("layout", layout))
	return http.ListenAndServe(opt.addr, mux)
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// openEngine starts the reference engine, or the wasm build named by --wasm.
func openEngine(ctx context.Context, log *zap.Logger) (geosbridge.Engine, func(), error) {
	if opt.wasm == "" {
		e, err := refengine.New(ctx, log.Named("refengine"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "start reference engine")
		}
		return e, func() { _ = e.Close(ctx) }, nil
	}

	bin, err := os.ReadFile(opt.wasm)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read engine module")
	}
	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	mod, err := rt.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName("geos"))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, errors.Wrapf(err, "instantiate %s", opt.wasm)
	}
	e, err := wasmgeos.New(ctx, mod, log.Named("wasmgeos"))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return e, func() { _ = rt.Close(ctx) }, nil
}

func citiesFGB() ([]byte, error) {
	features := make([]*fgb.Feature, 0, len(cities))
	for _, c := range cities {
		features = append(features, &fgb.Feature{
			Geometry: geosbridge.Point{Coordinates: geosbridge.Coord{c.Longitude, c.Latitude}},
			Properties: map[string]interface{}{
				"name":       c.Name,
				"country":    c.Country,
				"population": c.Population,
				"capital":    c.Capital,
			},
		})
	}
	var buf bytes.Buffer
	err := fgb.WriteFeatures(&buf, features, &fgb.Options{
		Name:         "world_cities",
		Description:  "Major world cities",
		IncludeIndex: true,
		CRS:          fgb.WGS84(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build sample data")
	}
	return buf.Bytes(), nil
}

type server struct {
	bridge   *geosbridge.Bridge
	log      *zap.Logger
	layout   geosbridge.Layout
	extended bool
}

const maxBody = 64 << 20

// roundTrip reads a FlatGeobuf body, passes its geometries into the engine
// and back, and writes them as JSON. format=geojson writes 2D GeoJSON.
func (s *server) roundTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST a FlatGeobuf file", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	layout := s.layout
	if v := q.Get("layout"); v != "" {
		l, err := geosbridge.ParseLayout(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		layout = l
	}
	extended := s.extended || q.Get("extended") == "true"

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reader, err := fgb.NewReaderFromData(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = reader.Close() }()
	geoms, err := reader.ReadGeometries()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.passThrough(r.Context(), geoms, layout, extended)
	if err != nil {
		s.log.Warn("round trip failed", zap.Error(err), zap.Int("geometries", len(geoms)))
		status := http.StatusInternalServerError
		var invalid *geosbridge.InvalidGeometryError
		if errors.As(err, &invalid) || errors.Is(err, geosbridge.ErrUnsupportedType) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	var body interface{}
	if q.Get("format") == "geojson" {
		body, err = toGeoJSON(out)
	} else {
		body, err = toJSON(out)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func (s *server) passThrough(ctx context.Context, geoms []geosbridge.Geometry, l geosbridge.Layout, extended bool) ([]geosbridge.Geometry, error) {
	handles, err := s.bridge.EncodeBatch(ctx, geoms, l)
	if err != nil {
		return nil, err
	}
	out, err := s.bridge.DecodeBatch(ctx, handles, l, extended)
	return out, errors.CombineErrors(err, s.bridge.FreeGeometries(ctx, handles))
}

func toGeoJSON(gs []geosbridge.Geometry) (interface{}, error) {
	fc := geojson.NewFeatureCollection()
	for _, g := range gs {
		og, err := geosbridge.ToOrb(g)
		if err != nil {
			return nil, err
		}
		fc.Append(geojson.NewFeature(og))
	}
	return fc, nil
}

// toJSON renders nodes as {"type", "coordinates"|"geometries"}. NaN
// ordinates become null.
func toJSON(gs []geosbridge.Geometry) (interface{}, error) {
	out := make([]interface{}, 0, len(gs))
	for _, g := range gs {
		v, err := nodeJSON(g)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return map[string]interface{}{"geometries": out}, nil
}

func nodeJSON(g geosbridge.Geometry) (map[string]interface{}, error) {
	m := map[string]interface{}{"type": g.Kind().String()}
	switch v := g.(type) {
	case geosbridge.Point:
		m["coordinates"] = coordJSON(v.Coordinates)
	case geosbridge.MultiPoint:
		m["coordinates"] = coordsJSON(v.Coordinates)
	case geosbridge.LineString:
		m["coordinates"] = coordsJSON(v.Coordinates)
	case geosbridge.CircularString:
		m["coordinates"] = coordsJSON(v.Coordinates)
	case geosbridge.Polygon:
		m["coordinates"] = runsJSON(v.Coordinates)
	case geosbridge.MultiLineString:
		m["coordinates"] = runsJSON(v.Coordinates)
	case geosbridge.MultiPolygon:
		polys := make([]interface{}, len(v.Coordinates))
		for i, p := range v.Coordinates {
			polys[i] = runsJSON(p)
		}
		m["coordinates"] = polys
	case geosbridge.GeometryCollection:
		return childrenJSON(m, v.Geometries)
	case geosbridge.CompoundCurve:
		return childrenJSON(m, v.Segments)
	case geosbridge.CurvePolygon:
		return childrenJSON(m, v.Rings)
	case geosbridge.MultiCurve:
		return childrenJSON(m, v.Curves)
	case geosbridge.MultiSurface:
		return childrenJSON(m, v.Surfaces)
	default:
		return nil, errors.Wrapf(geosbridge.ErrUnsupportedType, "%T", g)
	}
	return m, nil
}

func childrenJSON(m map[string]interface{}, gs []geosbridge.Geometry) (map[string]interface{}, error) {
	children := make([]interface{}, len(gs))
	for i, g := range gs {
		c, err := nodeJSON(g)
		if err != nil {
			return nil, err
		}
		children[i] = c
	}
	m["geometries"] = children
	return m, nil
}

func coordJSON(c geosbridge.Coord) []interface{} {
	out := make([]interface{}, len(c))
	for i, v := range c {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out
}

func coordsJSON(cs []geosbridge.Coord) []interface{} {
	out := make([]interface{}, len(cs))
	for i, c := range cs {
		out[i] = coordJSON(c)
	}
	return out
}

func runsJSON(css [][]geosbridge.Coord) []interface{} {
	out := make([]interface{}, len(css))
	for i, cs := range css {
		out[i] = coordsJSON(cs)
	}
	return out
}
