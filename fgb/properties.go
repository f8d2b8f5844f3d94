package fgb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
)

// schema is the column layout of a file being written. Columns are sorted by
// name so the same features always produce the same bytes.
type schema struct {
	names []string
	types []flattypes.ColumnType
	index map[string]int
}

// inferSchema collects every property name across features and widens each
// column to a type that holds all of its non-nil values. Columns that only
// ever hold nil are String.
func inferSchema(features []*Feature) *schema {
	seen := make(map[string]flattypes.ColumnType)
	nulls := make(map[string]struct{})
	for _, f := range features {
		if f == nil {
			continue
		}
		for name, v := range f.Properties {
			if v == nil {
				nulls[name] = struct{}{}
				continue
			}
			t := columnType(v)
			if prev, ok := seen[name]; ok {
				t = widen(prev, t)
			}
			seen[name] = t
		}
	}
	for name := range nulls {
		if _, ok := seen[name]; !ok {
			seen[name] = flattypes.ColumnTypeString
		}
	}
	if len(seen) == 0 {
		return nil
	}

	s := &schema{index: make(map[string]int, len(seen))}
	for name := range seen {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	for i, name := range s.names {
		s.types = append(s.types, seen[name])
		s.index[name] = i
	}
	return s
}

func (s *schema) columns(builder *flatbuffers.Builder) []*writer.Column {
	cols := make([]*writer.Column, len(s.names))
	for i, name := range s.names {
		col := writer.NewColumn(builder)
		col.SetName(name)
		col.SetTitle(name)
		col.SetType(s.types[i])
		col.SetNullable(true)
		cols[i] = col
	}
	return cols
}

// encode writes props as [uint16 column][value] pairs in column order. Nil
// values and unknown names are left out.
func (s *schema) encode(props map[string]interface{}) ([]byte, error) {
	if s == nil || len(props) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	for i, name := range s.names {
		v, ok := props[name]
		if !ok || v == nil {
			continue
		}
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(i))
		buf.Write(idx[:])
		if err := writeValue(&buf, v, s.types[i]); err != nil {
			return nil, errors.Wrapf(err, "property %q", name)
		}
	}
	return buf.Bytes(), nil
}

func columnType(v interface{}) flattypes.ColumnType {
	switch v := v.(type) {
	case bool:
		return flattypes.ColumnTypeBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return flattypes.ColumnTypeInt
		}
		return flattypes.ColumnTypeLong
	case int8, int16, int32:
		return flattypes.ColumnTypeInt
	case int64:
		return flattypes.ColumnTypeLong
	case uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeUInt
	case uint64:
		return flattypes.ColumnTypeULong
	case float32:
		return flattypes.ColumnTypeFloat
	case float64:
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	case []byte:
		return flattypes.ColumnTypeBinary
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	}
	return flattypes.ColumnTypeJson
}

var numericRank = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  2,
	flattypes.ColumnTypeShort:  3,
	flattypes.ColumnTypeUShort: 4,
	flattypes.ColumnTypeInt:    5,
	flattypes.ColumnTypeUInt:   6,
	flattypes.ColumnTypeLong:   7,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  9,
	flattypes.ColumnTypeDouble: 10,
}

// widen returns a column type that can hold values of both a and b. Bool
// only widens to Json; against any other type the first column type wins and
// the later values fail to encode with ErrPropertyMismatch.
func widen(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}
	if a == flattypes.ColumnTypeBool || b == flattypes.ColumnTypeBool {
		if a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson {
			return flattypes.ColumnTypeJson
		}
		return a
	}
	ra, okA := numericRank[a]
	rb, okB := numericRank[b]
	switch {
	case okA && okB && ra > rb:
		return a
	case okA && okB:
		return b
	case a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString:
		if a != flattypes.ColumnTypeJson && b != flattypes.ColumnTypeJson {
			return flattypes.ColumnTypeString
		}
	}
	return flattypes.ColumnTypeJson
}

// writeValue encodes v as a value of column type t.
func writeValue(buf *bytes.Buffer, v interface{}, t flattypes.ColumnType) error {
	var scratch [8]byte
	mismatch := func() error {
		return errors.Wrapf(ErrPropertyMismatch, "%T in %s column", v, flattypes.EnumNamesColumnType[t])
	}

	switch t {
	case flattypes.ColumnTypeBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch()
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		i, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		buf.WriteByte(byte(i))

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		i, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint16(scratch[:2], uint16(i))
		buf.Write(scratch[:2])

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		i, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(i))
		buf.Write(scratch[:4])

	case flattypes.ColumnTypeLong:
		i, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint64(scratch[:], uint64(i))
		buf.Write(scratch[:])

	case flattypes.ColumnTypeULong:
		u, ok := toUint64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint64(scratch[:], u)
		buf.Write(scratch[:])

	case flattypes.ColumnTypeFloat:
		f, ok := toFloat64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(float32(f)))
		buf.Write(scratch[:4])

	case flattypes.ColumnTypeDouble:
		f, ok := toFloat64(v)
		if !ok {
			return mismatch()
		}
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(f))
		buf.Write(scratch[:])

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		if _, ok := v.(bool); ok {
			return mismatch()
		}
		s, err := toString(v)
		if err != nil {
			return err
		}
		writeSized(buf, []byte(s))

	case flattypes.ColumnTypeJson:
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshal json property")
		}
		writeSized(buf, b)

	case flattypes.ColumnTypeBinary:
		b, ok := v.([]byte)
		if !ok {
			return mismatch()
		}
		writeSized(buf, b)

	default:
		return mismatch()
	}
	return nil
}

// writeSized writes a uint32 length prefix and the bytes, the FlatGeobuf
// encoding of string, json and binary values.
func writeSized(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

// decodeProperties reads the property bytes of a feature using the columns
// of the file header. It stops at the first malformed value.
func decodeProperties(data []byte, header *flattypes.Header) map[string]interface{} {
	if len(data) == 0 || header == nil {
		return nil
	}
	props := make(map[string]interface{})
	for off := 0; off+2 <= len(data); {
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2

		var col flattypes.Column
		if idx >= header.ColumnsLength() || !header.Columns(&col, idx) {
			break
		}
		v, n := readValue(data[off:], col.Type())
		if n == 0 {
			break
		}
		off += n
		props[string(col.Name())] = v
	}
	return props
}

// readValue decodes one value of type t, returning it and the number of
// bytes consumed. Zero bytes means data is too short.
func readValue(data []byte, t flattypes.ColumnType) (interface{}, int) {
	fixed := func(n int) bool { return len(data) >= n }

	switch t {
	case flattypes.ColumnTypeBool:
		if fixed(1) {
			return data[0] != 0, 1
		}
	case flattypes.ColumnTypeByte:
		if fixed(1) {
			return int8(data[0]), 1
		}
	case flattypes.ColumnTypeUByte:
		if fixed(1) {
			return data[0], 1
		}
	case flattypes.ColumnTypeShort:
		if fixed(2) {
			return int16(binary.LittleEndian.Uint16(data)), 2
		}
	case flattypes.ColumnTypeUShort:
		if fixed(2) {
			return binary.LittleEndian.Uint16(data), 2
		}
	case flattypes.ColumnTypeInt:
		if fixed(4) {
			return int32(binary.LittleEndian.Uint32(data)), 4
		}
	case flattypes.ColumnTypeUInt:
		if fixed(4) {
			return binary.LittleEndian.Uint32(data), 4
		}
	case flattypes.ColumnTypeLong:
		if fixed(8) {
			return int64(binary.LittleEndian.Uint64(data)), 8
		}
	case flattypes.ColumnTypeULong:
		if fixed(8) {
			return binary.LittleEndian.Uint64(data), 8
		}
	case flattypes.ColumnTypeFloat:
		if fixed(4) {
			return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4
		}
	case flattypes.ColumnTypeDouble:
		if fixed(8) {
			return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
		}
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		if !fixed(4) {
			return nil, 0
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data)-4 < n {
			return nil, 0
		}
		b := data[4 : 4+n]
		switch t {
		case flattypes.ColumnTypeBinary:
			return append([]byte(nil), b...), 4 + n
		case flattypes.ColumnTypeJson:
			var v interface{}
			if err := json.Unmarshal(b, &v); err == nil {
				return v, 4 + n
			}
		}
		return string(b), 4 + n
	}
	return nil, 0
}

func toInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

func toUint64(v interface{}) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case json.Number:
		i, err := v.Int64()
		return uint64(i), err == nil && i >= 0
	}
	i, ok := toInt64(v)
	return uint64(i), ok && i >= 0
}

func toFloat64(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	i, ok := toInt64(v)
	return float64(i), ok
}

// toString renders strings as-is and anything else as JSON, so a column
// widened to String still round-trips its numbers.
func toString(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "marshal string property")
	}
	return string(b), nil
}
