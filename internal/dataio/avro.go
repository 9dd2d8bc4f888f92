package dataio

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func init() {
	Register("avro", func(logger *slog.Logger) Format { return newFileFormat("avro", avroCodec{}, logger) })
}

var avroName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// avroCodec handles avro object container files with flat record schemas.
// Columns are written as ["null", T] unions.
type avroCodec struct{}

func (avroCodec) Extension() string { return "avro" }

type avroField struct {
	Name string `json:"name"`
	Type any    `json:"type"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

func (avroCodec) ReadFile(_ context.Context, path string, _ Options) (*dataset.Dataset, error) {
	fh, err := os.Open(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	ocf, err := goavro.NewOCFReader(bufio.NewReader(fh))
	if err != nil {
		return nil, err
	}
	var schema avroRecord
	if err := json.Unmarshal([]byte(ocf.Codec().Schema()), &schema); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if schema.Type != "record" {
		return nil, fmt.Errorf("top level schema is %q, expected record", schema.Type)
	}

	values := make([][]any, len(schema.Fields))
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, err
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected datum %T", datum)
		}
		for j, f := range schema.Fields {
			values[j] = append(values[j], avroNative(rec[f.Name]))
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, err
	}

	cols := make([]*dataset.Column, len(schema.Fields))
	for j, f := range schema.Fields {
		t := avroType(f.Type)
		if values[j] == nil {
			values[j] = []any{}
		}
		for i, v := range values[j] {
			values[j][i] = dataset.Cast(v, t)
		}
		cols[j] = dataset.NewColumn(f.Name, t, values[j])
	}
	return dataset.New(cols...)
}

// avroType maps a field schema to a column type. Unions take their first
// non-null branch.
func avroType(schema any) dataset.DType {
	switch s := schema.(type) {
	case string:
		switch s {
		case "int", "long":
			return dataset.Integer
		case "float", "double":
			return dataset.Double
		case "boolean":
			return dataset.Boolean
		default:
			return dataset.String
		}
	case []any:
		for _, branch := range s {
			if name, ok := branch.(string); ok && name == "null" {
				continue
			}
			return avroType(branch)
		}
	case map[string]any:
		switch s["logicalType"] {
		case "timestamp-millis", "timestamp-micros", "date":
			return dataset.Timestamp
		}
		return avroType(s["type"])
	}
	return dataset.String
}

// avroNative unwraps union values and widens avro scalars.
func avroNative(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		for _, inner := range m {
			v = inner
		}
	}
	switch x := v.(type) {
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

func avroSchema(ds *dataset.Dataset) (string, error) {
	rec := avroRecord{Type: "record", Name: "row", Fields: make([]avroField, 0, ds.NumCols())}
	for _, c := range ds.Columns() {
		if !avroName.MatchString(c.Name) {
			return "", fmt.Errorf("column name %q is not a valid avro field name", c.Name)
		}
		var t any
		switch c.Type {
		case dataset.Integer:
			t = "long"
		case dataset.Double:
			t = "double"
		case dataset.Boolean:
			t = "boolean"
		case dataset.Timestamp:
			t = map[string]string{"type": "long", "logicalType": "timestamp-millis"}
		default:
			t = "string"
		}
		rec.Fields = append(rec.Fields, avroField{Name: c.Name, Type: []any{"null", t}})
	}
	b, err := json.Marshal(rec)
	return string(b), err
}

func avroBranch(t dataset.DType) string {
	switch t {
	case dataset.Integer:
		return "long"
	case dataset.Double:
		return "double"
	case dataset.Boolean:
		return "boolean"
	case dataset.Timestamp:
		return "long.timestamp-millis"
	default:
		return "string"
	}
}

func (avroCodec) WriteFile(_ context.Context, ds *dataset.Dataset, path string, _ Options) error {
	schema, err := avroSchema(ds)
	if err != nil {
		return err
	}
	fh, err := os.Create(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return err
	}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               fh,
		Schema:          schema,
		CompressionName: goavro.CompressionSnappyLabel,
	})
	if err != nil {
		_ = fh.Close()
		return err
	}

	const batch = 512
	rows := make([]any, 0, batch)
	for i := 0; i < ds.NumRows(); i++ {
		rec := make(map[string]any, ds.NumCols())
		for _, c := range ds.Columns() {
			v := c.Values[i]
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				v = nil
			}
			if v == nil {
				rec[c.Name] = nil
				continue
			}
			if c.Type == dataset.String {
				v = dataset.FormatValue(v)
			}
			rec[c.Name] = goavro.Union(avroBranch(c.Type), v)
		}
		rows = append(rows, rec)
		if len(rows) == batch {
			if err := w.Append(rows); err != nil {
				_ = fh.Close()
				return err
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if err := w.Append(rows); err != nil {
			_ = fh.Close()
			return err
		}
	}
	return fh.Close()
}
