package dataio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func init() {
	Register("json", func(logger *slog.Logger) Format { return newFileFormat("json", jsonCodec{}, logger) })
}

// jsonCodec handles newline delimited JSON records. Columns are the union of
// the record keys in alphabetical order; absent keys are null. With
// inferSchema, string fields holding only timestamps are read as timestamps.
type jsonCodec struct{}

func (jsonCodec) Extension() string { return "json" }

func (jsonCodec) ReadFile(_ context.Context, path string, opts Options) (*dataset.Dataset, error) {
	fh, err := os.Open(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	dec := json.NewDecoder(bufio.NewReader(fh))
	dec.UseNumber()

	var records []map[string]any
	keys := make(map[string]bool)
	for {
		var rec map[string]any
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		for k := range rec {
			keys[k] = true
		}
		records = append(records, rec)
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]*dataset.Column, len(names))
	for j, name := range names {
		values := make([]any, len(records))
		t := dataset.DType("")
		for i, rec := range records {
			v, vt, err := jsonValue(rec[name])
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i+1, name, err)
			}
			values[i] = v
			if v == nil {
				continue
			}
			if t == "" {
				t = vt
			} else {
				t = dataset.Widen(t, vt)
			}
		}
		if t == "" {
			t = dataset.String
		}
		if t == dataset.String && opts.Bool("inferSchema", false) && isTimestamps(values) {
			t = dataset.Timestamp
		}
		for i := range values {
			values[i] = dataset.Cast(values[i], t)
		}
		cols[j] = dataset.NewColumn(name, t, values)
	}
	return dataset.New(cols...)
}

// isTimestamps reports whether every non-null string parses as a timestamp.
func isTimestamps(values []any) bool {
	seen := false
	for _, v := range values {
		s, ok := v.(string)
		if v == nil {
			continue
		}
		if !ok {
			return false
		}
		if _, ok := dataset.ParseTimestamp(s); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func jsonValue(v any) (any, dataset.DType, error) {
	switch x := v.(type) {
	case nil:
		return nil, "", nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, dataset.Integer, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, "", err
		}
		return f, dataset.Double, nil
	case bool:
		return x, dataset.Boolean, nil
	case string:
		return x, dataset.String, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, "", err
		}
		return string(b), dataset.String, nil
	}
}

func (jsonCodec) WriteFile(_ context.Context, ds *dataset.Dataset, path string, _ Options) error {
	fh, err := os.Create(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	for i := 0; i < ds.NumRows(); i++ {
		rec := make(map[string]any, ds.NumCols())
		for _, c := range ds.Columns() {
			v := c.Values[i]
			if v == nil {
				continue
			}
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(time.RFC3339Nano)
			}
			rec[c.Name] = v
		}
		b, err := json.Marshal(rec)
		if err != nil {
			_ = fh.Close()
			return err
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			_ = fh.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
