// Package dataio reads and writes datasets in the file types a pipeline can
// name: csv, parquet, avro and json files, and duckdb or postgres tables.
//
// File based formats accept either a single file or a directory of part
// files (part-00000.<ext>, part-00001.<ext>, ...), which is also what they
// write. Write modes follow the usual dataframe writer semantics:
// overwrite, append, error and ignore.
package dataio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Format reads and writes datasets at a location.
type Format interface {
	Name() string
	Read(ctx context.Context, location string, opts Options) (*dataset.Dataset, error)
	Write(ctx context.Context, ds *dataset.Dataset, location string, opts Options) error
}

// Options are the file_configs of a read or write.
type Options map[string]any

// String returns the option as a string, or def when unset.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	return dataset.FormatValue(v)
}

// Bool returns the option as a bool, accepting "true"/"false" strings.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns the option as an int.
func (o Options) Int(key string, def int) int {
	f, ok := dataset.ToFloat(o[key])
	if !ok {
		return def
	}
	return int(f)
}

// WriteMode controls what happens when the output location already exists.
type WriteMode string

// Write modes.
const (
	Overwrite WriteMode = "overwrite"
	Append    WriteMode = "append"
	ErrorMode WriteMode = "error"
	Ignore    WriteMode = "ignore"
)

// ErrExists is returned by writes in error mode when the location exists.
var ErrExists = errors.New("output location already exists")

// ParseWriteMode parses a mode name. An empty name means error, the
// dataframe writer default.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return Overwrite, nil
	case "append":
		return Append, nil
	case "", "error", "errorifexists":
		return ErrorMode, nil
	case "ignore":
		return Ignore, nil
	default:
		return "", fmt.Errorf("invalid write mode %q (want overwrite, append, error or ignore)", s)
	}
}

// Mode returns the write mode option.
func (o Options) Mode() (WriteMode, error) {
	return ParseWriteMode(o.String("mode", ""))
}

// Read loads a dataset with the format registered under fileType.
func Read(ctx context.Context, fileType, location string, opts Options) (*dataset.Dataset, error) {
	f, err := NewFormat(fileType, nil)
	if err != nil {
		return nil, err
	}
	ds, err := f.Read(ctx, location, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", fileType, location, err)
	}
	return ds, nil
}

// Write stores a dataset with the format registered under fileType.
func Write(ctx context.Context, ds *dataset.Dataset, fileType, location string, opts Options) error {
	f, err := NewFormat(fileType, nil)
	if err != nil {
		return err
	}
	if err := f.Write(ctx, ds, location, opts); err != nil {
		return fmt.Errorf("write %s %s: %w", fileType, location, err)
	}
	return nil
}
