package dataio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// fileCodec encodes a dataset to a single local file and back.
type fileCodec interface {
	Extension() string
	ReadFile(ctx context.Context, path string, opts Options) (*dataset.Dataset, error)
	WriteFile(ctx context.Context, ds *dataset.Dataset, path string, opts Options) error
}

// fileFormat adapts a fileCodec to directories of part files.
type fileFormat struct {
	name   string
	codec  fileCodec
	logger *slog.Logger
}

func newFileFormat(name string, codec fileCodec, logger *slog.Logger) *fileFormat {
	return &fileFormat{name: name, codec: codec, logger: logger}
}

func (f *fileFormat) Name() string {
	return f.name
}

// Read loads a single file, or every part file of a directory in name order.
func (f *fileFormat) Read(ctx context.Context, location string, opts Options) (*dataset.Dataset, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return f.codec.ReadFile(ctx, location, opts)
	}

	parts, err := f.partFiles(location)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no %s files in %s", f.codec.Extension(), location)
	}

	out := dataset.Empty()
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := f.codec.ReadFile(ctx, p, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if out, err = dataset.Concat(out, ds); err != nil {
			return nil, err
		}
	}
	f.logger.Debug("read part files", "format", f.name, "location", location, "parts", len(parts), "rows", out.NumRows())
	return out, nil
}

// Write stores ds as a new part file under the location directory.
func (f *fileFormat) Write(ctx context.Context, ds *dataset.Dataset, location string, opts Options) error {
	mode, err := opts.Mode()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(location)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return statErr
	}

	switch mode {
	case ErrorMode:
		if exists {
			return fmt.Errorf("%s: %w", location, ErrExists)
		}
	case Ignore:
		if exists {
			f.logger.Info("output exists, skipping write", "location", location)
			return nil
		}
	case Overwrite:
		if exists {
			if err := os.RemoveAll(location); err != nil {
				return fmt.Errorf("clear %s: %w", location, err)
			}
		}
	}

	if err := os.MkdirAll(location, 0o755); err != nil {
		return err
	}
	parts, err := f.partFiles(location)
	if err != nil {
		return err
	}
	path := filepath.Join(location, fmt.Sprintf("part-%05d.%s", len(parts), f.codec.Extension()))
	if err := f.codec.WriteFile(ctx, ds, path, opts); err != nil {
		_ = os.Remove(path)
		return err
	}
	f.logger.Debug("wrote part file", "format", f.name, "path", path, "rows", ds.NumRows())
	return nil
}

func (f *fileFormat) partFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ext := "." + f.codec.Extension()
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ext) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}
