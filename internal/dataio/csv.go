package dataio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func init() {
	Register("csv", func(logger *slog.Logger) Format { return newFileFormat("csv", csvCodec{}, logger) })
}

// csvCodec handles delimited text. Options: header (default true),
// delimiter (default ","), inferSchema (default false, all columns strings).
type csvCodec struct{}

func (csvCodec) Extension() string { return "csv" }

func delimiter(opts Options) (rune, error) {
	d := opts.String("delimiter", opts.String("sep", ","))
	if d == `\t` {
		d = "\t"
	}
	r, size := utf8.DecodeRuneInString(d)
	if r == utf8.RuneError || size != len(d) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	return r, nil
}

func (csvCodec) ReadFile(_ context.Context, path string, opts Options) (*dataset.Dataset, error) {
	sep, err := delimiter(opts)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	r := csv.NewReader(fh)
	r.Comma = sep
	r.FieldsPerRecord = -1

	var header []string
	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header == nil {
			if opts.Bool("header", true) {
				header = rec
				continue
			}
			header = make([]string, len(rec))
			for i := range rec {
				header[i] = fmt.Sprintf("_c%d", i)
			}
		}
		if len(rec) != len(header) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, expected %d", line, len(rec), len(header))
		}
		records = append(records, rec)
	}

	infer := opts.Bool("inferSchema", false)
	cols := make([]*dataset.Column, len(header))
	for j, name := range header {
		raw := make([]string, len(records))
		for i, rec := range records {
			raw[i] = rec[j]
		}
		cols[j] = dataset.ParseStrings(name, raw, infer)
	}
	return dataset.New(cols...)
}

func (csvCodec) WriteFile(_ context.Context, ds *dataset.Dataset, path string, opts Options) error {
	sep, err := delimiter(opts)
	if err != nil {
		return err
	}
	fh, err := os.Create(path) //nolint:gosec // path comes from the pipeline configuration
	if err != nil {
		return err
	}

	w := csv.NewWriter(fh)
	w.Comma = sep
	if opts.Bool("header", true) {
		if err := w.Write(ds.ColumnNames()); err != nil {
			_ = fh.Close()
			return err
		}
	}
	rec := make([]string, ds.NumCols())
	for i := 0; i < ds.NumRows(); i++ {
		for j, c := range ds.Columns() {
			rec[j] = dataset.FormatValue(c.Values[i])
		}
		if err := w.Write(rec); err != nil {
			_ = fh.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
