package dataio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func init() {
	Register("parquet", func(logger *slog.Logger) Format { return newFileFormat("parquet", parquetCodec{}, logger) })
}

// parquetParallelism is the number of goroutines parquet-go uses per file.
const parquetParallelism = 4

// parquetCodec handles flat parquet files. Every column is written OPTIONAL
// with snappy compression.
type parquetCodec struct{}

func (parquetCodec) Extension() string { return "parquet" }

func (parquetCodec) ReadFile(_ context.Context, path string, _ Options) (*dataset.Dataset, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fr.Close() }()

	pr, err := reader.NewParquetColumnReader(fr, parquetParallelism)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := pr.GetNumRows()
	sh := pr.SchemaHandler
	cols := make([]*dataset.Column, 0, len(sh.ValueColumns))
	for i, inPath := range sh.ValueColumns {
		exPath := common.StrToPath(sh.InPathToExPath[inPath])
		if len(exPath) != 2 {
			return nil, fmt.Errorf("nested column %s is not supported", strings.Join(exPath, "."))
		}
		name := exPath[1]
		elem := sh.SchemaElements[sh.MapIndex[inPath]]

		var values []any
		if rows > 0 {
			values, _, _, err = pr.ReadColumnByIndex(int64(i), rows)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
		}
		if int64(len(values)) != rows {
			return nil, fmt.Errorf("column %s: read %d values, expected %d", name, len(values), rows)
		}

		t, conv := parquetType(elem)
		out := make([]any, len(values))
		for j, v := range values {
			out[j] = conv(v)
		}
		cols = append(cols, dataset.NewColumn(name, t, out))
	}
	return dataset.New(cols...)
}

// parquetType maps a schema element to a column type and a value converter.
func parquetType(elem *parquet.SchemaElement) (dataset.DType, func(any) any) {
	converted := elem.IsSetConvertedType()
	switch elem.GetType() {
	case parquet.Type_BOOLEAN:
		return dataset.Boolean, identity
	case parquet.Type_INT32:
		if converted && elem.GetConvertedType() == parquet.ConvertedType_DATE {
			return dataset.Timestamp, func(v any) any {
				d, ok := v.(int32)
				if !ok {
					return nil
				}
				return time.Unix(int64(d)*86400, 0).UTC()
			}
		}
		return dataset.Integer, func(v any) any {
			if d, ok := v.(int32); ok {
				return int64(d)
			}
			return nil
		}
	case parquet.Type_INT64:
		if converted {
			switch elem.GetConvertedType() {
			case parquet.ConvertedType_TIMESTAMP_MILLIS:
				return dataset.Timestamp, func(v any) any {
					if ms, ok := v.(int64); ok {
						return time.UnixMilli(ms).UTC()
					}
					return nil
				}
			case parquet.ConvertedType_TIMESTAMP_MICROS:
				return dataset.Timestamp, func(v any) any {
					if us, ok := v.(int64); ok {
						return time.UnixMicro(us).UTC()
					}
					return nil
				}
			}
		}
		return dataset.Integer, identity
	case parquet.Type_FLOAT:
		return dataset.Double, func(v any) any {
			if f, ok := v.(float32); ok {
				return float64(f)
			}
			return nil
		}
	case parquet.Type_DOUBLE:
		return dataset.Double, identity
	default:
		return dataset.String, func(v any) any {
			if v == nil {
				return nil
			}
			return dataset.FormatValue(v)
		}
	}
}

func identity(v any) any { return v }

// parquetSchema renders the JSON schema parquet-go's JSON writer expects.
func parquetSchema(ds *dataset.Dataset) (string, error) {
	fields := make([]string, 0, ds.NumCols())
	for _, c := range ds.Columns() {
		if strings.ContainsAny(c.Name, ",=") {
			return "", fmt.Errorf("column name %q cannot be written to parquet", c.Name)
		}
		var typ string
		switch c.Type {
		case dataset.Integer:
			typ = "type=INT64"
		case dataset.Double:
			typ = "type=DOUBLE"
		case dataset.Boolean:
			typ = "type=BOOLEAN"
		case dataset.Timestamp:
			typ = "type=INT64, convertedtype=TIMESTAMP_MILLIS"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		tag, err := json.Marshal(map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ),
		})
		if err != nil {
			return "", err
		}
		fields = append(fields, string(tag))
	}
	return `{"Tag":"name=leapdq_schema","Fields":[` + strings.Join(fields, ",") + `]}`, nil
}

func (parquetCodec) WriteFile(_ context.Context, ds *dataset.Dataset, path string, _ Options) error {
	if ds.NumCols() == 0 {
		return fmt.Errorf("cannot write a dataset without columns to parquet")
	}
	schema, err := parquetSchema(ds)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewJSONWriter(schema, fw, parquetParallelism)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := 0; i < ds.NumRows(); i++ {
		rec := make(map[string]any, ds.NumCols())
		for _, c := range ds.Columns() {
			switch v := c.Values[i].(type) {
			case nil:
			case time.Time:
				rec[c.Name] = v.UnixMilli()
			case float64:
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					rec[c.Name] = v
				}
			default:
				rec[c.Name] = v
			}
		}
		b, err := json.Marshal(rec)
		if err != nil {
			_ = fw.Close()
			return err
		}
		if err := pw.Write(string(b)); err != nil {
			_ = fw.Close()
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}
