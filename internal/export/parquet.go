// Package export writes parsed datasets out of process: per-layer Parquet
// files and PostGIS tables.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"

	"github.com/wegman-software/osmtab/internal/pbf"
	"github.com/wegman-software/osmtab/internal/table"
	"github.com/wegman-software/osmtab/internal/tags"
)

const defaultBatchSize = 4096

// geomSRID is the SRID stamped into exported EWKB. All Geofabrik extracts
// are WGS84.
const geomSRID = 4326

// WriteParquet writes every layer of the dataset to <dir>/<layer>.parquet.
// Attribute columns become nullable strings; the geometry column is
// serialized as EWKB under geom_ewkb.
func WriteParquet(ds pbf.Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for layer, tbl := range ds {
		if tbl.Len() == 0 {
			continue
		}
		path := filepath.Join(dir, layer+".parquet")
		if err := writeLayerParquet(tbl, path); err != nil {
			return fmt.Errorf("layer %s: %w", layer, err)
		}
	}
	return nil
}

func writeLayerParquet(tbl *table.Table, path string) error {
	cols := tbl.Columns()
	schema := layerSchema(cols)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	w, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return err
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	flush := func() error {
		rec := builder.NewRecord()
		defer rec.Release()
		return w.Write(rec)
	}

	pending := 0
	for _, row := range tbl.Rows() {
		if err := appendRow(builder, cols, row); err != nil {
			w.Close()
			return err
		}
		pending++
		if pending >= defaultBatchSize {
			if err := flush(); err != nil {
				w.Close()
				return err
			}
			pending = 0
		}
	}
	if pending > 0 {
		if err := flush(); err != nil {
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

// layerSchema maps table columns onto an arrow schema in column order. The
// coordinates column becomes a binary geom_ewkb field.
func layerSchema(cols []string) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		if col == "coordinates" {
			fields[i] = arrow.Field{Name: "geom_ewkb", Type: arrow.BinaryTypes.Binary, Nullable: false}
			continue
		}
		fields[i] = arrow.Field{Name: col, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func appendRow(builder *array.RecordBuilder, cols []string, row table.Row) error {
	for i, col := range cols {
		if col == "coordinates" {
			geom, ok := row[col].(orb.Geometry)
			if !ok {
				return fmt.Errorf("row has no geometry")
			}
			data, err := ewkb.Marshal(geom, geomSRID)
			if err != nil {
				return fmt.Errorf("failed to encode geometry: %w", err)
			}
			builder.Field(i).(*array.BinaryBuilder).Append(data)
			continue
		}

		sb := builder.Field(i).(*array.StringBuilder)
		if s, ok := cellString(row[col]); ok {
			sb.Append(s)
		} else {
			sb.AppendNull()
		}
	}
	return nil
}

// cellString renders an attribute cell for export. Absent and nil cells
// are null; decoded tag mappings are re-serialized into the blob form.
func cellString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case tags.Mapping:
		return tags.Encode(val), true
	default:
		return fmt.Sprint(val), true
	}
}
