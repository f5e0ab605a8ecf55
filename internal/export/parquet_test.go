package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"

	"github.com/wegman-software/osmtab/internal/pbf"
	"github.com/wegman-software/osmtab/internal/table"
	"github.com/wegman-software/osmtab/internal/tags"
)

func pointsFixture() *table.Table {
	tbl := table.New()
	tbl.Append(table.Row{
		"osm_id":      "101",
		"name":        "Carfax Tower",
		"other_tags":  tags.Mapping{"tourism": "attraction"},
		"geom_type":   "Point",
		"coordinates": orb.Point{-1.258, 51.752},
	})
	tbl.Append(table.Row{
		"osm_id":      "102",
		"other_tags":  nil,
		"geom_type":   "Point",
		"coordinates": orb.Point{-1.26, 51.75},
	})
	return tbl
}

func TestWriteParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds := pbf.Dataset{pbf.LayerPoints: pointsFixture()}

	if err := WriteParquet(ds, dir); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	path := filepath.Join(dir, pbf.LayerPoints+".parquet")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("parquet file missing: %v", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer pf.Close()

	ar, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		t.Fatalf("arrow reader: %v", err)
	}
	out, err := ar.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	defer out.Release()

	if out.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", out.NumRows())
	}

	schema := out.Schema()
	colIdx := func(name string) int {
		for i, fld := range schema.Fields() {
			if fld.Name == name {
				return i
			}
		}
		t.Fatalf("column %s missing from schema", name)
		return -1
	}

	nameCol := out.Column(colIdx("name")).Data().Chunk(0).(*array.String)
	if nameCol.Value(0) != "Carfax Tower" {
		t.Errorf("name = %q", nameCol.Value(0))
	}
	if !nameCol.IsNull(1) {
		t.Error("absent name should be null")
	}

	tagsCol := out.Column(colIdx("other_tags")).Data().Chunk(0).(*array.String)
	if tagsCol.Value(0) != `"tourism"=>"attraction"` {
		t.Errorf("other_tags = %q", tagsCol.Value(0))
	}
	if !tagsCol.IsNull(1) {
		t.Error("nil mapping should export as null")
	}

	geomCol := out.Column(colIdx("geom_ewkb")).Data().Chunk(0).(*array.Binary)
	geom, srid, err := ewkb.Unmarshal(geomCol.Value(0))
	if err != nil {
		t.Fatalf("decode ewkb: %v", err)
	}
	if srid != geomSRID {
		t.Errorf("srid = %d, want %d", srid, geomSRID)
	}
	pt, ok := geom.(orb.Point)
	if !ok || pt != (orb.Point{-1.258, 51.752}) {
		t.Errorf("geometry = %v", geom)
	}
}

func TestWriteParquetSkipsEmptyLayers(t *testing.T) {
	dir := t.TempDir()
	ds := pbf.Dataset{
		pbf.LayerPoints: pointsFixture(),
		pbf.LayerLines:  table.New(),
	}
	if err := WriteParquet(ds, dir); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pbf.LayerLines+".parquet")); !os.IsNotExist(err) {
		t.Error("empty layer should not produce a file")
	}
}

func TestCellString(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "", false},
		{"hello", "hello", true},
		{tags.Mapping{"a": "1"}, `"a"=>"1"`, true},
		{42, "42", true},
	}
	for _, tc := range cases {
		got, ok := cellString(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("cellString(%v) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL("public.osm_points", []string{"name", "osm_id"})
	want := `CREATE UNLOGGED TABLE IF NOT EXISTS public.osm_points ("name" TEXT, "osm_id" TEXT, geom GEOMETRY(Geometry, 4326))`
	if sql != want {
		t.Errorf("sql = %s, want %s", sql, want)
	}
}
