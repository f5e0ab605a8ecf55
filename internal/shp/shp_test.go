package shp

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	goshp "github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/download"
	"github.com/wegman-software/osmtab/internal/geofabrik"
)

// writeFixture creates a small POINT shapefile with name/fclass attributes.
func writeFixture(t *testing.T, path string, rows []struct {
	x, y         float64
	name, fclass string
}) {
	t.Helper()
	w, err := goshp.Create(path, goshp.POINT)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	w.SetFields([]goshp.Field{
		goshp.StringField("name", 30),
		goshp.StringField("fclass", 20),
	})
	for _, r := range rows {
		n := w.Write(&goshp.Point{X: r.x, Y: r.y})
		if err := w.WriteAttribute(int(n), 0, r.name); err != nil {
			t.Fatalf("write attribute: %v", err)
		}
		if err := w.WriteAttribute(int(n), 1, r.fclass); err != nil {
			t.Fatalf("write attribute: %v", err)
		}
	}
	w.Close()
	if err := fixAttributeSidecar(path); err != nil {
		t.Fatalf("fix fixture attribute file: %v", err)
	}
}

func fixtureRows() []struct {
	x, y         float64
	name, fclass string
} {
	return []struct {
		x, y         float64
		name, fclass string
	}{
		{-1.26, 51.75, "Radcliffe Camera", "attraction"},
		{-1.24, 51.74, "Magdalen Bridge", "bridge"},
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gis_osm_pois_free_1.shp")
	writeFixture(t, path, fixtureRows())

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("got %d rows, want 2", tbl.Len())
	}

	row := tbl.Row(0)
	if row["name"] != "Radcliffe Camera" {
		t.Errorf("name = %v", row["name"])
	}
	coords, ok := row["coords"].([][]float64)
	if !ok || len(coords) != 1 {
		t.Fatalf("coords = %v", row["coords"])
	}
	if coords[0][0] != -1.26 || coords[0][1] != 51.75 {
		t.Errorf("coords[0] = %v", coords[0])
	}
	if _, ok := row["shape_type"].(int32); !ok {
		t.Errorf("shape_type = %v (%T)", row["shape_type"], row["shape_type"])
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.shp")
	b := filepath.Join(dir, "b.shp")
	writeFixture(t, a, fixtureRows())
	writeFixture(t, b, fixtureRows()[:1])

	dst := filepath.Join(dir, "merged.shp")
	if err := Merge([]string{a, b}, dst); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	tbl, err := ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile(merged): %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("merged has %d rows, want 3", tbl.Len())
	}
	if tbl.Row(2)["name"] != "Radcliffe Camera" {
		t.Errorf("row 2 name = %v", tbl.Row(2)["name"])
	}
	if tbl.Row(0)["fclass"] != "attraction" {
		t.Errorf("row 0 fclass = %v", tbl.Row(0)["fclass"])
	}
	if _, err := os.Stat(filepath.Join(dir, "merged.dbf")); err != nil {
		t.Errorf("merged attribute file: %v", err)
	}
}

func TestMergeNoInputs(t *testing.T) {
	if err := Merge(nil, "out.shp"); err == nil {
		t.Fatal("expected error for empty input list")
	}
}

func TestFilterFeature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pois.shp")
	writeFixture(t, path, fixtureRows())

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	got := filterFeature(tbl, "bridge")
	if got.Len() != 1 {
		t.Fatalf("filtered to %d rows, want 1", got.Len())
	}
	if got.Row(0)["name"] != "Magdalen Bridge" {
		t.Errorf("name = %v", got.Row(0)["name"])
	}
	if all := filterFeature(tbl, ""); all.Len() != 2 {
		t.Errorf("empty feature filtered to %d rows, want 2", all.Len())
	}
}

func TestLayerMember(t *testing.T) {
	cases := []struct {
		name  string
		layer string
		want  bool
	}{
		{"gis_osm_pois_free_1.shp", "pois", true},
		{"gis_osm_pois_free_1.dbf", "pois", true},
		{"gis_osm_roads_free_1.shp", "pois", false},
		{"gis_osm_pois_a_free_1.shp", "pois", true},
		{"README.txt", "pois", false},
	}
	for _, tc := range cases {
		if got := layerMember(tc.name, tc.layer); got != tc.want {
			t.Errorf("layerMember(%q, %q) = %v, want %v", tc.name, tc.layer, got, tc.want)
		}
	}
}

func TestExtractMembers(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "extract.zip")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"gis_osm_pois_free_1.shp":  "shp bytes",
		"gis_osm_pois_free_1.dbf":  "dbf bytes",
		"gis_osm_roads_free_1.shp": "other layer",
		"README.txt":               "readme",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "out")
	got, err := extractMembers(zipPath, dest, func(name string) bool {
		return layerMember(name, "pois")
	})
	if err != nil {
		t.Fatalf("extractMembers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("extracted %d members, want 2: %v", len(got), got)
	}
	for _, path := range got {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("extracted file missing: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "README.txt")); !os.IsNotExist(err) {
		t.Error("README.txt should not have been extracted")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pois.shp")
	writeFixture(t, path, fixtureRows())

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	snap := filepath.Join(dir, "pois.gob")
	if err := saveSnapshot(snap, tbl); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	got, ok := loadSnapshot(snap)
	if !ok {
		t.Fatal("loadSnapshot reported absent")
	}
	if got.Len() != tbl.Len() {
		t.Errorf("snapshot has %d rows, want %d", got.Len(), tbl.Len())
	}
	if got.Row(1)["fclass"] != "bridge" {
		t.Errorf("fclass = %v", got.Row(1)["fclass"])
	}
}

func TestServiceReadLayerFromExtractedFiles(t *testing.T) {
	dataDir := t.TempDir()
	sub := geofabrik.Subregion{Name: "monaco", Path: "europe/monaco"}
	extractDir := sub.ExtractDir(dataDir)
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFixture(t, filepath.Join(extractDir, "gis_osm_pois_free_1.shp"), fixtureRows())

	// Extracted components are already present, so no download happens.
	svc := NewService(download.NewFetcher(dataDir), dataDir, true, false, zap.NewNop())

	tbl, err := svc.ReadLayer(context.Background(), sub, "pois", "")
	if err != nil {
		t.Fatalf("ReadLayer: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("got %d rows, want 2", tbl.Len())
	}

	// Second read is served from the snapshot written alongside.
	if _, err := os.Stat(filepath.Join(extractDir, "pois.gob")); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	again, err := svc.ReadLayer(context.Background(), sub, "pois", "bridge")
	if err != nil {
		t.Fatalf("ReadLayer (snapshot): %v", err)
	}
	if again.Len() != 1 {
		t.Errorf("filtered snapshot read has %d rows, want 1", again.Len())
	}
}

func TestFindLayerFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "europe", "great-britain", "england", "oxfordshire-latest-free")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"gis_osm_pois_free_1.shp", "gis_osm_roads_free_1.shp"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindLayerFiles(dir, "oxfordshire", "pois")
	if err != nil {
		t.Fatalf("FindLayerFiles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("found %d files, want 1: %v", len(got), got)
	}

	none, err := FindLayerFiles(dir, "cambridgeshire", "pois")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("found %d files for unmatched subregion, want 0", len(none))
	}
}
