package geofabrik

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveExact(t *testing.T) {
	ix := DefaultIndex()

	tests := []struct {
		in       string
		wantPath string
	}{
		{"england", "europe/great-britain/england"},
		{"England", "europe/great-britain/england"},
		{"West Yorkshire", "europe/great-britain/england/west-yorkshire"},
		{"  monaco ", "europe/monaco"},
	}
	for _, tt := range tests {
		sub, err := ix.Resolve(tt.in)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.in, err)
			continue
		}
		if sub.Path != tt.wantPath {
			t.Errorf("Resolve(%q).Path = %q, want %q", tt.in, sub.Path, tt.wantPath)
		}
	}
}

func TestResolveFuzzy(t *testing.T) {
	ix := DefaultIndex()
	sub, err := ix.Resolve("oxfrdshire")
	if err != nil {
		t.Fatalf("Resolve(oxfrdshire) error: %v", err)
	}
	if sub.Name != "oxfordshire" {
		t.Errorf("Resolve(oxfrdshire).Name = %q, want oxfordshire", sub.Name)
	}
}

func TestResolveFuzzyTieIsDeterministic(t *testing.T) {
	// Both candidates are one edit away from the query; the smaller name
	// must win every time.
	ix := NewIndex(map[string]string{
		"alphaland-1": "test/alphaland-1",
		"alphaland-2": "test/alphaland-2",
	})
	for i := 0; i < 10; i++ {
		sub, err := ix.Resolve("alphaland")
		if err != nil {
			t.Fatalf("Resolve(alphaland) error: %v", err)
		}
		if sub.Name != "alphaland-1" {
			t.Fatalf("Resolve(alphaland).Name = %q, want alphaland-1", sub.Name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	ix := NewIndex(map[string]string{"monaco": "europe/monaco"})
	if _, err := ix.Resolve("zzzzqqqq"); !errors.Is(err, ErrUnknownSubregion) {
		t.Errorf("Resolve(zzzzqqqq) error = %v, want ErrUnknownSubregion", err)
	}
}

func TestDownloadURL(t *testing.T) {
	sub := Subregion{Name: "monaco", Path: "europe/monaco"}

	if got, want := sub.DownloadURL(FormatPBF), "https://download.geofabrik.de/europe/monaco-latest.osm.pbf"; got != want {
		t.Errorf("DownloadURL(pbf) = %q, want %q", got, want)
	}
	if got, want := sub.DownloadURL(FormatShapefile), "https://download.geofabrik.de/europe/monaco-latest-free.shp.zip"; got != want {
		t.Errorf("DownloadURL(shp) = %q, want %q", got, want)
	}
}

func TestLocalPathMirrorsTree(t *testing.T) {
	sub := Subregion{Name: "oxfordshire", Path: "europe/great-britain/england/oxfordshire"}

	got := sub.LocalPath("/dat", FormatPBF)
	want := filepath.Join("/dat", "europe", "great-britain", "england", "oxfordshire-latest.osm.pbf")
	if got != want {
		t.Errorf("LocalPath = %q, want %q", got, want)
	}

	ext := sub.ExtractDir("/dat")
	wantExt := filepath.Join("/dat", "europe", "great-britain", "england", "oxfordshire-latest-free")
	if ext != wantExt {
		t.Errorf("ExtractDir = %q, want %q", ext, wantExt)
	}
}
