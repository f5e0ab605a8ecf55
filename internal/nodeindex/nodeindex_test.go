package nodeindex

import (
	"math"
	"path/filepath"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	defer ix.Close()

	ix.Put(42, 51.7520, -1.2577)
	ix.Put(9_000_000_000, -36.8485, 174.7633)

	lat, lon, ok := ix.Get(42)
	if !ok {
		t.Fatal("Get(42) not found")
	}
	if !near(lat, 51.7520) || !near(lon, -1.2577) {
		t.Errorf("Get(42) = (%f, %f)", lat, lon)
	}

	lat, lon, ok = ix.Get(9_000_000_000)
	if !ok {
		t.Fatal("Get(9e9) not found")
	}
	if !near(lat, -36.8485) || !near(lon, 174.7633) {
		t.Errorf("Get(9e9) = (%f, %f)", lat, lon)
	}

	if _, _, ok := ix.Get(43); ok {
		t.Error("Get(43) found for unwritten node")
	}
	if _, _, ok := ix.Get(-1); ok {
		t.Error("Get(-1) found for negative ID")
	}
}

func TestReopenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ix.Put(7, 48.8566, 2.3522)
	if err := ix.Sync(); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	ro, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer ro.Close()

	lat, lon, ok := ro.Get(7)
	if !ok {
		t.Fatal("Get(7) not found after reopen")
	}
	if !near(lat, 48.8566) || !near(lon, 2.3522) {
		t.Errorf("Get(7) = (%f, %f)", lat, lon)
	}
}
