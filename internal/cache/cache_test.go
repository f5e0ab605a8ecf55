package cache

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmtab/internal/pbf"
	"github.com/wegman-software/osmtab/internal/table"
	"github.com/wegman-software/osmtab/internal/tags"
)

func sampleDataset() pbf.Dataset {
	points := table.New()
	points.Append(table.Row{
		"osm_id":      "1",
		"highway":     "bus_stop",
		"other_tags":  tags.Mapping{"shelter": "yes"},
		"geom_type":   "Point",
		"coordinates": orb.Point{7.42, 43.73},
	})

	relations := table.New()
	relations.Append(table.Row{
		"osm_id":      "2",
		"geom_type":   "GeometryCollection",
		"coordinates": orb.Collection{orb.Point{1, 2}, orb.LineString{{0, 0}, {1, 1}}},
	})

	return pbf.Dataset{
		pbf.LayerPoints:         points,
		pbf.LayerOtherRelations: relations,
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if err := c.Store("monaco", sampleDataset()); err != nil {
		t.Fatalf("Store error: %v", err)
	}

	got, ok := c.Load("monaco")
	if !ok {
		t.Fatal("Load miss after Store")
	}

	points := got[pbf.LayerPoints]
	if points.Len() != 1 {
		t.Fatalf("points table has %d rows", points.Len())
	}
	row := points.Row(0)
	if p, ok := row["coordinates"].(orb.Point); !ok || p.Lon() != 7.42 {
		t.Errorf("coordinates = %v (%T)", row["coordinates"], row["coordinates"])
	}
	if m, ok := row["other_tags"].(tags.Mapping); !ok || m["shelter"] != "yes" {
		t.Errorf("other_tags = %v (%T)", row["other_tags"], row["other_tags"])
	}

	coll, ok := got[pbf.LayerOtherRelations].Row(0)["coordinates"].(orb.Collection)
	if !ok || len(coll) != 2 {
		t.Errorf("collection = %v", got[pbf.LayerOtherRelations].Row(0)["coordinates"])
	}
}

func TestLoadSurvivesMemoryEviction(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store("monaco", sampleDataset()); err != nil {
		t.Fatal(err)
	}

	// A fresh cache over the same directory must find the snapshot on disk.
	c2, err := New(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c2.Load("monaco"); !ok {
		t.Error("Load miss from disk snapshot")
	}
}

func TestLoadAbsent(t *testing.T) {
	c, err := New(t.TempDir(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load("atlantis"); ok {
		t.Error("Load hit for never-stored key")
	}
}

func TestInvalidate(t *testing.T) {
	c, err := New(t.TempDir(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store("monaco", sampleDataset()); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("monaco"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if _, ok := c.Load("monaco"); ok {
		t.Error("Load hit after Invalidate")
	}
}
