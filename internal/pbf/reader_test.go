package pbf

import (
	"testing"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmtab/internal/tags"
)

func TestFileReaderLayerIndexing(t *testing.T) {
	r := &FileReader{}
	if r.LayerCount() != len(LayerNames) {
		t.Fatalf("LayerCount() = %d, want %d", r.LayerCount(), len(LayerNames))
	}
	for i, want := range LayerNames {
		name, _, err := r.Layer(i)
		if err != nil {
			t.Fatalf("Layer(%d): %v", i, err)
		}
		if name != want {
			t.Errorf("Layer(%d) name = %q, want %q", i, name, want)
		}
	}
	if _, _, err := r.Layer(r.LayerCount()); err == nil {
		t.Error("Layer past the last index did not fail")
	}
}

func TestBuildProperties(t *testing.T) {
	ts := osm.Tags{
		{Key: "highway", Value: "bus_stop"},
		{Key: "shelter", Value: "yes"},
		{Key: "operator", Value: "Oxford Bus Company"},
	}

	props := buildProperties(LayerPoints, "osm_id", 42, ts)

	if props["osm_id"] != "42" {
		t.Errorf("osm_id = %v", props["osm_id"])
	}
	if props["highway"] != "bus_stop" {
		t.Errorf("highway = %v", props["highway"])
	}

	blob, ok := props["other_tags"].(string)
	if !ok {
		t.Fatalf("other_tags = %T, want string blob", props["other_tags"])
	}
	m, err := tags.Decode(blob)
	if err != nil {
		t.Fatalf("decoding own blob: %v", err)
	}
	if m["shelter"] != "yes" || m["operator"] != "Oxford Bus Company" {
		t.Errorf("blob mapping = %v", m)
	}
	if _, present := m["highway"]; present {
		t.Error("recognized column leaked into other_tags")
	}
}

func TestBuildPropertiesNoLeftoverTags(t *testing.T) {
	props := buildProperties(LayerPoints, "osm_id", 7, osm.Tags{
		{Key: "highway", Value: "bus_stop"},
	})
	if _, present := props["other_tags"]; present {
		t.Error("other_tags present for feature with no leftover tags")
	}
}

func TestIsArea(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"building", osm.Tags{{Key: "building", Value: "yes"}}, true},
		{"explicit area", osm.Tags{{Key: "highway", Value: "pedestrian"}, {Key: "area", Value: "yes"}}, true},
		{"explicit non-area", osm.Tags{{Key: "landuse", Value: "forest"}, {Key: "area", Value: "no"}}, false},
		{"closed highway", osm.Tags{{Key: "highway", Value: "residential"}}, false},
		{"untagged", osm.Tags{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isArea(tt.tags); got != tt.want {
				t.Errorf("isArea = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasSignificantTags(t *testing.T) {
	if hasSignificantTags(osm.Tags{{Key: "created_by", Value: "JOSM"}}) {
		t.Error("metadata-only node counted as significant")
	}
	if !hasSignificantTags(osm.Tags{{Key: "amenity", Value: "cafe"}}) {
		t.Error("tagged node not counted as significant")
	}
}

// The multipolygons layer payload must nest entries above ring groups; a
// single closed way therefore wraps twice.
func TestAreaWayRecordPayloadDepth(t *testing.T) {
	ring := [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	w := &osm.Way{ID: 5, Tags: osm.Tags{{Key: "building", Value: "yes"}}}

	rec := areaWayRecord(w, ring)
	if rec.Geometry.Type != "MultiPolygon" {
		t.Fatalf("geometry type = %q", rec.Geometry.Type)
	}
	payload, ok := rec.Geometry.Coordinates.([][][][][]float64)
	if !ok {
		t.Fatalf("payload = %T", rec.Geometry.Coordinates)
	}
	if len(payload) != 1 || len(payload[0]) != 1 || len(payload[0][0]) != 1 {
		t.Errorf("payload shape = %d/%d entries", len(payload), len(payload[0]))
	}
	if props := rec.Properties; props["osm_way_id"] != "5" {
		t.Errorf("osm_way_id = %v", rec.Properties["osm_way_id"])
	}
}

func TestRelationRecordCategorization(t *testing.T) {
	wayCoords := map[int64][][]float64{
		100: {{0, 0}, {1, 0}, {1, 1}, {0, 0}},
		101: {{2, 2}, {3, 3}},
	}

	route := &osm.Relation{
		ID:   1,
		Tags: osm.Tags{{Key: "type", Value: "route"}},
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 100},
			{Type: osm.TypeWay, Ref: 101},
		},
	}
	rec, layer, ok := relationRecord(route, wayCoords, nil)
	if !ok || layer != idxMultiLineStrings {
		t.Fatalf("route relation → layer %d, ok=%v", layer, ok)
	}
	if rec.Geometry.Type != "MultiLineString" {
		t.Errorf("route geometry type = %q", rec.Geometry.Type)
	}

	boundary := &osm.Relation{
		ID:   2,
		Tags: osm.Tags{{Key: "type", Value: "boundary"}},
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 100},
		},
	}
	rec, layer, ok = relationRecord(boundary, wayCoords, nil)
	if !ok || layer != idxMultiPolygons {
		t.Fatalf("boundary relation → layer %d, ok=%v", layer, ok)
	}
	if rec.Properties["osm_id"] != "2" {
		t.Errorf("boundary osm_id = %v", rec.Properties["osm_id"])
	}

	unresolvable := &osm.Relation{
		ID:      3,
		Tags:    osm.Tags{{Key: "type", Value: "route"}},
		Members: osm.Members{{Type: osm.TypeWay, Ref: 999}},
	}
	if _, _, ok := relationRecord(unresolvable, wayCoords, nil); ok {
		t.Error("relation with no resolvable members emitted a record")
	}
}
