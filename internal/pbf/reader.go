package pbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/nodeindex"
	"github.com/wegman-software/osmtab/internal/tags"
)

// Layer slice indexes, matching LayerNames order.
const (
	idxPoints = iota
	idxLines
	idxMultiLineStrings
	idxMultiPolygons
	idxOtherRelations
	layerCount
)

// FileReader reads a .osm.pbf extract and exposes it as the five fixed
// layers. All layers are materialized during Open; regional extracts fit in
// memory, which is the unit this package works in.
type FileReader struct {
	layers [layerCount][]Record
	tmpDir string
}

// OpenFile opens and fully scans an extract. workers controls the parallel
// PBF block decoders; zero means GOMAXPROCS.
func OpenFile(ctx context.Context, path string, workers int) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	defer f.Close()

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tmpDir, err := os.MkdirTemp("", "osmtab-nodeindex-")
	if err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	r := &FileReader{tmpDir: tmpDir}
	if err := r.scan(ctx, f, workers); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// LayerCount returns the number of layers in the extract, always five.
func (r *FileReader) LayerCount() int {
	return layerCount
}

// Layer returns the i-th layer's name and records.
func (r *FileReader) Layer(i int) (string, []Record, error) {
	if i < 0 || i >= layerCount {
		return "", nil, fmt.Errorf("%w: layer index %d out of range", ErrParseFailure, i)
	}
	return LayerNames[i], r.layers[i], nil
}

// Close releases the temporary node index storage.
func (r *FileReader) Close() error {
	if r.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(r.tmpDir)
	r.tmpDir = ""
	return err
}

// scan performs the two passes: nodes into the coordinate index (emitting
// point features on the way), then ways and relations into the four
// remaining layers.
func (r *FileReader) scan(ctx context.Context, f *os.File, workers int) error {
	log := logger.Named("pbf")

	idx, err := nodeindex.Create(filepath.Join(r.tmpDir, "nodes.bin"))
	if err != nil {
		return err
	}
	defer idx.Close()

	nodes, err := r.scanNodes(ctx, f, workers, idx)
	if err != nil {
		return err
	}
	log.Debug("Node pass complete",
		zap.Int64("nodes", nodes),
		zap.Int("points", len(r.layers[idxPoints])))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	if err := r.scanWaysAndRelations(ctx, f, workers, idx); err != nil {
		return err
	}
	log.Debug("Way and relation pass complete",
		zap.Int("lines", len(r.layers[idxLines])),
		zap.Int("multilinestrings", len(r.layers[idxMultiLineStrings])),
		zap.Int("multipolygons", len(r.layers[idxMultiPolygons])),
		zap.Int("other_relations", len(r.layers[idxOtherRelations])))

	return nil
}

func (r *FileReader) scanNodes(ctx context.Context, f *os.File, workers int, idx *nodeindex.Index) (int64, error) {
	scanner := osmpbf.New(ctx, f, workers)
	defer scanner.Close()

	var count int64
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			idx.Put(int64(o.ID), o.Lat, o.Lon)
			count++
			if hasSignificantTags(o.Tags) {
				r.layers[idxPoints] = append(r.layers[idxPoints], pointRecord(o))
			}
		case *osm.Way:
			// Nodes come first in a PBF; nothing else to do this pass.
			return count, nil
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return count, nil
}

func (r *FileReader) scanWaysAndRelations(ctx context.Context, f *os.File, workers int, idx *nodeindex.Index) error {
	scanner := osmpbf.New(ctx, f, workers)
	defer scanner.Close()

	// Relations reference way geometry, so way coordinates are retained
	// for the whole pass.
	wayCoords := make(map[int64][][]float64)

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Way:
			coords, ok := resolveWay(o, idx)
			if !ok {
				continue
			}
			wayCoords[int64(o.ID)] = coords
			if isClosed(o) && isArea(o.Tags) {
				r.layers[idxMultiPolygons] = append(r.layers[idxMultiPolygons], areaWayRecord(o, coords))
			} else {
				r.layers[idxLines] = append(r.layers[idxLines], lineRecord(o, coords))
			}
		case *osm.Relation:
			rec, layer, ok := relationRecord(o, wayCoords, idx)
			if ok {
				r.layers[layer] = append(r.layers[layer], rec)
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return nil
}

func resolveWay(w *osm.Way, idx *nodeindex.Index) ([][]float64, bool) {
	coords := make([][]float64, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		lat, lon, ok := idx.Get(int64(n.ID))
		if !ok {
			return nil, false
		}
		coords = append(coords, []float64{lon, lat})
	}
	if len(coords) < 2 {
		return nil, false
	}
	return coords, true
}

func isClosed(w *osm.Way) bool {
	return len(w.Nodes) >= 4 && w.Nodes[0].ID == w.Nodes[len(w.Nodes)-1].ID
}

func pointRecord(n *osm.Node) Record {
	return Record{
		Properties: buildProperties(LayerPoints, "osm_id", int64(n.ID), n.Tags),
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{n.Lon, n.Lat},
		},
	}
}

func lineRecord(w *osm.Way, coords [][]float64) Record {
	return Record{
		Properties: buildProperties(LayerLines, "osm_id", int64(w.ID), w.Tags),
		Geometry: Geometry{
			Type:        "LineString",
			Coordinates: coords,
		},
	}
}

// areaWayRecord emits a closed area way into the multipolygons layer. The
// layer's payload nests entries above ring groups, so a single-ring way
// wraps twice.
func areaWayRecord(w *osm.Way, ring [][]float64) Record {
	payload := [][][][][]float64{{{ring}}}
	return Record{
		Properties: buildProperties(LayerMultiPolygons, "osm_way_id", int64(w.ID), w.Tags),
		Geometry: Geometry{
			Type:        "MultiPolygon",
			Coordinates: payload,
		},
	}
}

// relationRecord categorizes a relation into multilinestrings,
// multipolygons, or other_relations, assembling member geometry from the
// retained way coordinates. Returns ok=false when no member geometry could
// be resolved.
func relationRecord(rel *osm.Relation, wayCoords map[int64][][]float64, idx *nodeindex.Index) (Record, int, bool) {
	switch rel.Tags.Find("type") {
	case "multilinestring", "route":
		var lines [][][]float64
		for _, m := range rel.Members {
			if m.Type != osm.TypeWay {
				continue
			}
			if coords, ok := wayCoords[m.Ref]; ok {
				lines = append(lines, coords)
			}
		}
		if len(lines) == 0 {
			return Record{}, 0, false
		}
		return Record{
			Properties: buildProperties(LayerMultiLineStrings, "osm_id", int64(rel.ID), rel.Tags),
			Geometry:   Geometry{Type: "MultiLineString", Coordinates: lines},
		}, idxMultiLineStrings, true

	case "multipolygon", "boundary":
		// Each member ring becomes its own ring group; inner rings are
		// not stitched to their outers.
		var groups [][][][]float64
		for _, m := range rel.Members {
			if m.Type != osm.TypeWay {
				continue
			}
			if coords, ok := wayCoords[m.Ref]; ok {
				groups = append(groups, [][][]float64{coords})
			}
		}
		if len(groups) == 0 {
			return Record{}, 0, false
		}
		payload := [][][][][]float64{groups}
		return Record{
			Properties: buildProperties(LayerMultiPolygons, "osm_id", int64(rel.ID), rel.Tags),
			Geometry:   Geometry{Type: "MultiPolygon", Coordinates: payload},
		}, idxMultiPolygons, true

	default:
		var members []Geometry
		for _, m := range rel.Members {
			switch m.Type {
			case osm.TypeNode:
				if lat, lon, ok := idx.Get(m.Ref); ok {
					members = append(members, Geometry{
						Type:        "Point",
						Coordinates: []float64{lon, lat},
					})
				}
			case osm.TypeWay:
				if coords, ok := wayCoords[m.Ref]; ok {
					members = append(members, Geometry{
						Type:        "LineString",
						Coordinates: coords,
					})
				}
			}
		}
		if len(members) == 0 {
			return Record{}, 0, false
		}
		return Record{
			Properties: buildProperties(LayerOtherRelations, "osm_id", int64(rel.ID), rel.Tags),
			Geometry:   Geometry{Type: "GeometryCollection", Geometries: members},
		}, idxOtherRelations, true
	}
}

// layerColumns lists each layer's recognized attribute columns, after the
// OSM driver's default configuration. Tags outside a layer's list go into
// the other_tags blob.
var layerColumns = map[string][]string{
	LayerPoints: {"name", "barrier", "highway", "ref", "address", "is_in", "place", "man_made"},
	LayerLines:  {"name", "highway", "waterway", "aerialway", "barrier", "man_made"},
	LayerMultiPolygons: {
		"name", "type", "aeroway", "amenity", "admin_level", "barrier",
		"boundary", "building", "craft", "geological", "historic",
		"land_area", "landuse", "leisure", "man_made", "military",
		"natural", "office", "place", "shop", "sport", "tourism",
	},
	LayerMultiLineStrings: {"name", "type"},
	LayerOtherRelations:   {"name", "type"},
}

// buildProperties builds a record's property map: the ID column, the
// layer's recognized columns, and an other_tags blob for the rest. The blob
// key is absent entirely when nothing is left over.
func buildProperties(layer, idKey string, id int64, ts osm.Tags) map[string]any {
	props := map[string]any{
		idKey: strconv.FormatInt(id, 10),
	}

	recognized := make(map[string]bool, len(layerColumns[layer]))
	for _, col := range layerColumns[layer] {
		recognized[col] = true
		if v := ts.Find(col); v != "" {
			props[col] = v
		}
	}

	var extra tags.Mapping
	for _, t := range ts {
		if recognized[t.Key] {
			continue
		}
		if extra == nil {
			extra = tags.Mapping{}
		}
		extra[t.Key] = t.Value
	}
	if extra != nil {
		props["other_tags"] = tags.Encode(extra)
	}
	return props
}

// hasSignificantTags reports whether a node deserves a point feature;
// pure metadata tags do not count.
func hasSignificantTags(ts osm.Tags) bool {
	insignificant := map[string]bool{
		"created_by": true,
		"source":     true,
		"note":       true,
		"fixme":      true,
		"FIXME":      true,
	}
	for _, t := range ts {
		if !insignificant[t.Key] {
			return true
		}
	}
	return false
}

// isArea decides whether a closed way is a polygon rather than a ring-shaped
// line. Mirrors the conventional key heuristics; waterways and highways stay
// lines even when closed.
func isArea(ts osm.Tags) bool {
	if v := ts.Find("area"); v != "" {
		return v == "yes"
	}

	areaKeys := map[string]bool{
		"building": true,
		"landuse":  true,
		"natural":  true,
		"leisure":  true,
		"amenity":  true,
		"shop":     true,
		"tourism":  true,
		"man_made": true,
		"waterway": false,
		"highway":  false,
		"barrier":  false,
		"railway":  false,
	}
	for _, t := range ts {
		if isArea, exists := areaKeys[t.Key]; exists {
			return isArea
		}
	}
	return false
}
