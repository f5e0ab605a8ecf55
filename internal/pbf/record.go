// Package pbf turns .osm.pbf regional extracts into per-layer tables with
// typed geometry columns, following the five-layer model of the classic OSM
// vector driver: points, lines, multilinestrings, multipolygons, and
// other_relations.
package pbf

import "errors"

// The five fixed layers, in enumeration order.
const (
	LayerPoints           = "points"
	LayerLines            = "lines"
	LayerMultiLineStrings = "multilinestrings"
	LayerMultiPolygons    = "multipolygons"
	LayerOtherRelations   = "other_relations"
)

// LayerNames lists the fixed layers in their canonical order.
var LayerNames = []string{
	LayerPoints,
	LayerLines,
	LayerMultiLineStrings,
	LayerMultiPolygons,
	LayerOtherRelations,
}

var (
	// ErrFileMissing means the extract is absent locally and was not
	// downloaded.
	ErrFileMissing = errors.New("extract file missing")
	// ErrParseFailure means the extract could not be opened or decoded.
	ErrParseFailure = errors.New("extract parse failure")
	// ErrHeterogeneousLayer means a homogeneous layer carried more than one
	// geometry type, which indicates corrupt or mis-layered input.
	ErrHeterogeneousLayer = errors.New("heterogeneous geometry types in layer")
)

// Geometry is the loosely typed geometry payload of a feature record as a
// reader exposes it: a type tag plus either raw coordinates or, for
// GeometryCollection, a list of member payloads.
type Geometry struct {
	Type        string
	Coordinates any
	Geometries  []Geometry
}

// Record is one feature as exposed by a reader. Properties always carry the
// layer's recognized attribute columns; tags outside those columns are
// serialized into the "other_tags" property, which is absent (not empty)
// when a feature has none.
type Record struct {
	Properties map[string]any
	Geometry   Geometry
}

// Reader exposes the layers of one opened extract. It is a scoped resource:
// the orchestrator drains every layer and releases it on all exit paths.
type Reader interface {
	LayerCount() int
	Layer(i int) (name string, records []Record, err error)
	Close() error
}
