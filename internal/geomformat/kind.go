// Package geomformat converts the loosely typed geometry payloads exposed by
// the extract reader into orb geometry values.
//
// The OSM driver's JSON-style output is not uniform across geometry types:
// MultiPolygon payloads nest one level deeper than orb.MultiPolygon expects,
// and the per-descriptor payloads inside a GeometryCollection nest one level
// shallower than that. Both flattenings are handled here so callers only ever
// see properly typed orb values.
package geomformat

import (
	"errors"
	"fmt"
)

// Errors surfaced by the formatters. ErrUnknownType indicates a geometry
// type name outside the fixed vocabulary and is always fatal for the layer.
var (
	ErrUnknownType        = errors.New("unknown geometry type")
	ErrInvalidCoordinates = errors.New("invalid coordinate payload")
)

// Kind enumerates the closed set of geometry types the OSM driver emits.
type Kind int

const (
	Point Kind = iota
	LineString
	MultiLineString
	Polygon
	MultiPolygon
	GeometryCollection
)

var kindNames = [...]string{
	Point:              "Point",
	LineString:         "LineString",
	MultiLineString:    "MultiLineString",
	Polygon:            "Polygon",
	MultiPolygon:       "MultiPolygon",
	GeometryCollection: "GeometryCollection",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Polygonal reports whether the kind carries ring-group coordinates. These
// are the kinds whose collection-member payloads need the shallow flatten.
func (k Kind) Polygonal() bool {
	return k == Polygon || k == MultiPolygon
}

// KindOf resolves a geometry type name. An unrecognized name is a format or
// version mismatch, never skipped.
func KindOf(name string) (Kind, error) {
	switch name {
	case "Point":
		return Point, nil
	case "LineString":
		return LineString, nil
	case "MultiLineString":
		return MultiLineString, nil
	case "Polygon":
		return Polygon, nil
	case "MultiPolygon":
		return MultiPolygon, nil
	case "GeometryCollection":
		return GeometryCollection, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}
