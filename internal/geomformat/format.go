package geomformat

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Descriptor is one member of a relation's geometry collection: a type name
// with its own coordinate payload.
type Descriptor struct {
	Type        string
	Coordinates any
}

// Single constructs one geometry of a homogeneous layer's declared kind.
//
// MultiPolygon payloads are encoded one level deeper than the other types:
// each top-level entry is an array of ring groups rather than a ring group
// itself. Exactly one level is flattened, constructing one polygon per ring
// group across all entries and collecting the lot into a single multi
// polygon. The other kinds construct directly from the payload.
func Single(kind Kind, coords any) (orb.Geometry, error) {
	switch kind {
	case Point:
		return asPoint(coords)
	case LineString:
		return asLineString(coords)
	case MultiLineString:
		return asMultiLineString(coords)
	case Polygon:
		return asPolygon(coords)
	case MultiPolygon:
		entries, ok := elems(coords)
		if !ok {
			return nil, fmt.Errorf("%w: expected multipolygon entries, got %T", ErrInvalidCoordinates, coords)
		}
		var mp orb.MultiPolygon
		for _, entry := range entries {
			groups, ok := elems(entry)
			if !ok {
				return nil, fmt.Errorf("%w: expected ring groups inside multipolygon entry, got %T", ErrInvalidCoordinates, entry)
			}
			for _, group := range groups {
				poly, err := asPolygon(group)
				if err != nil {
					return nil, err
				}
				mp = append(mp, poly)
			}
		}
		return mp, nil
	case GeometryCollection:
		return nil, fmt.Errorf("%w: GeometryCollection is not a homogeneous layer kind", ErrInvalidCoordinates)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownType, kind)
}

// Collection constructs the heterogeneous geometry collection for one
// other_relations row.
//
// Polygonal members use a flatten that is one level shallower than Single's
// MultiPolygon case: the payload is already a flat sequence of ring groups.
// Each ring group becomes one polygon; a Polygon member contributes its
// polygons to the collection individually, a MultiPolygon member contributes
// them as one multi polygon. The two flattening depths are intentional and
// must not be unified. Non-polygonal members construct directly.
func Collection(descs []Descriptor) (orb.Collection, error) {
	coll := make(orb.Collection, 0, len(descs))
	for _, d := range descs {
		kind, err := KindOf(d.Type)
		if err != nil {
			return nil, err
		}

		if kind.Polygonal() {
			groups, ok := elems(d.Coordinates)
			if !ok {
				return nil, fmt.Errorf("%w: expected ring groups for %s member, got %T", ErrInvalidCoordinates, kind, d.Coordinates)
			}
			polys := make([]orb.Polygon, 0, len(groups))
			for _, group := range groups {
				poly, err := asPolygon(group)
				if err != nil {
					return nil, err
				}
				polys = append(polys, poly)
			}
			if kind == MultiPolygon {
				coll = append(coll, orb.MultiPolygon(polys))
			} else {
				for _, poly := range polys {
					coll = append(coll, poly)
				}
			}
			continue
		}

		var g orb.Geometry
		switch kind {
		case Point:
			g, err = asPoint(d.Coordinates)
		case LineString:
			g, err = asLineString(d.Coordinates)
		case MultiLineString:
			g, err = asMultiLineString(d.Coordinates)
		case GeometryCollection:
			err = fmt.Errorf("%w: nested GeometryCollection member", ErrInvalidCoordinates)
		}
		if err != nil {
			return nil, err
		}
		coll = append(coll, g)
	}
	return coll, nil
}
