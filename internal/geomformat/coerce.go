package geomformat

import (
	"fmt"
	"reflect"

	"github.com/paulmach/orb"
)

// Coordinate payloads arrive either as concrete float slices (from the
// native reader) or as []any nests (from JSON decoding). The helpers below
// accept both.

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// elems flattens any slice value into []any. Non-slice values return false.
func elems(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asPoint(v any) (orb.Point, error) {
	if p, ok := v.(orb.Point); ok {
		return p, nil
	}
	vs, ok := elems(v)
	if !ok || len(vs) < 2 {
		return orb.Point{}, fmt.Errorf("%w: point needs [lon lat], got %T", ErrInvalidCoordinates, v)
	}
	lon, okLon := asFloat(vs[0])
	lat, okLat := asFloat(vs[1])
	if !okLon || !okLat {
		return orb.Point{}, fmt.Errorf("%w: non-numeric point member", ErrInvalidCoordinates)
	}
	return orb.Point{lon, lat}, nil
}

func asPointSeq(v any) ([]orb.Point, error) {
	vs, ok := elems(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected point sequence, got %T", ErrInvalidCoordinates, v)
	}
	pts := make([]orb.Point, len(vs))
	for i, pv := range vs {
		p, err := asPoint(pv)
		if err != nil {
			return nil, err
		}
		pts[i] = p
	}
	return pts, nil
}

func asLineString(v any) (orb.LineString, error) {
	if ls, ok := v.(orb.LineString); ok {
		return ls, nil
	}
	pts, err := asPointSeq(v)
	if err != nil {
		return nil, err
	}
	return orb.LineString(pts), nil
}

func asRing(v any) (orb.Ring, error) {
	if r, ok := v.(orb.Ring); ok {
		return r, nil
	}
	pts, err := asPointSeq(v)
	if err != nil {
		return nil, err
	}
	return orb.Ring(pts), nil
}

// asPolygon converts one ring group (an array of linear rings) into a
// polygon.
func asPolygon(v any) (orb.Polygon, error) {
	if p, ok := v.(orb.Polygon); ok {
		return p, nil
	}
	vs, ok := elems(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected ring group, got %T", ErrInvalidCoordinates, v)
	}
	poly := make(orb.Polygon, len(vs))
	for i, rv := range vs {
		r, err := asRing(rv)
		if err != nil {
			return nil, err
		}
		poly[i] = r
	}
	return poly, nil
}

func asMultiLineString(v any) (orb.MultiLineString, error) {
	if mls, ok := v.(orb.MultiLineString); ok {
		return mls, nil
	}
	vs, ok := elems(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected line sequence, got %T", ErrInvalidCoordinates, v)
	}
	mls := make(orb.MultiLineString, len(vs))
	for i, lv := range vs {
		ls, err := asLineString(lv)
		if err != nil {
			return nil, err
		}
		mls[i] = ls
	}
	return mls, nil
}
