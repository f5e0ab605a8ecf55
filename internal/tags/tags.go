// Package tags decodes the serialized other_tags blob that the OSM driver
// attaches to features whose tags fall outside a layer's recognized columns.
//
// The blob is a comma separated list of `"key"=>"value"` pairs. Values may
// themselves contain commas, so splitting happens only on commas that sit
// exactly on a quote boundary. The literal `<br>` inside a value is an
// upstream escaping artifact and is replaced with a single space.
package tags

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformed is returned when a blob segment does not decode into exactly
// one key and one value.
var ErrMalformed = errors.New("malformed tag string")

const pairSeparator = `"=>"`

// Mapping is a decoded tag set. A nil Mapping means the feature carried no
// other_tags blob at all; an empty Mapping means the blob was present but
// empty. Callers must preserve this distinction.
type Mapping map[string]string

// Decode parses a non-null other_tags blob. An empty blob yields an empty
// (non-nil) Mapping.
func Decode(blob string) (Mapping, error) {
	m := Mapping{}
	if blob == "" {
		return m, nil
	}

	for _, seg := range splitPairs(blob) {
		seg = strings.TrimPrefix(seg, `"`)
		seg = strings.TrimSuffix(seg, `"`)

		parts := strings.Split(seg, pairSeparator)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: segment %q", ErrMalformed, seg)
		}
		key := parts[0]
		value := strings.ReplaceAll(parts[1], "<br>", " ")
		m[key] = value
	}
	return m, nil
}

// DecodeValue decodes a raw property value as read from a feature record.
// A nil (absent) value yields a nil Mapping, never an empty one. A non-nil
// value must be a string.
func DecodeValue(v any) (Mapping, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: other_tags value is %T, want string", ErrMalformed, v)
	}
	return Decode(s)
}

// Encode serializes a Mapping back into the blob convention, keys sorted for
// determinism. Encoding a nil Mapping yields the empty string.
func Encode(m Mapping) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(k)
		b.WriteString(pairSeparator)
		b.WriteString(m[k])
		b.WriteByte('"')
	}
	return b.String()
}

// splitPairs splits the blob on commas that occur exactly at a quote
// boundary, leaving commas embedded in values alone.
func splitPairs(blob string) []string {
	var segs []string
	start := 0
	for i := 1; i < len(blob)-1; i++ {
		if blob[i] == ',' && blob[i-1] == '"' && blob[i+1] == '"' {
			segs = append(segs, blob[start:i])
			start = i + 1
		}
	}
	segs = append(segs, blob[start:])
	return segs
}
