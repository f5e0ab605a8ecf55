// Package geofabrik resolves subregion names to Geofabrik download
// identifiers and lays out the matching local paths.
package geofabrik

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const baseURL = "https://download.geofabrik.de"

// ErrUnknownSubregion is returned when a name resolves to nothing, even
// fuzzily.
var ErrUnknownSubregion = errors.New("unknown subregion")

// Format selects which published extract flavour to fetch.
type Format string

const (
	FormatPBF       Format = ".osm.pbf"
	FormatShapefile Format = ".shp.zip"
)

// Subregion is a resolved extract unit: the canonical name and its path
// under the Geofabrik download tree.
type Subregion struct {
	Name string
	Path string
}

// DownloadURL returns the published URL for the subregion in the given
// format. Shapefile archives carry the "-free" marker on Geofabrik.
func (s Subregion) DownloadURL(format Format) string {
	switch format {
	case FormatShapefile:
		return fmt.Sprintf("%s/%s-latest-free.shp.zip", baseURL, s.Path)
	default:
		return fmt.Sprintf("%s/%s-latest.osm.pbf", baseURL, s.Path)
	}
}

// LocalPath returns where the downloaded archive lives under dataDir. The
// layout mirrors the download tree so sibling subregions nest naturally.
func (s Subregion) LocalPath(dataDir string, format Format) string {
	dir, name := filepath.Split(filepath.FromSlash(s.Path))
	switch format {
	case FormatShapefile:
		name += "-latest-free.shp.zip"
	default:
		name += "-latest.osm.pbf"
	}
	return filepath.Join(dataDir, dir, name)
}

// ExtractDir returns the directory a shapefile archive extracts into.
func (s Subregion) ExtractDir(dataDir string) string {
	p := s.LocalPath(dataDir, FormatShapefile)
	return strings.TrimSuffix(p, ".shp.zip")
}

// Index maps subregion names to their download tree paths.
type Index struct {
	regions map[string]string
}

// NewIndex builds an index from an explicit name→path mapping.
func NewIndex(regions map[string]string) *Index {
	m := make(map[string]string, len(regions))
	for name, path := range regions {
		m[normalize(name)] = path
	}
	return &Index{regions: m}
}

// DefaultIndex returns the built-in subregion index.
func DefaultIndex() *Index {
	return NewIndex(builtinRegions)
}

// Names returns all known subregion names, sorted.
func (ix *Index) Names() []string {
	names := make([]string, 0, len(ix.regions))
	for n := range ix.regions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a case-insensitive, possibly misspelled subregion name to
// its canonical entry. Exact (normalized) matches win; otherwise the
// closest fuzzy match by Levenshtein distance is taken.
func (ix *Index) Resolve(name string) (Subregion, error) {
	norm := normalize(name)
	if path, ok := ix.regions[norm]; ok {
		return Subregion{Name: norm, Path: path}, nil
	}

	ranks := fuzzy.RankFindNormalizedFold(norm, ix.Names())
	if len(ranks) == 0 {
		return Subregion{}, fmt.Errorf("%w: %q", ErrUnknownSubregion, name)
	}
	// Ties on distance go to the lexicographically smaller name so a given
	// input always resolves to the same subregion.
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})
	best := ranks[0].Target
	return Subregion{Name: best, Path: ix.regions[best]}, nil
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// builtinRegions covers the Geofabrik top-level continents and the commonly
// requested country and sub-country extracts. Paths are relative to the
// download root.
var builtinRegions = map[string]string{
	// Europe
	"europe":         "europe",
	"germany":        "europe/germany",
	"france":         "europe/france",
	"italy":          "europe/italy",
	"spain":          "europe/spain",
	"great-britain":  "europe/great-britain",
	"united-kingdom": "europe/great-britain",
	"england":        "europe/great-britain/england",
	"scotland":       "europe/great-britain/scotland",
	"wales":          "europe/great-britain/wales",
	"oxfordshire":    "europe/great-britain/england/oxfordshire",
	"cambridgeshire": "europe/great-britain/england/cambridgeshire",
	"west-yorkshire": "europe/great-britain/england/west-yorkshire",
	"greater-london": "europe/great-britain/england/greater-london",
	"netherlands":    "europe/netherlands",
	"belgium":        "europe/belgium",
	"switzerland":    "europe/switzerland",
	"austria":        "europe/austria",
	"poland":         "europe/poland",
	"monaco":         "europe/monaco",
	"ireland":        "europe/ireland-and-northern-ireland",

	// Americas
	"north-america": "north-america",
	"us":            "north-america/us",
	"usa":           "north-america/us",
	"canada":        "north-america/canada",
	"mexico":        "north-america/mexico",
	"south-america": "south-america",
	"brazil":        "south-america/brazil",

	// Asia
	"asia":  "asia",
	"japan": "asia/japan",
	"china": "asia/china",
	"india": "asia/india",

	// Africa
	"africa": "africa",

	// Oceania
	"oceania":     "australia-oceania",
	"australia":   "australia-oceania/australia",
	"new-zealand": "australia-oceania/new-zealand",
}
