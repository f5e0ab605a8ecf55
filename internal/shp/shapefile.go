// Package shp reads and merges the pre-rendered ESRI shapefile flavour of
// Geofabrik extracts into the same schema-on-read tables the PBF path
// produces.
package shp

import (
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	goshp "github.com/jonas-p/go-shp"

	"github.com/wegman-software/osmtab/internal/table"
)

func init() {
	// Shapefile coordinate cells are interface-typed inside rows.
	gob.Register([][]float64{})
}

// ReadFile reads one .shp file into a table: attribute fields as columns,
// plus "coords" (the shape's points as lon/lat pairs) and "shape_type".
func ReadFile(path string) (*table.Table, error) {
	r, err := goshp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	tbl := table.New()

	for r.Next() {
		n, shape := r.Shape()
		row := make(table.Row, len(fields)+2)
		for k, f := range fields {
			row[f.String()] = r.ReadAttribute(n, k)
		}
		row["coords"] = shapePoints(shape)
		row["shape_type"] = int32(r.GeometryType)
		tbl.Append(row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile: %w", err)
	}
	return tbl, nil
}

// shapePoints flattens a shape's vertices into lon/lat pairs.
func shapePoints(s goshp.Shape) [][]float64 {
	switch v := s.(type) {
	case *goshp.Point:
		return [][]float64{{v.X, v.Y}}
	case *goshp.PolyLine:
		return pointPairs(v.Points)
	case *goshp.Polygon:
		return pointPairs(v.Points)
	case *goshp.MultiPoint:
		return pointPairs(v.Points)
	}
	return nil
}

func pointPairs(pts []goshp.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p.X, p.Y}
	}
	return out
}

// Merge concatenates several shapefiles of one layer into dst. The field
// schema is taken from the first input; all inputs must share a geometry
// type.
func Merge(paths []string, dst string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no shapefiles to merge")
	}

	first, err := goshp.Open(paths[0])
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	shapeType := first.GeometryType
	fields := first.Fields()
	first.Close()

	w, err := goshp.Create(dst, shapeType)
	if err != nil {
		return fmt.Errorf("failed to create merged shapefile: %w", err)
	}
	w.SetFields(fields)

	err = copyShapes(w, paths, shapeType, len(fields))
	w.Close()
	if err != nil {
		return err
	}
	return fixAttributeSidecar(dst)
}

func copyShapes(w *goshp.Writer, paths []string, shapeType goshp.ShapeType, nfields int) error {
	for _, path := range paths {
		r, err := goshp.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open shapefile: %w", err)
		}
		if r.GeometryType != shapeType {
			r.Close()
			return fmt.Errorf("shapefile %s has shape type %d, want %d", path, r.GeometryType, shapeType)
		}
		for r.Next() {
			n, shape := r.Shape()
			row := w.Write(shape)
			for k := 0; k < nfields; k++ {
				if err := w.WriteAttribute(int(row), k, r.ReadAttribute(n, k)); err != nil {
					r.Close()
					return fmt.Errorf("failed to write attribute: %w", err)
				}
			}
		}
		err = r.Err()
		r.Close()
		if err != nil {
			return fmt.Errorf("failed to read shapefile %s: %w", path, err)
		}
	}
	return nil
}

// fixAttributeSidecar renames the attribute file the shapefile writer emits
// without an extension dot, <base>dbf, to the <base>.dbf name readers expect.
func fixAttributeSidecar(shpPath string) error {
	base := strings.TrimSuffix(shpPath, ".shp")
	misnamed := base + "dbf"
	if _, err := os.Stat(misnamed); err != nil {
		return nil
	}
	if err := os.Rename(misnamed, base+".dbf"); err != nil {
		return fmt.Errorf("failed to rename attribute file: %w", err)
	}
	return nil
}

// saveSnapshot and loadSnapshot persist a parsed table next to its extract
// so repeat reads skip the shapefile entirely.
func saveSnapshot(path string, tbl *table.Table) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(tbl); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func loadSnapshot(path string) (*table.Table, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	tbl := table.New()
	if err := gob.NewDecoder(f).Decode(tbl); err != nil {
		return nil, false
	}
	return tbl, true
}
