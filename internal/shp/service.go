package shp

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmtab/internal/download"
	"github.com/wegman-software/osmtab/internal/geofabrik"
	"github.com/wegman-software/osmtab/internal/table"
)

// Service drives the shapefile flows: ensure the archive exists, extract
// the wanted layer, read or merge it.
type Service struct {
	fetcher      *download.Fetcher
	dataDir      string
	keepExtracts bool
	update       bool
	log          *zap.Logger
}

// NewService wires a shapefile service over the shared fetcher. With
// keepExtracts false, extracted .shp components are removed after the
// parsed table is snapshotted. With update true, snapshots and extracts
// already on disk are ignored and rebuilt from a fresh archive.
func NewService(fetcher *download.Fetcher, dataDir string, keepExtracts, update bool, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{fetcher: fetcher, dataDir: dataDir, keepExtracts: keepExtracts, update: update, log: log}
}

// layerMember reports whether an archive member belongs to the layer.
// Geofabrik shapefile archives name components gis_osm_<layer>_free_1.*.
func layerMember(name, layer string) bool {
	return strings.Contains(name, "_"+layer+"_") || strings.Contains(name, "_"+layer+".")
}

// ReadLayer ensures the subregion's shapefile archive is present, extracts
// the layer's components, and reads them into one table. A non-empty
// feature keeps only rows whose fclass matches. Parsed tables are
// snapshotted beside the extract and reused on repeat reads.
func (s *Service) ReadLayer(ctx context.Context, sub geofabrik.Subregion, layer, feature string) (*table.Table, error) {
	extractDir := sub.ExtractDir(s.dataDir)
	snapshot := filepath.Join(extractDir, layer+".gob")

	if tbl, ok := loadSnapshot(snapshot); ok && !s.update {
		s.log.Debug("shapefile snapshot hit",
			zap.String("subregion", sub.Name), zap.String("layer", layer))
		return filterFeature(tbl, feature), nil
	}

	shpFiles, err := s.extractLayer(ctx, sub, layer)
	if err != nil {
		return nil, err
	}

	tbl := table.New()
	for _, path := range shpFiles {
		part, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, row := range part.Rows() {
			tbl.Append(row)
		}
	}

	if err := saveSnapshot(snapshot, tbl); err != nil {
		s.log.Warn("failed to snapshot shapefile table", zap.Error(err))
	} else if !s.keepExtracts {
		s.cleanup(shpFiles)
	}
	return filterFeature(tbl, feature), nil
}

// MergeLayer ensures and extracts the layer for every subregion in
// parallel, then merges all component shapefiles into dst.
func (s *Service) MergeLayer(ctx context.Context, subs []geofabrik.Subregion, layer, dst string) error {
	paths := make([][]string, len(subs))

	g, ctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			files, err := s.extractLayer(ctx, sub, layer)
			if err != nil {
				return fmt.Errorf("subregion %s: %w", sub.Name, err)
			}
			paths[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []string
	for _, files := range paths {
		all = append(all, files...)
	}
	if len(all) == 0 {
		return fmt.Errorf("no %s shapefiles found for the given subregions", layer)
	}

	s.log.Info("merging shapefiles",
		zap.String("layer", layer), zap.Int("inputs", len(all)), zap.String("out", dst))
	return Merge(all, dst)
}

// extractLayer ensures the archive and extracts the layer's members,
// returning the .shp component paths. Already-extracted components are
// reused without touching the archive.
func (s *Service) extractLayer(ctx context.Context, sub geofabrik.Subregion, layer string) ([]string, error) {
	extractDir := sub.ExtractDir(s.dataDir)
	if !s.update {
		if files := findShapefiles(extractDir, layer); len(files) > 0 {
			return files, nil
		}
	}

	archive, err := s.fetcher.Ensure(ctx, sub, geofabrik.FormatShapefile)
	if err != nil {
		return nil, err
	}

	extracted, err := extractMembers(archive, extractDir, func(name string) bool {
		return layerMember(name, layer)
	})
	if err != nil {
		return nil, err
	}

	var shpFiles []string
	for _, path := range extracted {
		if strings.HasSuffix(path, ".shp") {
			shpFiles = append(shpFiles, path)
		}
	}
	if len(shpFiles) == 0 {
		return nil, fmt.Errorf("archive %s has no %s layer", archive, layer)
	}
	return shpFiles, nil
}

// FindLayerFiles walks the data directory for a layer's .shp files under
// directories matching the subregion name. It never downloads.
func FindLayerFiles(dataDir, subregion, layer string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".shp") {
			return nil
		}
		if strings.Contains(path, subregion) && layerMember(filepath.Base(path), layer) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dataDir, err)
	}
	return found, nil
}

// findShapefiles lists the layer's .shp components already present in dir.
func findShapefiles(dir, layer string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".shp") && layerMember(name, layer) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files
}

// filterFeature keeps rows whose fclass equals feature; empty feature
// passes everything through.
func filterFeature(tbl *table.Table, feature string) *table.Table {
	if feature == "" {
		return tbl
	}
	out := table.New()
	for _, row := range tbl.Rows() {
		if v, ok := row["fclass"]; ok && v == feature {
			out.Append(row)
		}
	}
	return out
}

// cleanup removes extracted shapefile components and their sidecars once a
// snapshot exists.
func (s *Service) cleanup(shpFiles []string) {
	for _, path := range shpFiles {
		base := strings.TrimSuffix(path, ".shp")
		for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
			os.Remove(base + ext)
		}
	}
}
