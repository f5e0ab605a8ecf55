package pbf

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/config"
	"github.com/wegman-software/osmtab/internal/download"
	"github.com/wegman-software/osmtab/internal/geofabrik"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/table"
)

// Dataset maps layer name to its normalized table. A Dataset is created
// fresh per parse; failures never yield a partially filled one.
type Dataset map[string]*table.Table

// DatasetCache short-circuits re-parsing of a subregion. Implementations
// may be absent entirely; the parser is correct without one.
type DatasetCache interface {
	Load(key string) (Dataset, bool)
	Store(key string, ds Dataset) error
}

// Parser drives the extract acquisition and normalization pipeline for
// subregions.
type Parser struct {
	cfg     *config.Config
	index   *geofabrik.Index
	fetcher *download.Fetcher
	cache   DatasetCache // may be nil
	norm    *Normalizer
	log     *zap.Logger
}

// NewParser assembles a parser. cache may be nil.
func NewParser(cfg *config.Config, index *geofabrik.Index, fetcher *download.Fetcher, cache DatasetCache) *Parser {
	return &Parser{
		cfg:     cfg,
		index:   index,
		fetcher: fetcher,
		cache:   cache,
		norm:    NewNormalizer(cfg.TagErrors),
		log:     logger.Named("parser"),
	}
}

// ReadSubregion resolves a subregion name, makes its .osm.pbf available
// locally (downloading behind the confirmation gate when absent), parses
// it, and returns the per-layer Dataset. Any failure returns a nil dataset.
func (p *Parser) ReadSubregion(ctx context.Context, name string) (Dataset, error) {
	sub, err := p.index.Resolve(name)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && !p.cfg.Update {
		if ds, ok := p.cache.Load(sub.Name); ok {
			p.log.Debug("Dataset served from cache", zap.String("subregion", sub.Name))
			return ds, nil
		}
	}

	path, err := p.fetcher.Ensure(ctx, sub, geofabrik.FormatPBF)
	if err != nil {
		if errors.Is(err, download.ErrDeclined) {
			return nil, fmt.Errorf("%w: %s (download declined)", ErrFileMissing, sub.Name)
		}
		return nil, err
	}

	reader, err := OpenFile(ctx, path, p.cfg.Workers)
	if err != nil {
		return nil, err
	}

	ds, err := p.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("subregion %s: %w", sub.Name, err)
	}

	if p.cache != nil {
		if err := p.cache.Store(sub.Name, ds); err != nil {
			p.log.Warn("Failed to cache dataset",
				zap.String("subregion", sub.Name), zap.Error(err))
		}
	}
	return ds, nil
}

// Parse drains every layer of the reader through the normalizer and
// assembles the Dataset. The reader is released on all exit paths. Layer
// errors do not stop sibling layers from being parsed, but any layer error
// withholds the whole dataset.
func (p *Parser) Parse(r Reader) (Dataset, error) {
	defer r.Close()

	ds := make(Dataset, r.LayerCount())
	var layerErrs []error

	for i := 0; i < r.LayerCount(); i++ {
		name, records, err := r.Layer(i)
		if err != nil {
			return nil, err
		}

		tbl, err := p.norm.Layer(name, records)
		if err != nil {
			p.log.Error("Layer normalization failed",
				zap.String("layer", name), zap.Error(err))
			layerErrs = append(layerErrs, err)
			continue
		}
		p.log.Debug("Layer normalized",
			zap.String("layer", name), zap.Int("rows", tbl.Len()))
		ds[name] = tbl
	}

	if len(layerErrs) > 0 {
		return nil, errors.Join(layerErrs...)
	}
	return ds, nil
}
