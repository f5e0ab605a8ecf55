package pbf

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/config"
	"github.com/wegman-software/osmtab/internal/geomformat"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/table"
	"github.com/wegman-software/osmtab/internal/tags"
)

// Normalizer flattens raw feature records into layer tables: properties and
// geometry joined per row, the other_tags blob decoded into a mapping, and
// the geometry payload converted into a typed orb value.
type Normalizer struct {
	tagErrors config.TagErrorPolicy
	log       *zap.Logger
}

// NewNormalizer creates a normalizer with the given malformed-tag policy.
func NewNormalizer(tagErrors config.TagErrorPolicy) *Normalizer {
	return &Normalizer{
		tagErrors: tagErrors,
		log:       logger.Named("normalize"),
	}
}

// Layer normalizes one layer's record batch into a table. Rows keep input
// order. A malformed other_tags blob is row-scoped: under the skip policy
// the row is dropped and the layer continues; under the fail policy the
// layer aborts. Geometry errors are always fatal for the layer.
func (n *Normalizer) Layer(layerName string, records []Record) (*table.Table, error) {
	if layerName == LayerOtherRelations {
		return n.relationLayer(records)
	}
	return n.homogeneousLayer(layerName, records)
}

func (n *Normalizer) homogeneousLayer(layerName string, records []Record) (*table.Table, error) {
	// The batch must carry a single geometry type; it selects the
	// constructor for every row.
	var typeName string
	for _, rec := range records {
		switch {
		case typeName == "":
			typeName = rec.Geometry.Type
		case rec.Geometry.Type != typeName:
			return nil, fmt.Errorf("%w: %s has both %q and %q",
				ErrHeterogeneousLayer, layerName, typeName, rec.Geometry.Type)
		}
	}

	tbl := table.New()
	if typeName == "" {
		return tbl, nil // empty layer
	}

	kind, err := geomformat.KindOf(typeName)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", layerName, err)
	}

	for i, rec := range records {
		row, ok, err := n.propertiesRow(layerName, i, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		geom, err := geomformat.Single(kind, rec.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("layer %s row %d: %w", layerName, i, err)
		}
		row["geom_type"] = typeName
		row["coordinates"] = geom
		tbl.Append(row)
	}
	return tbl, nil
}

func (n *Normalizer) relationLayer(records []Record) (*table.Table, error) {
	tbl := table.New()
	for i, rec := range records {
		row, ok, err := n.propertiesRow(LayerOtherRelations, i, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		descs := make([]geomformat.Descriptor, len(rec.Geometry.Geometries))
		for j, g := range rec.Geometry.Geometries {
			descs[j] = geomformat.Descriptor{Type: g.Type, Coordinates: g.Coordinates}
		}
		coll, err := geomformat.Collection(descs)
		if err != nil {
			return nil, fmt.Errorf("layer %s row %d: %w", LayerOtherRelations, i, err)
		}
		row["geom_type"] = rec.Geometry.Type
		row["coordinates"] = coll
		tbl.Append(row)
	}
	return tbl, nil
}

// propertiesRow copies a record's properties and decodes its other_tags
// blob. ok is false when the row was skipped under the skip policy.
func (n *Normalizer) propertiesRow(layerName string, i int, rec Record) (table.Row, bool, error) {
	row := make(table.Row, len(rec.Properties)+2)
	for k, v := range rec.Properties {
		row[k] = v
	}

	decoded, err := tags.DecodeValue(row["other_tags"])
	if err != nil {
		if n.tagErrors == config.TagErrorFail {
			return nil, false, fmt.Errorf("layer %s row %d: %w", layerName, i, err)
		}
		n.log.Warn("Skipping row with malformed tag string",
			zap.String("layer", layerName),
			zap.Int("row", i),
			zap.Error(err))
		return nil, false, nil
	}
	if decoded == nil {
		row["other_tags"] = nil
	} else {
		row["other_tags"] = decoded
	}
	return row, true, nil
}
