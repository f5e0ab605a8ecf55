package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/config"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/pbf"
	"github.com/wegman-software/osmtab/internal/table"
)

// Loader bulk-loads datasets into PostGIS, one table per layer.
type Loader struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	dropExisting bool
	log          *zap.Logger
}

// NewLoader connects a loader to the configured database.
func NewLoader(cfg *config.Config, dropExisting bool) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Workers)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Loader{
		cfg:          cfg,
		pool:         pool,
		dropExisting: dropExisting,
		log:          logger.Named("export"),
	}, nil
}

// Close releases the connection pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// Load writes every layer of the dataset to <prefix>_<layer> tables.
// Attribute columns are TEXT, geometry lands in a GEOMETRY column with a
// GIST index.
func (l *Loader) Load(ctx context.Context, ds pbf.Dataset, prefix string) (int64, error) {
	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return 0, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if l.cfg.DBSchema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{l.cfg.DBSchema}.Sanitize())
		if _, err := l.pool.Exec(ctx, sql); err != nil {
			return 0, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	var total int64
	for _, layer := range pbf.LayerNames {
		tbl, ok := ds[layer]
		if !ok || tbl.Len() == 0 {
			continue
		}
		tableName := fmt.Sprintf("%s.%s_%s", l.cfg.DBSchema, prefix, layer)
		count, err := l.loadLayer(ctx, tableName, tbl)
		if err != nil {
			return total, fmt.Errorf("failed to load %s: %w", layer, err)
		}
		l.log.Info("Layer loaded", zap.String("table", tableName), zap.Int64("rows", count))
		total += count
	}
	return total, nil
}

func (l *Loader) loadLayer(ctx context.Context, tableName string, tbl *table.Table) (int64, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	cols := tbl.Columns()
	attrCols := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != "coordinates" {
			attrCols = append(attrCols, c)
		}
	}

	if l.dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tableName)); err != nil {
			return 0, fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := conn.Exec(ctx, createTableSQL(tableName, attrCols)); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	count, err := l.copyRows(ctx, conn.Conn(), tableName, attrCols, tbl)
	if err != nil {
		return 0, err
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", tableName)); err != nil {
		l.log.Debug("ALTER TABLE SET LOGGED failed", zap.Error(err))
	}
	if err := l.createIndexes(ctx, tableName); err != nil {
		return count, err
	}
	return count, nil
}

// createTableSQL builds the UNLOGGED target table: every attribute as
// TEXT plus the geometry column.
func createTableSQL(tableName string, attrCols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE UNLOGGED TABLE IF NOT EXISTS %s (", tableName)
	for _, c := range attrCols {
		fmt.Fprintf(&b, "%s TEXT, ", pgx.Identifier{c}.Sanitize())
	}
	fmt.Fprintf(&b, "geom GEOMETRY(Geometry, %d))", geomSRID)
	return b.String()
}

// copyRows streams rows through a temp table and converts EWKB into the
// geometry column in one INSERT.
func (l *Loader) copyRows(ctx context.Context, conn *pgx.Conn, tableName string, attrCols []string, tbl *table.Table) (int64, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const tempTable = "osmtab_load_tmp"
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TABLE %s (", tempTable)
	for _, c := range attrCols {
		fmt.Fprintf(&b, "%s TEXT, ", pgx.Identifier{c}.Sanitize())
	}
	b.WriteString("geom_ewkb BYTEA) ON COMMIT DROP")
	if _, err := tx.Exec(ctx, b.String()); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	rows := make([][]any, 0, tbl.Len())
	for _, row := range tbl.Rows() {
		values := make([]any, 0, len(attrCols)+1)
		for _, c := range attrCols {
			if s, ok := cellString(row[c]); ok {
				values = append(values, s)
			} else {
				values = append(values, nil)
			}
		}
		geom, ok := row["coordinates"].(orb.Geometry)
		if !ok {
			return 0, fmt.Errorf("row has no geometry")
		}
		data, err := ewkb.Marshal(geom, geomSRID)
		if err != nil {
			return 0, fmt.Errorf("failed to encode geometry: %w", err)
		}
		values = append(values, data)
		rows = append(rows, values)
	}

	copyCols := append(append([]string{}, attrCols...), "geom_ewkb")
	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, copyCols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	quoted := make([]string, len(attrCols))
	for i, c := range attrCols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	colList := strings.Join(quoted, ", ")
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s, geom) SELECT %s, ST_GeomFromEWKB(geom_ewkb) FROM %s",
		tableName, colList, colList, tempTable)
	if _, err := tx.Exec(ctx, insertSQL); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return copyCount, nil
}

func (l *Loader) createIndexes(ctx context.Context, tableName string) error {
	short := tableName
	if i := strings.LastIndexByte(tableName, '.'); i >= 0 {
		short = tableName[i+1:]
	}
	gistIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_geom_idx ON %s USING GIST (geom)",
		short, tableName)
	if _, err := l.pool.Exec(ctx, gistIdx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := l.pool.Exec(ctx, fmt.Sprintf("ANALYZE %s", tableName)); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}
	return nil
}
