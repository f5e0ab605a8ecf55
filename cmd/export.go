package cmd

import (
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmtab/internal/export"
	"github.com/wegman-software/osmtab/internal/logger"
)

var (
	exportOutDir      string
	exportTablePrefix string
	exportDrop        bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a parsed subregion to Parquet or PostGIS",
}

var exportParquetCmd = &cobra.Command{
	Use:   "parquet <subregion>",
	Short: "Write per-layer Parquet files",
	Args:  cobra.ExactArgs(1),
	Run:   runExportParquet,
}

var exportPostgresCmd = &cobra.Command{
	Use:   "postgres <subregion>",
	Short: "Bulk-load per-layer PostGIS tables",
	Args:  cobra.ExactArgs(1),
	Run:   runExportPostgres,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportParquetCmd, exportPostgresCmd)

	exportParquetCmd.Flags().StringVarP(&exportOutDir, "out", "o", "./osm_parquet", "Output directory for Parquet files")
	exportPostgresCmd.Flags().StringVar(&exportTablePrefix, "table-prefix", "osm", "Prefix for per-layer table names")
	exportPostgresCmd.Flags().BoolVar(&exportDrop, "drop-existing", false, "Drop existing tables before loading")
}

func runExportParquet(cmd *cobra.Command, args []string) {
	ds, err := newParser().ReadSubregion(cmd.Context(), args[0])
	if err != nil {
		exitWithError("parse failed", err)
	}
	if err := export.WriteParquet(ds, exportOutDir); err != nil {
		exitWithError("parquet export failed", err)
	}
	logger.Get().Info("Parquet export complete",
		zap.String("subregion", args[0]), zap.String("dir", exportOutDir))
}

func runExportPostgres(cmd *cobra.Command, args []string) {
	ds, err := newParser().ReadSubregion(cmd.Context(), args[0])
	if err != nil {
		exitWithError("parse failed", err)
	}

	loader, err := export.NewLoader(cfg, exportDrop)
	if err != nil {
		exitWithError("database connection failed", err)
	}
	defer loader.Close()

	rows, err := loader.Load(cmd.Context(), ds, exportTablePrefix)
	if err != nil {
		exitWithError("postgres export failed", err)
	}
	logger.Get().Info("PostGIS export complete",
		zap.String("subregion", args[0]), zap.Int64("rows", rows))
}
