package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/metrics"
	"github.com/wegman-software/osmtab/internal/pbf"
)

var parseCmd = &cobra.Command{
	Use:   "parse <subregion>",
	Short: "Download and parse a subregion into layer tables",
	Long: `Download the subregion's .osm.pbf extract (if not already present) and
parse it into the five OSM layers. The parsed dataset is snapshotted in the
cache directory; repeat runs load the snapshot instead of re-parsing.`,
	Args: cobra.ExactArgs(1),
	Run:  runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
		go collector.Run(ctx)
	}

	start := time.Now()
	ds, err := newParser().ReadSubregion(ctx, args[0])
	if err != nil {
		exitWithError("parse failed", err)
	}
	log.Info("Subregion parsed",
		zap.String("subregion", args[0]),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	printSummary(ds)
}

// printSummary writes a per-layer row and column count table to stdout.
func printSummary(ds pbf.Dataset) {
	fmt.Fprintf(os.Stdout, "%-20s %10s %8s\n", "layer", "rows", "columns")
	for _, layer := range pbf.LayerNames {
		tbl, ok := ds[layer]
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stdout, "%-20s %10d %8d\n", layer, tbl.Len(), len(tbl.Columns()))
	}
}
