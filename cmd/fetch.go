package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmtab/internal/geofabrik"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/shp"
)

var (
	fetchFormat string
	fetchLayer  string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <subregion>",
	Short: "Download a subregion extract, or locate already-fetched shapefiles",
	Long: `Download the subregion's extract in the requested format. With --layer,
no download happens: the data directory is searched for that layer's .shp
files belonging to the (fuzzily matched) subregion and the paths are
printed.`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "pbf", "Extract format: pbf or shp")
	fetchCmd.Flags().StringVarP(&fetchLayer, "layer", "l", "", "Locate local .shp files for this layer instead of downloading")
}

func runFetch(cmd *cobra.Command, args []string) {
	log := logger.Get()

	sub, err := geofabrik.DefaultIndex().Resolve(args[0])
	if err != nil {
		exitWithError("unknown subregion", err)
	}
	if sub.Name != args[0] {
		log.Info("Resolved subregion", zap.String("input", args[0]), zap.String("match", sub.Name))
	}

	if fetchLayer != "" {
		files, err := shp.FindLayerFiles(cfg.DataDir, sub.Name, fetchLayer)
		if err != nil {
			exitWithError("search failed", err)
		}
		if len(files) == 0 {
			log.Warn("No local shapefiles found",
				zap.String("subregion", sub.Name), zap.String("layer", fetchLayer))
			return
		}
		for _, f := range files {
			fmt.Fprintln(os.Stdout, f)
		}
		return
	}

	format := geofabrik.FormatPBF
	if fetchFormat == "shp" {
		format = geofabrik.FormatShapefile
	}
	path, err := newFetcher().Ensure(cmd.Context(), sub, format)
	if err != nil {
		exitWithError("download failed", err)
	}
	log.Info("Extract ready", zap.String("path", path))
}
