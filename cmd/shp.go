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
	shpLayer        string
	shpFeature      string
	shpOut          string
	shpKeepExtracts bool
)

var shpCmd = &cobra.Command{
	Use:   "shp",
	Short: "Work with the pre-rendered shapefile flavour of extracts",
}

var shpReadCmd = &cobra.Command{
	Use:   "read <subregion>",
	Short: "Read one layer of a subregion's shapefile archive",
	Long: `Ensure the subregion's .shp.zip archive is downloaded, extract the layer's
component shapefiles and read them into a table. With --feature only rows
of that feature class are kept.`,
	Args: cobra.ExactArgs(1),
	Run:  runShpRead,
}

var shpMergeCmd = &cobra.Command{
	Use:   "merge <subregion>...",
	Short: "Merge one layer across subregions into a single shapefile",
	Long: `Ensure every subregion's .shp.zip archive is downloaded (in parallel),
then merge the layer's component shapefiles from all of them into one
output shapefile.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runShpMerge,
}

func init() {
	rootCmd.AddCommand(shpCmd)
	shpCmd.AddCommand(shpReadCmd, shpMergeCmd)

	shpCmd.PersistentFlags().StringVarP(&shpLayer, "layer", "l", "pois", "Shapefile layer (pois, roads, buildings, ...)")
	shpCmd.PersistentFlags().BoolVar(&shpKeepExtracts, "keep-extracts", false, "Keep extracted .shp components after reading")
	shpReadCmd.Flags().StringVar(&shpFeature, "feature", "", "Keep only rows with this fclass value")
	shpMergeCmd.Flags().StringVarP(&shpOut, "out", "o", "merged.shp", "Output shapefile path")
}

func newShpService() *shp.Service {
	return shp.NewService(newFetcher(), cfg.DataDir, shpKeepExtracts, cfg.Update, logger.Named("shp"))
}

func runShpRead(cmd *cobra.Command, args []string) {
	sub, err := geofabrik.DefaultIndex().Resolve(args[0])
	if err != nil {
		exitWithError("unknown subregion", err)
	}

	tbl, err := newShpService().ReadLayer(cmd.Context(), sub, shpLayer, shpFeature)
	if err != nil {
		exitWithError("shapefile read failed", err)
	}

	fmt.Fprintf(os.Stdout, "%s/%s: %d rows, %d columns\n",
		sub.Name, shpLayer, tbl.Len(), len(tbl.Columns()))
	for _, col := range tbl.Columns() {
		fmt.Fprintf(os.Stdout, "  %s\n", col)
	}
}

func runShpMerge(cmd *cobra.Command, args []string) {
	index := geofabrik.DefaultIndex()
	subs := make([]geofabrik.Subregion, len(args))
	for i, name := range args {
		sub, err := index.Resolve(name)
		if err != nil {
			exitWithError("unknown subregion", err)
		}
		subs[i] = sub
	}

	if err := newShpService().MergeLayer(cmd.Context(), subs, shpLayer, shpOut); err != nil {
		exitWithError("merge failed", err)
	}
	logger.Get().Info("Merged shapefile written",
		zap.String("layer", shpLayer), zap.String("out", shpOut))
}
