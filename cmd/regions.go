package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmtab/internal/geofabrik"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the known Geofabrik subregion names",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range geofabrik.DefaultIndex().Names() {
			fmt.Fprintln(os.Stdout, name)
		}
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
