package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tilquant",
	Short: "Tilquant - spatial quantification of nucleus annotations",
	Long: `Tilquant turns per-cell point annotations from a tissue-image analysis
pipeline into spatial feature collections, then computes the class
composition of cell nuclei per grid cell within tumor tissue and outside
necrotic tissue.

Two batch stages are provided:
  annotate   synthesize GeoJSON feature collections from TSV point tables
  aggregate  filter nuclei to tumor regions and compute grid statistics`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
