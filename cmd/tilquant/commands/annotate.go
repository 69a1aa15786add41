package commands

import (
	"github.com/spf13/cobra"

	"github.com/mschuiveling/tilquant/internal/annotate"
	"github.com/mschuiveling/tilquant/internal/config"
)

var (
	annotateInputDir string
	annotateConfig   string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Synthesize GeoJSON feature collections from TSV point tables",
	Long: `Synthesize one GeoJSON feature collection per sample subfolder.

Each subfolder of the input directory holds TSV files with one detected
nucleus per row (columns x, y, name). Every row becomes a small square
polygon feature centered on the point, classified by name with a display
color. The collection is written next to the subfolder as <subfolder>.geojson
and subfolders with an existing output are skipped.

Examples:
  # Process all sample subfolders
  tilquant annotate --input-dir /data/detections

  # Override the class color table
  tilquant annotate --input-dir /data/detections --config tilquant.yml`,
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringVarP(&annotateInputDir, "input-dir", "i", "", "Directory containing sample subfolders with TSV files (required)")
	annotateCmd.Flags().StringVarP(&annotateConfig, "config", "c", "", "Optional YAML config file")
	annotateCmd.MarkFlagRequired("input-dir")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(annotateConfig)
	if err != nil {
		return err
	}

	return annotate.Run(annotate.Options{
		InputDir:   annotateInputDir,
		Colors:     cfg.Colors,
		EdgeLength: cfg.EdgeLength,
	})
}
