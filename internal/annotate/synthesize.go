// Package annotate converts per-cell point annotations (TSV rows of x, y and
// class name) into GeoJSON feature collections, one per sample subfolder.
package annotate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mschuiveling/tilquant/internal/feature"
	"github.com/mschuiveling/tilquant/internal/printer"
)

// Options configures a synthesis run. Colors is an immutable lookup passed in
// explicitly; class names absent from it render black.
type Options struct {
	InputDir   string
	Colors     map[string][3]uint8
	EdgeLength float64
}

// Run processes every sample subfolder of InputDir in descending name order.
// Each subfolder's TSV rows become one feature collection written atomically
// to InputDir as <subfolder>.geojson. Subfolders whose output already exists
// are skipped entirely; reprocessing is expensive, so outputs are
// at-most-once and never merged or overwritten.
//
// A malformed TSV row aborts the whole run. This asymmetry with the
// per-sample containment of the aggregation stage is deliberate: a broken
// detection table upstream should be noticed, not papered over.
func Run(opts Options) error {
	entries, err := os.ReadDir(opts.InputDir)
	if err != nil {
		return fmt.Errorf("failed to read input directory: %w", err)
	}

	var subfolders []string
	for _, e := range entries {
		if e.IsDir() {
			subfolders = append(subfolders, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(subfolders)))

	for _, name := range subfolders {
		outPath := filepath.Join(opts.InputDir, name+".geojson")
		if _, err := os.Stat(outPath); err == nil {
			printer.Skip(name, "output file already exists")
			continue
		}

		if err := synthesizeSubfolder(filepath.Join(opts.InputDir, name), outPath, opts); err != nil {
			return err
		}
	}

	printer.Info("Done!\n")
	return nil
}

func synthesizeSubfolder(dir, outPath string, opts Options) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var tsvs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tsv") {
			tsvs = append(tsvs, e.Name())
		}
	}
	if len(tsvs) == 0 {
		printer.Warning("no TSV files found in %s, skipping\n", dir)
		return nil
	}

	fc := geojson.NewFeatureCollection()
	for _, name := range tsvs {
		path := filepath.Join(dir, name)
		printer.Info("processing %s\n", path)
		if err := appendRows(fc, path, opts); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feature collection: %w", err)
	}
	if err := feature.WriteFileAtomic(outPath, data); err != nil {
		return err
	}

	printer.Success("created %s (%d features)\n", outPath, len(fc.Features))
	return nil
}

// appendRows reads one TSV file and appends a square feature per row.
// Row order is preserved.
func appendRows(fc *geojson.FeatureCollection, path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	xCol, yCol, nameCol := -1, -1, -1
	for i, col := range header {
		switch col {
		case "x":
			xCol = i
		case "y":
			yCol = i
		case "name":
			nameCol = i
		}
	}
	if xCol < 0 || yCol < 0 || nameCol < 0 {
		return fmt.Errorf("%s: header must contain x, y and name columns, got %v", path, header)
	}

	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read rows of %s: %w", path, err)
	}

	for i, rec := range records {
		x, err := strconv.ParseFloat(rec[xCol], 64)
		if err != nil {
			return fmt.Errorf("%s row %d: invalid x %q: %w", path, i+1, rec[xCol], err)
		}
		y, err := strconv.ParseFloat(rec[yCol], 64)
		if err != nil {
			return fmt.Errorf("%s row %d: invalid y %q: %w", path, i+1, rec[yCol], err)
		}

		fc.Append(newAnnotation(x, y, rec[nameCol], opts))
	}
	return nil
}

func newAnnotation(x, y float64, className string, opts Options) *geojson.Feature {
	gf := geojson.NewFeature(SquarePolygon(x, y, opts.EdgeLength))
	gf.ID = uuid.New().String()

	rgb, ok := opts.Colors[className]
	if !ok {
		rgb = [3]uint8{0, 0, 0}
	}

	gf.Properties = geojson.Properties{
		"objectType": "annotation",
		"classification": map[string]interface{}{
			"name":  className,
			"color": []int{int(rgb[0]), int(rgb[1]), int(rgb[2])},
		},
	}
	return gf
}

// SquarePolygon builds an axis-aligned square of the given edge length
// centered on (x, y): a closed 5-point ring starting at the bottom-left
// vertex, counter-clockwise.
func SquarePolygon(x, y, edge float64) orb.Polygon {
	h := edge / 2
	return orb.Polygon{orb.Ring{
		{x - h, y - h},
		{x + h, y - h},
		{x + h, y + h},
		{x - h, y + h},
		{x - h, y - h},
	}}
}
