// Package aggregate implements the tumor-region filter and grid aggregation
// stage: for each sample with both a nuclei and a tissue feature collection,
// it retains the nuclei within tumor and outside necrosis, persists them as a
// collection, and writes per-grid-cell class composition statistics.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mschuiveling/tilquant/internal/feature"
	"github.com/mschuiveling/tilquant/internal/lock"
	"github.com/mschuiveling/tilquant/internal/printer"
)

// minTissueBytes is the minimum size of a usable tissue file. Anything
// smaller holds no real tissue delineation.
const minTissueBytes = 2 * 1024

// Options configures an aggregation run.
type Options struct {
	NucleiDir     string
	TissueDir     string
	ResultsDir    string
	GeoJSONOutDir string
	GridSize      float64
	Locker        lock.Locker
}

// Run processes every sample present in both the nuclei and tissue
// directories, in ascending name order. Per-sample failures are logged and
// contained; Run only fails on setup errors.
func Run(ctx context.Context, opts Options) error {
	if err := os.MkdirAll(opts.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	if err := os.MkdirAll(opts.GeoJSONOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create geojson output directory: %w", err)
	}

	samples, err := sharedSamples(opts.NucleiDir, opts.TissueDir)
	if err != nil {
		return err
	}

	for _, sample := range samples {
		processSample(ctx, opts, sample)
	}

	printer.Info("No more files to analyze; done\n")
	return nil
}

// sharedSamples lists the sample names (file stems) with a .geojson file in
// both directories.
func sharedSamples(nucleiDir, tissueDir string) ([]string, error) {
	nuclei, err := geojsonStems(nucleiDir)
	if err != nil {
		return nil, err
	}
	tissue, err := geojsonStems(tissueDir)
	if err != nil {
		return nil, err
	}

	var samples []string
	for s := range nuclei {
		if _, ok := tissue[s]; ok {
			samples = append(samples, s)
		}
	}
	sort.Strings(samples)
	return samples, nil
}

func geojsonStems(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	stems := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".geojson") {
			stems[strings.TrimSuffix(e.Name(), ".geojson")] = struct{}{}
		}
	}
	return stems, nil
}

// processSample runs the skip checks and, once admitted, the filter and grid
// steps for one sample. All failures are contained here.
//
// The lock marker is acquired after the admission checks and released only on
// success: a failure in the filter or grid steps leaves the marker held, so
// the sample reads as "failed, needs operator attention" rather than being
// silently retried forever.
func processSample(ctx context.Context, opts Options, sample string) {
	csvPath := filepath.Join(opts.ResultsDir, sample+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		printer.Skip(sample, "output table already exists")
		return
	}

	held, err := opts.Locker.Held(ctx, sample)
	if err != nil {
		printer.Errorf("%s: %v\n", sample, err)
		return
	}
	if held {
		printer.Skip(sample, "locked")
		return
	}

	tissuePath := filepath.Join(opts.TissueDir, sample+".geojson")
	if info, err := os.Stat(tissuePath); err != nil {
		printer.Skip(sample, fmt.Sprintf("cannot stat tissue file: %v", err))
		return
	} else if info.Size() < minTissueBytes {
		printer.Skip(sample, "tissue file smaller than 2KiB")
		return
	}

	tissue, err := feature.LoadCollection(tissuePath)
	if err != nil {
		printer.Skip(sample, fmt.Sprintf("error loading tissue data: %v", err))
		return
	}
	nuclei, err := feature.LoadCollection(filepath.Join(opts.NucleiDir, sample+".geojson"))
	if err != nil {
		printer.Skip(sample, fmt.Sprintf("error loading nuclei data: %v", err))
		return
	}

	if err := opts.Locker.Acquire(ctx, sample); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			printer.Skip(sample, "locked")
		} else {
			printer.Errorf("%s: %v\n", sample, err)
		}
		return
	}

	printer.Info("processing %s\n", sample)
	if defaulted := tissue.DefaultedLabels + nuclei.DefaultedLabels; defaulted > 0 {
		printer.Warning("%s: %d classification labels failed to parse and were defaulted\n", sample, defaulted)
	}

	wroteTable, err := analyzeSample(opts, sample, tissue, nuclei, csvPath)
	if err != nil {
		// Lock deliberately kept: the stale marker is the failure status.
		printer.Errorf("%s: %v (lock retained, clear it to retry)\n", sample, err)
		return
	}

	if err := opts.Locker.Release(ctx, sample); err != nil {
		printer.Errorf("%s: %v\n", sample, err)
		return
	}

	if wroteTable {
		printer.Success("%s analyzed\n", sample)
	}
}

// analyzeSample performs the spatial filtering and grid aggregation.
// Returns whether a statistics table was written; a sample whose filter
// retains no nuclei yields a feature collection but no table.
func analyzeSample(opts Options, sample string, tissue, nuclei *feature.Collection, csvPath string) (bool, error) {
	tumor, necrosis := tissueRegions(tissue)
	retained := filterNuclei(nuclei.Features, tumor, necrosis)

	outPath := filepath.Join(opts.GeoJSONOutDir, sample+"_nuclei_within_tumor_not_necrosis.geojson")
	if err := feature.WriteCollection(outPath, retained); err != nil {
		return false, err
	}

	if len(retained) == 0 {
		printer.Warning("%s: no nuclei within tumor outside necrosis, skipping grid statistics\n", sample)
		return false, nil
	}

	stats := computeGridStats(retained, opts.GridSize)
	if err := writeCSV(csvPath, stats); err != nil {
		return false, err
	}
	return true, nil
}
