package aggregate

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschuiveling/tilquant/internal/config"
	"github.com/mschuiveling/tilquant/internal/feature"
	"github.com/mschuiveling/tilquant/internal/lock"
)

func square(cx, cy, edge float64) orb.Polygon {
	h := edge / 2
	return orb.Polygon{orb.Ring{
		{cx - h, cy - h}, {cx + h, cy - h}, {cx + h, cy + h}, {cx - h, cy + h}, {cx - h, cy - h},
	}}
}

func nucleus(id, class string, cx, cy float64) feature.Feature {
	return feature.Feature{
		ID:      id,
		Polygon: square(cx, cy, 1),
		Class:   feature.Classification{Name: class},
		Status:  feature.ClassResolved,
	}
}

func region(id, class string, poly orb.Polygon) feature.Feature {
	return feature.Feature{
		ID:      id,
		Polygon: poly,
		Class:   feature.Classification{Name: class},
		Status:  feature.ClassResolved,
	}
}

func writeFC(t *testing.T, path string, feats []feature.Feature) {
	t.Helper()
	require.NoError(t, feature.WriteCollection(path, feats))
}

// writeTissue writes a tissue collection padded with trailing whitespace so it
// clears the minimum-size admission check while staying valid JSON.
func writeTissue(t *testing.T, path string, feats []feature.Feature) {
	t.Helper()
	writeFC(t, path, feats)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if len(data) < minTissueBytes {
		data = append(data, bytes.Repeat([]byte(" "), minTissueBytes-len(data)+1)...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

type fixture struct {
	opts     Options
	lockDir  string
	csvPath  func(sample string) string
	lockPath func(sample string) string
	outPath  func(sample string) string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	nucleiDir := filepath.Join(base, "nuclei")
	tissueDir := filepath.Join(base, "tissue")
	resultsDir := filepath.Join(base, "results")
	outDir := filepath.Join(base, "filtered")
	require.NoError(t, os.Mkdir(nucleiDir, 0o755))
	require.NoError(t, os.Mkdir(tissueDir, 0o755))

	return fixture{
		opts: Options{
			NucleiDir:     nucleiDir,
			TissueDir:     tissueDir,
			ResultsDir:    resultsDir,
			GeoJSONOutDir: outDir,
			GridSize:      config.DefaultGridSize,
			Locker:        &lock.FileLocker{Dir: resultsDir},
		},
		lockDir: resultsDir,
		csvPath: func(sample string) string {
			return filepath.Join(resultsDir, sample+".csv")
		},
		lockPath: func(sample string) string {
			return filepath.Join(resultsDir, sample+".lock")
		},
		outPath: func(sample string) string {
			return filepath.Join(outDir, sample+"_nuclei_within_tumor_not_necrosis.geojson")
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_FilterAndGrid(t *testing.T) {
	fx := newFixture(t)

	// Tumor covers [0,10]^2 with a necrotic core at [4,6]^2. Class names in
	// tissue data arrive with arbitrary casing.
	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "Tumor", square(5, 5, 10)),
		region("t2", "Necrosis", square(5, 5, 2)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1), // in tumor, outside necrosis
		nucleus("n2", "nuclei_tumor", 5, 5),      // inside necrosis
		nucleus("n3", "nuclei_other", 20, 20),    // outside tumor
	})

	require.NoError(t, Run(context.Background(), fx.opts))

	col, err := feature.LoadCollection(fx.outPath("s1"))
	require.NoError(t, err)
	require.Len(t, col.Features, 1)
	assert.Equal(t, "n1", col.Features[0].ID)

	rows := readCSV(t, fx.csvPath("s1"))
	require.Len(t, rows, 2, "one cell at the default grid size")
	assert.Equal(t, []string{
		"cell_id", "x_min", "y_min", "x_max", "y_max",
		"total_cnt_nuclei_lymphocyte", "total_cell_cnt", "nuclei_lymphocyte_percentage",
	}, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "0.5", rows[1][1], "grid origin is the retained extent minimum")
	assert.Equal(t, "0.5", rows[1][2])
	assert.Equal(t, "1", rows[1][5])
	assert.Equal(t, "1", rows[1][6])
	assert.Equal(t, "100", rows[1][7])

	_, statErr := os.Stat(fx.lockPath("s1"))
	assert.True(t, os.IsNotExist(statErr), "lock released after success")
}

func TestRun_SkipSmallTissue(t *testing.T) {
	fx := newFixture(t)

	// Unpadded tissue file stays below the size threshold.
	writeFC(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
	})

	require.NoError(t, Run(context.Background(), fx.opts))

	_, err := os.Stat(fx.csvPath("s1"))
	assert.True(t, os.IsNotExist(err), "no table for skipped sample")
	_, err = os.Stat(fx.lockPath("s1"))
	assert.True(t, os.IsNotExist(err), "skip leaves no lock behind")
	_, err = os.Stat(fx.outPath("s1"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SkipLocked(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
	})

	require.NoError(t, os.MkdirAll(fx.lockDir, 0o755))
	require.NoError(t, fx.opts.Locker.Acquire(ctx, "s1"))

	require.NoError(t, Run(ctx, fx.opts))

	_, err := os.Stat(fx.csvPath("s1"))
	assert.True(t, os.IsNotExist(err), "locked sample is not processed")
	_, err = os.Stat(fx.lockPath("s1"))
	assert.NoError(t, err, "foreign lock is left in place")
}

func TestRun_SkipExistingTable(t *testing.T) {
	fx := newFixture(t)

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
	})

	require.NoError(t, os.MkdirAll(fx.opts.ResultsDir, 0o755))
	require.NoError(t, os.WriteFile(fx.csvPath("s1"), []byte("sentinel"), 0o644))

	require.NoError(t, Run(context.Background(), fx.opts))

	data, err := os.ReadFile(fx.csvPath("s1"))
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(data), "existing table is never overwritten")
	_, err = os.Stat(fx.outPath("s1"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SkipsSamplesMissingFromEitherDir(t *testing.T) {
	fx := newFixture(t)

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "only-tissue.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "only-nuclei.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
	})

	require.NoError(t, Run(context.Background(), fx.opts))

	for _, sample := range []string{"only-tissue", "only-nuclei"} {
		_, err := os.Stat(fx.csvPath(sample))
		assert.True(t, os.IsNotExist(err), sample)
	}
}

func TestRun_DeduplicatesIdenticalNuclei(t *testing.T) {
	fx := newFixture(t)

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 2, 2),
		nucleus("n2", "nuclei_lymphocyte", 2, 2), // exact duplicate geometry
		nucleus("n3", "nuclei_tumor", 7, 7),
	})

	require.NoError(t, Run(context.Background(), fx.opts))

	col, err := feature.LoadCollection(fx.outPath("s1"))
	require.NoError(t, err)
	require.Len(t, col.Features, 2)
	assert.Equal(t, "n1", col.Features[0].ID, "first duplicate wins")
	assert.Equal(t, "n3", col.Features[1].ID)
}

func TestRun_NoTumorRetainsNothing(t *testing.T) {
	fx := newFixture(t)

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "stroma", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 5, 5),
	})

	require.NoError(t, Run(context.Background(), fx.opts))

	col, err := feature.LoadCollection(fx.outPath("s1"))
	require.NoError(t, err)
	assert.Empty(t, col.Features, "empty collection is still written")

	_, err = os.Stat(fx.csvPath("s1"))
	assert.True(t, os.IsNotExist(err), "no table when nothing was retained")
	_, err = os.Stat(fx.lockPath("s1"))
	assert.True(t, os.IsNotExist(err), "lock released even without a table")
}

func TestProcessSample_LockRetainedOnFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	writeTissue(t, filepath.Join(fx.opts.TissueDir, "s1.geojson"), []feature.Feature{
		region("t1", "tumor", square(5, 5, 10)),
	})
	writeFC(t, filepath.Join(fx.opts.NucleiDir, "s1.geojson"), []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
	})
	require.NoError(t, os.MkdirAll(fx.lockDir, 0o755))

	// A regular file where the output directory should be makes the collection
	// write fail after the lock was taken.
	require.NoError(t, os.WriteFile(fx.opts.GeoJSONOutDir, []byte("in the way"), 0o644))

	processSample(ctx, fx.opts, "s1")

	_, err := os.Stat(fx.lockPath("s1"))
	assert.NoError(t, err, "lock kept as the failure marker")
	_, err = os.Stat(fx.csvPath("s1"))
	assert.True(t, os.IsNotExist(err))
}

func TestTissueRegions(t *testing.T) {
	col := &feature.Collection{Features: []feature.Feature{
		region("t1", "TUMOR", square(1, 1, 2)),
		region("t2", "necrosis", square(5, 5, 2)),
		region("t3", "stroma", square(9, 9, 2)),
		{ID: "t4", Polygon: square(3, 3, 2), Status: feature.ClassAbsent},
	}}

	tumor, necrosis := tissueRegions(col)
	assert.Len(t, tumor, 1)
	assert.Len(t, necrosis, 1)
}

func TestComputeGridStats_MultiClass(t *testing.T) {
	nuclei := []feature.Feature{
		nucleus("n1", "nuclei_lymphocyte", 1, 1),
		nucleus("n2", "nuclei_lymphocyte", 2, 2),
		nucleus("n3", "nuclei_tumor", 3, 3),
		nucleus("n4", "nuclei_tumor", 4, 4),
	}

	stats := computeGridStats(nuclei, 100)

	require.Equal(t, 1, stats.Grid.NumCells())
	require.Equal(t, []string{"nuclei_lymphocyte", "nuclei_tumor"}, stats.Classes)
	assert.Equal(t, []int{2, 2}, stats.Counts[0])
	assert.Equal(t, 4, stats.Totals[0])
	assert.Equal(t, 50.0, stats.Percentage(0, 0))
	assert.Equal(t, 50.0, stats.Percentage(0, 1))
}

func TestComputeGridStats_BoundaryNucleusCountsInTouchingCells(t *testing.T) {
	// Anchor nuclei pin the extent to [0,20]^2 so the grid has four 10x10
	// cells; the third nucleus straddles the shared corner at (10,10).
	nuclei := []feature.Feature{
		nucleus("a", "nuclei_tumor", 0.5, 0.5),
		nucleus("b", "nuclei_tumor", 19.5, 19.5),
		nucleus("c", "nuclei_lymphocyte", 10, 10),
	}

	stats := computeGridStats(nuclei, 10)

	require.Equal(t, 4, stats.Grid.NumCells())
	li := 0 // nuclei_lymphocyte sorts first
	require.Equal(t, "nuclei_lymphocyte", stats.Classes[li])
	for cell := 0; cell < 4; cell++ {
		assert.Equal(t, 1, stats.Counts[cell][li], "cell %d", cell)
	}
}

func TestGridStats_PercentageEmptyCell(t *testing.T) {
	// Two distant nuclei leave the intermediate cells empty.
	nuclei := []feature.Feature{
		nucleus("a", "nuclei_tumor", 0.5, 0.5),
		nucleus("b", "nuclei_tumor", 25, 0.5),
	}

	stats := computeGridStats(nuclei, 10)
	require.Greater(t, stats.Grid.NumCells(), 2)

	foundEmpty := false
	for cell := 0; cell < stats.Grid.NumCells(); cell++ {
		if stats.Totals[cell] == 0 {
			foundEmpty = true
			assert.Equal(t, 0.0, stats.Percentage(cell, 0), "empty cell reports zero, not NaN")
		}
	}
	assert.True(t, foundEmpty)
}
