package aggregate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/mschuiveling/tilquant/internal/feature"
	"github.com/mschuiveling/tilquant/internal/spatial"
)

// GridStats holds per-cell, per-class nucleus counts over a regular grid
// tiling the retained nuclei's extent.
type GridStats struct {
	Grid    spatial.Grid
	Classes []string // sorted class names observed among the nuclei
	Counts  [][]int  // [cell][class]
	Totals  []int    // [cell], sum across classes
}

// computeGridStats tiles the bounding extent of the nuclei into cells of the
// given size and counts, per cell and per class, the nuclei intersecting the
// cell. The intersects predicate is deliberate: a nucleus overlapping a cell
// boundary counts in every touching cell.
func computeGridStats(nuclei []feature.Feature, cellSize float64) *GridStats {
	extent := nuclei[0].Polygon.Bound()
	for _, n := range nuclei[1:] {
		extent = extent.Union(n.Polygon.Bound())
	}

	classIdx := make(map[string]int)
	var classes []string
	for _, n := range nuclei {
		if _, ok := classIdx[n.Class.Name]; !ok {
			classIdx[n.Class.Name] = 0
			classes = append(classes, n.Class.Name)
		}
	}
	sort.Strings(classes)
	for i, c := range classes {
		classIdx[c] = i
	}

	grid := spatial.NewGrid(extent, cellSize)
	counts := make([][]int, grid.NumCells())
	for i := range counts {
		counts[i] = make([]int, len(classes))
	}

	for _, n := range nuclei {
		ci := classIdx[n.Class.Name]
		for _, cell := range grid.OverlappingCells(n.Polygon.Bound()) {
			if spatial.IntersectsBound(n.Polygon, grid.CellBound(cell)) {
				counts[cell][ci]++
			}
		}
	}

	totals := make([]int, grid.NumCells())
	for i, row := range counts {
		for _, c := range row {
			totals[i] += c
		}
	}

	return &GridStats{Grid: grid, Classes: classes, Counts: counts, Totals: totals}
}

// Percentage returns 100 * count / total for the given cell and class index,
// or 0 when the cell is empty. Never NaN.
func (s *GridStats) Percentage(cell, class int) float64 {
	if s.Totals[cell] == 0 {
		return 0
	}
	return 100 * float64(s.Counts[cell][class]) / float64(s.Totals[cell])
}

// writeCSV persists the grid as a table, one row per cell: cell identity and
// bounds, per-class counts, total, and per-class percentages.
func writeCSV(path string, s *GridStats) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"cell_id", "x_min", "y_min", "x_max", "y_max"}
	for _, c := range s.Classes {
		header = append(header, "total_cnt_"+c)
	}
	header = append(header, "total_cell_cnt")
	for _, c := range s.Classes {
		header = append(header, c+"_percentage")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for cell := 0; cell < s.Grid.NumCells(); cell++ {
		b := s.Grid.CellBound(cell)
		row := []string{
			strconv.Itoa(cell),
			formatFloat(b.Min[0]),
			formatFloat(b.Min[1]),
			formatFloat(b.Max[0]),
			formatFloat(b.Max[1]),
		}
		for class := range s.Classes {
			row = append(row, strconv.Itoa(s.Counts[cell][class]))
		}
		row = append(row, strconv.Itoa(s.Totals[cell]))
		for class := range s.Classes {
			row = append(row, strconv.FormatFloat(s.Percentage(cell, class), 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return feature.WriteFileAtomic(path, buf.Bytes())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
