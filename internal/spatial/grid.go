package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// Grid is a regular tiling of a bounding extent into square cells. Stride
// equals cell size, so cells neither overlap nor leave gaps; cells on the max
// edges may extend past the extent to cover it fully.
type Grid struct {
	Origin   orb.Point
	CellSize float64
	Cols     int
	Rows     int
}

// NewGrid tiles the given extent with cells of the given size. A degenerate
// extent (zero width or height) still yields at least one cell in each
// dimension.
func NewGrid(extent orb.Bound, size float64) Grid {
	cols := int(math.Ceil((extent.Max[0] - extent.Min[0]) / size))
	rows := int(math.Ceil((extent.Max[1] - extent.Min[1]) / size))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return Grid{
		Origin:   extent.Min,
		CellSize: size,
		Cols:     cols,
		Rows:     rows,
	}
}

// NumCells returns the total number of cells in the grid.
func (g Grid) NumCells() int {
	return g.Cols * g.Rows
}

// CellBound returns the bounding box of cell i. Cells are numbered row-major
// from the grid origin.
func (g Grid) CellBound(i int) orb.Bound {
	col := i % g.Cols
	row := i / g.Cols
	min := orb.Point{
		g.Origin[0] + float64(col)*g.CellSize,
		g.Origin[1] + float64(row)*g.CellSize,
	}
	return orb.Bound{
		Min: min,
		Max: orb.Point{min[0] + g.CellSize, min[1] + g.CellSize},
	}
}

// OverlappingCells returns the indices of all cells whose bound intersects b.
// A bound lying exactly on a cell edge intersects every touching cell. The
// candidate index range is derived arithmetically, so the cost is independent
// of grid size.
func (g Grid) OverlappingCells(b orb.Bound) []int {
	c0 := g.clampCol(int(math.Floor((b.Min[0]-g.Origin[0])/g.CellSize)) - 1)
	c1 := g.clampCol(int(math.Floor((b.Max[0]-g.Origin[0])/g.CellSize)) + 1)
	r0 := g.clampRow(int(math.Floor((b.Min[1]-g.Origin[1])/g.CellSize)) - 1)
	r1 := g.clampRow(int(math.Floor((b.Max[1]-g.Origin[1])/g.CellSize)) + 1)

	var cells []int
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			i := row*g.Cols + col
			if g.CellBound(i).Intersects(b) {
				cells = append(cells, i)
			}
		}
	}
	return cells
}

// IntersectsBound reports whether the polygon overlaps the axis-aligned
// bound, boundary contact included. Used for assigning nuclei to grid cells:
// a nucleus on a cell edge counts in every touching cell.
func IntersectsBound(poly orb.Polygon, b orb.Bound) bool {
	if len(poly) == 0 || !poly.Bound().Intersects(b) {
		return false
	}
	for _, p := range poly[0] {
		if b.Contains(p) {
			return true
		}
	}
	corners := []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}}
	for _, c := range corners {
		if PolygonContains(poly, c) {
			return true
		}
	}
	return ringsCross(poly[0], b.ToRing())
}

func (g Grid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.Cols {
		return g.Cols - 1
	}
	return c
}

func (g Grid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.Rows {
		return g.Rows - 1
	}
	return r
}
