package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
)

// DedupeByGeometry collapses items with exactly identical polygon geometry to
// the first occurrence, preserving order. Exact-shape deduplication is the
// correctness backstop after the necrosis set-difference: multiply overlapping
// region polygons can yield the same nucleus more than once.
func DedupeByGeometry[T any](items []T, geom func(T) orb.Polygon) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := geometryKey(geom(item))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// geometryKey builds an exact textual key for a polygon. Two polygons share a
// key iff their rings and vertices are bitwise-identical in the same order.
func geometryKey(poly orb.Polygon) string {
	return fmt.Sprintf("%v", poly)
}
