// Package spatial implements the planar predicates and grid aggregation used
// by the tumor-region filter. Geometries are orb types; the polygon-level
// predicates are built from ray-cast containment and segment orientation
// tests, which is sufficient for the simple, non-self-intersecting polygons
// produced by tissue delineation and annotation synthesis.
package spatial

import "github.com/paulmach/orb"

// RingContains reports whether p lies inside the ring, using ray casting.
// Points exactly on the ring boundary are not handled consistently; callers
// relying on boundary behavior should not.
func RingContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := ring[i], ring[j]

		if ((pi[1] > p[1]) != (pj[1] > p[1])) &&
			(p[0] < (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1])+pi[0]) {
			inside = !inside
		}
	}
	return inside
}

// PolygonContains reports whether p lies inside the polygon: inside the outer
// ring and outside every hole.
func PolygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || !RingContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if RingContains(hole, p) {
			return false
		}
	}
	return true
}

// Within reports whether inner lies entirely within outer: every vertex of
// inner is contained in outer and no edge of inner properly crosses an edge
// of outer.
func Within(inner, outer orb.Polygon) bool {
	if len(inner) == 0 || len(outer) == 0 {
		return false
	}

	ib, ob := inner.Bound(), outer.Bound()
	if !ob.Contains(ib.Min) || !ob.Contains(ib.Max) {
		return false
	}

	for _, ring := range inner {
		for _, p := range ring {
			if !PolygonContains(outer, p) {
				return false
			}
		}
	}

	for _, iring := range inner {
		for _, oring := range outer {
			if ringsCross(iring, oring) {
				return false
			}
		}
	}

	// A hole of outer swallowed whole by inner produces no edge crossing but
	// still punches through inner's interior.
	for _, hole := range outer[1:] {
		for _, p := range hole {
			if PolygonContains(inner, p) {
				return false
			}
		}
	}
	return true
}

// Intersects reports whether the two polygons overlap at all. A containment
// check in either direction catches the no-edge-crossing cases.
func Intersects(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	if PolygonContains(b, a[0][0]) || PolygonContains(a, b[0][0]) {
		return true
	}
	for _, ar := range a {
		for _, br := range b {
			if ringsCross(ar, br) {
				return true
			}
		}
	}
	return false
}

// ringsCross reports whether any edge of a properly crosses any edge of b.
func ringsCross(a, b orb.Ring) bool {
	for i := 0; i < len(a)-1; i++ {
		for j := 0; j < len(b)-1; j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports whether segments p1-p2 and p3-p4 properly intersect
// (cross at a single interior point). Shared endpoints and collinear touches
// do not count.
func segmentsCross(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// cross computes the cross product of vectors OA and OB.
func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
