package aggregate

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/mschuiveling/tilquant/internal/feature"
	"github.com/mschuiveling/tilquant/internal/spatial"
)

// tissueRegions splits a tissue collection into tumor and necrosis polygons.
// Tissue class names are compared lower-cased. Features that carried no
// classification payload at all are excluded before extraction; features with
// an unparsable payload keep their placeholder and simply match no region.
func tissueRegions(tissue *feature.Collection) (tumor, necrosis []orb.Polygon) {
	for _, f := range tissue.Features {
		if f.Status == feature.ClassAbsent {
			continue
		}
		switch strings.ToLower(f.Class.Name) {
		case "tumor":
			tumor = append(tumor, f.Polygon)
		case "necrosis":
			necrosis = append(necrosis, f.Polygon)
		}
	}
	return tumor, necrosis
}

// filterNuclei retains nuclei lying within some tumor polygon and within no
// necrosis polygon, then collapses exact-geometry duplicates. Either region
// set may be empty: no tumor polygons retains nothing, no necrosis polygons
// excludes nothing.
func filterNuclei(nuclei []feature.Feature, tumor, necrosis []orb.Polygon) []feature.Feature {
	var withinTumor []feature.Feature
	for _, n := range nuclei {
		if withinAny(n.Polygon, tumor) {
			withinTumor = append(withinTumor, n)
		}
	}

	retained := withinTumor[:0:0]
	for _, n := range withinTumor {
		if !withinAny(n.Polygon, necrosis) {
			retained = append(retained, n)
		}
	}

	return spatial.DedupeByGeometry(retained, func(f feature.Feature) orb.Polygon {
		return f.Polygon
	})
}

func withinAny(poly orb.Polygon, regions []orb.Polygon) bool {
	for _, r := range regions {
		if spatial.Within(poly, r) {
			return true
		}
	}
	return false
}
