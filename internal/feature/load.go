package feature

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadCollection reads a GeoJSON feature collection from disk and resolves
// each feature's classification payload. Features whose geometry is not a
// polygon are dropped; feature order is otherwise preserved.
func LoadCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	col := &Collection{Features: make([]Feature, 0, len(fc.Features))}
	for _, gf := range fc.Features {
		poly, ok := gf.Geometry.(orb.Polygon)
		if !ok {
			continue
		}

		class, status := parseClassification(gf.Properties["classification"])
		if status == ClassDefaulted {
			col.DefaultedLabels++
		}

		col.Features = append(col.Features, Feature{
			ID:      featureID(gf),
			Polygon: poly,
			Class:   class,
			Status:  status,
		})
	}

	return col, nil
}
