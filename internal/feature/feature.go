// Package feature models annotated polygon features as persisted in per-sample
// GeoJSON feature collections: one square polygon per detected nucleus and one
// larger polygon per delineated tissue region, each carrying a classification
// payload (class name plus display color).
package feature

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ClassStatus describes how a feature's classification payload was resolved
// at load time. Upstream tools emit the payload either as a structured object
// or as a serialized JSON string, and sometimes omit it entirely; resolving
// the variants once at load keeps every later use site on a single shape.
type ClassStatus int

const (
	// ClassAbsent means the feature carried no classification property at all.
	// Tissue features in this state are excluded before region extraction.
	ClassAbsent ClassStatus = iota

	// ClassResolved means the payload parsed into a name (and optional color).
	ClassResolved

	// ClassDefaulted means the payload was present but unparsable and was
	// substituted with an empty-name placeholder. These substitutions are
	// counted per collection so the signal is not lost.
	ClassDefaulted
)

// Classification is the resolved class label of a feature.
type Classification struct {
	Name  string
	Color [3]int
}

// Feature is a single polygon with its resolved classification.
type Feature struct {
	ID      string
	Polygon orb.Polygon
	Class   Classification
	Status  ClassStatus
}

// Collection is an ordered sequence of features loaded from one sample file.
type Collection struct {
	Features []Feature

	// DefaultedLabels counts classification payloads that failed to parse and
	// were substituted with a placeholder.
	DefaultedLabels int
}

// parseClassification resolves the loosely-typed classification property into
// a Classification. The payload is either a structured object, a serialized
// JSON string, or missing.
func parseClassification(raw interface{}) (Classification, ClassStatus) {
	switch v := raw.(type) {
	case nil:
		return Classification{}, ClassAbsent
	case map[string]interface{}:
		return classificationFromMap(v), ClassResolved
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return Classification{}, ClassDefaulted
		}
		return classificationFromMap(m), ClassResolved
	default:
		return Classification{}, ClassDefaulted
	}
}

func classificationFromMap(m map[string]interface{}) Classification {
	var c Classification
	if name, ok := m["name"].(string); ok {
		c.Name = name
	}
	if rgb, ok := m["color"].([]interface{}); ok && len(rgb) == 3 {
		for i, comp := range rgb {
			if f, ok := comp.(float64); ok {
				c.Color[i] = int(f)
			}
		}
	}
	return c
}

// toGeoJSON converts a Feature back to its wire representation. Only
// nuclei-side metadata is carried: the feature ID, the annotation object type,
// and the classification payload in structured form.
func (f Feature) toGeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Polygon)
	gf.ID = f.ID
	gf.Properties = geojson.Properties{
		"objectType": "annotation",
		"classification": map[string]interface{}{
			"name":  f.Class.Name,
			"color": []int{f.Class.Color[0], f.Class.Color[1], f.Class.Color[2]},
		},
	}
	return gf
}

func featureID(gf *geojson.Feature) string {
	switch id := gf.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%v", id)
	default:
		return ""
	}
}
