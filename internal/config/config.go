package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultGridSize is the aggregation grid cell edge in pixels: 200 micrometers
// at 0.227 micrometers per pixel.
const DefaultGridSize = 880.6693086745927

// DefaultEdgeLength is the edge of the square polygon synthesized around each
// nucleus centroid, in pixels.
const DefaultEdgeLength = 15.0

// Config holds the tunable parameters shared by the annotate and aggregate
// commands. It is loaded from an optional YAML file; zero-valued fields fall
// back to the compiled-in defaults.
type Config struct {
	// Colors maps nucleus class names to display colors. When set it replaces
	// the default table entirely; unmapped class names always render black.
	Colors map[string][3]uint8 `yaml:"colors,omitempty"`

	// EdgeLength is the synthesized square polygon edge in pixels.
	EdgeLength float64 `yaml:"edge_length,omitempty"`

	// GridSize is the aggregation grid cell edge in pixels.
	GridSize float64 `yaml:"grid_size,omitempty"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Colors: map[string][3]uint8{
			"nuclei_lymphocyte": {0, 255, 255}, // cyan
			"nuclei_tumor":      {255, 0, 0},   // red
			"nuclei_other":      {255, 255, 0}, // yellow
		},
		EdgeLength: DefaultEdgeLength,
		GridSize:   DefaultGridSize,
	}
}

// Load reads a YAML configuration file and merges it over the defaults.
// An empty path returns Default() unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if loaded.Colors != nil {
		cfg.Colors = loaded.Colors
	}
	if loaded.EdgeLength != 0 {
		cfg.EdgeLength = loaded.EdgeLength
	}
	if loaded.GridSize != 0 {
		cfg.GridSize = loaded.GridSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if len(c.Colors) == 0 {
		return fmt.Errorf("no colors defined")
	}
	for name := range c.Colors {
		if name == "" {
			return fmt.Errorf("color table contains an empty class name")
		}
	}
	if c.EdgeLength <= 0 {
		return fmt.Errorf("edge_length must be positive, got %v", c.EdgeLength)
	}
	if c.GridSize <= 0 {
		return fmt.Errorf("grid_size must be positive, got %v", c.GridSize)
	}
	return nil
}
