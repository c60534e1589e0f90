package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCanopyConfigYAML reads a CanopyConfig from a YAML file, starting
// from DefaultCanopyConfig() so an incomplete file only overrides the
// fields it specifies.
func LoadCanopyConfigYAML(path string) (*CanopyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("canopy: reading config %q: %w", path, err)
	}
	cfg := DefaultCanopyConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("canopy: parsing config %q: %w", path, err)
	}
	return cfg, nil
}
