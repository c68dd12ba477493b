// Package config provides configuration loading for interface
// interpolation. It handles loading from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// InterfacePair names one physical interface: a donor-side marker tag
// and the target-side marker tag coincident with it in space.
type InterfacePair struct {
	Donor  string `yaml:"donor"`
	Target string `yaml:"target"`
}

// Config represents the interpolation configuration loaded from YAML.
type Config struct {
	Interpolation struct {
		// NumNearestNeighbors is the number of donor points per target
		// vertex (k). Must be at least 1.
		NumNearestNeighbors int `yaml:"numNearestNeighbors"`

		// Workers is the number of threads used for the per-vertex
		// search. Defaults to the number of CPUs.
		Workers int `yaml:"workers"`
	} `yaml:"interpolation"`

	// Interfaces lists the marker pairs to interpolate across.
	Interfaces []InterfacePair `yaml:"interfaces"`
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{}
	cfg.Interpolation.NumNearestNeighbors = 1
	cfg.Interpolation.Workers = runtime.NumCPU()
	return cfg
}

// Parse parses a YAML document on top of the defaults and validates
// the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads the configuration from a YAML file. A missing file yields
// the default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Interpolation.NumNearestNeighbors < 1 {
		return fmt.Errorf("config: numNearestNeighbors must be at least 1, got %d", c.Interpolation.NumNearestNeighbors)
	}
	if c.Interpolation.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Interpolation.Workers)
	}

	seen := make(map[InterfacePair]struct{}, len(c.Interfaces))
	for _, pair := range c.Interfaces {
		if pair.Donor == "" || pair.Target == "" {
			return fmt.Errorf("config: interface pair %q -> %q has an empty marker tag", pair.Donor, pair.Target)
		}
		if _, dup := seen[pair]; dup {
			return fmt.Errorf("config: interface pair %q -> %q listed twice", pair.Donor, pair.Target)
		}
		seen[pair] = struct{}{}
	}

	return nil
}
