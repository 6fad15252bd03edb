// Package config provides configuration loading and management for
// neurotrace. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Threshold is the foreground intensity threshold; a negative
		// value requests a data-driven (Otsu) threshold
		Threshold float64 `yaml:"threshold"`

		// ZoomFactor is the isotropic resampling factor applied to the
		// cropped volume before tracing; 1 disables resampling
		ZoomFactor float64 `yaml:"zoomFactor"`

		// Clean removes disconnected skeleton fragments after tracing
		Clean bool `yaml:"clean"`

		// PushIterations is the number of node-pushing refinement rounds
		PushIterations int `yaml:"pushIterations"`
	} `yaml:"processing"`

	// Tracer flags passed to the centerline extractor
	Tracer struct {
		// Quality enables the slower, more accurate radius estimation
		Quality bool `yaml:"quality"`

		// Speed trades radius accuracy for throughput
		Speed bool `yaml:"speed"`

		// NonStop returns an empty tree on degenerate input instead of failing
		NonStop bool `yaml:"nonStop"`

		// Silent suppresses tracer progress output
		Silent bool `yaml:"silent"`
	} `yaml:"tracer"`

	// Output parameters
	Output struct {
		// SaveSoma writes the restored soma mask as a NIfTI file
		SaveSoma bool `yaml:"saveSoma"`

		// WorldCoordinates projects the tree into physical space before export
		WorldCoordinates bool `yaml:"worldCoordinates"`

		// MeshExport additionally writes a polyline mesh for visualization
		MeshExport bool `yaml:"meshExport"`

		// SaveIntermediaryResults saves slice images of intermediate stages
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.Threshold = -1 // auto
	cfg.Processing.ZoomFactor = 1.0
	cfg.Processing.Clean = true
	cfg.Processing.PushIterations = 0

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
