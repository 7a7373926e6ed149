// Package config provides configuration loading and management for stackalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AlignConfig holds the alignment settings shared by the alignment tools.
type AlignConfig struct {
	// SubPixelFactor is the upsampling factor of the 2D shift refinement.
	// Values <= 1 disable sub-pixel refinement.
	SubPixelFactor int `yaml:"subPixelFactor" env:"STACKALIGN_SUBPIXEL_FACTOR"`

	// SmoothAmount is the moving-average window, in samples, applied to
	// profiles before single-axis correlation
	SmoothAmount int `yaml:"smoothAmount" env:"STACKALIGN_SMOOTH_AMOUNT"`

	// Sobel2D enables Sobel edge filtering before 2D estimation
	Sobel2D bool `yaml:"sobel2d" env:"STACKALIGN_SOBEL2D"`

	// Hanning2D enables Hann window apodization before 2D estimation
	Hanning2D bool `yaml:"hanning2d" env:"STACKALIGN_HANNING2D"`

	// NormalizeCorr turns 2D cross-correlation into phase correlation
	NormalizeCorr bool `yaml:"normalizeCorr" env:"STACKALIGN_NORMALIZE_CORR"`

	// InterpolationPoints is the upsampling factor of the 1D estimator
	InterpolationPoints int `yaml:"interpolationPoints" env:"STACKALIGN_INTERPOLATION_POINTS"`

	// FillValue is written where aligned frames have no data
	FillValue float64 `yaml:"fillValue" env:"STACKALIGN_FILL_VALUE"`

	// NumCores specifies how many frames are registered in parallel
	NumCores int `yaml:"numCores" env:"STACKALIGN_NUM_CORES"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Alignment parameters
	Align AlignConfig `yaml:"align"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" env:"STACKALIGN_VERBOSE"`

		// LogFormat selects the log handler, "text" or "json"
		LogFormat string `yaml:"logFormat" env:"STACKALIGN_LOG_FORMAT"`
	} `yaml:"output"`
}

// DefaultAlignConfig returns the alignment defaults of the align tools
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{
		SubPixelFactor:      20,
		SmoothAmount:        50,
		Sobel2D:             true,
		Hanning2D:           true,
		InterpolationPoints: 5,
		NumCores:            runtime.NumCPU(), // Use all available cores by default
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Align = DefaultAlignConfig()

	// Set default output parameters
	cfg.Output.Verbose = true
	cfg.Output.LogFormat = "text"

	return cfg
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Align.SmoothAmount < 1 {
		return fmt.Errorf("smoothAmount must be at least 1, got %d", c.Align.SmoothAmount)
	}
	if c.Align.SubPixelFactor < 0 {
		return fmt.Errorf("subPixelFactor must not be negative, got %d", c.Align.SubPixelFactor)
	}
	if c.Align.InterpolationPoints < 1 {
		return fmt.Errorf("interpolationPoints must be at least 1, got %d", c.Align.InterpolationPoints)
	}
	if c.Align.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Align.NumCores)
	}
	switch c.Output.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Output.LogFormat)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, the default configuration is used. STACKALIGN_*
// environment variables override values from either source.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); err == nil {
		// Read config file
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// Parse YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
