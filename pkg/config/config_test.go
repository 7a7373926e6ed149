package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDefaultConfig verifies the defaults used by the alignment tools
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Align.SubPixelFactor != 20 {
		t.Errorf("Expected sub-pixel factor 20, got %d", cfg.Align.SubPixelFactor)
	}
	if cfg.Align.SmoothAmount != 50 {
		t.Errorf("Expected smooth amount 50, got %d", cfg.Align.SmoothAmount)
	}
	if !cfg.Align.Sobel2D || !cfg.Align.Hanning2D {
		t.Errorf("Expected Sobel and Hanning enabled by default")
	}
	if cfg.Align.FillValue != 0 {
		t.Errorf("Expected fill value 0, got %f", cfg.Align.FillValue)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration is invalid: %v", err)
	}
}

// TestLoadMissingConfig verifies that a missing file yields the defaults
func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load missing config: %v", err)
	}
	if cfg.Align != DefaultAlignConfig() {
		t.Errorf("Expected default alignment config, got %+v", cfg.Align)
	}
}

// TestSaveLoadConfig verifies that a saved configuration is read back
func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stackalign.yaml")

	cfg := DefaultConfig()
	cfg.Align.SmoothAmount = 7
	cfg.Align.NormalizeCorr = true
	cfg.Output.LogFormat = "json"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("Loaded config mismatch (-want +got):\n%s", diff)
	}
}

// TestPartialConfigKeepsDefaults verifies that keys absent from the file
// keep their default values
func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("align:\n  smoothAmount: 9\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Align.SmoothAmount != 9 {
		t.Errorf("Expected smooth amount 9, got %d", cfg.Align.SmoothAmount)
	}
	if cfg.Align.SubPixelFactor != 20 {
		t.Errorf("Expected default sub-pixel factor, got %d", cfg.Align.SubPixelFactor)
	}
}

// TestEnvironmentOverrides verifies that STACKALIGN_* variables win over the file
func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackalign.yaml")
	if err := os.WriteFile(path, []byte("align:\n  smoothAmount: 9\n  sobel2d: true\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("STACKALIGN_SMOOTH_AMOUNT", "12")
	t.Setenv("STACKALIGN_SOBEL2D", "false")
	t.Setenv("STACKALIGN_LOG_FORMAT", "json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Align.SmoothAmount != 12 {
		t.Errorf("Expected smooth amount 12, got %d", cfg.Align.SmoothAmount)
	}
	if cfg.Align.Sobel2D {
		t.Errorf("Expected Sobel disabled by the environment")
	}
	if cfg.Output.LogFormat != "json" {
		t.Errorf("Expected json log format, got %q", cfg.Output.LogFormat)
	}

	t.Setenv("STACKALIGN_NUM_CORES", "many")
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected error for a malformed environment value")
	}
}

// TestInvalidConfig verifies that unusable values are rejected
func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"smooth amount", func(c *Config) { c.Align.SmoothAmount = 0 }},
		{"sub-pixel factor", func(c *Config) { c.Align.SubPixelFactor = -1 }},
		{"interpolation points", func(c *Config) { c.Align.InterpolationPoints = 0 }},
		{"cores", func(c *Config) { c.Align.NumCores = 0 }},
		{"log format", func(c *Config) { c.Output.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("align:\n  smoothAmount: -3\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected error loading invalid config")
	}
}

// TestNewLogger verifies the level and format of the configured logger
func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output.LogFormat = "json"

	cfg.NewLogger(&buf).Debug("probe", "frames", 3)
	if !strings.Contains(buf.String(), `"msg":"probe"`) {
		t.Errorf("Expected JSON debug record, got %q", buf.String())
	}

	buf.Reset()
	cfg.Output.Verbose = false
	cfg.NewLogger(&buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected debug records to be dropped, got %q", buf.String())
	}
}
