package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies the documented defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, -1.0, cfg.Processing.Threshold, "default threshold should request auto mode")
	assert.Equal(t, 1.0, cfg.Processing.ZoomFactor)
	assert.True(t, cfg.Processing.Clean)
	assert.Equal(t, 0, cfg.Processing.PushIterations)
	assert.False(t, cfg.Tracer.Quality)
	assert.True(t, cfg.Output.Verbose)
	assert.False(t, cfg.Output.WorldCoordinates)
}

// TestLoadConfigMissingFile verifies defaults are returned for a missing path
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestSaveLoadRoundTrip verifies a saved configuration reads back unchanged
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "neurotrace.yaml")

	cfg := DefaultConfig()
	cfg.Processing.Threshold = 42.5
	cfg.Processing.ZoomFactor = 2
	cfg.Processing.PushIterations = 5
	cfg.Tracer.Quality = true
	cfg.Tracer.NonStop = true
	cfg.Output.SaveSoma = true
	cfg.Output.MeshExport = true

	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

// TestLoadConfigPartialFile verifies unspecified keys keep their defaults
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  threshold: 7\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7.0, cfg.Processing.Threshold)
	assert.Equal(t, 1.0, cfg.Processing.ZoomFactor, "unset keys should keep defaults")
	assert.True(t, cfg.Processing.Clean)
}

// TestLoadConfigBadYAML verifies parse errors surface
func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: ["), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
