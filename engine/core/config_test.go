package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint32(1440), cfg.Window.Width)
	assert.Equal(t, uint32(900), cfg.Window.Height)
	assert.Equal(t, uint32(144), cfg.Window.MaxFPS)
	assert.Equal(t, uint32(2), cfg.Renderer.FramesInFlight)
	assert.Equal(t, uint32(2048), cfg.Renderer.TextureArraySize)
	assert.Equal(t, uint32(10), cfg.Renderer.InitialBatchSize)
	assert.Equal(t, uint32(10), cfg.Renderer.BatchGrowthFactor)
	assert.Equal(t, float32(90), cfg.Camera.FOV)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anima.toml")
	doc := `
[window]
title = "test"
width = 800

[renderer]
frames_in_flight = 3
texture_array_size = 16

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Window.Title)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	// untouched keys keep their defaults
	assert.Equal(t, uint32(900), cfg.Window.Height)
	assert.Equal(t, uint32(3), cfg.Renderer.FramesInFlight)
	assert.Equal(t, uint32(16), cfg.Renderer.TextureArraySize)
	assert.Equal(t, uint32(10), cfg.Renderer.InitialBatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 0\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[window\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestMetricsReportsOncePerSecond(t *testing.T) {
	m := NewMetrics()
	reported := 0
	for i := 0; i < 100; i++ {
		if m.Update(1.0 / 60.0) {
			reported++
		}
	}
	assert.Equal(t, 1, reported)
	assert.InDelta(t, 61, m.FPS(), 1)
	assert.InDelta(t, 16.67, m.FrameTime(), 0.01)
}
