package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "depthscan.db", *dbPath)
	assert.Empty(t, *configFile)
	assert.False(t, *autoStart)
	assert.False(t, *showVersion)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5_000_000, cfg.GetMaxPoints())
	assert.Equal(t, "medium", cfg.GetConfidenceThreshold())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_points": 1000, "confidence_threshold": "high"}`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.GetMaxPoints())
	assert.Equal(t, "high", cfg.GetConfidenceThreshold())
	assert.Equal(t, 2000, cfg.GetPointsPerFrame())
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
