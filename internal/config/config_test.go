package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNoConfigFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistent := filepath.Join(tmpDir, "missing.yaml")

	cfg, err := Load(nonExistent)
	require.NoError(t, err)

	assert.True(t, cfg.ConnectionMgr.Enable)
	assert.Equal(t, 30, cfg.ConnectionMgr.TimeoutSec)
	assert.Equal(t, "coregate-grace", cfg.Grace.ObjectName)
	assert.Equal(t, "memory", cfg.Grace.Backend)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Listen)
}

func TestLoadFillsDefaultsForUnsetFields(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "coregate.yaml")

	content := `
grace:
  grace_object_name: "cluster-a"
  backend: "badger"
  badger:
    path: "/var/lib/coregate/grace"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "cluster-a", cfg.Grace.ObjectName)
	assert.Equal(t, "badger", cfg.Grace.Backend)
	assert.Equal(t, "/var/lib/coregate/grace", cfg.Grace.Badger.Path)
	// unset fields still get defaults
	assert.Equal(t, 30, cfg.ConnectionMgr.TimeoutSec)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "coregate.yaml")

	content := `
grace:
  backend: "mongodb"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadNormalizesLogLevelCase(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "coregate.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: \"debug\"\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestConnectionMgrConfigDurationHelpers(t *testing.T) {
	cfg := ConnectionMgrConfig{TimeoutSec: 30, LeaseLifetimeSec: 90, DrainGraceExtensionSec: 10}
	assert.Equal(t, 30e9, float64(cfg.Timeout()))
	assert.Equal(t, 90e9, float64(cfg.LeaseLifetime()))
	assert.Equal(t, 10e9, float64(cfg.DrainGraceExtension()))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "coregate.yaml")

	cfg := defaultConfig()
	cfg.Grace.ObjectName = "roundtrip"
	require.NoError(t, Save(cfg, configPath))

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Grace.ObjectName)
}
