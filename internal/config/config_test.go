package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Load reads config.yaml from the working directory, so tests that
// exercise the file path chdir into a temp dir.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 30, cfg.Backend.TimeoutSecs)
	assert.Equal(t, 5.0, cfg.Backend.RateLimitRPS)
	assert.Equal(t, "soiltales.db", cfg.Store.Path)
	assert.Equal(t, 50, cfg.Store.Capacity)
	assert.Equal(t, int64(5*1024*1024), cfg.Store.BytesLimit)
	assert.Equal(t, 2, cfg.Fallback.AnalyzeDelaySecs)
	assert.Equal(t, 3, cfg.Fallback.VideoDelaySecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := chtemp(t)

	yaml := []byte(`
backend:
  base_url: https://soil.example.com
store:
  capacity: 10
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://soil.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 10, cfg.Store.Capacity)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.Backend.TimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromEnvironment(t *testing.T) {
	chtemp(t)
	t.Setenv("SOILTALES_BACKEND_BASE_URL", "http://10.0.0.5:5000")
	t.Setenv("SOILTALES_STORE_PATH", "/tmp/alt.db")
	t.Setenv("SOILTALES_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:5000", cfg.Backend.BaseURL)
	assert.Equal(t, "/tmp/alt.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := chtemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{{"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "console"}))
}
