package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/roster.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "departments.yaml", cfg.Inventory.Path)
	assert.Equal(t, 120, cfg.Agent.TimeoutSecs)
	assert.InDelta(t, 0.85, cfg.Match.FuzzyThreshold, 0.001)
	assert.InDelta(t, 0.34, cfg.Extract.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Extract.MaxConcurrent)
	assert.False(t, cfg.Extract.Refresh)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
data:
  dir: /var/lib/roster
store:
  driver: postgres
  database_url: postgres://localhost/roster
fis:
  path: exports/fis.xlsx
  sheet_name: Faculty
match:
  fuzzy_threshold: 0.9
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/roster", cfg.Data.Dir)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/roster", cfg.Store.DatabaseURL)
	assert.Equal(t, "exports/fis.xlsx", cfg.FIS.Path)
	assert.Equal(t, "Faculty", cfg.FIS.SheetName)
	assert.InDelta(t, 0.9, cfg.Match.FuzzyThreshold, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Extract.MaxConcurrent)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("ROSTER_STORE_DRIVER", "postgres")
	t.Setenv("ROSTER_AGENT_BASE_URL", "http://localhost:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "http://localhost:9000", cfg.Agent.BaseURL)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
