package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"."}, cfg.ModulePaths)
	assert.Equal(t, 128, cfg.ModuleCacheSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aspen.toml")
	body := "module_paths = [\"lib\", \"vendor\"]\nmodule_cache_size = 64\nlog_level = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "vendor"}, cfg.ModulePaths)
	assert.Equal(t, 64, cfg.ModuleCacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aspen.yaml")
	body := "modulePaths:\n  - lib\nmoduleCacheSize: 32\nlogLevel: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib"}, cfg.ModulePaths)
	assert.Equal(t, 32, cfg.ModuleCacheSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
