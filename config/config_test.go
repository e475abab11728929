package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default("/data")
	assert.Equal(t, filepath.Join("/data", "gold_data"), cfg.GoldRoot)
	assert.Equal(t, 4, cfg.ReadWorkers)
	assert.Equal(t, 95, cfg.FuzzyThreshold)
	assert.NotEmpty(t, cfg.NonHumanKeywords)
	assert.NotEmpty(t, cfg.NOCUsers)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.json"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ReadWorkers)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"gold_root": "/lake/gold",
		"read_workers": 8,
		"sources": {"ventas": "/drops/ventas"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/lake/gold", cfg.GoldRoot)
	assert.Equal(t, 8, cfg.ReadWorkers)
	assert.Equal(t, "/drops/ventas", cfg.SourceDir("ventas"))
	// unconfigured pipelines fall back to raw_root
	assert.Equal(t, filepath.Join(cfg.RawRoot, "cobranza"), cfg.SourceDir("cobranza"))
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELCOETL_GOLD", "/env/gold")
	t.Setenv("TELCOETL_READ_WORKERS", "2")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/gold", cfg.GoldRoot)
	assert.Equal(t, 2, cfg.ReadWorkers)
}

func TestValidate(t *testing.T) {
	cfg := Default(".")
	cfg.ReadWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default(".")
	cfg.FuzzyThreshold = 150
	assert.Error(t, cfg.Validate())

	cfg = Default(".")
	cfg.GoldRoot = ""
	assert.Error(t, cfg.Validate())
}
