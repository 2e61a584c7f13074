package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldpipe/pkg/models"
)

func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("GOLDPIPE_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("GOLDPIPE_NO_KEYRING", "1")
	// Make sure ambient PG_*/MB_* variables do not leak into the test.
	for _, env := range []string{
		"PG_HOST", "PG_PORT", "PG_USER", "PG_PASSWORD", "PG_DB", "PG_SCHEMA",
		"PG_DOCKER", "PG_CONTAINER", "MB_BASE", "MB_EMAIL", "MB_PASS",
		"MB_DS_NAME", "GOLD_DIR", "SILVER_DIR",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Warehouse.Host)
	assert.Equal(t, 5432, cfg.Warehouse.Port)
	assert.Equal(t, "reader", cfg.Warehouse.User)
	assert.Equal(t, "yelp_gold", cfg.Warehouse.Database)
	assert.Equal(t, "yelp_gold", cfg.Warehouse.Schema)
	assert.False(t, cfg.Warehouse.UseDocker)
	assert.Equal(t, "http://localhost:3000", cfg.Metabase.BaseURL)
	assert.Equal(t, "yelp_gold", cfg.Metabase.DatasourceName)
	assert.Equal(t, 0, cfg.Metabase.RetryMax)
	assert.Equal(t, 10000, cfg.Sync.MaxRowsPerInsert)
	assert.Equal(t, "data/gold", cfg.Gold.Dir)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PG_HOST", "yelp_pg")
	t.Setenv("PG_PORT", "15432")
	t.Setenv("MB_BASE", "http://mb.internal:3000")
	t.Setenv("PG_DOCKER", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "yelp_pg", cfg.Warehouse.Host)
	assert.Equal(t, 15432, cfg.Warehouse.Port)
	assert.Equal(t, "http://mb.internal:3000", cfg.Metabase.BaseURL)
	assert.True(t, cfg.Warehouse.UseDocker)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	isolate(t)

	cfg := &models.Config{}
	cfg.Warehouse.Host = "db.example.com"
	cfg.Warehouse.Port = 5433
	cfg.Warehouse.User = "analyst"
	cfg.Metabase.DatasourceName = "yelp_gold"

	require.NoError(t, Save(cfg))
	assert.True(t, Exists())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.example.com", loaded.Warehouse.Host)
	assert.Equal(t, 5433, loaded.Warehouse.Port)
	assert.Equal(t, "analyst", loaded.Warehouse.User)
}

func TestEnvWinsOverFile(t *testing.T) {
	isolate(t)

	cfg := &models.Config{}
	cfg.Warehouse.Host = "from-file"
	require.NoError(t, Save(cfg))

	t.Setenv("PG_HOST", "from-env")

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.Warehouse.Host)
}

func TestExists(t *testing.T) {
	isolate(t)
	assert.False(t, Exists())
}
