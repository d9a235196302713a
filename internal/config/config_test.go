package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/councilgen.db", cfg.Database.DSN())
	assert.Equal(t, "http", cfg.Text.Provider)
	assert.Equal(t, 4096, cfg.Text.MaxTokens)
	assert.Equal(t, 120*time.Second, cfg.Text.Timeout)
	assert.Equal(t, time.Second, cfg.Generation.ImageRateLimitDelay)
	assert.Empty(t, cfg.Catalog.Dir)
	assert.Contains(t, cfg.Catalog.Files, "homepage")
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  url: postgres://file/db
storage:
  type: local
  prefix: pages
text:
  provider: eino
  timeout: 30s
generation:
  rate_limit_delay: 250ms
catalog:
  dir: ./templates
  files: [homepage]
`), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TEXT_MODEL", "gpt-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN())
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "pages", cfg.Storage.Prefix)
	assert.Equal(t, "eino", cfg.Text.Provider)
	assert.Equal(t, "gpt-test", cfg.Text.Model)
	assert.Equal(t, 30*time.Second, cfg.Text.Timeout)
	assert.Equal(t, "sk-test", cfg.Text.APIKey)
	assert.Equal(t, "sk-test", cfg.Image.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.RateLimitDelay)
	assert.Equal(t, []string{"homepage"}, cfg.Catalog.Files)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestDatabaseDSN(t *testing.T) {
	assert.Equal(t, "a.db", (&DatabaseConfig{Driver: "sqlite", Path: "a.db"}).DSN())
	assert.Equal(t, "file::memory:", (&DatabaseConfig{Driver: "sqlite_pure", Path: "a.db", URL: "file::memory:"}).DSN())
	assert.Equal(t, "", (&DatabaseConfig{Driver: "postgres", Path: "a.db"}).DSN())
}
