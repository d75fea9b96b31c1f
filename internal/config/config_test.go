package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  logLevel: debug
database:
  url: postgres://localhost/enroll
redis:
  addr: ${REDIS_ADDR:-localhost:6379}
pipeline:
  sendMode: production
  chunkSize: 25
`

func TestLoad_AppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.Database.MinConns)
	assert.Equal(t, 30, cfg.Redis.LeaseTTL)
	assert.Equal(t, 14, cfg.Gateway.RequestsPerSecond)
	assert.Equal(t, "rules.yaml", cfg.Rules)
}

func TestLoad_ExplicitValuesOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Pipeline.SendMode)
	assert.Equal(t, 25, cfg.Pipeline.ChunkSize)
}

func TestLoad_ExpandsEnvVarWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	cfg2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg2.Redis.Addr)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
