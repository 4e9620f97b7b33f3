package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load())

	cfg, err := m.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "keystore", cfg.Database.Type)
	assert.Equal(t, "openapi.yaml", cfg.Spec.Path)
	assert.Equal(t, "upn", cfg.OAuth.UPNClaim)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Audit.LogsName)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
  base_url: "https://api.example.com"
database:
  type: collectionstore
  dsn: mongodb://localhost:27017
  database: widgets
audit:
  logs_name: audit_logs
kms:
  keyring: ring
  key: key
  location: global
  project: proj
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m := NewManagerWithOptions(WithConfigFile(path))
	require.NoError(t, m.Load())

	cfg, err := m.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://api.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "collectionstore", cfg.Database.Type)
	assert.Equal(t, "audit_logs", cfg.Audit.LogsName)
	assert.True(t, cfg.KMS.Configured())
	assert.False(t, cfg.OAuth.Configured())
}

func TestKMSConfigured(t *testing.T) {
	assert.False(t, KMSConfig{Keyring: "ring"}.Configured())
	assert.True(t, KMSConfig{Keyring: "r", Key: "k", Location: "l", Project: "p"}.Configured())
}
