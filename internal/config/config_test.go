package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProducesAFullyPopulatedConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.False(t, cfg.SelfUseMode)
	assert.Equal(t, "score_based", cfg.Allocation.Strategy)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Empty(t, cfg.HTTP.AdminKey)
	assert.NotEmpty(t, cfg.HTTP.Models)
	assert.Equal(t, 2.0, cfg.RateLimit.Outbound.RequestsPerSecond)
	assert.Equal(t, 2.0, cfg.RateLimit.PerAPIKey.RequestsPerSecond)
}

func TestLoadOverlaysFileValuesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
region: eu-west-1
self_use_mode: true
allocation:
  strategy: round_robin
store:
  kind: file
  file:
    path: /var/lib/token-gateway
    encryption_key: test-key
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.True(t, cfg.SelfUseMode)
	assert.Equal(t, "round_robin", cfg.Allocation.Strategy)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, "/var/lib/token-gateway", cfg.Store.File.Path)
	assert.Equal(t, "test-key", cfg.Store.File.EncryptionKey)
	// Fields the file didn't mention keep their defaults.
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 0.5, cfg.Allocation.MinSuccessRate)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: eu-west-1\n"), 0o600))

	t.Setenv("TOKEN_GATEWAY_REGION", "ap-southeast-1")
	t.Setenv("TOKEN_GATEWAY_SELF_USE_MODE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-1", cfg.Region)
	assert.True(t, cfg.SelfUseMode)
}
