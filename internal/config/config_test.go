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
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.HTTPTimeout)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "ipfs", cfg.Blob.Backend)
	assert.Equal(t, []string{"https://ipfs.io"}, cfg.Blob.Gateways)
	assert.True(t, cfg.Auth.RequireSignatures)
	assert.Equal(t, 5*time.Minute, cfg.Auth.NonceTTL)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Nil(t, cfg.ContractAddress())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("PORT", "8080")
	t.Setenv("CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("ME_API_TOKEN", "token")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("IPFS_GATEWAYS", "https://a.example, https://b.example")
	t.Setenv("AUTH_REQUIRE_SIGNATURES", "false")
	t.Setenv("AUTH_NONCE_TTL", "90s")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.HTTPTimeout)
	require.NotNil(t, cfg.ContractAddress())
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", *cfg.ContractAddress())
	assert.Equal(t, "token", cfg.Marketplace.APIToken)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Blob.Gateways)
	assert.False(t, cfg.Auth.RequireSignatures)
	assert.Equal(t, 90*time.Second, cfg.Auth.NonceTTL)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	path := filepath.Join(t.TempDir(), "nftmsg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
blob:
  backend: local
  local_dir: /tmp/blobs
log:
  level: debug
  development: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Blob.Backend)
	assert.Equal(t, "/tmp/blobs", cfg.Blob.LocalDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)

	t.Setenv("PORT", "9100")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "environment overrides the file")
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "etcd")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("BLOB_BACKEND", "s3")
	_, err = Load("")
	assert.Error(t, err, "s3 needs a bucket")
}
