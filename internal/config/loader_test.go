package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgconfig "github.com/tokenwatch/transferscan/pkg/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvRPCURL, EnvDatabaseURL, EnvBlocksPerReq,
		EnvFinalityBlocks, EnvContractAddress, EnvLogLevel,
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, pkgconfig.DefaultRPCURL, cfg.RPC.URL)
	assert.Equal(t, "./transfers.db", cfg.Database.Path)
	assert.Equal(t, uint64(100), cfg.Scanner.BatchSize)
	assert.Equal(t, uint64(12), cfg.Scanner.FinalityBlocks)
	assert.Equal(t, uint64(10), cfg.Scanner.ReorgWindow)
	assert.Equal(t, uint64(1000), cfg.Scanner.Backfill)
	assert.Equal(t, pkgconfig.USDCContractAddress, cfg.Token.ContractAddress)
	assert.Equal(t, 30*time.Second, cfg.RPC.RequestTimeout.Duration)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRPCURL, "https://example.org/rpc")
	t.Setenv(EnvDatabaseURL, "sqlite:/tmp/test-transfers.db")
	t.Setenv(EnvBlocksPerReq, "250")
	t.Setenv(EnvFinalityBlocks, "20")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/rpc", cfg.RPC.URL)
	assert.Equal(t, "/tmp/test-transfers.db", cfg.Database.Path)
	assert.Equal(t, uint64(250), cfg.Scanner.BatchSize)
	assert.Equal(t, uint64(20), cfg.Scanner.FinalityBlocks)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvInvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBlocksPerReq, "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvBlocksPerReq)
}

func TestLoadFromFile_YAML(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "config.yaml", `
rpc:
  url: https://node.example.org
  request_timeout: 5s
scanner:
  batch_size: 50
  reorg_interval: 30s
database:
  path: /tmp/idx.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://node.example.org", cfg.RPC.URL)
	assert.Equal(t, 5*time.Second, cfg.RPC.RequestTimeout.Duration)
	assert.Equal(t, uint64(50), cfg.Scanner.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Scanner.ReorgInterval.Duration)
	assert.Equal(t, "/tmp/idx.db", cfg.Database.Path)

	// Unset fields still get defaults.
	assert.Equal(t, uint64(12), cfg.Scanner.FinalityBlocks)
}

func TestLoadFromFile_TOML(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "config.toml", `
[rpc]
url = "https://node.example.org"

[scanner]
batch_size = 75
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://node.example.org", cfg.RPC.URL)
	assert.Equal(t, uint64(75), cfg.Scanner.BatchSize)
}

func TestLoadFromFile_JSON(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "config.json", `{"scanner": {"batch_size": 33}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), cfg.Scanner.BatchSize)
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.ini", "x = 1")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBlocksPerReq, "7")

	path := writeFile(t, "config.yaml", "scanner:\n  batch_size: 50\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Scanner.BatchSize)
}

func TestLoad_InvalidContractAddress(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvContractAddress, "not-an-address")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract_address")
}
