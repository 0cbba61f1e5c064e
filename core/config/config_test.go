package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "e0502ddd5a0d05ec7b5c22614a01c8ce783810c311160857e9c48ef4c6e35fa9"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigFromYaml(t *testing.T) {
	path := writeConfig(t, `
environment: development
eth_rpc_url: https://sepolia.example.org
bundler_url: https://bundler.example.org
controller_private_key: `+testKey+`
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://sepolia.example.org", cfg.EthRpcUrl)
	assert.Equal(t, "https://bundler.example.org", cfg.BundlerURL)
	assert.NotEqual(t, common.Address{}, cfg.ControllerAddress)
	assert.NotEqual(t, common.Address{}, cfg.EntrypointAddress)
	assert.False(t, cfg.HasPaymaster())
}

func TestNewConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
eth_rpc_url: https://sepolia.example.org
bundler_url: https://bundler.example.org
controller_private_key: `+testKey+`
`)

	t.Setenv("BUNDLER_URL", "https://other-bundler.example.org")
	t.Setenv("PAYMASTER_ADDRESS", "0x0000000000325602a77416A16136FDafd04b299f")

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://other-bundler.example.org", cfg.BundlerURL)
	assert.True(t, cfg.HasPaymaster())
	assert.Equal(t, common.HexToAddress("0x0000000000325602a77416A16136FDafd04b299f"), cfg.PaymasterAddress)
}

func TestNewConfigRejectsMissingFields(t *testing.T) {
	path := writeConfig(t, `
environment: development
eth_rpc_url: https://sepolia.example.org
`)

	_, err := NewConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
