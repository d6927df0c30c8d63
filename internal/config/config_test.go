package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AGENT_ACCOUNT_KEY", "")
	t.Setenv("SCAN_KEYS", "")
	t.Setenv("COW_REFERRER", "")
	t.Setenv("EXPLORER_RETRY_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "*", cfg.CORSAllowOrigin)
	assert.Equal(t, 1, cfg.ExplorerRetryAttempts)
	assert.Equal(t, 4055949, cfg.DuneTokenQueryID)
	assert.Empty(t, cfg.AccountID)
	assert.Empty(t, cfg.ScanKeys)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Values(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("AGENT_ACCOUNT_KEY", `{"accountId":"agent.near","privateKey":"ed25519:secret"}`)
	t.Setenv("SCAN_KEYS", `{"1":"etherscan-key","100":"gnosisscan-key"}`)
	t.Setenv("RPC_URL_11155111", "https://sepolia.example")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("ORDERBOOK_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "agent.near", cfg.AccountID)
	assert.Equal(t, map[int64]string{1: "etherscan-key", 100: "gnosisscan-key"}, cfg.ScanKeys)
	assert.Equal(t, "https://sepolia.example", cfg.RPCOverrides[11155111])
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 2.5, cfg.OrderBookRPS)
	require.NoError(t, cfg.Validate())
}

func TestLoad_AccountKeyIsFailSoft(t *testing.T) {
	t.Setenv("AGENT_ACCOUNT_KEY", "not json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AccountID)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Setenv("SCAN_KEYS", `{"mainnet":"k"}`)
	t.Setenv("COW_REFERRER", "someone")
	t.Setenv("EXPLORER_RETRY_ATTEMPTS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_KEYS")
	assert.Contains(t, err.Error(), "COW_REFERRER")
	assert.Contains(t, err.Error(), "EXPLORER_RETRY_ATTEMPTS")
}

func TestScanRPCOverrides(t *testing.T) {
	cfg := &Config{}
	got := cfg.scanRPCOverrides([]string{
		"RPC_URL_1=https://eth.example",
		"RPC_URL_100=",
		"RPC_URL_base=https://base.example",
		"PATH=/usr/bin",
	})
	assert.Equal(t, map[int64]string{1: "https://eth.example"}, got)
	require.Len(t, cfg.problems, 1)
	assert.Contains(t, cfg.problems[0], "RPC_URL_base")
}

func TestTokenSyncEnabled(t *testing.T) {
	t.Setenv("TOKEN_SYNC_HOURS", "12")
	t.Setenv("DUNE_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.TokenSyncHours)
	assert.False(t, cfg.TokenSyncEnabled())

	t.Setenv("DUNE_API_KEY", "dune-key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.TokenSyncEnabled())

	t.Setenv("TOKEN_SYNC_HOURS", "-1")
	cfg, err = Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}
