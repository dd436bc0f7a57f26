package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Wallet.KeypairPath = "/tmp/wallet.json"
	cfg.FlashLoan.ProgramID = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	cfg.FlashLoan.TokenMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, int32(5), cfg.Engine.MinProfitBps)
	assert.Equal(t, 10, cfg.Engine.MaxConsecutiveFailures)
	assert.Equal(t, 5, cfg.Engine.DynamicPairMaxFailures)
	assert.Equal(t, uint16(9), cfg.FlashLoan.FeeBps)
	assert.Equal(t, 8*time.Second, cfg.Jupiter.Timeout)
	assert.Equal(t, 1, cfg.Jupiter.MaxRetries)
	assert.GreaterOrEqual(t, cfg.Jupiter.CooldownMin, 60*time.Second)
	assert.LessOrEqual(t, cfg.Jupiter.CooldownMax, 120*time.Second)
	assert.NotEmpty(t, cfg.Oracle.Feeds)
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  min_profit_bps: 12
  poll_interval: 5s
jito:
  enabled: true
  region: frankfurt
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, int32(12), cfg.Engine.MinProfitBps)
	assert.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
	assert.True(t, cfg.Jito.Enabled)
	assert.Equal(t, "frankfurt", cfg.Jito.Region)
	// Untouched defaults survive.
	assert.Equal(t, uint16(9), cfg.FlashLoan.FeeBps)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Wallet.KeypairPath = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.FlashLoan.ProgramID = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Engine.BorrowAmount = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Engine.PollInterval = 0
	assert.Error(t, cfg.Validate())
}
