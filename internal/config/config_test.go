package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateInPaperMode(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Paper = true
	require.NoError(t, cfg.Validate())
}

func TestDefaultsRequireVenueCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binance: api_key")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Paper = true
	cfg.Mode = "bogus"
	cfg.Trading.Symbol = ""
	cfg.Risk.DailyLossLimit = -1
	cfg.Hedge.Ratio = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown mode")
	assert.Contains(t, msg, "trading: symbol")
	assert.Contains(t, msg, "risk: daily_loss_limit")
	assert.Contains(t, msg, "hedge: ratio")
}

func TestValidateSignalPeriods(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Paper = true
	cfg.Signal.MACDFast = 26
	cfg.Signal.MACDSlow = 12
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "macd_fast must be below macd_slow")
}

func TestValidateArchiveNeedsStores(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Paper = true
	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: requires postgres and s3")
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := strings.Join([]string{
		`mode = "trade"`,
		``,
		`[trading]`,
		`symbol = "GBPUSD"`,
		`interval = "30s"`,
		`paper = true`,
		``,
		`[risk]`,
		`daily_loss_limit = 250.0`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, "GBPUSD", cfg.Trading.Symbol)
	assert.Equal(t, 30*time.Second, cfg.Trading.Interval.Duration)
	assert.Equal(t, 250.0, cfg.Risk.DailyLossLimit)

	// Untouched values keep their defaults.
	assert.Equal(t, "1m", cfg.Trading.Timeframe)
	assert.Equal(t, 0.02, cfg.Risk.RiskPerTrade)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "full"`), 0o600))

	t.Setenv("FXBOT_TRADING_SYMBOL", "USDJPY")
	t.Setenv("FXBOT_RISK_DAILY_LOSS_LIMIT", "750")
	t.Setenv("FXBOT_TRADING_PAPER", "true")
	t.Setenv("FXBOT_TRADING_INTERVAL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "USDJPY", cfg.Trading.Symbol)
	assert.Equal(t, 750.0, cfg.Risk.DailyLossLimit)
	assert.True(t, cfg.Trading.Paper)
	assert.Equal(t, 2*time.Minute, cfg.Trading.Interval.Duration)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Binance.APIKey = "key"
	cfg.Binance.APISecret = "secret"
	cfg.MTBridge.Token = "token"
	cfg.Postgres.Password = "pw"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Binance.APIKey)
	assert.Equal(t, "***", red.Binance.APISecret)
	assert.Equal(t, "***", red.MTBridge.Token)
	assert.Equal(t, "***", red.Postgres.Password)

	// Original untouched.
	assert.Equal(t, "secret", cfg.Binance.APISecret)

	// Empty fields stay empty rather than being replaced.
	assert.Empty(t, red.Redis.Password)
}
