package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// An explicit missing file is a read error, not ConfigFileNotFoundError.
	require.Error(t, err)
	assert.Nil(t, cfg)

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Execution.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Execution.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Positions.Interval)
	assert.Equal(t, 5*time.Second, cfg.Positions.PriceInterval)
	assert.Equal(t, 4*time.Hour, cfg.Strategy.Exit.MaxHoldDuration)
	assert.Equal(t, "reject", cfg.Strategy.ErrorPolicy)
	assert.Len(t, cfg.Strategy.Entry, 5)
	assert.Nil(t, cfg.Trading.MinTokenPrice)
	assert.InDelta(t, 2.0, cfg.Risk.RiskPercent, 1e-9)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log:
  level: debug
trading:
  default_trade_amount_usd: 20
  max_trade_amount_usd: 50
  min_token_price: 0.0001
strategy:
  entry: [liquidity, token_risk]
  exit:
    max_hold_duration: 30m
    stop_loss_pct: 15
storage:
  driver: sqlite
  sqlite_path: /tmp/trader.db
`)
	t.Setenv("TRADER_SOLANA_RPC_URL", "http://localhost:8899")
	t.Setenv("TRADER_RISK_RISK_PERCENT", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 20.0, cfg.Trading.DefaultTradeAmountUSD, 1e-9)
	require.NotNil(t, cfg.Trading.MinTokenPrice)
	assert.InDelta(t, 0.0001, *cfg.Trading.MinTokenPrice, 1e-12)
	assert.Equal(t, []string{"liquidity", "token_risk"}, cfg.Strategy.Entry)
	assert.Equal(t, 30*time.Minute, cfg.Strategy.Exit.MaxHoldDuration)
	assert.InDelta(t, 15.0, cfg.Strategy.Exit.StopLossPct, 1e-9)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "http://localhost:8899", cfg.Solana.RPCURL)
	assert.InDelta(t, 5.0, cfg.Risk.RiskPercent, 1e-9)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy.Entry = []string{"moon"} }},
		{"duplicate strategy", func(c *Config) { c.Strategy.Entry = []string{"liquidity", "liquidity"} }},
		{"no strategies", func(c *Config) { c.Strategy.Entry = nil }},
		{"bad error policy", func(c *Config) { c.Strategy.ErrorPolicy = "retry" }},
		{"max below default", func(c *Config) { c.Trading.MaxTradeAmountUSD = 1 }},
		{"slippage out of range", func(c *Config) { c.Trading.MaxSlippagePercent = 0 }},
		{"risk out of range", func(c *Config) { c.Risk.RiskPercent = 150 }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"bad commitment", func(c *Config) { c.Solana.Commitment = "max" }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"partial take profit 100", func(c *Config) { c.Strategy.Exit.PartialTakeProfitPct = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			c.Strategy.Entry = append([]string(nil), base.Strategy.Entry...)
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, base.Validate())
}

func TestWatch_StrategyReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
strategy:
  entry: [liquidity]
`)

	w, err := Watch(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"liquidity"}, w.Current().Strategy.Entry)

	var got atomic.Pointer[StrategyConfig]
	w.OnStrategyChange(func(s StrategyConfig) { got.Store(&s) })

	writeConfig(t, dir, `
strategy:
  entry: [liquidity, min_price]
`)

	require.Eventually(t, func() bool {
		s := got.Load()
		return s != nil && len(s.Entry) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"liquidity", "min_price"}, w.Current().Strategy.Entry)

	// An invalid edit keeps the previous config.
	writeConfig(t, dir, `
strategy:
  entry: [unknown]
`)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{"liquidity", "min_price"}, w.Current().Strategy.Entry)
}
