package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"solana-pool-trader/internal/strategy"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format %q must be json or console", c.Log.Format)
	}

	t := c.Trading
	if t.MinLiquidityUSD < 0 {
		add("trading.min_liquidity_usd must be >= 0")
	}
	if !(t.MaxSlippagePercent > 0) || t.MaxSlippagePercent > 100 {
		add("trading.max_slippage_percent must be in (0, 100]")
	}
	if !(t.DefaultTradeAmountUSD > 0) {
		add("trading.default_trade_amount_usd must be > 0")
	}
	if t.MaxTradeAmountUSD < t.DefaultTradeAmountUSD {
		add("trading.max_trade_amount_usd (%v) must be >= default_trade_amount_usd (%v)",
			t.MaxTradeAmountUSD, t.DefaultTradeAmountUSD)
	}
	if t.DefaultTradeAmountUSD < c.Execution.MinTradeAmountUSD {
		add("trading.default_trade_amount_usd (%v) is below execution.min_trade_amount_usd (%v)",
			t.DefaultTradeAmountUSD, c.Execution.MinTradeAmountUSD)
	}
	if t.MaxRiskScore < 0 || t.MaxRiskScore > 10 {
		add("trading.max_risk_score must be in [0, 10]")
	}
	if t.MinTokenPrice != nil && (math.IsNaN(*t.MinTokenPrice) || *t.MinTokenPrice < 0) {
		add("trading.min_token_price must be >= 0")
	}
	if t.MaxTokenSupply != nil && !(*t.MaxTokenSupply > 0) {
		add("trading.max_token_supply must be > 0")
	}

	r := c.Risk
	if !(r.RiskPercent > 0) || r.RiskPercent > 100 {
		add("risk.risk_percent must be in (0, 100]")
	}
	if r.MinGasBalanceSOL < 0 {
		add("risk.min_gas_balance_sol must be >= 0")
	}
	if !(r.MaxPriceImpactPct > 0) {
		add("risk.max_price_impact_pct must be > 0")
	}

	if err := c.Strategy.validate(); err != nil {
		add("%v", err)
	}

	if c.Execution.MaxAttempts < 1 {
		add("execution.max_attempts must be >= 1")
	}
	if c.Breakers.FailureThreshold < 1 {
		add("breakers.failure_threshold must be >= 1")
	}
	if c.Positions.Interval <= 0 {
		add("positions.interval must be > 0")
	}

	if c.Solana.RPCURL == "" {
		add("solana.rpc_url is required")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		add("solana.commitment %q must be processed, confirmed or finalized", c.Solana.Commitment)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		add("storage.driver %q must be memory, postgres or sqlite", c.Storage.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis.addr is required when redis is enabled")
	}
	if c.API.Enabled && c.API.Addr == "" {
		add("api.addr is required when the api is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (s StrategyConfig) validate() error {
	if _, err := strategy.FromNames(s.Entry); err != nil {
		return fmt.Errorf("strategy.entry: %w", err)
	}
	if _, err := strategy.ParseErrorPolicy(s.ErrorPolicy); err != nil {
		return fmt.Errorf("strategy.error_policy: %w", err)
	}
	e := s.Exit
	if e.StopLossPct < 0 || e.TakeProfitPct < 0 || e.TrailingStopPct < 0 {
		return errors.New("strategy.exit percentages must be >= 0")
	}
	if e.PartialTakeProfitPct < 0 || e.PartialTakeProfitPct >= 100 {
		return errors.New("strategy.exit.partial_take_profit_pct must be in [0, 100)")
	}
	if e.LiquidityDropPct < 0 || e.LiquidityDropPct > 100 || e.CreatorSellPct < 0 || e.CreatorSellPct > 100 {
		return errors.New("strategy.exit drop percentages must be in [0, 100]")
	}
	return nil
}
