// Package config loads the trader configuration from YAML, .env and
// TRADER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"solana-pool-trader/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. TRADER_SOLANA_RPC_URL.
const EnvPrefix = "TRADER"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the complete trader configuration.
type Config struct {
	Log       LogConfig            `mapstructure:"log"`
	Trading   domain.TradingConfig `mapstructure:"trading"`
	Risk      domain.RiskConfig    `mapstructure:"risk"`
	Strategy  StrategyConfig       `mapstructure:"strategy"`
	Execution ExecutionConfig      `mapstructure:"execution"`
	Breakers  BreakersConfig       `mapstructure:"breakers"`
	Positions PositionsConfig      `mapstructure:"positions"`
	Solana    SolanaConfig         `mapstructure:"solana"`
	Jupiter   JupiterConfig        `mapstructure:"jupiter"`
	Storage   StorageConfig        `mapstructure:"storage"`
	Redis     RedisConfig          `mapstructure:"redis"`
	API       APIConfig            `mapstructure:"api"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// StrategyConfig selects the entry strategies and exit thresholds. It is the
// only section applied on hot reload.
type StrategyConfig struct {
	Entry       []string                  `mapstructure:"entry"`
	ErrorPolicy string                    `mapstructure:"error_policy"` // skip or reject
	Exit        domain.ExitStrategyConfig `mapstructure:"exit"`
}

type ExecutionConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	BuildTimeout      time.Duration `mapstructure:"build_timeout"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	MinTradeAmountUSD float64       `mapstructure:"min_trade_amount_usd"`
	CongestionTPS     float64       `mapstructure:"congestion_tps"`
}

type BreakersConfig struct {
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	TradingResetAfter time.Duration `mapstructure:"trading_reset_after"`
	BalanceResetAfter time.Duration `mapstructure:"balance_reset_after"`
}

type PositionsConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Concurrency   int           `mapstructure:"concurrency"`
	PriceInterval time.Duration `mapstructure:"price_interval"` // 0 disables the price feed
}

type SolanaConfig struct {
	RPCURL       string        `mapstructure:"rpc_url"`
	WSURL        string        `mapstructure:"ws_url"` // empty disables subscription confirmations
	Commitment   string        `mapstructure:"commitment"`
	RPCTimeout   time.Duration `mapstructure:"rpc_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	KeypairPath  string        `mapstructure:"keypair_path"`
	PrivateKey   string        `mapstructure:"private_key"` // base58 or JSON byte array; wins over keypair_path
}

type JupiterConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PriceURL          string        `mapstructure:"price_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MaxConns      int32  `mapstructure:"max_conns"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"` // empty keeps ticks in memory
}

type RedisConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Addr                string        `mapstructure:"addr"`
	Password            string        `mapstructure:"password"`
	DB                  int           `mapstructure:"db"`
	PoolSize            int           `mapstructure:"pool_size"`
	TLSEnabled          bool          `mapstructure:"tls_enabled"`
	PoolChannel         string        `mapstructure:"pool_channel"`
	NotificationChannel string        `mapstructure:"notification_channel"`
	TradeStream         string        `mapstructure:"trade_stream"`
	PriceTTL            time.Duration `mapstructure:"price_ttl"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
}

type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads configuration from path (or ./config.yaml, ./config/config.yaml
// when empty), then .env, then TRADER_* variables. A missing config file is
// not an error. The result is validated.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("trading.min_liquidity_usd", 10000.0)
	v.SetDefault("trading.max_slippage_percent", 5.0)
	v.SetDefault("trading.default_trade_amount_usd", 10.0)
	v.SetDefault("trading.max_trade_amount_usd", 100.0)
	v.SetDefault("trading.max_risk_score", 7.0)
	v.SetDefault("trading.min_token_price", nil)
	v.SetDefault("trading.max_token_supply", nil)

	v.SetDefault("risk.risk_percent", 2.0)
	v.SetDefault("risk.min_gas_balance_sol", 0.01)
	v.SetDefault("risk.max_price_impact_pct", 5.0)

	v.SetDefault("strategy.entry", []string{"liquidity", "token_risk", "token_supply", "min_price", "position_sizing"})
	v.SetDefault("strategy.error_policy", "reject")
	v.SetDefault("strategy.exit.max_hold_duration", "4h")
	v.SetDefault("strategy.exit.take_profit_pct", 100.0)
	v.SetDefault("strategy.exit.partial_take_profit_pct", 0.0)
	v.SetDefault("strategy.exit.trailing_stop_pct", 0.0)
	v.SetDefault("strategy.exit.stop_loss_pct", 30.0)
	v.SetDefault("strategy.exit.min_liquidity_usd", 5000.0)
	v.SetDefault("strategy.exit.liquidity_drop_pct", 50.0)
	v.SetDefault("strategy.exit.creator_sell_pct", 50.0)

	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.base_delay", "1s")
	v.SetDefault("execution.quote_timeout", "10s")
	v.SetDefault("execution.build_timeout", "15s")
	v.SetDefault("execution.confirm_timeout", "60s")
	v.SetDefault("execution.min_trade_amount_usd", 1.0)
	v.SetDefault("execution.congestion_tps", 4000.0)

	v.SetDefault("breakers.failure_threshold", 3)
	v.SetDefault("breakers.trading_reset_after", "5m")
	v.SetDefault("breakers.balance_reset_after", "1m")

	v.SetDefault("positions.interval", "60s")
	v.SetDefault("positions.concurrency", 4)
	v.SetDefault("positions.price_interval", "5s")

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.rpc_timeout", "30s")
	v.SetDefault("solana.poll_interval", "2s")
	v.SetDefault("solana.keypair_path", "")
	v.SetDefault("solana.private_key", "")

	v.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.price_url", "https://price.jup.ag/v6/price")
	v.SetDefault("jupiter.requests_per_second", 5.0)
	v.SetDefault("jupiter.burst", 5)
	v.SetDefault("jupiter.timeout", "15s")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.sqlite_path", "data/trader.db")
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pool_channel", "trader:pools")
	v.SetDefault("redis.notification_channel", "trader:notifications")
	v.SetDefault("redis.trade_stream", "trader:trades")
	v.SetDefault("redis.price_ttl", "10s")
	v.SetDefault("redis.lock_ttl", "30s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.cors_origins", []string{"*"})
}
