package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solana-pool-trader/internal/api"
	"solana-pool-trader/internal/breaker"
	"solana-pool-trader/internal/cache/redis"
	"solana-pool-trader/internal/config"
	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/events"
	"solana-pool-trader/internal/execution"
	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/position"
	"solana-pool-trader/internal/solana"
	"solana-pool-trader/internal/storage"
	chstore "solana-pool-trader/internal/storage/clickhouse"
	"solana-pool-trader/internal/storage/memory"
	"solana-pool-trader/internal/storage/migrations"
	"solana-pool-trader/internal/storage/postgres"
	"solana-pool-trader/internal/storage/sqlite"
	"solana-pool-trader/internal/strategy"
)

// Runtime is a fully wired agent and the resources it owns.
type Runtime struct {
	Agent       *Agent
	Evaluator   *strategy.Evaluator
	Coordinator *execution.Coordinator
	Positions   *position.Registry
	Breakers    *breaker.Registry
	Bus         *events.Bus
	Stores      Stores

	closers []func() error
}

// Close releases every resource opened by Build, last opened first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Stores groups the persistence backends selected by configuration.
type Stores struct {
	Trades    storage.TradeStore
	Positions storage.PositionStore
	Ticks     storage.PositionTickStore
}

// Build wires every component from cfg. On error, anything already opened
// is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Runtime, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Bus = events.NewBus(logger)
	rt.onClose(func() error { rt.Bus.Close(); return nil })

	bus := rt.Bus
	rt.Breakers = breaker.NewRegistry(BreakerConfigs(cfg.Breakers),
		breaker.WithLogger(logger),
		breaker.WithNotify(func(s domain.CircuitBreakerState) {
			observability.RecordBreakerState(s.Name, s.IsTripped)
			bus.Publish(events.Notification{Kind: events.KindBreaker, At: time.Now().UnixMilli(), Breaker: &s})
		}),
	)

	rt.Stores, err = OpenStores(ctx, cfg.Storage, logger, rt.onClose)
	if err != nil {
		return nil, err
	}

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.RPCTimeout),
		solana.WithLogger(logger),
	)
	var ws solana.WSClient
	if cfg.Solana.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		client, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, &wsCfg)
		if err != nil {
			logger.Warn("websocket unavailable, confirming by polling", zap.Error(err))
		} else {
			ws = client
			rt.onClose(client.Close)
		}
	}
	confirmer := solana.NewConfirmer(rpc, ws, solana.ConfirmerConfig{
		Commitment:   cfg.Solana.Commitment,
		PollInterval: cfg.Solana.PollInterval,
	}, logger)

	keypair, err := LoadKeypair(cfg.Solana)
	if err != nil {
		return nil, err
	}
	if keypair == nil {
		logger.Warn("no wallet configured, trades will be refused")
	} else {
		logger.Info("wallet loaded", zap.String("public_key", keypair.PublicKey()))
	}

	router := jupiter.NewClient(cfg.Jupiter.BaseURL,
		jupiter.WithPriceURL(cfg.Jupiter.PriceURL),
		jupiter.WithRateLimit(cfg.Jupiter.RequestsPerSecond, cfg.Jupiter.Burst),
		jupiter.WithHTTPClient(&http.Client{Timeout: cfg.Jupiter.Timeout}),
		jupiter.WithLogger(logger),
	)

	var (
		prices    PriceProvider
		market    MarketRecorder
		liquidity LiquiditySource
		baselines CreatorBaselines
		locker    execution.Locker
		pools     PoolSource
		forwarder Forwarder
	)
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: 3,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, err
		}
		rt.onClose(rc.Close)

		cache := redis.NewPriceCache(rc, router, cfg.Redis.PriceTTL, logger)
		prices, market, liquidity, baselines = cache, cache, cache, cache
		locker = redis.NewWalletLock(rc, cfg.Redis.LockTTL, 0)

		rbus := redis.NewBus(rc, redis.BusConfig{
			PoolChannel:         cfg.Redis.PoolChannel,
			NotificationChannel: cfg.Redis.NotificationChannel,
			TradeStream:         cfg.Redis.TradeStream,
		}, logger)
		pools, forwarder = rbus, rbus
	} else {
		mem := NewMemoryMarket(router, 0)
		prices, market, liquidity = mem, mem, mem
		locker = execution.NewLocalLocker()
		logger.Warn("redis disabled, no pool source attached")
	}

	evaluator, err := NewEvaluator(cfg.Strategy, logger)
	if err != nil {
		return nil, err
	}
	rt.Evaluator = evaluator

	sampler := NewMarketSampler(SamplerOptions{
		Prices:    prices,
		Liquidity: liquidity,
		Balances:  rpc,
		Baselines: baselines,
		Logger:    logger,
	})

	rt.Positions = position.NewRegistry(position.Options{
		Positions:   rt.Stores.Positions,
		Ticks:       rt.Stores.Ticks,
		Prices:      sampler,
		ExitConfig:  cfg.Strategy.Exit,
		Interval:    cfg.Positions.Interval,
		Concurrency: cfg.Positions.Concurrency,
		Publisher:   bus,
		Logger:      logger,
	})

	rt.Coordinator = execution.NewCoordinator(execution.Options{
		Config:    ExecutionConfig(cfg),
		RPC:       rpc,
		Confirmer: confirmer,
		Router:    router,
		Prices:    prices,
		Keypair:   keypair,
		Breakers:  rt.Breakers,
		Trades:    rt.Stores.Trades,
		Positions: rt.Positions,
		Locker:    locker,
		Publisher: bus,
		Logger:    logger,
	})
	rt.Positions.SetExecutor(rt.Coordinator)

	var services []Service
	if cfg.Positions.PriceInterval > 0 {
		services = append(services, NewPriceFeed(prices, rt.Positions, cfg.Positions.PriceInterval, logger))
	}
	if cfg.API.Enabled {
		services = append(services, api.NewServer(api.Options{
			Addr:        cfg.API.Addr,
			CORSOrigins: cfg.API.CORSOrigins,
			Live:        rt.Positions,
			Positions:   rt.Stores.Positions,
			Trades:      rt.Stores.Trades,
			Breakers:    rt.Breakers,
			Logger:      logger,
		}))
	}

	rt.Agent = New(Options{
		Trading:   cfg.Trading,
		Evaluator: evaluator,
		Executor:  rt.Coordinator,
		Positions: rt.Positions,
		Pools:     pools,
		Market:    market,
		Bus:       bus,
		Forwarder: forwarder,
		Services:  services,
		Logger:    logger,
	})
	return rt, nil
}

// OpenStores opens the trade and position stores for cfg.Driver and the tick
// archive (ClickHouse when a DSN is set, memory otherwise). Closers are
// registered through onClose.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger, onClose func(func() error)) (Stores, error) {
	var s Stores
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxConns: cfg.MaxConns})
		if err != nil {
			return s, err
		}
		onClose(func() error { pool.Close(); return nil })
		if _, err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return s, err
		}
		s.Trades = postgres.NewTradeStore(pool)
		s.Positions = postgres.NewPositionStore(pool)
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return s, err
		}
		onClose(db.Close)
		s.Trades = sqlite.NewTradeStore(db)
		s.Positions = sqlite.NewPositionStore(db)
	case config.DriverMemory, "":
		s.Trades = memory.NewTradeStore()
		s.Positions = memory.NewPositionStore()
	default:
		return s, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.ClickhouseDSN == "" {
		s.Ticks = memory.NewPositionTickStore()
	} else {
		conn, _, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return s, err
		}
		onClose(conn.Close)
		s.Ticks = chstore.NewPositionTickStore(conn)
	}
	logger.Info("storage ready",
		zap.String("driver", cfg.Driver),
		zap.Bool("clickhouse_ticks", cfg.ClickhouseDSN != ""),
	)
	return s, nil
}

// LoadKeypair reads the wallet from PrivateKey or KeypairPath. Neither set
// returns nil and no error: the agent runs with the wallet not ready.
func LoadKeypair(cfg config.SolanaConfig) (*solana.Keypair, error) {
	switch {
	case cfg.PrivateKey != "":
		kp, err := solana.ParseKeypair(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return kp, nil
	case cfg.KeypairPath != "":
		kp, err := solana.LoadKeypairFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load keypair %s: %w", cfg.KeypairPath, err)
		}
		return kp, nil
	default:
		return nil, nil
	}
}

// NewEvaluator builds the entry evaluator for cfg.
func NewEvaluator(cfg config.StrategyConfig, logger *zap.Logger) (*strategy.Evaluator, error) {
	policy, err := strategy.ParseErrorPolicy(cfg.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	entries, err := strategy.FromNames(cfg.Entry)
	if err != nil {
		return nil, err
	}
	return strategy.NewEvaluator(logger, policy, entries...), nil
}

// BreakerConfigs maps the breaker section onto the two breaker categories.
func BreakerConfigs(cfg config.BreakersConfig) []breaker.Config {
	return []breaker.Config{
		{Name: domain.BreakerTrading, FailureThreshold: cfg.FailureThreshold, ResetAfter: cfg.TradingResetAfter},
		{Name: domain.BreakerBalance, FailureThreshold: cfg.FailureThreshold, ResetAfter: cfg.BalanceResetAfter},
	}
}

// ExecutionConfig collects execution limits from the execution, trading and
// risk sections.
func ExecutionConfig(cfg *config.Config) execution.Config {
	return execution.Config{
		MaxAttempts:        cfg.Execution.MaxAttempts,
		BaseDelay:          cfg.Execution.BaseDelay,
		QuoteTimeout:       cfg.Execution.QuoteTimeout,
		BuildTimeout:       cfg.Execution.BuildTimeout,
		ConfirmTimeout:     cfg.Execution.ConfirmTimeout,
		MinTradeAmountUSD:  cfg.Execution.MinTradeAmountUSD,
		MaxTradeAmountUSD:  cfg.Trading.MaxTradeAmountUSD,
		MaxSlippagePercent: cfg.Trading.MaxSlippagePercent,
		MaxPriceImpactPct:  cfg.Risk.MaxPriceImpactPct,
		MinGasBalanceSOL:   cfg.Risk.MinGasBalanceSOL,
		RiskPercent:        cfg.Risk.RiskPercent,
		CongestionTPS:      cfg.Execution.CongestionTPS,
	}
}
