package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-pool-trader/internal/config"
	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/solana"
	"solana-pool-trader/internal/strategy"
)

type staticPrices map[string]float64

func (p staticPrices) Price(_ context.Context, mint string) (float64, error) {
	v, ok := p[mint]
	if !ok {
		return 0, errors.New("unknown mint")
	}
	return v, nil
}

type countingPrices struct {
	price float64
	err   error
	calls int
}

func (p *countingPrices) Price(context.Context, string) (float64, error) {
	p.calls++
	return p.price, p.err
}

type fakeBalances struct {
	amount uint64
	err    error
}

func (f *fakeBalances) GetTokenBalance(context.Context, string, string) (*solana.TokenAmount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &solana.TokenAmount{Amount: f.amount, Decimals: 6, Accounts: 1}, nil
}

func TestMarketSampler_Sample(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_060_000)
	market := NewMemoryMarket(nil, time.Minute)
	require.NoError(t, market.SetLiquidity(ctx, testPool, 42_000, now.Add(-time.Second)))

	creator := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	balances := &fakeBalances{amount: 5_000_000_000} // 5000 tokens
	s := NewMarketSampler(SamplerOptions{
		Prices:    staticPrices{testToken: 0.003},
		Liquidity: market,
		Balances:  balances,
		Logger:    zaptest.NewLogger(t),
		Now:       func() time.Time { return now },
	})
	pos := domain.PositionContext{PositionID: "pos-1", TokenAddress: testToken, PoolAddress: testPool, Creator: &creator}

	sample, err := s.Sample(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, 0.003, sample.Price)
	assert.Equal(t, now.UnixMilli(), sample.Timestamp)
	require.NotNil(t, sample.LiquidityUSD)
	assert.Equal(t, 42_000.0, *sample.LiquidityUSD)
	require.NotNil(t, sample.CreatorHoldings)
	require.NotNil(t, sample.CreatorInitialHolding)
	assert.InDelta(t, 5000.0, *sample.CreatorHoldings, 1e-9)
	assert.InDelta(t, 5000.0, *sample.CreatorInitialHolding, 1e-9)

	// The creator sells; the baseline keeps the first observation.
	balances.amount = 1_000_000_000
	sample, err = s.Sample(ctx, pos)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, *sample.CreatorHoldings, 1e-9)
	assert.InDelta(t, 5000.0, *sample.CreatorInitialHolding, 1e-9)
}

func TestMarketSampler_OptionalDataMissing(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	market := NewMemoryMarket(nil, time.Minute)
	require.NoError(t, market.SetLiquidity(ctx, testPool, 42_000, now.Add(-time.Hour)))

	creator := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	s := NewMarketSampler(SamplerOptions{
		Prices:          staticPrices{testToken: 0.003},
		Liquidity:       market,
		Balances:        &fakeBalances{err: errors.New("rpc down")},
		MaxLiquidityAge: time.Minute,
		Now:             func() time.Time { return now },
	})

	sample, err := s.Sample(ctx, domain.PositionContext{PositionID: "pos-1", TokenAddress: testToken, PoolAddress: testPool, Creator: &creator})
	require.NoError(t, err)
	assert.Nil(t, sample.LiquidityUSD, "stale liquidity is dropped")
	assert.Nil(t, sample.CreatorHoldings)
	assert.Nil(t, sample.CreatorInitialHolding)
}

func TestMarketSampler_PriceRequired(t *testing.T) {
	s := NewMarketSampler(SamplerOptions{Prices: staticPrices{}})
	_, err := s.Sample(context.Background(), domain.PositionContext{TokenAddress: testToken})
	require.Error(t, err)

	s = NewMarketSampler(SamplerOptions{})
	_, err = s.Sample(context.Background(), domain.PositionContext{TokenAddress: testToken})
	require.Error(t, err)
}

func TestMemoryMarket_Price(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	upstream := &countingPrices{price: 1.5}
	m := NewMemoryMarket(upstream, 10*time.Second)
	m.now = func() time.Time { return now }

	p, err := m.Price(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 1.5, p)
	assert.Equal(t, 1, upstream.calls)

	// Fresh cache hit.
	_, err = m.Price(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)

	// Expired and upstream failing: stale value served.
	now = now.Add(time.Minute)
	upstream.err = errors.New("upstream down")
	p, err = m.Price(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 1.5, p)
	assert.Equal(t, 2, upstream.calls)

	_, err = m.Price(ctx, "unknown")
	require.Error(t, err)
}

func TestMemoryMarket_NoData(t *testing.T) {
	m := NewMemoryMarket(nil, 0)
	_, _, err := m.GetLiquidity(context.Background(), testPool)
	require.ErrorIs(t, err, ErrNoMarketData)
	_, err = m.Price(context.Background(), testToken)
	require.ErrorIs(t, err, ErrNoMarketData)
}

func TestExecutionConfig(t *testing.T) {
	cfg := &config.Config{
		Trading:   domain.TradingConfig{MaxTradeAmountUSD: 75, MaxSlippagePercent: 3},
		Risk:      domain.RiskConfig{RiskPercent: 2, MinGasBalanceSOL: 0.02, MaxPriceImpactPct: 4},
		Execution: config.ExecutionConfig{MaxAttempts: 5, BaseDelay: time.Second, MinTradeAmountUSD: 2, CongestionTPS: 3000},
	}
	got := ExecutionConfig(cfg)
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, time.Second, got.BaseDelay)
	assert.Equal(t, 2.0, got.MinTradeAmountUSD)
	assert.Equal(t, 75.0, got.MaxTradeAmountUSD)
	assert.Equal(t, 3.0, got.MaxSlippagePercent)
	assert.Equal(t, 4.0, got.MaxPriceImpactPct)
	assert.Equal(t, 0.02, got.MinGasBalanceSOL)
	assert.Equal(t, 2.0, got.RiskPercent)
	assert.Equal(t, 3000.0, got.CongestionTPS)
}

func TestBreakerConfigs(t *testing.T) {
	got := BreakerConfigs(config.BreakersConfig{
		FailureThreshold:  4,
		TradingResetAfter: 5 * time.Minute,
		BalanceResetAfter: 10 * time.Minute,
	})
	require.Len(t, got, 2)
	assert.Equal(t, domain.BreakerTrading, got[0].Name)
	assert.Equal(t, 5*time.Minute, got[0].ResetAfter)
	assert.Equal(t, domain.BreakerBalance, got[1].Name)
	assert.Equal(t, 10*time.Minute, got[1].ResetAfter)
	assert.Equal(t, 4, got[1].FailureThreshold)
}

func TestLoadKeypair_NoneConfigured(t *testing.T) {
	kp, err := LoadKeypair(config.SolanaConfig{})
	require.NoError(t, err)
	assert.Nil(t, kp)

	_, err = LoadKeypair(config.SolanaConfig{PrivateKey: "not-a-key"})
	require.Error(t, err)
}

func TestBuild_MemoryRuntime(t *testing.T) {
	cfg := &config.Config{
		Trading:   domain.TradingConfig{DefaultTradeAmountUSD: 10, MaxTradeAmountUSD: 50},
		Strategy:  config.StrategyConfig{Entry: strategy.DefaultEntryNames(), ErrorPolicy: "reject"},
		Solana:    config.SolanaConfig{RPCURL: "http://127.0.0.1:8899"},
		Storage:   config.StorageConfig{Driver: config.DriverMemory},
		Positions: config.PositionsConfig{PriceInterval: time.Second},
	}

	rt, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.NotNil(t, rt.Agent)
	assert.NotNil(t, rt.Coordinator)
	assert.Len(t, rt.Evaluator.Strategies(), len(strategy.DefaultEntryNames()))
	assert.Len(t, rt.Breakers.States(), 2)
	assert.NotNil(t, rt.Stores.Trades)
	assert.NotNil(t, rt.Stores.Positions)
	assert.NotNil(t, rt.Stores.Ticks)
	assert.Nil(t, rt.Agent.opts.Pools)
	require.Len(t, rt.Agent.opts.Services, 1)
	assert.IsType(t, &PriceFeed{}, rt.Agent.opts.Services[0])
}

func TestBuild_InvalidStrategy(t *testing.T) {
	cfg := &config.Config{
		Strategy: config.StrategyConfig{Entry: []string{"moon_shot"}},
		Storage:  config.StorageConfig{Driver: config.DriverMemory},
	}
	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, strategy.ErrUnknownStrategyType)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), config.StorageConfig{Driver: "mongo"}, zaptest.NewLogger(t), func(func() error) {})
	require.Error(t, err)
}
