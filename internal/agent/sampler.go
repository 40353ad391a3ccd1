package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/solana"
)

// PriceProvider returns USD prices by mint.
type PriceProvider interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// LiquiditySource returns the last known USD liquidity of a pool.
type LiquiditySource interface {
	GetLiquidity(ctx context.Context, pool string) (float64, time.Time, error)
}

// BalanceReader reads an owner's token balance.
type BalanceReader interface {
	GetTokenBalance(ctx context.Context, owner, mint string) (*solana.TokenAmount, error)
}

// CreatorBaselines stores the creator's holding at the first sample of a
// position and returns it on every later call.
type CreatorBaselines interface {
	CreatorBaseline(ctx context.Context, positionID string, holding float64) (float64, error)
}

// SamplerOptions wires a MarketSampler.
type SamplerOptions struct {
	Prices    PriceProvider
	Liquidity LiquiditySource  // optional
	Balances  BalanceReader    // optional; enables creator tracking
	Baselines CreatorBaselines // optional; defaults to in-memory
	// MaxLiquidityAge drops cached liquidity older than this (0 keeps all).
	MaxLiquidityAge time.Duration
	Logger          *zap.Logger
	Now             func() time.Time
}

// MarketSampler builds the market view the exit strategies evaluate.
// Only the price is mandatory; liquidity and creator holdings are left nil
// when unavailable so the corresponding exits are skipped.
type MarketSampler struct {
	opts   SamplerOptions
	logger *zap.Logger
}

// NewMarketSampler creates a MarketSampler.
func NewMarketSampler(opts SamplerOptions) *MarketSampler {
	if opts.Baselines == nil {
		opts.Baselines = newMemoryBaselines()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MarketSampler{opts: opts, logger: opts.Logger.Named("sampler")}
}

// Sample implements position.PriceSource.
func (s *MarketSampler) Sample(ctx context.Context, pos domain.PositionContext) (domain.MarketSample, error) {
	now := s.opts.Now()
	sample := domain.MarketSample{Timestamp: now.UnixMilli()}

	if s.opts.Prices == nil {
		return sample, fmt.Errorf("sample %s: no price provider", pos.TokenAddress)
	}
	price, err := s.opts.Prices.Price(ctx, pos.TokenAddress)
	if err != nil {
		return sample, fmt.Errorf("sample %s: %w", pos.TokenAddress, err)
	}
	sample.Price = price

	if s.opts.Liquidity != nil && pos.PoolAddress != "" {
		usd, at, err := s.opts.Liquidity.GetLiquidity(ctx, pos.PoolAddress)
		switch {
		case err != nil:
			s.logger.Debug("liquidity unavailable", zap.String("pool", pos.PoolAddress), zap.Error(err))
		case s.opts.MaxLiquidityAge > 0 && now.Sub(at) > s.opts.MaxLiquidityAge:
			s.logger.Debug("liquidity stale", zap.String("pool", pos.PoolAddress), zap.Duration("age", now.Sub(at)))
		default:
			sample.LiquidityUSD = &usd
		}
	}

	if s.opts.Balances != nil && pos.Creator != nil && *pos.Creator != "" {
		s.sampleCreator(ctx, pos, &sample)
	}
	return sample, nil
}

func (s *MarketSampler) sampleCreator(ctx context.Context, pos domain.PositionContext, sample *domain.MarketSample) {
	logger := s.logger.With(zap.String("position_id", pos.PositionID), zap.String("creator", *pos.Creator))

	held, err := s.opts.Balances.GetTokenBalance(ctx, *pos.Creator, pos.TokenAddress)
	if err != nil {
		logger.Debug("creator balance unavailable", zap.Error(err))
		return
	}
	var holding float64
	if held != nil {
		holding = jupiter.FromBaseUnits(held.Amount, int32(held.Decimals))
	}

	initial, err := s.opts.Baselines.CreatorBaseline(ctx, pos.PositionID, holding)
	if err != nil {
		logger.Debug("creator baseline unavailable", zap.Error(err))
		return
	}
	sample.CreatorHoldings = &holding
	sample.CreatorInitialHolding = &initial
}

// memoryBaselines is the in-process CreatorBaselines used without redis.
type memoryBaselines struct {
	mu   sync.Mutex
	byID map[string]float64
}

func newMemoryBaselines() *memoryBaselines {
	return &memoryBaselines{byID: make(map[string]float64)}
}

func (m *memoryBaselines) CreatorBaseline(_ context.Context, positionID string, holding float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.byID[positionID]; ok {
		return v, nil
	}
	m.byID[positionID] = holding
	return holding, nil
}
