package strategy

import (
	"context"
	"fmt"

	"solana-pool-trader/internal/domain"
)

// LiquidityGuardStrategy exits when pool liquidity falls below a floor or
// drops too far from its value at entry (rug pull protection).
type LiquidityGuardStrategy struct{}

// NewLiquidityGuardStrategy creates a LiquidityGuardStrategy.
func NewLiquidityGuardStrategy() *LiquidityGuardStrategy {
	return &LiquidityGuardStrategy{}
}

// Name returns the strategy name.
func (s *LiquidityGuardStrategy) Name() string { return domain.ExitReasonLiquidityDrop }

// Priority returns the evaluation priority.
func (s *LiquidityGuardStrategy) Priority() int { return 40 }

// Evaluate compares current liquidity to MinLiquidityUSD and to the entry liquidity.
// Without a liquidity sample the position is held.
func (s *LiquidityGuardStrategy) Evaluate(_ context.Context, pos domain.PositionContext, sample domain.MarketSample) (*domain.ExitResult, error) {
	if sample.LiquidityUSD == nil {
		return hold(), nil
	}
	liq := *sample.LiquidityUSD
	cfg := pos.ExitConfig

	if pos.EntryLiquidity != nil && *pos.EntryLiquidity > 0 && cfg.LiquidityDropPct > 0 {
		drop := (*pos.EntryLiquidity - liq) / *pos.EntryLiquidity * 100
		if drop >= cfg.LiquidityDropPct {
			return &domain.ExitResult{
				ShouldExit: true,
				Reason: fmt.Sprintf("%s: liquidity down %.1f%% from entry ($%.2f -> $%.2f)",
					domain.ExitReasonLiquidityDrop, drop, *pos.EntryLiquidity, liq),
				Urgency: domain.UrgencyCritical,
			}, nil
		}
	}

	if cfg.MinLiquidityUSD > 0 && liq < cfg.MinLiquidityUSD {
		return &domain.ExitResult{
			ShouldExit: true,
			Reason: fmt.Sprintf("%s: liquidity $%.2f below $%.2f",
				domain.ExitReasonLiquidityDrop, liq, cfg.MinLiquidityUSD),
			Urgency: domain.UrgencyHigh,
		}, nil
	}

	return hold(), nil
}

// Ensure LiquidityGuardStrategy implements ExitStrategy
var _ ExitStrategy = (*LiquidityGuardStrategy)(nil)
