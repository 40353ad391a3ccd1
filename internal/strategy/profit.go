package strategy

import (
	"context"
	"fmt"

	"solana-pool-trader/internal/domain"
)

// ProfitStrategy takes profit at a fixed target and trails the peak afterwards.
//
// Checks, in order:
//   - take profit: pnl% >= TakeProfitPct. Sells PartialTakeProfitPct of the
//     position on the first hit, or everything when partials are disabled or
//     already taken.
//   - trailing stop: while in profit, price <= peak * (1 - TrailingStopPct/100).
type ProfitStrategy struct{}

// NewProfitStrategy creates a ProfitStrategy.
func NewProfitStrategy() *ProfitStrategy {
	return &ProfitStrategy{}
}

// Name returns the strategy name.
func (s *ProfitStrategy) Name() string { return domain.ExitReasonTakeProfit }

// Priority returns the evaluation priority.
func (s *ProfitStrategy) Priority() int { return 20 }

// Evaluate checks take-profit and trailing-stop conditions.
func (s *ProfitStrategy) Evaluate(_ context.Context, pos domain.PositionContext, sample domain.MarketSample) (*domain.ExitResult, error) {
	cfg := pos.ExitConfig
	pnl := pnlPercent(pos.EntryPrice, sample.Price)

	if cfg.TakeProfitPct > 0 && pnl >= cfg.TakeProfitPct {
		res := &domain.ExitResult{
			ShouldExit: true,
			Reason:     fmt.Sprintf("%s: pnl %.2f%% >= %.2f%%", domain.ExitReasonTakeProfit, pnl, cfg.TakeProfitPct),
			Urgency:    domain.UrgencyMedium,
		}
		partial := cfg.PartialTakeProfitPct
		if partial > 0 && partial < 100 && pos.PartialExits == 0 {
			res.PartialExitPercentage = &partial
			return res, nil
		}
		// With partials, the remainder is left to the trailing stop.
		if partial == 0 || partial >= 100 || cfg.TrailingStopPct <= 0 {
			return res, nil
		}
	}

	if cfg.TrailingStopPct > 0 && pnl > 0 {
		peak := pos.PeakPrice
		if sample.Price > peak {
			peak = sample.Price
		}
		stop := peak * (1 - cfg.TrailingStopPct/100)
		if sample.Price <= stop {
			return &domain.ExitResult{
				ShouldExit: true,
				Reason: fmt.Sprintf("%s: price %g <= %g (peak %g - %.2f%%)",
					domain.ExitReasonTrailingStop, sample.Price, stop, peak, cfg.TrailingStopPct),
				Urgency: domain.UrgencyHigh,
			}, nil
		}
	}

	return hold(), nil
}

// Ensure ProfitStrategy implements ExitStrategy
var _ ExitStrategy = (*ProfitStrategy)(nil)
