package strategy

import (
	"context"
	"fmt"

	"solana-pool-trader/internal/domain"
)

// StopLossStrategy exits when the loss reaches StopLossPct.
type StopLossStrategy struct{}

// NewStopLossStrategy creates a StopLossStrategy.
func NewStopLossStrategy() *StopLossStrategy {
	return &StopLossStrategy{}
}

// Name returns the strategy name.
func (s *StopLossStrategy) Name() string { return domain.ExitReasonStopLoss }

// Priority returns the evaluation priority.
func (s *StopLossStrategy) Priority() int { return 30 }

// Evaluate exits when pnl% <= -StopLossPct.
func (s *StopLossStrategy) Evaluate(_ context.Context, pos domain.PositionContext, sample domain.MarketSample) (*domain.ExitResult, error) {
	limit := pos.ExitConfig.StopLossPct
	if limit <= 0 {
		return hold(), nil
	}

	pnl := pnlPercent(pos.EntryPrice, sample.Price)
	if pnl > -limit {
		return hold(), nil
	}

	return &domain.ExitResult{
		ShouldExit: true,
		Reason:     fmt.Sprintf("%s: pnl %.2f%% <= -%.2f%%", domain.ExitReasonStopLoss, pnl, limit),
		Urgency:    domain.UrgencyCritical,
	}, nil
}

// Ensure StopLossStrategy implements ExitStrategy
var _ ExitStrategy = (*StopLossStrategy)(nil)
