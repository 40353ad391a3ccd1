package strategy

import (
	"context"
	"fmt"
	"time"

	"solana-pool-trader/internal/domain"
)

// TimeExitStrategy exits after the position's maximum hold duration.
type TimeExitStrategy struct {
	now func() time.Time
}

// NewTimeExitStrategy creates a TimeExitStrategy. A nil clock uses time.Now.
func NewTimeExitStrategy(now func() time.Time) *TimeExitStrategy {
	if now == nil {
		now = time.Now
	}
	return &TimeExitStrategy{now: now}
}

// Name returns the strategy name.
func (s *TimeExitStrategy) Name() string { return domain.ExitReasonTimeExit }

// Priority returns the evaluation priority.
func (s *TimeExitStrategy) Priority() int { return 10 }

// Evaluate exits once now - open >= MaxHoldDuration.
func (s *TimeExitStrategy) Evaluate(_ context.Context, pos domain.PositionContext, _ domain.MarketSample) (*domain.ExitResult, error) {
	maxHold := pos.ExitConfig.MaxHoldDuration
	if maxHold <= 0 {
		return hold(), nil
	}

	held := s.now().Sub(time.UnixMilli(pos.OpenTimestamp))
	if held < maxHold {
		return hold(), nil
	}

	return &domain.ExitResult{
		ShouldExit: true,
		Reason:     fmt.Sprintf("%s: held %v (max %v)", domain.ExitReasonTimeExit, held.Round(time.Second), maxHold),
		Urgency:    domain.UrgencyMedium,
	}, nil
}

// Ensure TimeExitStrategy implements ExitStrategy
var _ ExitStrategy = (*TimeExitStrategy)(nil)
