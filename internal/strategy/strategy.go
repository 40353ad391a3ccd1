package strategy

import (
	"context"
	"errors"

	"solana-pool-trader/internal/domain"
)

// ErrInvalidInput is returned when a strategy receives incomplete input.
var ErrInvalidInput = errors.New("invalid strategy input")

// Strategy decides whether to enter a newly created pool.
type Strategy interface {
	// Name returns the unique strategy name.
	Name() string

	// Priority orders evaluation; lower runs first.
	Priority() int

	// Evaluate inspects the input and returns a verdict.
	// Input is shared across strategies and must not be modified.
	Evaluate(ctx context.Context, in *StrategyInput) (*domain.StrategyResult, error)
}

// ExitStrategy decides whether to leave an open position.
// Thresholds come from the position's ExitConfig; a zero threshold disables the check.
type ExitStrategy interface {
	Name() string
	Priority() int
	Evaluate(ctx context.Context, pos domain.PositionContext, sample domain.MarketSample) (*domain.ExitResult, error)
}

// StrategyInput holds all data needed for entry evaluation.
type StrategyInput struct {
	Pool        domain.NewPoolEvent
	TargetToken domain.TokenInfo
	BaseToken   domain.TokenInfo
	Liquidity   domain.PoolLiquidity
	Config      domain.TradingConfig
}

// Validate checks that the input identifies a pool and a target token.
func (in *StrategyInput) Validate() error {
	if in == nil {
		return ErrInvalidInput
	}
	if in.Pool.PoolAddress == "" || in.TargetToken.Address == "" || in.BaseToken.Address == "" {
		return ErrInvalidInput
	}
	return nil
}

func approve(confidence float64, reason string) *domain.StrategyResult {
	return &domain.StrategyResult{ShouldTrade: true, Confidence: clamp01(confidence), Reason: reason}
}

func reject(reason string) *domain.StrategyResult {
	return &domain.StrategyResult{ShouldTrade: false, Reason: reason}
}

func hold() *domain.ExitResult {
	return &domain.ExitResult{ShouldExit: false}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
