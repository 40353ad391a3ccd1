package strategy

import (
	"context"
	"fmt"

	"solana-pool-trader/internal/domain"
)

// DeveloperActivityStrategy exits when the pool creator dumps their holdings.
type DeveloperActivityStrategy struct{}

// NewDeveloperActivityStrategy creates a DeveloperActivityStrategy.
func NewDeveloperActivityStrategy() *DeveloperActivityStrategy {
	return &DeveloperActivityStrategy{}
}

// Name returns the strategy name.
func (s *DeveloperActivityStrategy) Name() string { return domain.ExitReasonDeveloperSell }

// Priority returns the evaluation priority.
func (s *DeveloperActivityStrategy) Priority() int { return 50 }

// Evaluate exits when the creator sold at least CreatorSellPct of their initial holding.
func (s *DeveloperActivityStrategy) Evaluate(_ context.Context, pos domain.PositionContext, sample domain.MarketSample) (*domain.ExitResult, error) {
	limit := pos.ExitConfig.CreatorSellPct
	if limit <= 0 || sample.CreatorHoldings == nil || sample.CreatorInitialHolding == nil {
		return hold(), nil
	}
	initial := *sample.CreatorInitialHolding
	if initial <= 0 {
		return hold(), nil
	}

	sold := (initial - *sample.CreatorHoldings) / initial * 100
	if sold < limit {
		return hold(), nil
	}

	return &domain.ExitResult{
		ShouldExit: true,
		Reason:     fmt.Sprintf("%s: creator sold %.1f%% of holdings", domain.ExitReasonDeveloperSell, sold),
		Urgency:    domain.UrgencyCritical,
	}, nil
}

// Ensure DeveloperActivityStrategy implements ExitStrategy
var _ ExitStrategy = (*DeveloperActivityStrategy)(nil)
