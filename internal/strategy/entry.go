package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-pool-trader/internal/domain"
)

// Entry strategy names
const (
	NameLiquidity      = "liquidity"
	NameTokenRisk      = "token_risk"
	NameTokenSupply    = "token_supply"
	NameMinPrice       = "min_price"
	NamePositionSizing = "position_sizing"
)

// DefaultMaxRiskScore is used when TradingConfig.MaxRiskScore is unset.
const DefaultMaxRiskScore = 7.0

// LiquidityStrategy rejects pools below the configured minimum liquidity.
type LiquidityStrategy struct{}

// Name returns the strategy name.
func (LiquidityStrategy) Name() string { return NameLiquidity }

// Priority returns the evaluation priority.
func (LiquidityStrategy) Priority() int { return 10 }

// Evaluate compares pool liquidity to MinLiquidityUSD.
// Confidence grows with liquidity and saturates at 5x the minimum.
func (LiquidityStrategy) Evaluate(_ context.Context, in *StrategyInput) (*domain.StrategyResult, error) {
	floor := in.Config.MinLiquidityUSD
	liq := in.Liquidity.LiquidityUSD
	if liq < floor {
		return reject(fmt.Sprintf("liquidity $%.2f below minimum $%.2f", liq, floor)), nil
	}
	if floor <= 0 {
		return approve(1, "no liquidity floor"), nil
	}
	return approve(liq/(floor*5), fmt.Sprintf("liquidity $%.2f", liq)), nil
}

// TokenRiskStrategy rejects tokens whose risk score exceeds MaxRiskScore.
type TokenRiskStrategy struct{}

// Name returns the strategy name.
func (TokenRiskStrategy) Name() string { return NameTokenRisk }

// Priority returns the evaluation priority.
func (TokenRiskStrategy) Priority() int { return 20 }

// Evaluate checks the target token risk score.
func (TokenRiskStrategy) Evaluate(_ context.Context, in *StrategyInput) (*domain.StrategyResult, error) {
	risk := in.TargetToken.RiskScore
	if risk < 0 || risk > 10 {
		return nil, fmt.Errorf("%w: risk score %.2f out of range", ErrInvalidInput, risk)
	}
	limit := in.Config.MaxRiskScore
	if limit <= 0 {
		limit = DefaultMaxRiskScore
	}
	if risk > limit {
		return reject(fmt.Sprintf("risk score %.1f above maximum %.1f", risk, limit)), nil
	}
	res := approve(1-risk/10, fmt.Sprintf("risk score %.1f", risk))
	res.MaxRisk = &limit
	return res, nil
}

// TokenSupplyStrategy rejects tokens with a supply above MaxTokenSupply.
type TokenSupplyStrategy struct{}

// Name returns the strategy name.
func (TokenSupplyStrategy) Name() string { return NameTokenSupply }

// Priority returns the evaluation priority.
func (TokenSupplyStrategy) Priority() int { return 30 }

// Evaluate checks supply against the configured cap.
// Unknown supply is allowed with reduced confidence.
func (TokenSupplyStrategy) Evaluate(_ context.Context, in *StrategyInput) (*domain.StrategyResult, error) {
	if in.Config.MaxTokenSupply == nil {
		return approve(1, "no supply limit"), nil
	}
	if in.TargetToken.Supply == nil {
		return approve(0.5, "supply unknown"), nil
	}
	supply, limit := *in.TargetToken.Supply, *in.Config.MaxTokenSupply
	if supply > limit {
		return reject(fmt.Sprintf("supply %.0f above maximum %.0f", supply, limit)), nil
	}
	return approve(1, fmt.Sprintf("supply %.0f", supply)), nil
}

// MinPriceStrategy rejects tokens priced below MinTokenPrice.
type MinPriceStrategy struct{}

// Name returns the strategy name.
func (MinPriceStrategy) Name() string { return NameMinPrice }

// Priority returns the evaluation priority.
func (MinPriceStrategy) Priority() int { return 40 }

// Evaluate checks the pool price against the configured floor.
func (MinPriceStrategy) Evaluate(_ context.Context, in *StrategyInput) (*domain.StrategyResult, error) {
	if in.Config.MinTokenPrice == nil {
		return approve(1, "no price floor"), nil
	}
	if in.Liquidity.PriceUSD == nil {
		return reject("price unavailable"), nil
	}
	price, floor := *in.Liquidity.PriceUSD, *in.Config.MinTokenPrice
	if price < floor {
		return reject(fmt.Sprintf("price %g below minimum %g", price, floor)), nil
	}
	return approve(1, fmt.Sprintf("price %g", price)), nil
}

// PositionSizingStrategy recommends a trade size.
// The default size is scaled down linearly with risk (half size at risk 10),
// capped at MaxTradeAmountUSD and at MaxPoolShare of pool liquidity.
type PositionSizingStrategy struct {
	MaxPoolShare float64 // fraction of pool liquidity, 0 disables the cap
}

// DefaultMaxPoolShare limits a single entry to 1% of pool liquidity.
const DefaultMaxPoolShare = 0.01

// Name returns the strategy name.
func (PositionSizingStrategy) Name() string { return NamePositionSizing }

// Priority returns the evaluation priority.
func (PositionSizingStrategy) Priority() int { return 100 }

// Evaluate computes the recommended USD amount, rounded to cents.
func (s PositionSizingStrategy) Evaluate(_ context.Context, in *StrategyInput) (*domain.StrategyResult, error) {
	cfg := in.Config
	if cfg.DefaultTradeAmountUSD <= 0 {
		return nil, fmt.Errorf("%w: default trade amount not configured", ErrInvalidInput)
	}

	risk := decimal.NewFromFloat(in.TargetToken.RiskScore)
	scale := decimal.NewFromInt(1).Sub(risk.Div(decimal.NewFromInt(20)))
	amount := decimal.NewFromFloat(cfg.DefaultTradeAmountUSD).Mul(scale)

	if cfg.MaxTradeAmountUSD > 0 {
		amount = decimal.Min(amount, decimal.NewFromFloat(cfg.MaxTradeAmountUSD))
	}
	if s.MaxPoolShare > 0 && in.Liquidity.LiquidityUSD > 0 {
		poolCap := decimal.NewFromFloat(in.Liquidity.LiquidityUSD).Mul(decimal.NewFromFloat(s.MaxPoolShare))
		amount = decimal.Min(amount, poolCap)
	}
	amount = amount.Round(2)

	if amount.LessThan(decimal.NewFromInt(1)) {
		return reject(fmt.Sprintf("position size $%s below $1 minimum", amount.StringFixed(2))), nil
	}

	v := amount.InexactFloat64()
	res := approve(scale.InexactFloat64(), fmt.Sprintf("size $%s", amount.StringFixed(2)))
	res.RecommendedAmount = &v
	return res, nil
}

var (
	_ Strategy = LiquidityStrategy{}
	_ Strategy = TokenRiskStrategy{}
	_ Strategy = TokenSupplyStrategy{}
	_ Strategy = MinPriceStrategy{}
	_ Strategy = PositionSizingStrategy{}
)
