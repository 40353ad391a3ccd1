package domain

// Side is the direction of a trade relative to the target token.
type Side string

// Trade sides
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeDecision is the verdict of entry evaluation or exit evaluation.
// Immutable once produced; passed by value.
type TradeDecision struct {
	ShouldTrade       bool
	Side              Side
	TargetToken       string   // mint being bought or sold
	BaseToken         string   // mint paid with (buy) or received (sell)
	PoolAddress       string   // pool the decision was made against
	TradeAmountUSD    float64  // notional size in USD
	ExpectedAmountOut float64  // expected output in UI units
	Price             *float64 // target token price in USD at decision time (nullable)
	Reason            string
	RiskScore         float64 // 0..10
	Confidence        float64 // 0..1, mean of approving strategies

	// Buy-side context carried into the opened position
	LiquidityUSD float64 // pool liquidity at decision time
	Creator      *string // pool creator (nullable)

	// Sell-side only
	PositionID  string  // position being exited
	TokenAmount float64 // UI amount of target token to sell
}

// StrategyResult is produced by a single entry strategy.
type StrategyResult struct {
	ShouldTrade       bool
	Confidence        float64  // 0..1
	RecommendedAmount *float64 // USD (nullable)
	MaxRisk           *float64 // nullable
	Reason            string
	Metadata          map[string]any
}

// Exit urgency levels
const (
	UrgencyLow      = "LOW"
	UrgencyMedium   = "MEDIUM"
	UrgencyHigh     = "HIGH"
	UrgencyCritical = "CRITICAL"
)

// ExitResult is produced by a single exit strategy.
type ExitResult struct {
	ShouldExit            bool
	Reason                string
	Urgency               string
	PartialExitPercentage *float64 // 0 < p < 100 for partial exits (nullable = full exit)
}

// IsPartial reports whether the result asks for a partial exit.
func (r *ExitResult) IsPartial() bool {
	return r.PartialExitPercentage != nil && *r.PartialExitPercentage > 0 && *r.PartialExitPercentage < 100
}

// Exit reason codes
const (
	ExitReasonTimeExit      = "TIME_EXIT"
	ExitReasonTakeProfit    = "TAKE_PROFIT"
	ExitReasonTrailingStop  = "TRAILING_STOP"
	ExitReasonStopLoss      = "STOP_LOSS"
	ExitReasonLiquidityDrop = "LIQUIDITY_DROP"
	ExitReasonDeveloperSell = "DEVELOPER_SELL"
)
