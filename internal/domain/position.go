package domain

import "time"

// PositionState is a state of the position lifecycle machine.
type PositionState string

// Position lifecycle states
const (
	PositionStateCreated          PositionState = "CREATED"
	PositionStateMonitoring       PositionState = "MONITORING"
	PositionStateExitConditionMet PositionState = "EXIT_CONDITION_MET"
	PositionStateExitApproved     PositionState = "EXIT_APPROVED"
	PositionStateExitCompleted    PositionState = "EXIT_COMPLETED"
	PositionStateError            PositionState = "ERROR"
)

// PositionStatus is the persisted status of a position.
type PositionStatus string

// Position statuses
const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// ExitStrategyConfig parameterises the exit strategies of a position.
// Zero values disable the corresponding check.
type ExitStrategyConfig struct {
	MaxHoldDuration      time.Duration `mapstructure:"max_hold_duration" json:"maxHoldDuration"`
	TakeProfitPct        float64       `mapstructure:"take_profit_pct" json:"takeProfitPct"`                // exit when pnl% >= value
	PartialTakeProfitPct float64       `mapstructure:"partial_take_profit_pct" json:"partialTakeProfitPct"` // share sold on take profit, 0 = all
	TrailingStopPct      float64       `mapstructure:"trailing_stop_pct" json:"trailingStopPct"`            // exit when price falls this % below peak while in profit
	StopLossPct          float64       `mapstructure:"stop_loss_pct" json:"stopLossPct"`                    // exit when pnl% <= -value
	MinLiquidityUSD      float64       `mapstructure:"min_liquidity_usd" json:"minLiquidityUsd"`
	LiquidityDropPct     float64       `mapstructure:"liquidity_drop_pct" json:"liquidityDropPct"` // exit when liquidity drops this % from entry
	CreatorSellPct       float64       `mapstructure:"creator_sell_pct" json:"creatorSellPct"`     // exit when creator sold this % of holdings
}

// PositionContext is a consistent point-in-time view of a live position.
type PositionContext struct {
	PositionID     string
	TokenAddress   string
	PoolAddress    string
	EntryPrice     float64 // USD per token, > 0
	Amount         float64 // UI token amount, > 0
	CurrentPrice   float64
	PeakPrice      float64
	PnLPercent     float64
	PnLUSD         float64
	OpenTimestamp  int64 // ms
	LastUpdated    int64 // ms
	State          PositionState
	ExitConfig     ExitStrategyConfig
	EntryLiquidity *float64
	Creator        *string
	PartialExits   int // partial exits already taken
}

// Position is the persisted record of a position.
type Position struct {
	PositionID   string
	TokenAddress string
	PoolAddress  string
	EntryTradeID string
	ExitTradeID  string
	EntryPrice   float64
	Amount       float64
	Status       PositionStatus
	State        PositionState
	ExitConfig   ExitStrategyConfig

	EntryLiquidity *float64
	Creator        *string
	PartialExits   int

	ExitPrice  *float64
	PnLPercent *float64
	PnLUSD     *float64
	ExitReason string

	OpenedAt int64 // ms
	ClosedAt *int64
}

// MarketSample is the latest external market view used for exit evaluation.
type MarketSample struct {
	Price                 float64
	LiquidityUSD          *float64 // nullable
	CreatorHoldings       *float64 // creator's current token balance (nullable)
	CreatorInitialHolding *float64 // creator's balance at entry (nullable)
	Timestamp             int64    // ms
}
