package sqlite

import (
	"gorm.io/datatypes"
)

// tradeModel is the trades row. Base-unit amounts are stored as decimal
// strings since SQLite integers are signed 64-bit.
type tradeModel struct {
	TradeID           string         `gorm:"column:trade_id;primaryKey"`
	PositionID        string         `gorm:"column:position_id;index"`
	Side              string         `gorm:"column:side"`
	InputMint         string         `gorm:"column:input_mint"`
	OutputMint        string         `gorm:"column:output_mint"`
	PoolAddress       string         `gorm:"column:pool_address"`
	TradeAmountUSD    float64        `gorm:"column:trade_amount_usd"`
	AmountIn          string         `gorm:"column:amount_in"`
	ExpectedAmountOut string         `gorm:"column:expected_amount_out"`
	ActualAmountOut   *string        `gorm:"column:actual_amount_out"`
	AmountUnconfirmed bool           `gorm:"column:amount_unconfirmed"`
	PriceImpactPct    float64        `gorm:"column:price_impact_pct"`
	SlippageBps       int            `gorm:"column:slippage_bps"`
	Route             datatypes.JSON `gorm:"column:route;type:TEXT"`
	Signature         string         `gorm:"column:signature"`
	Status            string         `gorm:"column:status;index"`
	Error             string         `gorm:"column:error"`
	Attempts          int            `gorm:"column:attempts"`
	CreatedAtMs       int64          `gorm:"column:created_at;index"`
	UpdatedAtMs       int64          `gorm:"column:updated_at"`
}

func (tradeModel) TableName() string { return "trades" }

type positionModel struct {
	PositionID     string         `gorm:"column:position_id;primaryKey"`
	TokenAddress   string         `gorm:"column:token_address"`
	PoolAddress    string         `gorm:"column:pool_address"`
	EntryTradeID   string         `gorm:"column:entry_trade_id"`
	ExitTradeID    string         `gorm:"column:exit_trade_id"`
	EntryPrice     float64        `gorm:"column:entry_price"`
	Amount         float64        `gorm:"column:amount"`
	Status         string         `gorm:"column:status;index:idx_positions_open,priority:1"`
	State          string         `gorm:"column:state"`
	ExitConfig     datatypes.JSON `gorm:"column:exit_config;type:TEXT"`
	EntryLiquidity *float64       `gorm:"column:entry_liquidity"`
	Creator        *string        `gorm:"column:creator"`
	PartialExits   int            `gorm:"column:partial_exits"`
	ExitPrice      *float64       `gorm:"column:exit_price"`
	PnLPercent     *float64       `gorm:"column:pnl_percent"`
	PnLUSD         *float64       `gorm:"column:pnl_usd"`
	ExitReason     string         `gorm:"column:exit_reason"`
	OpenedAtMs     int64          `gorm:"column:opened_at;index:idx_positions_open,priority:2"`
	ClosedAtMs     *int64         `gorm:"column:closed_at"`
}

func (positionModel) TableName() string { return "positions" }
