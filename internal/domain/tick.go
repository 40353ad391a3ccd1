package domain

// PositionTick is a price observation of an open position.
// Corresponds to position_ticks table in ClickHouse.
type PositionTick struct {
	PositionID   string   // position identifier
	TokenAddress string   // mint
	TimestampMs  int64    // Unix timestamp in milliseconds
	Price        float64  // USD per token
	PnLPercent   float64  // unrealized pnl at this tick
	LiquidityUSD *float64 // pool liquidity (nullable)
	State        string   // machine state at this tick
}
