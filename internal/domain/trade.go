package domain

// TradeStatus is the lifecycle status of a persisted trade.
type TradeStatus string

// Trade statuses
const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusConfirmed TradeStatus = "CONFIRMED"
	TradeStatusFailed    TradeStatus = "FAILED"
)

// Trade is an executed (or attempted) swap.
// Append-only; only Status and the confirmation fields change after insert.
type Trade struct {
	TradeID     string // uuid
	PositionID  string // position opened (buy) or closed (sell); empty until known
	Side        Side
	InputMint   string
	OutputMint  string
	PoolAddress string

	TradeAmountUSD    float64
	AmountIn          uint64  // base units of InputMint
	ExpectedAmountOut uint64  // base units of OutputMint from the quote
	ActualAmountOut   *uint64 // base units parsed from confirmation (nullable)
	AmountUnconfirmed bool    // true when ActualAmountOut fell back to the quote
	PriceImpactPct    float64
	SlippageBps       int
	Route             []string // AMM labels in route order

	Signature string // empty until submitted
	Status    TradeStatus
	Error     string // failure reason
	Attempts  int

	CreatedAt int64 // ms
	UpdatedAt int64 // ms
}

// TradeResult is returned by the execution coordinator.
// Exactly one of Success or Error is meaningful.
type TradeResult struct {
	Success         bool
	Signature       string
	TradeID         string
	PositionID      string
	ActualAmountOut *uint64
	PriceImpact     *float64
	Slippage        *float64 // percent
	Route           []string
	Error           string
	ErrorKind       string
}

// ErrorKindNoHoldings marks a sell refused because the wallet holds none of
// the token. The position it belongs to has nothing left to exit.
const ErrorKindNoHoldings = "no_holdings"
