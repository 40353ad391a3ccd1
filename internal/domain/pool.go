package domain

// NewPoolEvent represents a pool-creation event observed on a DEX.
// Delivered by the upstream pool watcher.
type NewPoolEvent struct {
	Signature   string  `json:"signature"`   // creation transaction signature
	DEX         string  `json:"dex"`         // "raydium" | "orca" | "meteora" | ...
	PoolAddress string  `json:"poolAddress"` // pool account
	TokenA      string  `json:"tokenA"`      // mint of first token
	TokenB      string  `json:"tokenB"`      // mint of second token
	Creator     *string `json:"creator,omitempty"`
	Timestamp   int64   `json:"timestamp"` // Unix timestamp in milliseconds
}

// TokenInfo describes a token participating in a pool.
type TokenInfo struct {
	Address   string            `json:"address"`
	Symbol    *string           `json:"symbol,omitempty"`
	Decimals  *uint8            `json:"decimals,omitempty"` // unknown until mint is read
	Supply    *float64          `json:"supply,omitempty"`   // UI supply
	RiskScore float64           `json:"riskScore"`          // 0 (safe) .. 10 (certain rug)
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DecimalsOr returns token decimals or def when unknown.
func (t TokenInfo) DecimalsOr(def uint8) uint8 {
	if t.Decimals == nil {
		return def
	}
	return *t.Decimals
}

// PoolLiquidity is a point-in-time liquidity snapshot for a pool.
type PoolLiquidity struct {
	LiquidityUSD float64  `json:"liquidityUsd"`
	PriceUSD     *float64 `json:"priceUsd,omitempty"` // target token price
	Timestamp    int64    `json:"timestamp"`          // ms
}

// PoolEnvelope is one pool event with the token and liquidity data the
// upstream watcher resolved for it.
type PoolEnvelope struct {
	Event     NewPoolEvent  `json:"event"`
	TokenA    TokenInfo     `json:"tokenA"`
	TokenB    TokenInfo     `json:"tokenB"`
	Liquidity PoolLiquidity `json:"liquidity"`
}

// Well-known mints.
const (
	MintWSOL = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)
