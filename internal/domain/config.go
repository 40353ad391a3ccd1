package domain

// TradingConfig holds entry and sizing parameters shared by strategies and execution.
type TradingConfig struct {
	MinLiquidityUSD       float64  `mapstructure:"min_liquidity_usd"`
	MaxSlippagePercent    float64  `mapstructure:"max_slippage_percent"`
	DefaultTradeAmountUSD float64  `mapstructure:"default_trade_amount_usd"`
	MaxTradeAmountUSD     float64  `mapstructure:"max_trade_amount_usd"`
	MinTokenPrice         *float64 `mapstructure:"min_token_price"`
	MaxTokenSupply        *float64 `mapstructure:"max_token_supply"`
	MaxRiskScore          float64  `mapstructure:"max_risk_score"`
}

// RiskConfig bounds exposure relative to wallet value.
type RiskConfig struct {
	RiskPercent       float64 `mapstructure:"risk_percent"`        // max share of wallet value per trade
	MinGasBalanceSOL  float64 `mapstructure:"min_gas_balance_sol"` // reserve kept for fees
	MaxPriceImpactPct float64 `mapstructure:"max_price_impact_pct"`
}
