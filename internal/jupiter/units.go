package jupiter

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// SOLDecimals is the number of decimals of native SOL and WSOL.
const SOLDecimals = 9

// ToBaseUnits converts a UI amount to integer base units, rounding down.
// Negative or non-finite amounts yield zero.
func ToBaseUnits(amount float64, decimals int32) uint64 {
	if !finite(amount) {
		return 0
	}
	d := decimal.NewFromFloat(amount)
	if !d.IsPositive() {
		return 0
	}
	base := d.Shift(decimals).Floor()
	if !base.BigInt().IsUint64() {
		return 0
	}
	return base.BigInt().Uint64()
}

// FromBaseUnits converts integer base units to a UI amount.
func FromBaseUnits(amount uint64, decimals int32) float64 {
	f, _ := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).Float64()
	return f
}

// USDToBaseUnits converts a USD notional to base units of a token priced in USD.
func USDToBaseUnits(usd, priceUSD float64, decimals int32) uint64 {
	if !finite(usd) || !finite(priceUSD) || usd <= 0 || priceUSD <= 0 {
		return 0
	}
	ui := decimal.NewFromFloat(usd).Div(decimal.NewFromFloat(priceUSD))
	base := ui.Shift(decimals).Floor()
	if !base.BigInt().IsUint64() {
		return 0
	}
	return base.BigInt().Uint64()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
