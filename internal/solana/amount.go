package solana

import (
	"strconv"

	"solana-pool-trader/internal/domain"
)

// ParseAmountOut extracts the base-unit amount of mint received by owner in a
// confirmed transaction. WSOL output is read from the owner's lamport delta
// (wrapped SOL is unwrapped into the wallet), with the fee added back when the
// owner paid it. Returns false when the amount cannot be determined.
func ParseAmountOut(tx *Transaction, owner, mint string) (uint64, bool) {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return 0, false
	}

	if mint == domain.MintWSOL {
		return lamportDelta(tx, owner)
	}

	pre := sumTokenBalance(tx.Meta.PreTokenBalances, owner, mint)
	post := sumTokenBalance(tx.Meta.PostTokenBalances, owner, mint)
	if post <= pre {
		return 0, false
	}
	return post - pre, true
}

func lamportDelta(tx *Transaction, owner string) (uint64, bool) {
	if tx.Message == nil {
		return 0, false
	}
	idx := -1
	for i, key := range tx.Message.AccountKeys {
		if key == owner {
			idx = i
			break
		}
	}
	meta := tx.Meta
	if idx < 0 || idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
		return 0, false
	}

	post := meta.PostBalances[idx]
	if idx == 0 {
		// Fee payer.
		post += meta.Fee
	}
	pre := meta.PreBalances[idx]
	if post <= pre {
		return 0, false
	}
	return post - pre, true
}

func sumTokenBalance(balances []TokenBalance, owner, mint string) uint64 {
	var total uint64
	for _, b := range balances {
		if b.Owner != owner || b.Mint != mint {
			continue
		}
		v, err := strconv.ParseUint(b.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += v
	}
	return total
}

// TokenDecimals returns the decimals of mint as recorded in the transaction's
// token balances.
func TokenDecimals(tx *Transaction, mint string) (int, bool) {
	if tx == nil || tx.Meta == nil {
		return 0, false
	}
	if mint == domain.MintWSOL {
		return 9, true
	}
	for _, set := range [][]TokenBalance{tx.Meta.PostTokenBalances, tx.Meta.PreTokenBalances} {
		for _, b := range set {
			if b.Mint == mint {
				return b.Decimals, true
			}
		}
	}
	return 0, false
}
