package solana

import (
	"testing"

	"solana-pool-trader/internal/domain"
)

func TestParseAmountOut(t *testing.T) {
	tokenTx := &Transaction{
		Meta: &TransactionMeta{
			PreTokenBalances: []TokenBalance{
				{Mint: "mintA", Owner: "wallet", Amount: "100"},
				{Mint: "mintA", Owner: "pool", Amount: "9000"},
			},
			PostTokenBalances: []TokenBalance{
				{Mint: "mintA", Owner: "wallet", Amount: "600"},
				{Mint: "mintA", Owner: "pool", Amount: "8500"},
			},
		},
	}
	solTx := &Transaction{
		Message: &TransactionMessage{AccountKeys: []string{"wallet", "pool"}},
		Meta: &TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000, 50_000_000},
			PostBalances: []uint64{1_495_000, 49_500_000},
		},
	}

	tests := []struct {
		name   string
		tx     *Transaction
		owner  string
		mint   string
		want   uint64
		wantOK bool
	}{
		{"token delta", tokenTx, "wallet", "mintA", 500, true},
		{"token decrease", tokenTx, "pool", "mintA", 0, false},
		{"unknown owner", tokenTx, "nobody", "mintA", 0, false},
		{"wsol lamports with fee", solTx, "wallet", domain.MintWSOL, 500_000, true},
		{"wsol owner missing", solTx, "other", domain.MintWSOL, 0, false},
		{"failed transaction", &Transaction{Meta: &TransactionMeta{Err: "boom"}}, "wallet", "mintA", 0, false},
		{"nil", nil, "wallet", "mintA", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmountOut(tt.tx, tt.owner, tt.mint)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
