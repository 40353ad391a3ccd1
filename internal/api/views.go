package api

import (
	"strconv"

	"solana-pool-trader/internal/domain"
)

type liveView struct {
	PositionID   string  `json:"positionId"`
	TokenAddress string  `json:"tokenAddress"`
	PoolAddress  string  `json:"poolAddress"`
	State        string  `json:"state"`
	EntryPrice   float64 `json:"entryPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	PeakPrice    float64 `json:"peakPrice"`
	Amount       float64 `json:"amount"`
	PnLPercent   float64 `json:"pnlPercent"`
	PnLUSD       float64 `json:"pnlUsd"`
	PartialExits int     `json:"partialExits"`
	OpenedAt     int64   `json:"openedAt"`
	LastUpdated  int64   `json:"lastUpdated"`
}

func newLiveView(pc domain.PositionContext) liveView {
	return liveView{
		PositionID:   pc.PositionID,
		TokenAddress: pc.TokenAddress,
		PoolAddress:  pc.PoolAddress,
		State:        string(pc.State),
		EntryPrice:   pc.EntryPrice,
		CurrentPrice: pc.CurrentPrice,
		PeakPrice:    pc.PeakPrice,
		Amount:       pc.Amount,
		PnLPercent:   pc.PnLPercent,
		PnLUSD:       pc.PnLUSD,
		PartialExits: pc.PartialExits,
		OpenedAt:     pc.OpenTimestamp,
		LastUpdated:  pc.LastUpdated,
	}
}

type positionView struct {
	PositionID   string   `json:"positionId"`
	TokenAddress string   `json:"tokenAddress"`
	PoolAddress  string   `json:"poolAddress"`
	EntryTradeID string   `json:"entryTradeId"`
	ExitTradeID  string   `json:"exitTradeId,omitempty"`
	Status       string   `json:"status"`
	State        string   `json:"state"`
	EntryPrice   float64  `json:"entryPrice"`
	Amount       float64  `json:"amount"`
	PartialExits int      `json:"partialExits"`
	ExitPrice    *float64 `json:"exitPrice,omitempty"`
	PnLPercent   *float64 `json:"pnlPercent,omitempty"`
	PnLUSD       *float64 `json:"pnlUsd,omitempty"`
	ExitReason   string   `json:"exitReason,omitempty"`
	OpenedAt     int64    `json:"openedAt"`
	ClosedAt     *int64   `json:"closedAt,omitempty"`
}

func newPositionView(p *domain.Position) positionView {
	return positionView{
		PositionID:   p.PositionID,
		TokenAddress: p.TokenAddress,
		PoolAddress:  p.PoolAddress,
		EntryTradeID: p.EntryTradeID,
		ExitTradeID:  p.ExitTradeID,
		Status:       string(p.Status),
		State:        string(p.State),
		EntryPrice:   p.EntryPrice,
		Amount:       p.Amount,
		PartialExits: p.PartialExits,
		ExitPrice:    p.ExitPrice,
		PnLPercent:   p.PnLPercent,
		PnLUSD:       p.PnLUSD,
		ExitReason:   p.ExitReason,
		OpenedAt:     p.OpenedAt,
		ClosedAt:     p.ClosedAt,
	}
}

// tradeView renders base-unit amounts as strings; they can exceed 2^53.
type tradeView struct {
	TradeID           string   `json:"tradeId"`
	PositionID        string   `json:"positionId,omitempty"`
	Side              string   `json:"side"`
	InputMint         string   `json:"inputMint"`
	OutputMint        string   `json:"outputMint"`
	TradeAmountUSD    float64  `json:"tradeAmountUsd"`
	AmountIn          string   `json:"amountIn"`
	ExpectedAmountOut string   `json:"expectedAmountOut"`
	ActualAmountOut   *string  `json:"actualAmountOut,omitempty"`
	AmountUnconfirmed bool     `json:"amountUnconfirmed"`
	PriceImpactPct    float64  `json:"priceImpactPct"`
	Route             []string `json:"route"`
	Signature         string   `json:"signature,omitempty"`
	Status            string   `json:"status"`
	Error             string   `json:"error,omitempty"`
	Attempts          int      `json:"attempts"`
	CreatedAt         int64    `json:"createdAt"`
	UpdatedAt         int64    `json:"updatedAt"`
}

func newTradeView(t *domain.Trade) tradeView {
	v := tradeView{
		TradeID:           t.TradeID,
		PositionID:        t.PositionID,
		Side:              string(t.Side),
		InputMint:         t.InputMint,
		OutputMint:        t.OutputMint,
		TradeAmountUSD:    t.TradeAmountUSD,
		AmountIn:          formatUnits(t.AmountIn),
		ExpectedAmountOut: formatUnits(t.ExpectedAmountOut),
		AmountUnconfirmed: t.AmountUnconfirmed,
		PriceImpactPct:    t.PriceImpactPct,
		Route:             t.Route,
		Signature:         t.Signature,
		Status:            string(t.Status),
		Error:             t.Error,
		Attempts:          t.Attempts,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if v.Route == nil {
		v.Route = []string{}
	}
	if t.ActualAmountOut != nil {
		s := formatUnits(*t.ActualAmountOut)
		v.ActualAmountOut = &s
	}
	return v
}

type breakerView struct {
	Name                string `json:"name"`
	Tripped             bool   `json:"tripped"`
	TrippedAt           *int64 `json:"trippedAt,omitempty"`
	Reason              string `json:"reason,omitempty"`
	ResetAfterMs        int64  `json:"resetAfterMs"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

func newBreakerView(st domain.CircuitBreakerState) breakerView {
	return breakerView{
		Name:                st.Name,
		Tripped:             st.IsTripped,
		TrippedAt:           st.TrippedAt,
		Reason:              st.Reason,
		ResetAfterMs:        st.ResetAfterMs,
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
}

func formatUnits(v uint64) string {
	return strconv.FormatUint(v, 10)
}
