package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-pool-trader/internal/breaker"
	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage/memory"
)

type fakeLive []domain.PositionContext

func (f fakeLive) Active() []domain.PositionContext { return f }

func newTestServer(t *testing.T) (*Server, *memory.TradeStore, *memory.PositionStore, *breaker.Registry) {
	t.Helper()
	trades := memory.NewTradeStore()
	positions := memory.NewPositionStore()
	breakers := breaker.NewRegistry(nil)
	live := fakeLive{{
		PositionID:    "pos-live",
		TokenAddress:  "mint",
		EntryPrice:    1,
		CurrentPrice:  1.5,
		PnLPercent:    50,
		Amount:        10,
		State:         domain.PositionStateMonitoring,
		OpenTimestamp: 1000,
	}}

	s := NewServer(Options{
		Live:      live,
		Positions: positions,
		Trades:    trades,
		Breakers:  breakers,
		Logger:    zaptest.NewLogger(t),
	})
	return s, trades, positions, breakers
}

func do(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthAndMetrics(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec, body := do(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = do(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestPositions(t *testing.T) {
	s, _, positions, _ := newTestServer(t)
	ctx := context.Background()

	rec, body := do(t, s, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["positions"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "pos-live", list[0].(map[string]any)["positionId"])
	assert.InDelta(t, 50.0, list[0].(map[string]any)["pnlPercent"], 1e-9)

	require.NoError(t, positions.Insert(ctx, &domain.Position{
		PositionID: "pos-1", TokenAddress: "mint", EntryPrice: 1, Amount: 5, OpenedAt: 10,
	}))

	rec, body = do(t, s, "/api/positions?source=store&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	list = body["positions"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "OPEN", list[0].(map[string]any)["status"])

	rec, body = do(t, s, "/api/positions/pos-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pos-1", body["positionId"])

	rec, _ = do(t, s, "/api/positions/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrades(t *testing.T) {
	s, trades, _, _ := newTestServer(t)
	ctx := context.Background()

	actual := uint64(18_000_000_000_000_000_001)
	require.NoError(t, trades.Insert(ctx, &domain.Trade{
		TradeID:           "t-1",
		Side:              domain.SideBuy,
		InputMint:         domain.MintWSOL,
		OutputMint:        "mint",
		AmountIn:          1_000_000,
		ExpectedAmountOut: 42,
		ActualAmountOut:   &actual,
		Status:            domain.TradeStatusConfirmed,
		CreatedAt:         5,
	}))

	rec, body := do(t, s, "/api/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["trades"].([]any)
	require.Len(t, list, 1)
	tr := list[0].(map[string]any)
	assert.Equal(t, "18000000000000000001", tr["actualAmountOut"])
	assert.Equal(t, "1000000", tr["amountIn"])
	assert.Equal(t, []any{}, tr["route"])

	rec, body = do(t, s, "/api/trades/t-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", body["status"])

	rec, _ = do(t, s, "/api/trades/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, "/api/trades?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBreakers(t *testing.T) {
	s, _, _, breakers := newTestServer(t)

	for i := 0; i < 3; i++ {
		breakers.RecordFailure(domain.BreakerTrading, "rpc down")
	}

	rec, body := do(t, s, "/api/breakers")
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["breakers"].([]any)
	require.Len(t, list, 2)

	tripped := map[string]bool{}
	for _, b := range list {
		m := b.(map[string]any)
		tripped[m["name"].(string)] = m["tripped"].(bool)
	}
	assert.True(t, tripped[domain.BreakerTrading])
	assert.False(t, tripped[domain.BreakerBalance])
}

func TestUnconfiguredSources(t *testing.T) {
	s := NewServer(Options{})

	for _, path := range []string{"/api/positions", "/api/positions?source=store", "/api/trades", "/api/breakers"} {
		rec, _ := do(t, s, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestCORS(t *testing.T) {
	s := NewServer(Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
