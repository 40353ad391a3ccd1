package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

const quoteBody = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "inAmount": "100000000",
  "outputMint": "mintA",
  "outAmount": "2500000000",
  "otherAmountThreshold": "2487500000",
  "swapMode": "ExactIn",
  "slippageBps": 50,
  "priceImpactPct": "0.42",
  "routePlan": [
    {"swapInfo": {"ammKey": "pool1", "label": "Raydium"}, "percent": 100},
    {"swapInfo": {"ammKey": "pool2", "label": "Orca"}, "percent": 100}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient(server.URL,
		WithPriceURL(server.URL+"/price"),
		WithRateLimit(0, 0),
		WithLogger(zaptest.NewLogger(t)),
	)
	return c, server
}

func TestClient_Quote(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "So11111111111111111111111111111111111111112", r.URL.Query().Get("inputMint"))
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		io.WriteString(w, quoteBody)
	})

	q, err := c.Quote(context.Background(), QuoteRequest{
		InputMint:   "So11111111111111111111111111111111111111112",
		OutputMint:  "mintA",
		Amount:      100_000_000,
		SlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), q.InAmount)
	assert.Equal(t, uint64(2_500_000_000), q.OutAmount)
	assert.Equal(t, uint64(2_487_500_000), q.OtherAmountThreshold)
	assert.Equal(t, 50, q.SlippageBps)
	assert.InDelta(t, 0.5, q.SlippagePercent(), 1e-9)
	assert.InDelta(t, 0.42, q.PriceImpactPct, 1e-9)
	assert.Equal(t, []string{"Raydium", "Orca"}, q.Route)
	assert.JSONEq(t, quoteBody, string(q.Raw))
}

func TestClient_QuoteValidation(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	tests := []QuoteRequest{
		{OutputMint: "b", Amount: 1},
		{InputMint: "a", OutputMint: "a", Amount: 1},
		{InputMint: "a", OutputMint: "b"},
		{InputMint: "a", OutputMint: "b", Amount: 1, SlippageBps: 20_000},
	}
	for _, req := range tests {
		_, err := c.Quote(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidQuote, "%+v", req)
	}
	assert.Zero(t, hits.Load(), "invalid requests never reach the router")
}

func TestClient_QuoteAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 1})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Temporary())
	assert.False(t, (&APIError{StatusCode: 400}).Temporary())
}

func TestClient_SwapTransaction(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" {
			io.WriteString(w, quoteBody)
			return
		}
		assert.Equal(t, "/swap", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "wallet1", gjson.GetBytes(body, "userPublicKey").String())
		assert.True(t, gjson.GetBytes(body, "wrapAndUnwrapSol").Bool())
		assert.True(t, gjson.GetBytes(body, "dynamicComputeUnitLimit").Bool())
		assert.Equal(t, "2500000000", gjson.GetBytes(body, "quoteResponse.outAmount").String())

		json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      "AQID",
			"lastValidBlockHeight": 12345,
		})
	})

	ctx := context.Background()
	q, err := c.Quote(ctx, QuoteRequest{InputMint: "So11111111111111111111111111111111111111112", OutputMint: "mintA", Amount: 1})
	require.NoError(t, err)

	swap, err := c.SwapTransaction(ctx, q, "wallet1")
	require.NoError(t, err)
	assert.Equal(t, "AQID", swap.SwapTransaction)
	assert.Equal(t, uint64(12345), swap.LastValidBlockHeight)

	_, err = c.SwapTransaction(ctx, &Quote{}, "wallet1")
	assert.Error(t, err)
	_, err = c.SwapTransaction(ctx, q, "")
	assert.Error(t, err)
}

func TestClient_Prices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "mintA,mintB", r.URL.Query().Get("ids"))
		io.WriteString(w, `{"data":{"mintA":{"id":"mintA","price":"1.25"},"mintB":null}}`)
	})

	prices, err := c.Prices(context.Background(), "mintA", "mintB")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"mintA": 1.25}, prices)

	empty, err := c.Prices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, quoteBody)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRateLimit(0.001, 1))
	req := QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 1}

	_, err := c.Quote(context.Background(), req)
	require.NoError(t, err, "first request uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Quote(ctx, req)
	assert.Error(t, err)
}

func TestParseQuote_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":        `{`,
		"router error":    `{"error":"No routes found"}`,
		"missing out":     `{"inputMint":"a","outputMint":"b","inAmount":"1"}`,
		"non numeric out": `{"inputMint":"a","outputMint":"b","inAmount":"1","outAmount":"x"}`,
		"missing mint":    `{"inAmount":"1","outAmount":"2"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuote([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidQuote)
		})
	}
}

func TestUnits(t *testing.T) {
	assert.Equal(t, uint64(100_000_000), ToBaseUnits(0.1, SOLDecimals))
	assert.Equal(t, uint64(1_234_567), ToBaseUnits(1.2345678, 6))
	assert.Zero(t, ToBaseUnits(-1, 6))
	assert.InDelta(t, 2.5, FromBaseUnits(2_500_000_000, SOLDecimals), 1e-12)
	assert.Equal(t, uint64(500_000_000), USDToBaseUnits(50, 100, SOLDecimals))
	assert.Zero(t, USDToBaseUnits(50, 0, SOLDecimals))

	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		assert.Zero(t, ToBaseUnits(f, 6), f)
		assert.Zero(t, USDToBaseUnits(f, 100, SOLDecimals), f)
		assert.Zero(t, USDToBaseUnits(50, f, SOLDecimals), f)
	}
}

func TestClient_PriceMissing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{}}`)
	})
	_, err := c.Price(context.Background(), "mintZ")
	assert.Error(t, err)
}
