// Package jupiter is a client for the Jupiter swap router HTTP API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-pool-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://quote-api.jup.ag/v6"
	DefaultPriceURL     = "https://api.jup.ag/price/v2"
	DefaultTimeout      = 10 * time.Second
	DefaultRequestsPerS = 10
	DefaultBurst        = 5
)

// APIError is a non-2xx response from the router.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the quote, swap and price endpoints.
type Client struct {
	baseURL  string
	priceURL string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithPriceURL overrides the price API endpoint.
func WithPriceURL(u string) Option {
	return func(c *Client) {
		c.priceURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("jupiter")
		}
	}
}

// NewClient creates a router client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		priceURL: DefaultPriceURL,
		client:   &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRequestsPerS), DefaultBurst),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote requests a swap quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	if req.OnlyDirectRoutes {
		q.Set("onlyDirectRoutes", "true")
	}

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	observability.RecordQuoteLatency(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	quote, err := ParseQuote(body)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	c.logger.Debug("quote received",
		zap.String("input_mint", quote.InputMint),
		zap.String("output_mint", quote.OutputMint),
		zap.Uint64("in_amount", quote.InAmount),
		zap.Uint64("out_amount", quote.OutAmount),
		zap.Float64("price_impact_pct", quote.PriceImpactPct),
	)
	return quote, nil
}

// SwapTransaction builds an unsigned swap transaction for quote.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (*SwapResponse, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, fmt.Errorf("swap: missing quote")
	}
	if userPublicKey == "" {
		return nil, fmt.Errorf("swap: missing user public key")
	}

	payload := swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("swap: marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", reqBody)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	tx := parsed.Get("swapTransaction").String()
	if tx == "" {
		return nil, fmt.Errorf("swap: response has no swapTransaction")
	}
	return &SwapResponse{
		SwapTransaction:      tx,
		LastValidBlockHeight: parsed.Get("lastValidBlockHeight").Uint(),
	}, nil
}

// Prices returns USD prices for the given mints. Mints without a price are
// absent from the result.
func (c *Client) Prices(ctx context.Context, mints ...string) (map[string]float64, error) {
	if len(mints) == 0 {
		return map[string]float64{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))
	body, err := c.do(ctx, http.MethodGet, c.priceURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("price: invalid json")
	}

	out := make(map[string]float64, len(mints))
	gjson.GetBytes(body, "data").ForEach(func(key, value gjson.Result) bool {
		if p := value.Get("price"); p.Exists() {
			if v := p.Float(); v > 0 {
				out[key.String()] = v
			}
		}
		return true
	})
	return out, nil
}

// Price returns the USD price of a single mint.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	prices, err := c.Prices(ctx, mint)
	if err != nil {
		return 0, err
	}
	p, ok := prices[mint]
	if !ok {
		return 0, fmt.Errorf("price: no price for %s", mint)
	}
	return p, nil
}

// do sends one rate-limited request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}
