package jupiter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrInvalidQuote is returned for malformed quote responses.
var ErrInvalidQuote = errors.New("invalid quote")

// QuoteRequest is the input of GET /quote.
type QuoteRequest struct {
	InputMint        string
	OutputMint       string
	Amount           uint64 // base units of InputMint
	SlippageBps      int
	OnlyDirectRoutes bool
}

// Validate checks the request before it is sent.
func (r QuoteRequest) Validate() error {
	switch {
	case r.InputMint == "" || r.OutputMint == "":
		return fmt.Errorf("%w: missing mint", ErrInvalidQuote)
	case r.InputMint == r.OutputMint:
		return fmt.Errorf("%w: input and output mint are equal", ErrInvalidQuote)
	case r.Amount == 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidQuote)
	case r.SlippageBps < 0 || r.SlippageBps > 10_000:
		return fmt.Errorf("%w: slippage %d bps out of range", ErrInvalidQuote, r.SlippageBps)
	}
	return nil
}

// Quote is a parsed router quote. Raw is the original body, sent back
// verbatim to POST /swap.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SlippageBps          int
	PriceImpactPct       float64 // percent
	Route                []string
	Raw                  json.RawMessage
}

// SlippagePercent returns the slippage tolerance in percent.
func (q *Quote) SlippagePercent() float64 {
	return float64(q.SlippageBps) / 100
}

// SwapResponse is the result of POST /swap.
type SwapResponse struct {
	SwapTransaction      string // base64 unsigned transaction
	LastValidBlockHeight uint64
}

// ParseQuote parses a /quote response body.
func ParseQuote(body []byte) (*Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not json", ErrInvalidQuote)
	}
	root := gjson.ParseBytes(body)
	if msg := root.Get("error"); msg.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuote, msg.String())
	}

	inAmount, err := parseAmount(root, "inAmount")
	if err != nil {
		return nil, err
	}
	outAmount, err := parseAmount(root, "outAmount")
	if err != nil {
		return nil, err
	}
	threshold, _ := parseAmount(root, "otherAmountThreshold")

	q := &Quote{
		InputMint:            root.Get("inputMint").String(),
		OutputMint:           root.Get("outputMint").String(),
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		SlippageBps:          int(root.Get("slippageBps").Int()),
		PriceImpactPct:       root.Get("priceImpactPct").Float(),
		Raw:                  append(json.RawMessage(nil), body...),
	}
	if q.InputMint == "" || q.OutputMint == "" {
		return nil, fmt.Errorf("%w: missing mint", ErrInvalidQuote)
	}

	root.Get("routePlan.#.swapInfo.label").ForEach(func(_, label gjson.Result) bool {
		if s := label.String(); s != "" {
			q.Route = append(q.Route, s)
		}
		return true
	})
	return q, nil
}

// parseAmount reads a base-unit amount encoded as a decimal string.
func parseAmount(root gjson.Result, field string) (uint64, error) {
	v := root.Get(field)
	if !v.Exists() {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidQuote, field)
	}
	n, err := strconv.ParseUint(v.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidQuote, field, err)
	}
	return n, nil
}
