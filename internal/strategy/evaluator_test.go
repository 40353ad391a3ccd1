package strategy

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"solana-pool-trader/internal/domain"
)

// stubStrategy returns a fixed result and counts invocations.
type stubStrategy struct {
	name     string
	priority int
	result   *domain.StrategyResult
	err      error
	calls    atomic.Int32
}

func (s *stubStrategy) Name() string  { return s.name }
func (s *stubStrategy) Priority() int { return s.priority }
func (s *stubStrategy) Evaluate(_ context.Context, _ *StrategyInput) (*domain.StrategyResult, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func approving(name string, priority int, confidence float64, amount *float64) *stubStrategy {
	return &stubStrategy{
		name:     name,
		priority: priority,
		result:   &domain.StrategyResult{ShouldTrade: true, Confidence: confidence, RecommendedAmount: amount, Reason: "ok"},
	}
}

func rejecting(name string, priority int, reason string) *stubStrategy {
	return &stubStrategy{
		name:     name,
		priority: priority,
		result:   &domain.StrategyResult{ShouldTrade: false, Reason: reason},
	}
}

func ptr[T any](v T) *T {
	return &v
}

func testInput() *StrategyInput {
	return &StrategyInput{
		Pool: domain.NewPoolEvent{
			Signature:   "sig1",
			DEX:         "raydium",
			PoolAddress: "pool1",
			TokenA:      "mintA",
			TokenB:      domain.MintWSOL,
			Timestamp:   1700000000000,
		},
		TargetToken: domain.TokenInfo{Address: "mintA", RiskScore: 3, Decimals: ptr(uint8(6))},
		BaseToken:   domain.TokenInfo{Address: domain.MintWSOL, Decimals: ptr(uint8(9))},
		Liquidity:   domain.PoolLiquidity{LiquidityUSD: 50000, PriceUSD: ptr(0.5)},
		Config: domain.TradingConfig{
			MinLiquidityUSD:       10000,
			MaxSlippagePercent:    3,
			DefaultTradeAmountUSD: 100,
			MaxTradeAmountUSD:     500,
		},
	}
}

func TestEvaluator_FirstRejectionWins(t *testing.T) {
	first := approving("a", 1, 0.9, nil)
	second := rejecting("b", 2, "too risky")
	third := approving("c", 3, 0.9, nil)

	e := NewEvaluator(zaptest.NewLogger(t), ErrorPolicySkip, third, second, first)
	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if d.ShouldTrade {
		t.Fatal("expected no-trade decision")
	}
	if !strings.Contains(d.Reason, "too risky") || !strings.HasPrefix(d.Reason, "b:") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
	if first.calls.Load() != 1 {
		t.Errorf("higher priority strategy should run once, ran %d", first.calls.Load())
	}
	if third.calls.Load() != 0 {
		t.Errorf("strategy after rejection must not run, ran %d", third.calls.Load())
	}
}

func TestEvaluator_CombinesApprovals(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t), ErrorPolicySkip,
		approving("a", 1, 0.6, ptr(250.0)),
		approving("b", 2, 1.0, ptr(80.0)),
		approving("c", 3, 0.8, nil),
	)

	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.ShouldTrade {
		t.Fatalf("expected trade, got reason %q", d.Reason)
	}
	if d.TradeAmountUSD != 80 {
		t.Errorf("expected minimum recommended amount 80, got %v", d.TradeAmountUSD)
	}
	if math.Abs(d.Confidence-0.8) > 1e-9 {
		t.Errorf("expected mean confidence 0.8, got %v", d.Confidence)
	}
	if d.RiskScore != 3 {
		t.Errorf("expected target token risk score 3, got %v", d.RiskScore)
	}
	if d.Side != domain.SideBuy || d.TargetToken != "mintA" || d.BaseToken != domain.MintWSOL || d.PoolAddress != "pool1" {
		t.Errorf("unexpected decision identity: %+v", d)
	}
	if math.Abs(d.ExpectedAmountOut-160) > 1e-9 {
		t.Errorf("expected 160 tokens out at $0.5, got %v", d.ExpectedAmountOut)
	}
}

func TestEvaluator_DefaultAmountWhenNoneRecommended(t *testing.T) {
	e := NewEvaluator(nil, ErrorPolicySkip, approving("a", 1, 1, nil))
	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.TradeAmountUSD != 100 {
		t.Errorf("expected default amount 100, got %v", d.TradeAmountUSD)
	}
}

func TestEvaluator_ErrorPolicySkip(t *testing.T) {
	broken := &stubStrategy{name: "broken", priority: 1, err: errors.New("upstream down")}
	after := approving("after", 2, 0.5, nil)

	e := NewEvaluator(zaptest.NewLogger(t), ErrorPolicySkip, broken, after)
	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.ShouldTrade {
		t.Fatalf("failing strategy should be skipped, got %q", d.Reason)
	}
	if d.Confidence != 0.5 {
		t.Errorf("skipped strategy must not contribute confidence, got %v", d.Confidence)
	}
	if after.calls.Load() != 1 {
		t.Error("next strategy should run after a skipped error")
	}
}

func TestEvaluator_ErrorPolicyReject(t *testing.T) {
	broken := &stubStrategy{name: "broken", priority: 1, err: errors.New("upstream down")}
	after := approving("after", 2, 0.5, nil)

	e := NewEvaluator(zaptest.NewLogger(t), ErrorPolicyReject, broken, after)
	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.ShouldTrade {
		t.Fatal("reject policy must fail closed")
	}
	if !strings.Contains(d.Reason, "broken") {
		t.Errorf("reason should name failing strategy, got %q", d.Reason)
	}
	if after.calls.Load() != 0 {
		t.Error("evaluation must stop at the failing strategy")
	}
}

func TestEvaluator_AddRemoveResorts(t *testing.T) {
	e := NewEvaluator(nil, ErrorPolicySkip, approving("late", 50, 1, nil))
	e.AddStrategy(approving("early", 5, 1, nil))
	e.AddStrategy(approving("mid", 20, 1, nil))

	got := strings.Join(e.Strategies(), ",")
	if got != "early,mid,late" {
		t.Fatalf("unexpected order %s", got)
	}

	// Same name replaces and re-sorts.
	e.AddStrategy(approving("early", 99, 1, nil))
	if got := strings.Join(e.Strategies(), ","); got != "mid,late,early" {
		t.Fatalf("unexpected order after replace %s", got)
	}

	if !e.RemoveStrategy("mid") {
		t.Fatal("RemoveStrategy(mid) = false")
	}
	if e.RemoveStrategy("mid") {
		t.Fatal("second RemoveStrategy(mid) = true")
	}
	if got := strings.Join(e.Strategies(), ","); got != "late,early" {
		t.Fatalf("unexpected order after remove %s", got)
	}
}

func TestEvaluator_NoStrategies(t *testing.T) {
	e := NewEvaluator(nil, ErrorPolicySkip)
	d, err := e.Evaluate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.ShouldTrade {
		t.Fatal("empty evaluator must not trade")
	}
}

func TestEvaluator_InvalidInput(t *testing.T) {
	e := NewEvaluator(nil, ErrorPolicySkip, approving("a", 1, 1, nil))
	if _, err := e.Evaluate(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	in := testInput()
	in.TargetToken.Address = ""
	if _, err := e.Evaluate(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEvaluator_CancelledContext(t *testing.T) {
	e := NewEvaluator(nil, ErrorPolicySkip, approving("a", 1, 1, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Evaluate(ctx, testInput()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrorPolicy
		wantErr bool
	}{
		{"", ErrorPolicySkip, false},
		{"skip", ErrorPolicySkip, false},
		{"reject", ErrorPolicyReject, false},
		{"panic", ErrorPolicySkip, true},
	}
	for _, tt := range tests {
		got, err := ParseErrorPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseErrorPolicy(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseErrorPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
