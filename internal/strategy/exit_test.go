package strategy

import (
	"context"
	"strings"
	"testing"
	"time"

	"solana-pool-trader/internal/domain"
)

func testPosition() domain.PositionContext {
	return domain.PositionContext{
		PositionID:    "pos-1",
		TokenAddress:  "mintA",
		PoolAddress:   "pool1",
		EntryPrice:    1.0,
		Amount:        100,
		CurrentPrice:  1.0,
		PeakPrice:     1.0,
		OpenTimestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:         domain.PositionStateMonitoring,
		ExitConfig: domain.ExitStrategyConfig{
			MaxHoldDuration: time.Hour,
			TakeProfitPct:   50,
			StopLossPct:     20,
		},
	}
}

func TestTimeExitStrategy(t *testing.T) {
	pos := testPosition()
	open := time.UnixMilli(pos.OpenTimestamp)

	tests := []struct {
		name string
		at   time.Time
		exit bool
	}{
		{"before max hold", open.Add(59 * time.Minute), false},
		{"exactly max hold", open.Add(time.Hour), true},
		{"after max hold", open.Add(2 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTimeExitStrategy(func() time.Time { return tt.at })
			res, err := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.ShouldExit != tt.exit {
				t.Fatalf("ShouldExit = %v, want %v", res.ShouldExit, tt.exit)
			}
			if tt.exit && res.Urgency != domain.UrgencyMedium {
				t.Errorf("Urgency = %s, want MEDIUM", res.Urgency)
			}
		})
	}

	pos.ExitConfig.MaxHoldDuration = 0
	s := NewTimeExitStrategy(func() time.Time { return open.Add(100 * time.Hour) })
	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1})
	if res.ShouldExit {
		t.Error("zero max hold must disable the time exit")
	}
}

func TestProfitStrategy_TakeProfit(t *testing.T) {
	pos := testPosition()
	s := NewProfitStrategy()

	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1.49})
	if res.ShouldExit {
		t.Fatal("49% gain must not trigger a 50% take profit")
	}

	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1.5})
	if !res.ShouldExit || res.IsPartial() {
		t.Fatalf("expected full take profit, got %+v", res)
	}
	if !strings.HasPrefix(res.Reason, domain.ExitReasonTakeProfit) {
		t.Errorf("unexpected reason %q", res.Reason)
	}
}

func TestProfitStrategy_PartialThenTrailing(t *testing.T) {
	pos := testPosition()
	pos.ExitConfig.PartialTakeProfitPct = 50
	pos.ExitConfig.TrailingStopPct = 10
	s := NewProfitStrategy()

	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1.6})
	if !res.IsPartial() || *res.PartialExitPercentage != 50 {
		t.Fatalf("expected 50%% partial exit, got %+v", res)
	}

	// After the partial, the remainder rides until the trailing stop.
	pos.PartialExits = 1
	pos.PeakPrice = 2.0
	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1.9})
	if res.ShouldExit {
		t.Fatalf("price within trail must hold, got %+v", res)
	}

	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1.79})
	if !res.ShouldExit || res.IsPartial() {
		t.Fatalf("expected full trailing-stop exit, got %+v", res)
	}
	if res.Urgency != domain.UrgencyHigh || !strings.HasPrefix(res.Reason, domain.ExitReasonTrailingStop) {
		t.Errorf("unexpected trailing result %+v", res)
	}
}

func TestProfitStrategy_TrailingIgnoresLosses(t *testing.T) {
	pos := testPosition()
	pos.ExitConfig.TrailingStopPct = 5
	pos.PeakPrice = 1.0

	res, _ := NewProfitStrategy().Evaluate(context.Background(), pos, domain.MarketSample{Price: 0.9})
	if res.ShouldExit {
		t.Fatal("trailing stop must not fire while underwater")
	}
}

func TestStopLossStrategy(t *testing.T) {
	pos := testPosition()
	s := NewStopLossStrategy()

	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 0.81})
	if res.ShouldExit {
		t.Fatal("19% loss must not trigger a 20% stop")
	}

	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 0.79})
	if !res.ShouldExit || res.Urgency != domain.UrgencyCritical {
		t.Fatalf("expected critical stop loss, got %+v", res)
	}
}

func TestLiquidityGuardStrategy(t *testing.T) {
	pos := testPosition()
	pos.EntryLiquidity = ptr(100000.0)
	pos.ExitConfig.LiquidityDropPct = 50
	pos.ExitConfig.MinLiquidityUSD = 20000
	s := NewLiquidityGuardStrategy()

	tests := []struct {
		name      string
		liquidity *float64
		exit      bool
		urgency   string
	}{
		{"no sample holds", nil, false, ""},
		{"healthy", ptr(90000.0), false, ""},
		{"rug pull", ptr(40000.0), true, domain.UrgencyCritical},
		{"below floor", ptr(15000.0), true, domain.UrgencyCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1, LiquidityUSD: tt.liquidity})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.ShouldExit != tt.exit {
				t.Fatalf("ShouldExit = %v, want %v", res.ShouldExit, tt.exit)
			}
			if tt.exit && res.Urgency != tt.urgency {
				t.Errorf("Urgency = %s, want %s", res.Urgency, tt.urgency)
			}
		})
	}

	// Floor check alone when no entry liquidity is known.
	pos.EntryLiquidity = nil
	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1, LiquidityUSD: ptr(15000.0)})
	if !res.ShouldExit || res.Urgency != domain.UrgencyHigh {
		t.Errorf("expected high urgency floor exit, got %+v", res)
	}
}

func TestDeveloperActivityStrategy(t *testing.T) {
	pos := testPosition()
	pos.ExitConfig.CreatorSellPct = 50
	s := NewDeveloperActivityStrategy()

	res, _ := s.Evaluate(context.Background(), pos, domain.MarketSample{
		Price:                 1,
		CreatorHoldings:       ptr(600.0),
		CreatorInitialHolding: ptr(1000.0),
	})
	if res.ShouldExit {
		t.Fatal("40% sold must hold")
	}

	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{
		Price:                 1,
		CreatorHoldings:       ptr(400.0),
		CreatorInitialHolding: ptr(1000.0),
	})
	if !res.ShouldExit || res.Urgency != domain.UrgencyCritical {
		t.Fatalf("expected critical developer-sell exit, got %+v", res)
	}

	res, _ = s.Evaluate(context.Background(), pos, domain.MarketSample{Price: 1})
	if res.ShouldExit {
		t.Error("unknown creator holdings must hold")
	}
}
