package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/observability"
)

// ErrorPolicy controls what the evaluator does when a strategy fails.
type ErrorPolicy int

const (
	// ErrorPolicySkip logs the error and continues with the next strategy.
	ErrorPolicySkip ErrorPolicy = iota
	// ErrorPolicyReject turns a strategy error into a no-trade decision.
	ErrorPolicyReject
)

// ParseErrorPolicy maps "skip" / "reject" to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "skip":
		return ErrorPolicySkip, nil
	case "reject":
		return ErrorPolicyReject, nil
	default:
		return ErrorPolicySkip, fmt.Errorf("unknown strategy error policy %q", s)
	}
}

// Evaluator runs entry strategies in priority order.
// The first rejection wins; if every strategy approves, results are combined
// into a single buy decision.
type Evaluator struct {
	mu      sync.RWMutex
	byName  map[string]Strategy
	ordered []Strategy
	policy  ErrorPolicy
	logger  *zap.Logger
}

// NewEvaluator creates an Evaluator with the given strategies.
func NewEvaluator(logger *zap.Logger, policy ErrorPolicy, strategies ...Strategy) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		byName: make(map[string]Strategy, len(strategies)),
		policy: policy,
		logger: logger.Named("evaluator"),
	}
	for _, s := range strategies {
		e.byName[s.Name()] = s
	}
	e.resort()
	return e
}

// AddStrategy registers s, replacing any strategy with the same name.
func (e *Evaluator) AddStrategy(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byName[s.Name()] = s
	e.resort()
}

// RemoveStrategy unregisters a strategy by name. Returns false if absent.
func (e *Evaluator) RemoveStrategy(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byName[name]; !ok {
		return false
	}
	delete(e.byName, name)
	e.resort()
	return true
}

// Strategies returns registered strategy names in evaluation order.
func (e *Evaluator) Strategies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.ordered))
	for i, s := range e.ordered {
		names[i] = s.Name()
	}
	return names
}

// SetErrorPolicy changes the error policy for subsequent evaluations.
func (e *Evaluator) SetErrorPolicy(p ErrorPolicy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// resort rebuilds ordered from byName. Caller must hold mu.
func (e *Evaluator) resort() {
	ordered := make([]Strategy, 0, len(e.byName))
	for _, s := range e.byName {
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() < ordered[j].Priority()
		}
		return ordered[i].Name() < ordered[j].Name()
	})
	e.ordered = ordered
}

// Evaluate runs all strategies against in and returns the resulting decision.
// An error is returned only for invalid input or context cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, in *StrategyInput) (*domain.TradeDecision, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	strategies := e.ordered
	policy := e.policy
	e.mu.RUnlock()

	if len(strategies) == 0 {
		return e.noTrade(in, "no strategies configured"), nil
	}

	var (
		approvals   int
		confidence  float64
		amount      = math.Inf(1)
		recommended bool
	)

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := s.Evaluate(ctx, in)
		if err != nil {
			observability.RecordStrategyError(s.Name())
			if policy == ErrorPolicyReject {
				e.logger.Warn("strategy failed, rejecting",
					zap.String("strategy", s.Name()),
					zap.String("pool", in.Pool.PoolAddress),
					zap.Error(err),
				)
				return e.noTrade(in, fmt.Sprintf("%s: evaluation failed: %v", s.Name(), err)), nil
			}
			e.logger.Warn("strategy failed, skipping",
				zap.String("strategy", s.Name()),
				zap.String("pool", in.Pool.PoolAddress),
				zap.Error(err),
			)
			continue
		}
		if res == nil {
			continue
		}

		if !res.ShouldTrade {
			e.logger.Debug("strategy rejected pool",
				zap.String("strategy", s.Name()),
				zap.String("pool", in.Pool.PoolAddress),
				zap.String("reason", res.Reason),
			)
			return e.noTrade(in, fmt.Sprintf("%s: %s", s.Name(), res.Reason)), nil
		}

		approvals++
		confidence += res.Confidence
		if res.RecommendedAmount != nil {
			recommended = true
			amount = math.Min(amount, *res.RecommendedAmount)
		}
	}

	if approvals == 0 {
		return e.noTrade(in, "no strategy produced a verdict"), nil
	}
	if !recommended {
		amount = in.Config.DefaultTradeAmountUSD
	}
	observability.RecordEntryEvaluation(true)

	d := &domain.TradeDecision{
		ShouldTrade:    true,
		Side:           domain.SideBuy,
		TargetToken:    in.TargetToken.Address,
		BaseToken:      in.BaseToken.Address,
		PoolAddress:    in.Pool.PoolAddress,
		TradeAmountUSD: amount,
		Price:          in.Liquidity.PriceUSD,
		RiskScore:      in.TargetToken.RiskScore,
		Confidence:     confidence / float64(approvals),
		Reason:         fmt.Sprintf("approved by %d strategies", approvals),
		LiquidityUSD:   in.Liquidity.LiquidityUSD,
		Creator:        in.Pool.Creator,
	}
	if d.Price != nil && *d.Price > 0 {
		d.ExpectedAmountOut = amount / *d.Price
	}
	return d, nil
}

func (e *Evaluator) noTrade(in *StrategyInput, reason string) *domain.TradeDecision {
	observability.RecordEntryEvaluation(false)
	return &domain.TradeDecision{
		ShouldTrade: false,
		Side:        domain.SideBuy,
		TargetToken: in.TargetToken.Address,
		BaseToken:   in.BaseToken.Address,
		PoolAddress: in.Pool.PoolAddress,
		Price:       in.Liquidity.PriceUSD,
		RiskScore:   in.TargetToken.RiskScore,
		Reason:      reason,
	}
}
