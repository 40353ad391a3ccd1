// Package agent wires pool intake, entry evaluation, execution and the
// position monitor into one supervised process.
// Flow: pool envelope → dedup → strategy evaluation → execution → position monitor
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/events"
	"solana-pool-trader/internal/idhash"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/position"
	"solana-pool-trader/internal/strategy"
)

// DefaultDedupTTL is how long a pool event id is remembered.
const DefaultDedupTTL = 30 * time.Minute

// DefaultWorkers bounds concurrent pool evaluations.
const DefaultWorkers = 4

// PoolSource delivers pool envelopes until ctx is cancelled.
type PoolSource interface {
	SubscribePools(ctx context.Context) (<-chan domain.PoolEnvelope, error)
}

// Forwarder relays notifications to an external channel.
type Forwarder interface {
	Forward(ctx context.Context, notes <-chan events.Notification) error
}

// MarketRecorder stores the market view carried by a pool envelope so the
// position monitor can sample it later.
type MarketRecorder interface {
	SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error
	SetLiquidity(ctx context.Context, pool string, usd float64, ts time.Time) error
}

// Service is a long-running component supervised alongside the agent.
type Service interface {
	Run(ctx context.Context) error
}

// Options wires the agent's collaborators.
type Options struct {
	Trading   domain.TradingConfig
	Evaluator *strategy.Evaluator
	Executor  position.Executor
	Positions *position.Registry

	Pools     PoolSource     // optional; without it pools arrive through HandlePool only
	Market    MarketRecorder // optional
	Bus       *events.Bus    // optional; required for Forwarder
	Forwarder Forwarder      // optional
	Services  []Service

	DedupTTL time.Duration
	Workers  int
	Logger   *zap.Logger
	Now      func() time.Time
}

// Agent reacts to new pools and supervises the position monitor.
type Agent struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	trading domain.TradingConfig
	seen    map[string]time.Time
}

// Outcome reports what happened to one pool envelope.
type Outcome struct {
	EventID   string
	Duplicate bool
	Decision  *domain.TradeDecision // nil when the envelope was not evaluated
	Result    *domain.TradeResult   // nil when no trade was attempted
}

// ErrUnsupportedPair is returned for pools that do not pair a token with WSOL.
var ErrUnsupportedPair = errors.New("pool does not pair with the base token")

// New creates an Agent.
func New(opts Options) *Agent {
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Agent{
		opts:    opts,
		logger:  opts.Logger.Named("agent"),
		trading: opts.Trading,
		seen:    make(map[string]time.Time),
	}
}

// Run restores open positions, then runs the exit monitor, pool intake,
// notification forwarding and every Service until ctx is cancelled or one
// of them fails.
func (a *Agent) Run(ctx context.Context) error {
	if a.opts.Positions == nil || a.opts.Evaluator == nil || a.opts.Executor == nil {
		return errors.New("agent: positions, evaluator and executor are required")
	}

	restored, err := a.opts.Positions.Rehydrate(ctx)
	if err != nil {
		return fmt.Errorf("agent: rehydrate positions: %w", err)
	}
	a.logger.Info("agent starting",
		zap.Int("restored_positions", restored),
		zap.Strings("strategies", a.opts.Evaluator.Strategies()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.opts.Positions.Run(ctx)
	})

	if a.opts.Pools != nil {
		pools, err := a.opts.Pools.SubscribePools(ctx)
		if err != nil {
			return fmt.Errorf("agent: subscribe pools: %w", err)
		}
		g.Go(func() error {
			return a.consume(ctx, pools)
		})
	}

	if a.opts.Forwarder != nil && a.opts.Bus != nil {
		notes, cancel := a.opts.Bus.Subscribe(0)
		g.Go(func() error {
			defer cancel()
			return a.opts.Forwarder.Forward(ctx, notes)
		})
	}

	for _, svc := range a.opts.Services {
		g.Go(func() error {
			return svc.Run(ctx)
		})
	}

	err = g.Wait()
	a.logger.Info("agent stopped", zap.Error(err))
	return err
}

// consume evaluates envelopes with at most Workers in flight. It returns
// when ctx is cancelled or the source closes.
func (a *Agent) consume(ctx context.Context, pools <-chan domain.PoolEnvelope) error {
	var wg errgroup.Group
	wg.SetLimit(a.opts.Workers)
	defer func() { _ = wg.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-pools:
			if !ok {
				a.logger.Info("pool source closed")
				return nil
			}
			wg.Go(func() error {
				if _, err := a.HandlePool(ctx, env); err != nil && ctx.Err() == nil {
					a.logger.Warn("pool handling failed",
						zap.String("pool", env.Event.PoolAddress),
						zap.Error(err),
					)
				}
				return nil
			})
		}
	}
}

// HandlePool runs one envelope through dedup, evaluation and execution.
// Rejected pools are not errors; the returned Outcome carries the decision.
func (a *Agent) HandlePool(ctx context.Context, env domain.PoolEnvelope) (*Outcome, error) {
	ev := env.Event
	if ev.PoolAddress == "" || ev.TokenA == "" || ev.TokenB == "" {
		observability.RecordPoolEventError("invalid")
		return nil, fmt.Errorf("agent: incomplete pool event %q", ev.PoolAddress)
	}

	out := &Outcome{EventID: idhash.ComputePoolEventID(ev)}
	if !a.markSeen(out.EventID) {
		observability.RecordPoolEvent(true)
		a.logger.Debug("duplicate pool event", zap.String("pool", ev.PoolAddress), zap.String("event_id", out.EventID))
		out.Duplicate = true
		return out, nil
	}
	observability.RecordPoolEvent(false)

	target, base, ok := splitPair(env)
	if !ok {
		observability.RecordPoolEventError("unsupported_pair")
		return out, fmt.Errorf("agent: pool %s: %w", ev.PoolAddress, ErrUnsupportedPair)
	}

	logger := a.logger.With(
		zap.String("pool", ev.PoolAddress),
		zap.String("dex", ev.DEX),
		zap.String("token", target.Address),
	)
	a.recordMarket(ctx, logger, env, target.Address)

	decision, err := a.opts.Evaluator.Evaluate(ctx, &strategy.StrategyInput{
		Pool:        ev,
		TargetToken: target,
		BaseToken:   base,
		Liquidity:   env.Liquidity,
		Config:      a.Trading(),
	})
	if err != nil {
		observability.RecordPoolEventError("evaluation")
		return out, fmt.Errorf("agent: evaluate pool %s: %w", ev.PoolAddress, err)
	}
	out.Decision = decision
	if !decision.ShouldTrade {
		logger.Info("pool rejected", zap.String("reason", decision.Reason))
		return out, nil
	}

	logger.Info("pool approved",
		zap.Float64("amount_usd", decision.TradeAmountUSD),
		zap.Float64("confidence", decision.Confidence),
	)
	res := a.opts.Executor.ExecuteTrade(ctx, *decision)
	out.Result = res
	if res == nil || !res.Success {
		logger.Warn("entry trade failed", zap.String("error", errorOf(res)))
		return out, nil
	}
	logger.Info("entry trade confirmed",
		zap.String("trade_id", res.TradeID),
		zap.String("position_id", res.PositionID),
		zap.String("signature", res.Signature),
	)
	return out, nil
}

// Trading returns the trading parameters passed to strategies.
func (a *Agent) Trading() domain.TradingConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trading
}

// markSeen records id and reports whether it was new. Expired ids are
// pruned on the way.
func (a *Agent) markSeen(id string) bool {
	now := a.opts.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, at := range a.seen {
		if now.Sub(at) > a.opts.DedupTTL {
			delete(a.seen, k)
		}
	}
	if _, ok := a.seen[id]; ok {
		return false
	}
	a.seen[id] = now
	return true
}

// recordMarket stores the envelope's market view and feeds its price to
// open positions in the token.
func (a *Agent) recordMarket(ctx context.Context, logger *zap.Logger, env domain.PoolEnvelope, token string) {
	if p := env.Liquidity.PriceUSD; p != nil && *p > 0 && a.opts.Positions != nil {
		if n := a.opts.Positions.UpdateTokenPrice(token, *p); n > 0 {
			logger.Debug("position prices updated", zap.Int("positions", n))
		}
	}
	if a.opts.Market == nil {
		return
	}
	ts := a.opts.Now()
	if env.Liquidity.Timestamp > 0 {
		ts = time.UnixMilli(env.Liquidity.Timestamp)
	}
	if err := a.opts.Market.SetLiquidity(ctx, env.Event.PoolAddress, env.Liquidity.LiquidityUSD, ts); err != nil {
		logger.Warn("record pool liquidity failed", zap.Error(err))
	}
	if p := env.Liquidity.PriceUSD; p != nil && *p > 0 {
		if err := a.opts.Market.SetPrice(ctx, token, *p, ts); err != nil {
			logger.Warn("record token price failed", zap.Error(err))
		}
	}
}

// splitPair returns the traded token and the WSOL side of the pool.
func splitPair(env domain.PoolEnvelope) (target, base domain.TokenInfo, ok bool) {
	tokenA, tokenB := env.TokenA, env.TokenB
	if tokenA.Address == "" {
		tokenA.Address = env.Event.TokenA
	}
	if tokenB.Address == "" {
		tokenB.Address = env.Event.TokenB
	}
	switch {
	case tokenA.Address == tokenB.Address:
		return target, base, false
	case tokenB.Address == domain.MintWSOL:
		return tokenA, tokenB, true
	case tokenA.Address == domain.MintWSOL:
		return tokenB, tokenA, true
	default:
		return target, base, false
	}
}

func errorOf(res *domain.TradeResult) string {
	if res == nil {
		return "no result"
	}
	return res.Error
}
