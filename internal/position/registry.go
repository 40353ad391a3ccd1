package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/events"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/storage"
	"solana-pool-trader/internal/strategy"
)

// DefaultInterval is the exit evaluation period.
const DefaultInterval = 60 * time.Second

// DefaultConcurrency bounds positions evaluated in parallel per tick.
const DefaultConcurrency = 4

// ExitReasonNoHoldings closes positions whose tokens are already gone.
const ExitReasonNoHoldings = "no_holdings"

// ErrUnknownPosition is returned for ids the registry does not track.
var ErrUnknownPosition = errors.New("unknown position")

// Executor executes sell decisions produced by exit evaluation.
type Executor interface {
	ExecuteTrade(ctx context.Context, d domain.TradeDecision) *domain.TradeResult
}

// PriceSource supplies the latest market view of a position's token.
type PriceSource interface {
	Sample(ctx context.Context, pos domain.PositionContext) (domain.MarketSample, error)
}

// OpenRequest describes a position created by a confirmed buy.
type OpenRequest struct {
	TokenAddress   string
	PoolAddress    string
	EntryTradeID   string
	EntryPrice     float64
	Amount         float64
	EntryLiquidity *float64
	Creator        *string
}

// Options configures Registry.
type Options struct {
	Positions      storage.PositionStore     // optional
	Ticks          storage.PositionTickStore // optional
	Prices         PriceSource
	ExitStrategies []strategy.ExitStrategy // sorted by priority on construction
	ExitConfig     domain.ExitStrategyConfig
	Interval       time.Duration
	Concurrency    int
	Publisher      events.Publisher
	Logger         *zap.Logger
	Now            func() time.Time
}

// Registry owns all live position machines and drives their exits.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	inflight map[string]struct{} // partial exits being executed

	executorMu sync.RWMutex
	executor   Executor
	exitConfig domain.ExitStrategyConfig

	opts   Options
	logger *zap.Logger
}

// NewRegistry creates a Registry. The executor is attached later with
// SetExecutor because the execution coordinator opens positions here.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.ExitStrategies == nil {
		opts.ExitStrategies = strategy.DefaultExitStrategies(opts.Now)
	} else {
		opts.ExitStrategies = strategy.SortExitStrategies(append([]strategy.ExitStrategy(nil), opts.ExitStrategies...))
	}

	return &Registry{
		machines:   make(map[string]*Machine),
		inflight:   make(map[string]struct{}),
		exitConfig: opts.ExitConfig,
		opts:       opts,
		logger:     opts.Logger.Named("positions"),
	}
}

// SetExitConfig replaces the exit thresholds given to positions opened from
// now on. Open positions keep the config they were opened with.
func (r *Registry) SetExitConfig(cfg domain.ExitStrategyConfig) {
	r.executorMu.Lock()
	r.exitConfig = cfg
	r.executorMu.Unlock()
}

func (r *Registry) currentExitConfig() domain.ExitStrategyConfig {
	r.executorMu.RLock()
	defer r.executorMu.RUnlock()
	return r.exitConfig
}

// SetExecutor attaches the executor used for exits.
func (r *Registry) SetExecutor(e Executor) {
	r.executorMu.Lock()
	r.executor = e
	r.executorMu.Unlock()
}

func (r *Registry) getExecutor() Executor {
	r.executorMu.RLock()
	defer r.executorMu.RUnlock()
	return r.executor
}

// Open creates, persists and starts monitoring a new position.
// A persistence failure is logged but the position is still tracked: the
// tokens are already in the wallet.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Machine, error) {
	id := uuid.NewString()
	exitCfg := r.currentExitConfig()
	m, err := NewMachine(MachineConfig{
		PositionID:     id,
		TokenAddress:   req.TokenAddress,
		PoolAddress:    req.PoolAddress,
		EntryPrice:     req.EntryPrice,
		Amount:         req.Amount,
		ExitConfig:     exitCfg,
		EntryLiquidity: req.EntryLiquidity,
		Creator:        req.Creator,
		Now:            r.opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	r.watch(m)

	if !m.Transition(EventPositionOpened, &TransitionPayload{Reason: "entry confirmed"}) {
		return nil, fmt.Errorf("open position %s: transition rejected", id)
	}

	if r.opts.Positions != nil {
		c := m.Context()
		p := &domain.Position{
			PositionID:     id,
			TokenAddress:   req.TokenAddress,
			PoolAddress:    req.PoolAddress,
			EntryTradeID:   req.EntryTradeID,
			EntryPrice:     req.EntryPrice,
			Amount:         req.Amount,
			Status:         domain.PositionStatusOpen,
			State:          c.State,
			ExitConfig:     exitCfg,
			EntryLiquidity: req.EntryLiquidity,
			Creator:        req.Creator,
			OpenedAt:       c.OpenTimestamp,
		}
		if err := r.opts.Positions.Insert(ctx, p); err != nil {
			r.logger.Error("persist position failed",
				zap.String("position_id", id),
				zap.Error(err),
			)
		}
	}

	r.mu.Lock()
	r.machines[id] = m
	n := len(r.machines)
	r.mu.Unlock()
	observability.UpdateOpenPositions(n)

	r.logger.Info("position opened",
		zap.String("position_id", id),
		zap.String("token", req.TokenAddress),
		zap.Float64("entry_price", req.EntryPrice),
		zap.Float64("amount", req.Amount),
	)
	return m, nil
}

// Rehydrate rebuilds machines for all OPEN positions in the store and
// resumes monitoring them. Only Insert and Close write the lifecycle state,
// so an OPEN row is always restored to MONITORING; an exit interrupted by
// shutdown is re-evaluated on the next tick, and a sell that already landed
// is detected there as no holdings.
func (r *Registry) Rehydrate(ctx context.Context) (int, error) {
	if r.opts.Positions == nil {
		return 0, nil
	}
	open, err := r.opts.Positions.GetOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open positions: %w", err)
	}

	restored := 0
	for _, p := range open {
		r.mu.RLock()
		_, exists := r.machines[p.PositionID]
		r.mu.RUnlock()
		if exists {
			continue
		}

		if p.State != domain.PositionStateMonitoring {
			r.logger.Warn("restoring position to MONITORING",
				zap.String("position_id", p.PositionID),
				zap.String("persisted_state", string(p.State)),
			)
		}
		m, err := NewMachine(MachineConfig{
			PositionID:     p.PositionID,
			TokenAddress:   p.TokenAddress,
			PoolAddress:    p.PoolAddress,
			EntryPrice:     p.EntryPrice,
			Amount:         p.Amount,
			OpenedAt:       p.OpenedAt,
			ExitConfig:     p.ExitConfig,
			EntryLiquidity: p.EntryLiquidity,
			Creator:        p.Creator,
			State:          domain.PositionStateMonitoring,
			PartialExits:   p.PartialExits,
			Now:            r.opts.Now,
		})
		if err != nil {
			r.logger.Warn("skipping unrestorable position",
				zap.String("position_id", p.PositionID),
				zap.Error(err),
			)
			continue
		}
		r.watch(m)

		r.mu.Lock()
		r.machines[p.PositionID] = m
		r.mu.Unlock()
		restored++
	}

	observability.UpdateOpenPositions(r.Len())
	r.logger.Info("positions rehydrated", zap.Int("count", restored))
	return restored, nil
}

// watch forwards transitions of m to the publisher and metrics.
func (r *Registry) watch(m *Machine) {
	m.OnTransition(func(t Transition) {
		observability.RecordTransition(string(t.Event))
		r.opts.Publisher.Publish(events.Notification{
			Kind: events.KindPosition,
			At:   t.At,
			Position: &events.PositionChange{
				PositionID: t.PositionID,
				Event:      string(t.Event),
				From:       t.From,
				To:         t.To,
				Reason:     t.Reason,
				Context:    t.Context,
			},
		})
	})
}

// Get returns the machine for id.
func (r *Registry) Get(id string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	return m, ok
}

// Len returns the number of tracked positions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

// Active returns snapshots of all tracked positions ordered by open time.
func (r *Registry) Active() []domain.PositionContext {
	machines := r.snapshot()
	out := make([]domain.PositionContext, 0, len(machines))
	for _, m := range machines {
		out = append(out, m.Context())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTimestamp != out[j].OpenTimestamp {
			return out[i].OpenTimestamp < out[j].OpenTimestamp
		}
		return out[i].PositionID < out[j].PositionID
	})
	return out
}

func (r *Registry) snapshot() []*Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		out = append(out, m)
	}
	return out
}

// UpdatePrice feeds a price into a tracked position.
func (r *Registry) UpdatePrice(id string, price float64) error {
	m, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	m.UpdatePrice(price)
	return nil
}

// UpdateTokenPrice feeds a price into every position holding token.
func (r *Registry) UpdateTokenPrice(token string, price float64) int {
	n := 0
	for _, m := range r.snapshot() {
		if m.token == token && m.UpdatePrice(price) {
			n++
		}
	}
	return n
}

// Tokens returns the distinct tokens of positions in MONITORING, sorted.
func (r *Registry) Tokens() []string {
	seen := make(map[string]struct{})
	for _, m := range r.snapshot() {
		if m.State() == domain.PositionStateMonitoring {
			seen[m.token] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run evaluates exits every Interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.logger.Info("exit monitor started", zap.Duration("interval", r.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("exit monitor stopped")
			return nil
		case <-ticker.C:
			r.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs one exit evaluation pass over all MONITORING positions.
func (r *Registry) EvaluateOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.RecordExitEvaluation(time.Since(start).Seconds())
	}()

	var (
		ticksMu sync.Mutex
		ticks   []*domain.PositionTick
		g       errgroup.Group
	)
	g.SetLimit(r.opts.Concurrency)

	for _, m := range r.snapshot() {
		if m.State() != domain.PositionStateMonitoring || r.isInflight(m.id) {
			continue
		}
		g.Go(func() error {
			tick := r.evaluate(ctx, m)
			if tick != nil {
				ticksMu.Lock()
				ticks = append(ticks, tick)
				ticksMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.opts.Ticks != nil && len(ticks) > 0 {
		if err := r.opts.Ticks.InsertBulk(ctx, ticks); err != nil {
			r.logger.Warn("archive position ticks failed", zap.Int("count", len(ticks)), zap.Error(err))
		}
	}
}

// evaluate refreshes the price of m, runs exit strategies and acts on the
// first exit signal. Returns the tick observed, or nil without a price.
func (r *Registry) evaluate(ctx context.Context, m *Machine) *domain.PositionTick {
	if r.opts.Prices == nil {
		return nil
	}
	sample, err := r.opts.Prices.Sample(ctx, m.Context())
	if err != nil || !(sample.Price > 0) {
		r.logger.Debug("no price for position, skipping exit evaluation",
			zap.String("position_id", m.id),
			zap.Error(err),
		)
		return nil
	}
	m.UpdatePrice(sample.Price)
	pc := m.Context()

	tick := &domain.PositionTick{
		PositionID:   pc.PositionID,
		TokenAddress: pc.TokenAddress,
		TimestampMs:  r.opts.Now().UnixMilli(),
		Price:        sample.Price,
		PnLPercent:   pc.PnLPercent,
		LiquidityUSD: sample.LiquidityUSD,
		State:        string(pc.State),
	}

	name, res := r.firstExit(ctx, pc, sample)
	if res == nil {
		return tick
	}
	observability.RecordExitSignal(name, res.IsPartial())
	r.logger.Info("exit signal",
		zap.String("position_id", pc.PositionID),
		zap.String("strategy", name),
		zap.String("reason", res.Reason),
		zap.String("urgency", res.Urgency),
		zap.Float64("pnl_percent", pc.PnLPercent),
	)

	if res.IsPartial() {
		r.partialExit(ctx, m, res, sample)
	} else {
		r.fullExit(ctx, m, res, sample)
	}
	return tick
}

// firstExit evaluates exit strategies in priority order and returns the first
// that signals an exit. Strategy errors are logged and skipped.
func (r *Registry) firstExit(ctx context.Context, pc domain.PositionContext, sample domain.MarketSample) (string, *domain.ExitResult) {
	for _, s := range r.opts.ExitStrategies {
		res, err := s.Evaluate(ctx, pc, sample)
		if err != nil {
			r.logger.Warn("exit strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("position_id", pc.PositionID),
				zap.Error(err),
			)
			continue
		}
		if res != nil && res.ShouldExit {
			return s.Name(), res
		}
	}
	return "", nil
}

func (r *Registry) sellDecision(pc domain.PositionContext, amount float64, price float64, reason string) domain.TradeDecision {
	p := price
	return domain.TradeDecision{
		ShouldTrade:    true,
		Side:           domain.SideSell,
		TargetToken:    pc.TokenAddress,
		BaseToken:      domain.MintWSOL,
		PoolAddress:    pc.PoolAddress,
		TradeAmountUSD: amount * price,
		Price:          &p,
		Reason:         reason,
		Confidence:     1,
		PositionID:     pc.PositionID,
		TokenAmount:    amount,
	}
}

func (r *Registry) fullExit(ctx context.Context, m *Machine, res *domain.ExitResult, sample domain.MarketSample) {
	// Claims the exit; a concurrent evaluator loses here.
	if !m.Transition(EventExitConditionMet, &TransitionPayload{Reason: res.Reason}) {
		return
	}

	exec := r.getExecutor()
	pc := m.Context()
	var result *domain.TradeResult
	if exec == nil {
		result = &domain.TradeResult{Error: "no executor attached"}
	} else {
		result = exec.ExecuteTrade(ctx, r.sellDecision(pc, pc.Amount, sample.Price, res.Reason))
	}

	if result != nil && result.ErrorKind == domain.ErrorKindNoHoldings {
		r.closeEmpty(ctx, m, result.Error)
		return
	}
	if result == nil || !result.Success {
		reason := "exit failed"
		if result != nil && result.Error != "" {
			reason = "exit failed: " + result.Error
		}
		r.logger.Warn("exit trade failed, retrying next tick",
			zap.String("position_id", pc.PositionID),
			zap.String("reason", reason),
		)
		m.Transition(EventErrorOccurred, &TransitionPayload{Reason: reason})
		m.Transition(EventRecoveryCompleted, &TransitionPayload{Reason: "retry on next tick"})
		return
	}

	m.Transition(EventExitApproved, &TransitionPayload{Reason: res.Reason})
	exitPrice := sample.Price
	m.Transition(EventExitCompleted, &TransitionPayload{ExitPrice: &exitPrice, Reason: res.Reason})
	r.archive(ctx, m, result.TradeID, res.Reason)
}

func (r *Registry) partialExit(ctx context.Context, m *Machine, res *domain.ExitResult, sample domain.MarketSample) {
	if !r.claimInflight(m.id) {
		return
	}
	defer r.releaseInflight(m.id)

	exec := r.getExecutor()
	if exec == nil {
		return
	}
	pc := m.Context()
	fraction := *res.PartialExitPercentage / 100
	result := exec.ExecuteTrade(ctx, r.sellDecision(pc, pc.Amount*fraction, sample.Price, res.Reason))
	if result != nil && result.ErrorKind == domain.ErrorKindNoHoldings {
		if m.Transition(EventExitConditionMet, &TransitionPayload{Reason: res.Reason}) {
			r.closeEmpty(ctx, m, result.Error)
		}
		return
	}
	if result == nil || !result.Success {
		r.logger.Warn("partial exit failed",
			zap.String("position_id", pc.PositionID),
			zap.String("error", errorOf(result)),
		)
		return
	}

	if !m.Reduce(fraction) {
		r.logger.Warn("partial exit executed but position could not be reduced",
			zap.String("position_id", pc.PositionID),
			zap.String("state", string(m.State())),
		)
		return
	}
	after := m.Context()
	if r.opts.Positions != nil {
		if err := r.opts.Positions.UpdateAmount(ctx, after.PositionID, after.Amount, after.PartialExits); err != nil {
			r.logger.Error("persist partial exit failed", zap.String("position_id", after.PositionID), zap.Error(err))
		}
	}
	r.logger.Info("partial exit completed",
		zap.String("position_id", after.PositionID),
		zap.Float64("sold_fraction", fraction),
		zap.Float64("remaining", after.Amount),
	)
}

// closeEmpty completes the exit of a position whose tokens are no longer in
// the wallet, e.g. a sell that landed before a restart. m must be in
// EXIT_CONDITION_MET.
func (r *Registry) closeEmpty(ctx context.Context, m *Machine, detail string) {
	r.logger.Warn("no holdings left for position, closing it",
		zap.String("position_id", m.id),
		zap.String("token", m.token),
		zap.String("detail", detail),
	)
	m.Transition(EventExitApproved, &TransitionPayload{Reason: ExitReasonNoHoldings})
	m.Transition(EventExitCompleted, &TransitionPayload{Reason: ExitReasonNoHoldings})
	r.archive(ctx, m, "", ExitReasonNoHoldings)
}

// archive persists the closed position and stops tracking it.
func (r *Registry) archive(ctx context.Context, m *Machine, exitTradeID, reason string) {
	pc := m.Context()
	if r.opts.Positions != nil {
		err := r.opts.Positions.Close(ctx, storage.PositionClose{
			PositionID:  pc.PositionID,
			ExitTradeID: exitTradeID,
			ExitPrice:   pc.CurrentPrice,
			PnLPercent:  pc.PnLPercent,
			PnLUSD:      pc.PnLUSD,
			ExitReason:  reason,
			State:       pc.State,
			ClosedAt:    r.opts.Now().UnixMilli(),
		})
		if err != nil {
			r.logger.Error("persist position close failed", zap.String("position_id", pc.PositionID), zap.Error(err))
		}
	}

	r.mu.Lock()
	delete(r.machines, pc.PositionID)
	n := len(r.machines)
	r.mu.Unlock()
	observability.UpdateOpenPositions(n)

	r.logger.Info("position closed",
		zap.String("position_id", pc.PositionID),
		zap.String("reason", reason),
		zap.Float64("pnl_percent", pc.PnLPercent),
		zap.Float64("pnl_usd", pc.PnLUSD),
	)
}

func (r *Registry) isInflight(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.inflight[id]
	return ok
}

func (r *Registry) claimInflight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Registry) releaseInflight(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func errorOf(res *domain.TradeResult) string {
	if res == nil {
		return "no result"
	}
	return res.Error
}
