// Package execution turns trade decisions into confirmed swaps.
package execution

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-pool-trader/internal/breaker"
	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/events"
	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/position"
	"solana-pool-trader/internal/solana"
	"solana-pool-trader/internal/storage"
)

// Router quotes swaps and builds their transactions.
type Router interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (*jupiter.SwapResponse, error)
}

// PriceProvider returns USD prices by mint.
type PriceProvider interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// Confirmer waits for a submitted signature to land.
type Confirmer interface {
	Confirm(ctx context.Context, signature string, timeout time.Duration) (*solana.Confirmation, error)
}

// PositionOpener creates a position after a confirmed buy.
type PositionOpener interface {
	Open(ctx context.Context, req position.OpenRequest) (*position.Machine, error)
}

// Config holds execution limits.
type Config struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	QuoteTimeout   time.Duration `mapstructure:"quote_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`

	MinTradeAmountUSD  float64 `mapstructure:"min_trade_amount_usd"`
	MaxTradeAmountUSD  float64 `mapstructure:"max_trade_amount_usd"`
	MaxSlippagePercent float64 `mapstructure:"max_slippage_percent"`
	MaxPriceImpactPct  float64 `mapstructure:"max_price_impact_pct"`
	MinGasBalanceSOL   float64 `mapstructure:"min_gas_balance_sol"`
	RiskPercent        float64 `mapstructure:"risk_percent"` // <= 0 disables the budget
	CongestionTPS      float64 `mapstructure:"congestion_tps"`
}

// DefaultConfig returns default execution limits.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        3,
		BaseDelay:          time.Second,
		QuoteTimeout:       10 * time.Second,
		BuildTimeout:       15 * time.Second,
		ConfirmTimeout:     60 * time.Second,
		MinTradeAmountUSD:  1,
		MaxTradeAmountUSD:  100,
		MaxSlippagePercent: 5,
		MaxPriceImpactPct:  5,
		MinGasBalanceSOL:   0.01,
		RiskPercent:        2,
		CongestionTPS:      4000,
	}
}

// Options wires the coordinator's collaborators.
type Options struct {
	Config    Config
	RPC       solana.RPCClient
	Confirmer Confirmer
	Router    Router
	Prices    PriceProvider
	Keypair   *solana.Keypair // nil leaves the wallet not ready
	Breakers  *breaker.Registry
	Trades    storage.TradeStore // optional
	Positions PositionOpener     // optional
	Locker    Locker             // defaults to a LocalLocker
	Publisher events.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// Coordinator executes trade decisions through validation, quoting,
// signing, submission and confirmation.
type Coordinator struct {
	opts     Options
	cfg      Config
	logger   *zap.Logger
	lastSlot atomic.Uint64
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts Options) *Coordinator {
	def := DefaultConfig()
	cfg := opts.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = def.QuoteTimeout
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = def.BuildTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.MinTradeAmountUSD <= 0 {
		cfg.MinTradeAmountUSD = def.MinTradeAmountUSD
	}
	if cfg.MaxTradeAmountUSD <= 0 {
		cfg.MaxTradeAmountUSD = def.MaxTradeAmountUSD
	}
	if cfg.MaxSlippagePercent <= 0 {
		cfg.MaxSlippagePercent = def.MaxSlippagePercent
	}
	if cfg.MaxPriceImpactPct <= 0 {
		cfg.MaxPriceImpactPct = def.MaxPriceImpactPct
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Breakers == nil {
		opts.Breakers = breaker.NewRegistry(breaker.DefaultConfigs())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Config = cfg

	return &Coordinator{
		opts:   opts,
		cfg:    cfg,
		logger: opts.Logger.Named("execution"),
	}
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// ExecuteTrade runs d through every gate and, when they pass, swaps on-chain.
// Failures are reported in the result; no error or panic crosses this call.
func (c *Coordinator) ExecuteTrade(ctx context.Context, d domain.TradeDecision) *domain.TradeResult {
	start := time.Now()
	run := &tradeRun{
		decision: d,
		tradeID:  uuid.NewString(),
		logger: c.logger.With(
			zap.String("side", string(d.Side)),
			zap.String("token", d.TargetToken),
			zap.String("pool", d.PoolAddress),
		),
	}

	res := c.execute(ctx, run)
	observability.RecordTrade(string(d.Side), res.Success, res.ErrorKind, time.Since(start).Seconds())
	return res
}

// tradeRun carries the state of one ExecuteTrade call.
type tradeRun struct {
	decision domain.TradeDecision
	tradeID  string
	logger   *zap.Logger

	plan     *plan
	quote    *jupiter.Quote
	trade    *domain.Trade // nil until the PENDING row exists
	attempts int
}

func (c *Coordinator) execute(ctx context.Context, run *tradeRun) *domain.TradeResult {
	d := run.decision

	if err := c.walletReady(); err != nil {
		return c.fail(ctx, run, err)
	}
	if ok, reason := c.opts.Breakers.Allow(domain.BreakerTrading); !ok {
		return c.fail(ctx, run, errorf(KindCircuitOpen, "breaker", "circuit breaker %q open: %s", domain.BreakerTrading, reason))
	}
	if err := c.validate(d); err != nil {
		return c.fail(ctx, run, err)
	}

	p, err := c.checkBalance(ctx, d)
	if err != nil {
		return c.fail(ctx, run, err)
	}
	run.plan = p

	if err := c.checkNetwork(ctx, run.logger); err != nil {
		return c.fail(ctx, run, err)
	}
	if err := c.checkRiskBudget(d, p); err != nil {
		return c.fail(ctx, run, err)
	}

	q, err := c.quote(ctx, p)
	if err != nil {
		return c.fail(ctx, run, err)
	}
	run.quote = q

	if err := c.insertPending(ctx, run); err != nil {
		return c.fail(ctx, run, err)
	}

	conf, err := c.submitWithRetry(ctx, run)
	if err != nil {
		return c.fail(ctx, run, err)
	}
	return c.succeed(ctx, run, conf)
}

func (c *Coordinator) insertPending(ctx context.Context, run *tradeRun) error {
	d, p, q := run.decision, run.plan, run.quote
	now := c.opts.Now().UnixMilli()
	t := &domain.Trade{
		TradeID:           run.tradeID,
		PositionID:        d.PositionID,
		Side:              d.Side,
		InputMint:         p.inputMint,
		OutputMint:        p.outputMint,
		PoolAddress:       d.PoolAddress,
		TradeAmountUSD:    d.TradeAmountUSD,
		AmountIn:          q.InAmount,
		ExpectedAmountOut: q.OutAmount,
		PriceImpactPct:    q.PriceImpactPct,
		SlippageBps:       q.SlippageBps,
		Route:             q.Route,
		Status:            domain.TradeStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if c.opts.Trades != nil {
		if err := c.opts.Trades.Insert(ctx, t); err != nil {
			return newError(KindNetwork, "record trade", err)
		}
	}
	run.trade = t
	return nil
}

// succeed finalizes a confirmed trade.
func (c *Coordinator) succeed(ctx context.Context, run *tradeRun, conf *confirmedAttempt) *domain.TradeResult {
	d, p, q := run.decision, run.plan, run.quote
	owner := c.opts.Keypair.PublicKey()

	var tx *solana.Transaction
	if conf.confirmation != nil {
		tx = conf.confirmation.Transaction
	}
	actual, ok := solana.ParseAmountOut(tx, owner, p.outputMint)
	unconfirmed := !ok
	if !ok {
		actual = q.OutAmount
		run.logger.Warn("actual output not parseable, using quoted amount",
			zap.String("trade_id", run.tradeID),
			zap.String("signature", conf.signature),
		)
	}

	c.opts.Breakers.RecordSuccess(domain.BreakerTrading)
	observability.UpdateLastSuccessfulTrade(c.opts.Now().Unix())

	positionID := d.PositionID
	if d.Side == domain.SideBuy {
		positionID = c.openPosition(ctx, run, tx, actual)
	}

	c.finishTrade(ctx, run, storage.TradeUpdate{
		TradeID:           run.tradeID,
		Status:            domain.TradeStatusConfirmed,
		PositionID:        positionID,
		Signature:         conf.signature,
		ActualAmountOut:   &actual,
		AmountUnconfirmed: unconfirmed,
		Attempts:          run.attempts,
	})

	impact := q.PriceImpactPct
	slippage := realizedSlippage(q.OutAmount, actual, unconfirmed)
	run.logger.Info("trade confirmed",
		zap.String("trade_id", run.tradeID),
		zap.String("signature", conf.signature),
		zap.Uint64("amount_in", q.InAmount),
		zap.Uint64("expected_out", q.OutAmount),
		zap.Uint64("actual_out", actual),
		zap.Bool("amount_unconfirmed", unconfirmed),
		zap.Int("attempts", run.attempts),
	)
	return &domain.TradeResult{
		Success:         true,
		Signature:       conf.signature,
		TradeID:         run.tradeID,
		PositionID:      positionID,
		ActualAmountOut: &actual,
		PriceImpact:     &impact,
		Slippage:        &slippage,
		Route:           q.Route,
	}
}

// openPosition seeds a position from a confirmed buy. Returns "" when the
// position could not be opened; the trade itself stays CONFIRMED.
func (c *Coordinator) openPosition(ctx context.Context, run *tradeRun, tx *solana.Transaction, actual uint64) string {
	if c.opts.Positions == nil {
		return ""
	}
	d := run.decision

	amount, entry := 0.0, 0.0
	if decimals, ok := c.tokenDecimals(ctx, tx, d.TargetToken); ok {
		amount = jupiter.FromBaseUnits(actual, int32(decimals))
	}
	if amount > 0 {
		entry = d.TradeAmountUSD / amount
	} else if d.Price != nil && *d.Price > 0 {
		entry = *d.Price
		amount = d.TradeAmountUSD / entry
	} else if d.ExpectedAmountOut > 0 {
		amount = d.ExpectedAmountOut
		entry = d.TradeAmountUSD / amount
	}
	if !(amount > 0) || !(entry > 0) {
		run.logger.Error("cannot size position from confirmed buy",
			zap.String("trade_id", run.tradeID),
			zap.Uint64("actual_out", actual),
		)
		return ""
	}

	var liquidity *float64
	if d.LiquidityUSD > 0 {
		l := d.LiquidityUSD
		liquidity = &l
	}
	m, err := c.opts.Positions.Open(ctx, position.OpenRequest{
		TokenAddress:   d.TargetToken,
		PoolAddress:    d.PoolAddress,
		EntryTradeID:   run.tradeID,
		EntryPrice:     entry,
		Amount:         amount,
		EntryLiquidity: liquidity,
		Creator:        d.Creator,
	})
	if err != nil {
		run.logger.Error("open position failed", zap.String("trade_id", run.tradeID), zap.Error(err))
		return ""
	}
	return m.Context().PositionID
}

func (c *Coordinator) tokenDecimals(ctx context.Context, tx *solana.Transaction, mint string) (int, bool) {
	if dec, ok := solana.TokenDecimals(tx, mint); ok {
		return dec, true
	}
	bal, err := c.opts.RPC.GetTokenBalance(ctx, c.opts.Keypair.PublicKey(), mint)
	if err != nil || bal == nil || bal.Accounts == 0 {
		return 0, false
	}
	return bal.Decimals, true
}

// fail reports a failed run, updating the trade row and breakers as the
// failure kind requires.
func (c *Coordinator) fail(ctx context.Context, run *tradeRun, err error) *domain.TradeResult {
	ee := classify("execute", err)

	switch ee.Kind {
	case KindInsufficientBalance:
		if c.opts.Breakers.RecordFailure(domain.BreakerBalance, ee.Error()) {
			run.logger.Warn("balance circuit breaker tripped", zap.String("reason", ee.Error()))
		}
	case KindNetwork, KindTransactionFailed, KindConfirmTimeout:
		if c.opts.Breakers.RecordFailure(domain.BreakerTrading, ee.Error()) {
			run.logger.Warn("trading circuit breaker tripped", zap.String("reason", ee.Error()))
		}
	}

	res := &domain.TradeResult{
		Error:     ee.Error(),
		ErrorKind: string(ee.Kind),
	}
	fields := []zap.Field{zap.String("kind", string(ee.Kind)), zap.Error(ee)}

	if run.trade != nil {
		res.TradeID = run.tradeID
		res.PositionID = run.decision.PositionID
		res.Signature = run.trade.Signature
		c.finishTrade(ctx, run, storage.TradeUpdate{
			TradeID:   run.tradeID,
			Status:    domain.TradeStatusFailed,
			Signature: run.trade.Signature,
			Error:     ee.Error(),
			Attempts:  run.attempts,
		})
		fields = append(fields, zap.String("trade_id", run.tradeID), zap.Int("attempts", run.attempts))
	}

	switch ee.Kind {
	case KindValidation, KindQuoteRejected, KindCircuitOpen, KindNoHoldings:
		run.logger.Info("trade skipped", fields...)
	default:
		run.logger.Warn("trade failed", fields...)
	}
	return res
}

// finishTrade persists and publishes the final state of the trade row.
func (c *Coordinator) finishTrade(ctx context.Context, run *tradeRun, u storage.TradeUpdate) {
	if run.trade == nil {
		return
	}
	u.UpdatedAt = c.opts.Now().UnixMilli()
	if c.opts.Trades != nil {
		// The outcome must be recorded even if the caller has gone away.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := c.opts.Trades.UpdateStatus(sctx, u)
		cancel()
		if err != nil {
			run.logger.Error("update trade status failed",
				zap.String("trade_id", u.TradeID),
				zap.String("status", string(u.Status)),
				zap.Error(err),
			)
		}
	}

	t := *run.trade
	t.Status = u.Status
	if u.PositionID != "" {
		t.PositionID = u.PositionID
	}
	t.Signature = u.Signature
	t.ActualAmountOut = u.ActualAmountOut
	t.AmountUnconfirmed = u.AmountUnconfirmed
	t.Error = u.Error
	t.Attempts = u.Attempts
	t.UpdatedAt = u.UpdatedAt
	*run.trade = t

	c.opts.Publisher.Publish(events.Notification{
		Kind:  events.KindTrade,
		At:    u.UpdatedAt,
		Trade: &t,
	})
}

// realizedSlippage is the shortfall of actual against quoted output in percent.
func realizedSlippage(expected, actual uint64, unconfirmed bool) float64 {
	if unconfirmed || expected == 0 {
		return 0
	}
	return (float64(expected) - float64(actual)) / float64(expected) * 100
}

var _ position.Executor = (*Coordinator)(nil)
