package execution

import (
	"context"
	"math"

	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/solana"
)

// plan is the sizing derived from wallet balances before quoting.
type plan struct {
	inputMint  string
	outputMint string
	amountIn   uint64 // base units of inputMint

	solBalance uint64  // lamports
	solPrice   float64 // USD, 0 when not needed
}

func (c *Coordinator) walletReady() error {
	kp := c.opts.Keypair
	if kp == nil {
		return errorf(KindWalletNotReady, "wallet", "no keypair loaded")
	}
	if err := solana.ValidateWallet(kp.PublicKey()); err != nil {
		return newError(KindWalletNotReady, "wallet", err)
	}
	if c.opts.RPC == nil || c.opts.Router == nil || c.opts.Confirmer == nil {
		return errorf(KindWalletNotReady, "wallet", "ledger or router client not configured")
	}
	return nil
}

// validate checks the decision without touching the network.
func (c *Coordinator) validate(d domain.TradeDecision) error {
	const op = "validate"
	if !d.ShouldTrade {
		return errorf(KindValidation, op, "decision is not a trade: %s", d.Reason)
	}
	if d.Side != domain.SideBuy && d.Side != domain.SideSell {
		return errorf(KindValidation, op, "unknown side %q", d.Side)
	}
	if err := solana.ValidateAddress(d.TargetToken); err != nil {
		return errorf(KindValidation, op, "target token: %v", err)
	}
	if d.BaseToken != "" && d.BaseToken != domain.MintWSOL {
		return errorf(KindValidation, op, "unsupported base token %s", d.BaseToken)
	}
	if d.TargetToken == domain.MintWSOL {
		return errorf(KindValidation, op, "target token is the base token")
	}
	if math.IsNaN(d.RiskScore) || d.RiskScore < 0 || d.RiskScore > 10 {
		return errorf(KindValidation, op, "risk score %v outside [0, 10]", d.RiskScore)
	}

	if d.Side == domain.SideSell {
		if !(d.TokenAmount > 0) || math.IsInf(d.TokenAmount, 0) {
			return errorf(KindValidation, op, "sell amount %v must be positive and finite", d.TokenAmount)
		}
		return nil
	}
	if math.IsNaN(d.TradeAmountUSD) || d.TradeAmountUSD < c.cfg.MinTradeAmountUSD || d.TradeAmountUSD > c.cfg.MaxTradeAmountUSD {
		return errorf(KindValidation, op, "trade amount $%.2f outside [$%.2f, $%.2f]",
			d.TradeAmountUSD, c.cfg.MinTradeAmountUSD, c.cfg.MaxTradeAmountUSD)
	}
	return nil
}

// checkBalance verifies the gas reserve and the funds the trade spends, and
// sizes the swap input.
func (c *Coordinator) checkBalance(ctx context.Context, d domain.TradeDecision) (*plan, error) {
	const op = "balance"
	if ok, reason := c.opts.Breakers.Allow(domain.BreakerBalance); !ok {
		return nil, errorf(KindCircuitOpen, op, "circuit breaker %q open: %s", domain.BreakerBalance, reason)
	}

	owner := c.opts.Keypair.PublicKey()
	lamports, err := c.opts.RPC.GetBalance(ctx, owner)
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	minGas := jupiter.ToBaseUnits(c.cfg.MinGasBalanceSOL, jupiter.SOLDecimals)

	p := &plan{solBalance: lamports}
	switch d.Side {
	case domain.SideBuy:
		if c.opts.Prices == nil {
			return nil, errorf(KindNetwork, op, "no price provider for SOL")
		}
		solPrice, err := c.opts.Prices.Price(ctx, domain.MintWSOL)
		if err != nil {
			return nil, newError(KindNetwork, op, err)
		}
		if !(solPrice > 0) || math.IsInf(solPrice, 0) {
			return nil, errorf(KindNetwork, op, "invalid SOL price %v", solPrice)
		}
		p.solPrice = solPrice
		p.inputMint, p.outputMint = domain.MintWSOL, d.TargetToken
		p.amountIn = jupiter.USDToBaseUnits(d.TradeAmountUSD, solPrice, jupiter.SOLDecimals)
		if p.amountIn == 0 {
			return nil, errorf(KindValidation, op, "trade amount rounds to zero lamports")
		}
		if lamports < minGas || lamports-minGas < p.amountIn {
			return nil, errorf(KindInsufficientBalance, op,
				"balance %d lamports below %d needed (%d gas reserve + %d input)",
				lamports, minGas+p.amountIn, minGas, p.amountIn)
		}

	case domain.SideSell:
		if lamports < minGas {
			return nil, errorf(KindInsufficientBalance, op,
				"balance %d lamports below gas reserve %d", lamports, minGas)
		}
		held, err := c.opts.RPC.GetTokenBalance(ctx, owner, d.TargetToken)
		if err != nil {
			return nil, newError(KindNetwork, op, err)
		}
		if held == nil || held.Amount == 0 {
			return nil, errorf(KindNoHoldings, op, "no %s held", d.TargetToken)
		}
		p.inputMint, p.outputMint = d.TargetToken, domain.MintWSOL
		p.amountIn = min(jupiter.ToBaseUnits(d.TokenAmount, int32(held.Decimals)), held.Amount)
		if p.amountIn == 0 {
			return nil, errorf(KindValidation, op, "sell amount rounds to zero base units")
		}
	}

	c.opts.Breakers.RecordSuccess(domain.BreakerBalance)
	return p, nil
}

// checkNetwork requires an advancing slot. Congestion only warns.
func (c *Coordinator) checkNetwork(ctx context.Context, logger *zap.Logger) error {
	const op = "network health"
	slot, err := c.opts.RPC.GetSlot(ctx)
	if err != nil {
		return newError(KindNetwork, op, err)
	}
	if slot == 0 {
		return errorf(KindNetwork, op, "ledger reported slot 0")
	}
	for {
		last := c.lastSlot.Load()
		if slot < last {
			return errorf(KindNetwork, op, "slot went backwards: %d < %d", slot, last)
		}
		if c.lastSlot.CompareAndSwap(last, slot) {
			break
		}
	}

	if c.cfg.CongestionTPS <= 0 {
		return nil
	}
	samples, err := c.opts.RPC.GetRecentPerformanceSamples(ctx, 5)
	if err != nil {
		logger.Debug("performance samples unavailable", zap.Error(err))
		return nil
	}
	var total float64
	for _, s := range samples {
		total += s.TPS()
	}
	if len(samples) > 0 {
		if tps := total / float64(len(samples)); tps > c.cfg.CongestionTPS {
			logger.Warn("network congested", zap.Float64("tps", tps), zap.Float64("threshold", c.cfg.CongestionTPS))
		}
	}
	return nil
}

// checkRiskBudget caps a buy at RiskPercent of the wallet's SOL value.
func (c *Coordinator) checkRiskBudget(d domain.TradeDecision, p *plan) error {
	if d.Side != domain.SideBuy || c.cfg.RiskPercent <= 0 {
		return nil
	}
	walletUSD := jupiter.FromBaseUnits(p.solBalance, jupiter.SOLDecimals) * p.solPrice
	budget := walletUSD * c.cfg.RiskPercent / 100
	if d.TradeAmountUSD > budget {
		return errorf(KindValidation, "risk budget",
			"trade amount $%.2f exceeds risk budget $%.2f (%.1f%% of $%.2f)",
			d.TradeAmountUSD, budget, c.cfg.RiskPercent, walletUSD)
	}
	return nil
}

// quote fetches a quote for p and applies the quote policy.
func (c *Coordinator) quote(ctx context.Context, p *plan) (*jupiter.Quote, error) {
	const op = "quote"
	qctx, cancel := context.WithTimeout(ctx, c.cfg.QuoteTimeout)
	defer cancel()

	q, err := c.opts.Router.Quote(qctx, jupiter.QuoteRequest{
		InputMint:   p.inputMint,
		OutputMint:  p.outputMint,
		Amount:      p.amountIn,
		SlippageBps: int(math.Round(c.cfg.MaxSlippagePercent * 100)),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if err := c.checkQuote(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (c *Coordinator) checkQuote(q *jupiter.Quote) error {
	const op = "quote policy"
	if q.OutAmount == 0 {
		return errorf(KindQuoteRejected, op, "quote has zero output")
	}
	if q.PriceImpactPct > c.cfg.MaxPriceImpactPct {
		return errorf(KindQuoteRejected, op, "price impact %.2f%% exceeds %.2f%%", q.PriceImpactPct, c.cfg.MaxPriceImpactPct)
	}
	if s := q.SlippagePercent(); s > c.cfg.MaxSlippagePercent {
		return errorf(KindQuoteRejected, op, "slippage %.2f%% exceeds %.2f%%", s, c.cfg.MaxSlippagePercent)
	}
	return nil
}
