package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/solana"
)

type confirmedAttempt struct {
	signature    string
	confirmation *solana.Confirmation
}

// submitWithRetry runs up to MaxAttempts build-sign-submit-confirm attempts.
// Every retry starts from a fresh quote because the previous transaction's
// blockhash may have expired.
func (c *Coordinator) submitWithRetry(ctx context.Context, run *tradeRun) (*confirmedAttempt, error) {
	var lastErr *Error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BaseDelay << (attempt - 2)
			run.logger.Info("retrying trade",
				zap.String("trade_id", run.tradeID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, newError(KindNetwork, "backoff", err)
			}

			q, err := c.quote(ctx, run.plan)
			if err != nil {
				return nil, err
			}
			run.quote = q
		}

		run.attempts = attempt
		conf, err := c.attempt(ctx, run)
		if err == nil {
			return conf, nil
		}

		lastErr = classify("attempt", err)
		if !lastErr.Retryable() || ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, newError(lastErr.Kind, "attempt", fmt.Errorf("%d attempts exhausted: %w", c.cfg.MaxAttempts, lastErr.Err))
}

// attempt builds, signs, submits and confirms one transaction.
func (c *Coordinator) attempt(ctx context.Context, run *tradeRun) (*confirmedAttempt, error) {
	kp := c.opts.Keypair
	owner := kp.PublicKey()

	tx, err := c.build(ctx, run.quote, owner)
	if err != nil {
		return nil, err
	}
	c.simulate(ctx, run, tx)

	if err := tx.Sign(kp); err != nil {
		return nil, newError(KindWalletNotReady, "sign", err)
	}

	sig, err := c.send(ctx, owner, tx)
	if err != nil {
		return nil, err
	}
	run.trade.Signature = sig
	run.logger.Info("transaction submitted",
		zap.String("trade_id", run.tradeID),
		zap.String("signature", sig),
		zap.Int("attempt", run.attempts),
	)

	conf, err := c.opts.Confirmer.Confirm(ctx, sig, c.cfg.ConfirmTimeout)
	if err != nil {
		return nil, classify("confirm", err)
	}
	return &confirmedAttempt{signature: sig, confirmation: conf}, nil
}

func (c *Coordinator) build(ctx context.Context, q *jupiter.Quote, owner string) (*solana.WireTransaction, error) {
	bctx, cancel := context.WithTimeout(ctx, c.cfg.BuildTimeout)
	defer cancel()

	swap, err := c.opts.Router.SwapTransaction(bctx, q, owner)
	if err != nil {
		return nil, classify("build", err)
	}
	tx, err := solana.DecodeTransaction(swap.SwapTransaction)
	if err != nil {
		return nil, newError(KindTransactionFailed, "build", err)
	}
	return tx, nil
}

// simulate runs a best-effort preflight. Its outcome never blocks submission.
func (c *Coordinator) simulate(ctx context.Context, run *tradeRun, tx *solana.WireTransaction) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.BuildTimeout)
	defer cancel()

	sim, err := c.opts.RPC.SimulateTransaction(sctx, tx.Base64())
	switch {
	case err != nil:
		run.logger.Warn("simulation unavailable", zap.String("trade_id", run.tradeID), zap.Error(err))
	case sim.Err != nil:
		run.logger.Warn("simulation reported an error",
			zap.String("trade_id", run.tradeID),
			zap.Any("error", sim.Err),
			zap.Strings("logs", sim.Logs),
		)
	default:
		run.logger.Debug("simulation ok",
			zap.String("trade_id", run.tradeID),
			zap.Uint64("units_consumed", sim.UnitsConsumed),
		)
	}
}

// send submits tx while holding the wallet lock.
func (c *Coordinator) send(ctx context.Context, owner string, tx *solana.WireTransaction) (string, error) {
	unlock, err := c.opts.Locker.Lock(ctx, "wallet:"+owner)
	if err != nil {
		return "", newError(KindNetwork, "submit lock", err)
	}
	defer unlock()

	observability.RecordSubmitAttempt()
	sig, err := c.opts.RPC.SendTransaction(ctx, tx.Base64())
	if err != nil {
		return "", newError(KindNetwork, "submit", err)
	}
	if sig == "" {
		sig = tx.Signature()
	}
	return sig, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
