package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Confirmation errors.
var (
	ErrConfirmTimeout    = errors.New("confirmation timeout")
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// ConfirmerConfig configures Confirmer.
type ConfirmerConfig struct {
	Commitment   string
	PollInterval time.Duration
	// FetchTimeout bounds the getTransaction lookup after the signature lands.
	FetchTimeout time.Duration
}

// DefaultConfirmerConfig returns default confirmation settings.
func DefaultConfirmerConfig() ConfirmerConfig {
	return ConfirmerConfig{
		Commitment:   CommitmentConfirmed,
		PollInterval: 2 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// Confirmation is the outcome of a landed signature.
type Confirmation struct {
	Signature string
	Slot      int64
	// Transaction is nil when the node did not return it within FetchTimeout.
	Transaction *Transaction
}

// Confirmer waits for a signature to reach the configured commitment. It
// prefers a WebSocket signature subscription and polls getSignatureStatuses
// alongside it, so a dropped socket only delays detection by one interval.
type Confirmer struct {
	rpc    RPCClient
	ws     WSClient
	cfg    ConfirmerConfig
	logger *zap.Logger
}

// NewConfirmer creates a Confirmer. ws may be nil for polling only.
func NewConfirmer(rpc RPCClient, ws WSClient, cfg ConfirmerConfig, logger *zap.Logger) *Confirmer {
	def := DefaultConfirmerConfig()
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confirmer{rpc: rpc, ws: ws, cfg: cfg, logger: logger.Named("confirmer")}
}

// Confirm blocks until signature lands, fails, or timeout elapses.
// A landed transaction with an execution error returns ErrTransactionFailed.
func (c *Confirmer) Confirm(ctx context.Context, signature string, timeout time.Duration) (*Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wsCh <-chan SignatureNotification
	if c.ws != nil {
		ch, err := c.ws.SubscribeSignature(waitCtx, signature, c.cfg.Commitment)
		if err != nil {
			c.logger.Warn("signature subscription failed, polling only",
				zap.String("signature", signature),
				zap.Error(err),
			)
		} else {
			wsCh = ch
		}
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var (
		slot   int64
		txErr  interface{}
		landed bool
	)
	for !landed {
		select {
		case n, ok := <-wsCh:
			if !ok {
				wsCh = nil
				continue
			}
			slot, txErr, landed = n.Slot, n.Err, true

		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(waitCtx, []string{signature})
			if err != nil {
				c.logger.Debug("status poll failed", zap.String("signature", signature), zap.Error(err))
				continue
			}
			if len(statuses) == 0 || !statuses[0].Reached(c.cfg.Commitment) {
				continue
			}
			slot, txErr, landed = int64(statuses[0].Slot), statuses[0].Err, true

		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, signature, timeout)
		}
	}

	if txErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, txErr)
	}

	conf := &Confirmation{Signature: signature, Slot: slot}
	conf.Transaction = c.fetch(ctx, signature)
	return conf, nil
}

// fetch retrieves the landed transaction, tolerating indexer lag.
func (c *Confirmer) fetch(ctx context.Context, signature string) *Transaction {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	for {
		tx, err := c.rpc.GetTransaction(fetchCtx, signature)
		if err == nil && tx != nil {
			return tx
		}
		if err != nil {
			c.logger.Debug("getTransaction failed", zap.String("signature", signature), zap.Error(err))
		}
		select {
		case <-fetchCtx.Done():
			return nil
		case <-time.After(c.cfg.PollInterval):
		}
	}
}
