package agent

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-pool-trader/internal/position"
)

// DefaultPriceInterval is the price feed period.
const DefaultPriceInterval = 5 * time.Second

// PriceFeed pushes token prices into live positions between exit ticks.
type PriceFeed struct {
	prices    PriceProvider
	positions *position.Registry
	interval  time.Duration
	workers   int
	logger    *zap.Logger
}

// NewPriceFeed creates a PriceFeed polling prices every interval.
func NewPriceFeed(prices PriceProvider, positions *position.Registry, interval time.Duration, logger *zap.Logger) *PriceFeed {
	if interval <= 0 {
		interval = DefaultPriceInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceFeed{
		prices:    prices,
		positions: positions,
		interval:  interval,
		workers:   DefaultWorkers,
		logger:    logger.Named("price_feed"),
	}
}

// Run polls until ctx is cancelled.
func (f *PriceFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("price feed started", zap.Duration("interval", f.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll fetches one price per monitored token and applies it to every
// position holding that token. Returns the number of positions updated.
func (f *PriceFeed) Poll(ctx context.Context) int {
	tokens := f.positions.Tokens()
	updated := make([]int, len(tokens))

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, token := range tokens {
		g.Go(func() error {
			price, err := f.prices.Price(ctx, token)
			if err != nil || !(price > 0) {
				f.logger.Debug("no price for token", zap.String("token", token), zap.Error(err))
				return nil
			}
			updated[i] = f.positions.UpdateTokenPrice(token, price)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, u := range updated {
		n += u
	}
	return n
}
