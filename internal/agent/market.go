package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoMarketData is returned when nothing is known about a mint or pool.
var ErrNoMarketData = errors.New("no market data")

type marketPoint struct {
	value float64
	at    time.Time
}

// MemoryMarket is the in-process market cache used when redis is disabled.
// Prices older than ttl are refetched from upstream; a stale price is
// served if the upstream fails.
type MemoryMarket struct {
	upstream PriceProvider // optional
	ttl      time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	prices    map[string]marketPoint
	liquidity map[string]marketPoint
}

// NewMemoryMarket creates a MemoryMarket.
func NewMemoryMarket(upstream PriceProvider, ttl time.Duration) *MemoryMarket {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &MemoryMarket{
		upstream:  upstream,
		ttl:       ttl,
		now:       time.Now,
		prices:    make(map[string]marketPoint),
		liquidity: make(map[string]marketPoint),
	}
}

// SetPrice implements MarketRecorder.
func (m *MemoryMarket) SetPrice(_ context.Context, mint string, price float64, ts time.Time) error {
	m.mu.Lock()
	m.prices[mint] = marketPoint{value: price, at: ts}
	m.mu.Unlock()
	return nil
}

// SetLiquidity implements MarketRecorder.
func (m *MemoryMarket) SetLiquidity(_ context.Context, pool string, usd float64, ts time.Time) error {
	m.mu.Lock()
	m.liquidity[pool] = marketPoint{value: usd, at: ts}
	m.mu.Unlock()
	return nil
}

// GetLiquidity implements LiquiditySource.
func (m *MemoryMarket) GetLiquidity(_ context.Context, pool string) (float64, time.Time, error) {
	m.mu.RLock()
	p, ok := m.liquidity[pool]
	m.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, fmt.Errorf("liquidity %s: %w", pool, ErrNoMarketData)
	}
	return p.value, p.at, nil
}

// Price implements PriceProvider.
func (m *MemoryMarket) Price(ctx context.Context, mint string) (float64, error) {
	m.mu.RLock()
	cached, hit := m.prices[mint]
	m.mu.RUnlock()

	if hit && m.now().Sub(cached.at) < m.ttl {
		return cached.value, nil
	}
	if m.upstream == nil {
		if hit {
			return cached.value, nil
		}
		return 0, fmt.Errorf("price %s: %w", mint, ErrNoMarketData)
	}

	p, err := m.upstream.Price(ctx, mint)
	if err != nil {
		if hit {
			return cached.value, nil
		}
		return 0, fmt.Errorf("price %s: %w", mint, err)
	}
	_ = m.SetPrice(ctx, mint, p, m.now())
	return p, nil
}
