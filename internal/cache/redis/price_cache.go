package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned when a key holds no value.
var ErrCacheMiss = errors.New("redis: cache miss")

// DefaultPriceTTL is how long a cached price is served without refetching.
const DefaultPriceTTL = 10 * time.Second

// PriceFetcher fetches USD prices from the upstream price API.
type PriceFetcher interface {
	Prices(ctx context.Context, mints ...string) (map[string]float64, error)
}

// PriceCache is a read-through price cache. Prices live in hashes at
// "price:{mint}" with fields "price" and "ts" (Unix ms); pool liquidity at
// "liquidity:{pool}"; creator baselines at "creator:{position}".
type PriceCache struct {
	rdb      *redis.Client
	upstream PriceFetcher // optional
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewPriceCache creates a PriceCache. A nil upstream serves cached values only.
func NewPriceCache(c *Client, upstream PriceFetcher, ttl time.Duration, logger *zap.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceCache{
		rdb:      c.Underlying(),
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Named("price_cache"),
	}
}

func priceKey(mint string) string     { return "price:" + mint }
func liquidityKey(pool string) string { return "liquidity:" + pool }
func creatorKey(id string) string     { return "creator:" + id }

// SetPrice stores the latest price of mint.
func (pc *PriceCache) SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error {
	return pc.setValue(ctx, priceKey(mint), price, ts)
}

// GetPrice returns the cached price of mint and when it was stored.
func (pc *PriceCache) GetPrice(ctx context.Context, mint string) (float64, time.Time, error) {
	return pc.getValue(ctx, priceKey(mint))
}

// SetLiquidity stores the latest USD liquidity of pool.
func (pc *PriceCache) SetLiquidity(ctx context.Context, pool string, usd float64, ts time.Time) error {
	return pc.setValue(ctx, liquidityKey(pool), usd, ts)
}

// GetLiquidity returns the cached USD liquidity of pool.
func (pc *PriceCache) GetLiquidity(ctx context.Context, pool string) (float64, time.Time, error) {
	return pc.getValue(ctx, liquidityKey(pool))
}

// CreatorBaseline records holding as the creator's initial balance for the
// position unless one is already stored, and returns the stored baseline.
func (pc *PriceCache) CreatorBaseline(ctx context.Context, positionID string, holding float64) (float64, error) {
	key := creatorKey(positionID)
	if err := pc.rdb.HSetNX(ctx, key, "initial", strconv.FormatFloat(holding, 'f', -1, 64)).Err(); err != nil {
		return 0, fmt.Errorf("redis: set creator baseline %s: %w", positionID, err)
	}
	s, err := pc.rdb.HGet(ctx, key, "initial").Result()
	if err != nil {
		return 0, fmt.Errorf("redis: get creator baseline %s: %w", positionID, err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse creator baseline %s: %w", positionID, err)
	}
	return v, nil
}

// ForgetCreator drops the creator baseline of a closed position.
func (pc *PriceCache) ForgetCreator(ctx context.Context, positionID string) error {
	return pc.rdb.Del(ctx, creatorKey(positionID)).Err()
}

// Price returns a fresh price for mint, refetching from upstream when the
// cached value is older than the TTL. A stale value is served if the
// upstream fails.
func (pc *PriceCache) Price(ctx context.Context, mint string) (float64, error) {
	cached, ts, err := pc.GetPrice(ctx, mint)
	hit := err == nil
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		pc.logger.Warn("price cache read failed", zap.String("mint", mint), zap.Error(err))
	}
	if hit && pc.now().Sub(ts) < pc.ttl {
		return cached, nil
	}
	if pc.upstream == nil {
		if hit {
			return cached, nil
		}
		return 0, fmt.Errorf("price %s: %w", mint, ErrCacheMiss)
	}

	prices, err := pc.upstream.Prices(ctx, mint)
	if err == nil {
		if p, ok := prices[mint]; ok {
			if err := pc.SetPrice(ctx, mint, p, pc.now()); err != nil {
				pc.logger.Warn("price cache write failed", zap.String("mint", mint), zap.Error(err))
			}
			return p, nil
		}
		err = fmt.Errorf("no upstream price for %s", mint)
	}
	if hit {
		pc.logger.Debug("serving stale price",
			zap.String("mint", mint),
			zap.Duration("age", pc.now().Sub(ts)),
			zap.Error(err),
		)
		return cached, nil
	}
	return 0, fmt.Errorf("price %s: %w", mint, err)
}

// Prices returns cached prices for mints using a pipeline. Missing or
// unparseable entries are omitted.
func (pc *PriceCache) Prices(ctx context.Context, mints ...string) (map[string]float64, error) {
	if len(mints) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(mints))
	for _, m := range mints {
		cmds[m] = pipe.HGetAll(ctx, priceKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[string]float64, len(mints))
	for m, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		p, err := strconv.ParseFloat(vals["price"], 64)
		if err != nil {
			continue
		}
		out[m] = p
	}
	return out, nil
}

func (pc *PriceCache) setValue(ctx context.Context, key string, v float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(v, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixMilli(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (pc *PriceCache) getValue(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get %s: %w", key, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, ErrCacheMiss
	}
	v, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse %s: %w", key, err)
	}
	tsMs, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}
	return v, time.UnixMilli(tsMs), nil
}
