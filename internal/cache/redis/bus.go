package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/events"
)

// Default channel names.
const (
	DefaultPoolChannel         = "trader:pools"
	DefaultNotificationChannel = "trader:notifications"
	DefaultTradeStream         = "trader:trades"
)

// streamMaxLen caps the trade stream, trimmed approximately on XADD.
const streamMaxLen int64 = 10000

// BusConfig names the channels used by Bus.
type BusConfig struct {
	PoolChannel         string `mapstructure:"pool_channel"`
	NotificationChannel string `mapstructure:"notification_channel"`
	TradeStream         string `mapstructure:"trade_stream"`
}

// Bus carries pool envelopes in over pub/sub and forwards notifications out
// to the UI. Trade notifications are also appended to a capped stream.
type Bus struct {
	rdb    *redis.Client
	cfg    BusConfig
	logger *zap.Logger
}

// NewBus creates a Bus. Empty names use the defaults.
func NewBus(c *Client, cfg BusConfig, logger *zap.Logger) *Bus {
	if cfg.PoolChannel == "" {
		cfg.PoolChannel = DefaultPoolChannel
	}
	if cfg.NotificationChannel == "" {
		cfg.NotificationChannel = DefaultNotificationChannel
	}
	if cfg.TradeStream == "" {
		cfg.TradeStream = DefaultTradeStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{rdb: c.Underlying(), cfg: cfg, logger: logger.Named("redis_bus")}
}

// PublishPool publishes env on the pool channel.
func (b *Bus) PublishPool(ctx context.Context, env domain.PoolEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal pool envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.cfg.PoolChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.cfg.PoolChannel, err)
	}
	return nil
}

// SubscribePools subscribes to the pool channel. The returned channel is
// closed when ctx is cancelled. Undecodable payloads are logged and dropped.
func (b *Bus) SubscribePools(ctx context.Context) (<-chan domain.PoolEnvelope, error) {
	pubsub := b.rdb.Subscribe(ctx, b.cfg.PoolChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.cfg.PoolChannel, err)
	}

	out := make(chan domain.PoolEnvelope, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env domain.PoolEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("dropping undecodable pool envelope", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// notificationMessage is the wire form of events.Notification.
type notificationMessage struct {
	Kind     events.Kind                 `json:"kind"`
	At       int64                       `json:"at"`
	Trade    *domain.Trade               `json:"trade,omitempty"`
	Position *events.PositionChange      `json:"position,omitempty"`
	Breaker  *domain.CircuitBreakerState `json:"breaker,omitempty"`
}

// Forward publishes every notification from notes until ctx is cancelled or
// notes is closed. Publish failures are logged, not fatal.
func (b *Bus) Forward(ctx context.Context, notes <-chan events.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			if err := b.publishNotification(ctx, n); err != nil {
				b.logger.Warn("forward notification failed", zap.String("kind", string(n.Kind)), zap.Error(err))
			}
		}
	}
}

func (b *Bus) publishNotification(ctx context.Context, n events.Notification) error {
	payload, err := json.Marshal(notificationMessage{
		Kind:     n.Kind,
		At:       n.At,
		Trade:    n.Trade,
		Position: n.Position,
		Breaker:  n.Breaker,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.cfg.NotificationChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.cfg.NotificationChannel, err)
	}
	if n.Kind != events.KindTrade {
		return nil
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.TradeStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", b.cfg.TradeStream, err)
	}
	return nil
}

// RecentTrades reads up to count trade notifications from the stream, oldest first.
func (b *Bus) RecentTrades(ctx context.Context, count int64) ([]*domain.Trade, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, b.cfg.TradeStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", b.cfg.TradeStream, err)
	}

	out := make([]*domain.Trade, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["payload"].(string)
		if !ok {
			continue
		}
		var m notificationMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil || m.Trade == nil {
			continue
		}
		out = append(out, m.Trade)
	}
	return out, nil
}
