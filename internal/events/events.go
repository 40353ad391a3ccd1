// Package events carries typed state-change notifications between components.
package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
)

// Kind identifies the payload of a Notification.
type Kind string

// Notification kinds
const (
	KindTrade    Kind = "trade"
	KindPosition Kind = "position"
	KindBreaker  Kind = "breaker"
)

// PositionChange is emitted on every successful lifecycle transition.
type PositionChange struct {
	PositionID string
	Event      string
	From       domain.PositionState
	To         domain.PositionState
	Reason     string
	Context    domain.PositionContext
}

// Notification is a single state change. Exactly one payload is set, matching Kind.
type Notification struct {
	Kind     Kind
	At       int64 // ms
	Trade    *domain.Trade
	Position *PositionChange
	Breaker  *domain.CircuitBreakerState
}

// Publisher accepts notifications.
type Publisher interface {
	Publish(n Notification)
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Bus fans notifications out to subscriber channels.
// Publish never blocks: a full subscriber misses the notification.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Notification
	nextID int
	closed bool

	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[int]chan Notification),
		logger: logger.Named("events"),
	}
}

// Subscribe returns a channel receiving all subsequent notifications and a
// cancel func that unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Notification, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers n to every subscriber with room in its buffer.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			if b.dropped.Add(1)%100 == 1 {
				b.logger.Warn("subscriber full, dropping notification",
					zap.String("kind", string(n.Kind)),
					zap.Uint64("dropped_total", b.dropped.Load()),
				)
			}
		}
	}
}

// Dropped returns the number of notifications dropped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Nop discards all notifications.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Notification) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Nop{}
)
