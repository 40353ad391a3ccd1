// Package breaker implements per-category circuit breakers with lazy,
// time-based reset. All state is held in atomics so that checks on the hot
// execution path never take a lock.
package breaker

import (
	"fmt"
	"sync/atomic"
	"time"

	"solana-pool-trader/internal/domain"
)

// Default configuration values.
const (
	DefaultFailureThreshold  = 3
	DefaultTradingResetAfter = 5 * time.Minute
	DefaultBalanceResetAfter = 1 * time.Minute
)

// Config describes a single breaker.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures that trip the breaker
	ResetAfter       time.Duration // time a tripped breaker stays open
	FailureWindow    time.Duration // failures further apart than this restart the count (0 = ResetAfter)
}

// Breaker tracks consecutive failures for one category.
//
// trippedAt holds the trip time in Unix nanoseconds and doubles as the
// open/closed flag: zero means closed. Trip and reset are single CAS
// operations on it, so a reader can never observe "open" without a trip time.
type Breaker struct {
	name       string
	threshold  int32
	resetAfter time.Duration
	window     time.Duration

	trippedAt     atomic.Int64
	failures      atomic.Int32
	lastFailureAt atomic.Int64
	reason        atomic.Pointer[string]

	now     func() time.Time
	onTrip  func(domain.CircuitBreakerState)
	onReset func(domain.CircuitBreakerState)
}

func newBreaker(cfg Config, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = DefaultTradingResetAfter
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = cfg.ResetAfter
	}
	return &Breaker{
		name:       cfg.Name,
		threshold:  int32(cfg.FailureThreshold),
		resetAfter: cfg.ResetAfter,
		window:     cfg.FailureWindow,
		now:        now,
	}
}

// Name returns the breaker category.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether operations in this category may proceed.
// A tripped breaker whose reset window has elapsed is closed here.
func (b *Breaker) Allow() (bool, string) {
	at := b.trippedAt.Load()
	if at == 0 {
		return true, ""
	}

	now := b.now()
	elapsed := now.Sub(time.Unix(0, at))
	if elapsed > b.resetAfter {
		if b.trippedAt.CompareAndSwap(at, 0) {
			b.failures.Store(0)
			b.lastFailureAt.Store(0)
			b.reason.Store(nil)
			if b.onReset != nil {
				b.onReset(b.State())
			}
		}
		return true, ""
	}

	remaining := b.resetAfter - elapsed
	return false, fmt.Sprintf("circuit breaker %q open, cooldown remaining: %v (reason: %s)",
		b.name, remaining.Round(time.Second), b.Reason())
}

// IsTripped reports the current open state without applying lazy reset.
func (b *Breaker) IsTripped() bool {
	return b.trippedAt.Load() != 0
}

// RecordFailure counts a failure and trips the breaker once the threshold
// of consecutive failures is reached. Returns true if this call tripped it.
func (b *Breaker) RecordFailure(reason string) bool {
	now := b.now().UnixNano()

	prev := b.lastFailureAt.Swap(now)
	if prev != 0 && time.Duration(now-prev) > b.window {
		b.failures.Store(0)
	}

	n := b.failures.Add(1)
	if n < b.threshold {
		return false
	}
	return b.trip(now, fmt.Sprintf("%d consecutive failures, last: %s", n, reason))
}

// RecordSuccess clears the consecutive failure count.
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
	b.lastFailureAt.Store(0)
}

// Trip opens the breaker immediately.
func (b *Breaker) Trip(reason string) bool {
	return b.trip(b.now().UnixNano(), reason)
}

func (b *Breaker) trip(at int64, reason string) bool {
	if !b.trippedAt.CompareAndSwap(0, at) {
		return false
	}
	b.reason.Store(&reason)
	if b.onTrip != nil {
		b.onTrip(b.State())
	}
	return true
}

// Reset closes the breaker and clears counters.
func (b *Breaker) Reset() {
	wasTripped := b.trippedAt.Swap(0) != 0
	b.failures.Store(0)
	b.lastFailureAt.Store(0)
	b.reason.Store(nil)
	if wasTripped && b.onReset != nil {
		b.onReset(b.State())
	}
}

// Reason returns the trip reason, empty when closed.
func (b *Breaker) Reason() string {
	if r := b.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() domain.CircuitBreakerState {
	st := domain.CircuitBreakerState{
		Name:                b.name,
		ResetAfterMs:        b.resetAfter.Milliseconds(),
		ConsecutiveFailures: int(b.failures.Load()),
	}
	if at := b.trippedAt.Load(); at != 0 {
		ms := time.Unix(0, at).UnixMilli()
		st.IsTripped = true
		st.TrippedAt = &ms
		st.Reason = b.Reason()
	}
	return st
}
