package breaker

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
)

// Registry holds the fixed set of breakers created at startup.
// The map is never mutated after construction, so lookups need no lock.
type Registry struct {
	breakers map[string]*Breaker
	logger   *zap.Logger
}

// Option configures Registry.
type Option func(*registryOptions)

type registryOptions struct {
	logger *zap.Logger
	now    func() time.Time
	notify func(domain.CircuitBreakerState)
}

// WithLogger sets the logger used for trip/reset messages.
func WithLogger(l *zap.Logger) Option {
	return func(o *registryOptions) {
		o.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *registryOptions) {
		o.now = now
	}
}

// WithNotify registers a callback invoked on every trip and reset.
// The callback must not block.
func WithNotify(fn func(domain.CircuitBreakerState)) Option {
	return func(o *registryOptions) {
		o.notify = fn
	}
}

// DefaultConfigs returns the "trading" and "balance" breakers.
func DefaultConfigs() []Config {
	return []Config{
		{Name: domain.BreakerTrading, FailureThreshold: DefaultFailureThreshold, ResetAfter: DefaultTradingResetAfter},
		{Name: domain.BreakerBalance, FailureThreshold: DefaultFailureThreshold, ResetAfter: DefaultBalanceResetAfter},
	}
}

// NewRegistry creates a registry with one breaker per config.
// Nil or empty cfgs uses DefaultConfigs.
func NewRegistry(cfgs []Config, opts ...Option) *Registry {
	o := registryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if len(cfgs) == 0 {
		cfgs = DefaultConfigs()
	}

	r := &Registry{
		breakers: make(map[string]*Breaker, len(cfgs)),
		logger:   o.logger.Named("breaker"),
	}
	for _, cfg := range cfgs {
		b := newBreaker(cfg, o.now)
		b.onTrip = func(st domain.CircuitBreakerState) {
			r.logger.Warn("circuit breaker tripped",
				zap.String("breaker", st.Name),
				zap.String("reason", st.Reason),
				zap.Int64("reset_after_ms", st.ResetAfterMs),
			)
			if o.notify != nil {
				o.notify(st)
			}
		}
		b.onReset = func(st domain.CircuitBreakerState) {
			r.logger.Info("circuit breaker reset", zap.String("breaker", st.Name))
			if o.notify != nil {
				o.notify(st)
			}
		}
		r.breakers[cfg.Name] = b
	}
	return r
}

// Get returns the breaker for a category, or nil if none is registered.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers[name]
}

// Allow checks the named breaker. Unknown categories are always allowed.
func (r *Registry) Allow(name string) (bool, string) {
	b := r.breakers[name]
	if b == nil {
		return true, ""
	}
	return b.Allow()
}

// RecordFailure records a failure on the named breaker.
func (r *Registry) RecordFailure(name, reason string) bool {
	if b := r.breakers[name]; b != nil {
		return b.RecordFailure(reason)
	}
	return false
}

// RecordSuccess records a success on the named breaker.
func (r *Registry) RecordSuccess(name string) {
	if b := r.breakers[name]; b != nil {
		b.RecordSuccess()
	}
}

// States returns snapshots of all breakers ordered by name.
func (r *Registry) States() []domain.CircuitBreakerState {
	out := make([]domain.CircuitBreakerState, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.State())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
