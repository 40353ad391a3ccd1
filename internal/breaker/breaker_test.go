package breaker

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-pool-trader/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, clock *fakeClock, notify func(domain.CircuitBreakerState)) *Registry {
	t.Helper()
	return NewRegistry(nil,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(clock.Now),
		WithNotify(notify),
	)
}

func TestBreaker_TripsAfterThreeConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRegistry(t, clock, nil)

	assert.False(t, r.RecordFailure(domain.BreakerTrading, "rpc timeout"))
	assert.False(t, r.RecordFailure(domain.BreakerTrading, "rpc timeout"))
	ok, _ := r.Allow(domain.BreakerTrading)
	assert.True(t, ok, "breaker must stay closed below threshold")

	assert.True(t, r.RecordFailure(domain.BreakerTrading, "rpc timeout"))

	ok, msg := r.Allow(domain.BreakerTrading)
	assert.False(t, ok)
	assert.Contains(t, msg, "circuit breaker")

	st := r.Get(domain.BreakerTrading).State()
	assert.True(t, st.IsTripped)
	require.NotNil(t, st.TrippedAt)
	assert.Equal(t, clock.Now().UnixMilli(), *st.TrippedAt)
	assert.Contains(t, st.Reason, "rpc timeout")
	assert.Equal(t, DefaultTradingResetAfter.Milliseconds(), st.ResetAfterMs)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRegistry(t, clock, nil)

	r.RecordFailure(domain.BreakerTrading, "a")
	r.RecordFailure(domain.BreakerTrading, "b")
	r.RecordSuccess(domain.BreakerTrading)
	r.RecordFailure(domain.BreakerTrading, "c")
	r.RecordFailure(domain.BreakerTrading, "d")

	assert.False(t, r.Get(domain.BreakerTrading).IsTripped())
}

func TestBreaker_FailuresOutsideWindowRestartCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRegistry(t, clock, nil)

	r.RecordFailure(domain.BreakerBalance, "low")
	r.RecordFailure(domain.BreakerBalance, "low")
	clock.Advance(DefaultBalanceResetAfter + time.Second)
	r.RecordFailure(domain.BreakerBalance, "low")

	assert.False(t, r.Get(domain.BreakerBalance).IsTripped())
	assert.Equal(t, 1, r.Get(domain.BreakerBalance).State().ConsecutiveFailures)
}

func TestBreaker_LazyResetAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var events []domain.CircuitBreakerState
	r := newTestRegistry(t, clock, func(st domain.CircuitBreakerState) {
		events = append(events, st)
	})

	b := r.Get(domain.BreakerBalance)
	require.True(t, b.Trip("insufficient SOL"))
	require.False(t, b.Trip("again"), "second trip must be a no-op")

	clock.Advance(DefaultBalanceResetAfter)
	ok, _ := b.Allow()
	assert.False(t, ok, "breaker must stay open until window strictly elapsed")
	assert.True(t, b.IsTripped())

	clock.Advance(time.Millisecond)
	ok, _ = b.Allow()
	assert.True(t, ok)
	assert.False(t, b.IsTripped())
	assert.Equal(t, "", b.Reason())

	require.Len(t, events, 2)
	assert.True(t, events[0].IsTripped)
	assert.False(t, events[1].IsTripped)
}

func TestBreaker_CategoriesAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRegistry(t, clock, nil)

	r.Get(domain.BreakerBalance).Trip("low balance")

	ok, _ := r.Allow(domain.BreakerTrading)
	assert.True(t, ok)
	ok, _ = r.Allow(domain.BreakerBalance)
	assert.False(t, ok)

	ok, _ = r.Allow("unknown")
	assert.True(t, ok)
}

func TestBreaker_ConcurrentFailuresTripExactlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var trips atomic.Int32
	r := newTestRegistry(t, clock, func(st domain.CircuitBreakerState) {
		if st.IsTripped {
			trips.Add(1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordFailure(domain.BreakerTrading, "boom")
			r.Allow(domain.BreakerTrading)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), trips.Load())
	assert.True(t, r.Get(domain.BreakerTrading).IsTripped())
}

func TestRegistry_StatesSorted(t *testing.T) {
	r := NewRegistry(nil)
	states := r.States()
	require.Len(t, states, 2)
	names := []string{states[0].Name, states[1].Name}
	assert.True(t, strings.Compare(names[0], names[1]) < 0)
	assert.Equal(t, domain.BreakerBalance, names[0])
}
