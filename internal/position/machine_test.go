package position

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pool-trader/internal/domain"
)

func newTestMachine(t *testing.T, entry, amount float64) *Machine {
	t.Helper()
	m, err := NewMachine(MachineConfig{
		PositionID:   "pos-1",
		TokenAddress: "mintA",
		PoolAddress:  "pool1",
		EntryPrice:   entry,
		Amount:       amount,
		OpenedAt:     1_700_000_000_000,
	})
	require.NoError(t, err)
	return m
}

func TestNewMachine_Validation(t *testing.T) {
	_, err := NewMachine(MachineConfig{PositionID: "p", EntryPrice: 0, Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidEntryPrice)

	_, err = NewMachine(MachineConfig{PositionID: "p", EntryPrice: 1, Amount: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewMachine(MachineConfig{EntryPrice: 1, Amount: 1})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = NewMachine(MachineConfig{PositionID: "p", EntryPrice: math.NaN(), Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidEntryPrice)
}

func TestMachine_UpdatePricePnL(t *testing.T) {
	m := newTestMachine(t, 100, 1000)

	require.True(t, m.UpdatePrice(110))
	c := m.Context()
	assert.InDelta(t, 10.0, c.PnLPercent, 1e-9)
	assert.InDelta(t, 10000.0, c.PnLUSD, 1e-6)
	assert.Equal(t, 110.0, c.CurrentPrice)
	assert.Equal(t, 110.0, c.PeakPrice)

	require.True(t, m.UpdatePrice(90))
	c = m.Context()
	assert.InDelta(t, -10.0, c.PnLPercent, 1e-9)
	assert.InDelta(t, -10000.0, c.PnLUSD, 1e-6)
	assert.Equal(t, 110.0, c.PeakPrice, "peak is sticky")

	assert.False(t, m.UpdatePrice(0))
	assert.False(t, m.UpdatePrice(-5))
	assert.Equal(t, 90.0, m.Context().CurrentPrice)
}

func TestMachine_PositionOpened(t *testing.T) {
	m := newTestMachine(t, 100, 1000)
	assert.Equal(t, domain.PositionStateCreated, m.State())

	assert.True(t, m.Transition(EventPositionOpened, nil))
	assert.Equal(t, domain.PositionStateMonitoring, m.State())
}

func TestMachine_InvalidTransitionDoesNotMutate(t *testing.T) {
	m := newTestMachine(t, 100, 1000)
	var notified atomic.Int32
	m.OnTransition(func(Transition) { notified.Add(1) })

	before := m.Context()
	assert.False(t, m.Transition(EventExitCompleted, &TransitionPayload{ExitPrice: ptr(500.0)}))
	assert.Equal(t, domain.PositionStateCreated, m.State())
	assert.Equal(t, before, m.Context())
	assert.Zero(t, notified.Load())
	assert.Zero(t, m.PerformanceMetrics().Transitions)

	assert.False(t, m.Transition(EventRecoveryCompleted, nil))
	assert.False(t, m.Transition(Event("BOGUS"), nil))
}

func TestMachine_FullLifecycle(t *testing.T) {
	m := newTestMachine(t, 100, 1000)
	var got []Transition
	m.OnTransition(func(tr Transition) { got = append(got, tr) })

	steps := []struct {
		event Event
		want  domain.PositionState
	}{
		{EventPositionOpened, domain.PositionStateMonitoring},
		{EventExitConditionMet, domain.PositionStateExitConditionMet},
		{EventExitApproved, domain.PositionStateExitApproved},
	}
	for _, s := range steps {
		require.True(t, m.Transition(s.event, nil), "event %s", s.event)
		require.Equal(t, s.want, m.State())
	}

	require.True(t, m.Transition(EventExitCompleted, &TransitionPayload{ExitPrice: ptr(150.0), Reason: "TAKE_PROFIT"}))
	c := m.Context()
	assert.Equal(t, domain.PositionStateExitCompleted, c.State)
	assert.InDelta(t, 50.0, c.PnLPercent, 1e-9)
	assert.InDelta(t, 50000.0, c.PnLUSD, 1e-6)

	// Terminal: no transitions, no price updates.
	assert.False(t, m.Transition(EventErrorOccurred, nil))
	assert.False(t, m.UpdatePrice(10))
	assert.Equal(t, 150.0, m.Context().CurrentPrice)

	require.Len(t, got, 4)
	assert.Equal(t, EventExitCompleted, got[3].Event)
	assert.Equal(t, domain.PositionStateExitApproved, got[3].From)
	assert.Equal(t, "TAKE_PROFIT", got[3].Reason)
	assert.Equal(t, uint64(4), m.PerformanceMetrics().Transitions)
}

func TestMachine_ErrorAndRecovery(t *testing.T) {
	for _, from := range []Event{"", EventPositionOpened, EventExitConditionMet} {
		m := newTestMachine(t, 100, 1000)
		if from != "" {
			if from == EventExitConditionMet {
				require.True(t, m.Transition(EventPositionOpened, nil))
			}
			require.True(t, m.Transition(from, nil))
		}
		require.True(t, m.Transition(EventErrorOccurred, nil), "from %s", m.State())
		assert.Equal(t, domain.PositionStateError, m.State())
		assert.False(t, m.Transition(EventErrorOccurred, nil), "ERROR -> ERROR is not a transition")
		require.True(t, m.Transition(EventRecoveryCompleted, nil))
		assert.Equal(t, domain.PositionStateMonitoring, m.State())
	}
}

func TestMachine_Reduce(t *testing.T) {
	m := newTestMachine(t, 100, 1000)
	assert.False(t, m.Reduce(0.5), "only MONITORING positions can be reduced")

	require.True(t, m.Transition(EventPositionOpened, nil))
	m.UpdatePrice(120)
	require.True(t, m.Reduce(0.25))

	c := m.Context()
	assert.InDelta(t, 750.0, c.Amount, 1e-9)
	assert.InDelta(t, 750.0*20, c.PnLUSD, 1e-6)
	assert.Equal(t, 1, c.PartialExits)

	assert.False(t, m.Reduce(0))
	assert.False(t, m.Reduce(1))
}

func TestMachine_RestoredState(t *testing.T) {
	m, err := NewMachine(MachineConfig{
		PositionID:   "p",
		EntryPrice:   1,
		Amount:       1,
		State:        domain.PositionStateMonitoring,
		PartialExits: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStateMonitoring, m.State())
	assert.Equal(t, 2, m.Context().PartialExits)
	assert.NotZero(t, m.Context().OpenTimestamp)
}

// Concurrent price updates interleaved with transitions must never expose a
// snapshot whose derived fields disagree with its price.
func TestMachine_NoTornReads(t *testing.T) {
	const (
		entry   = 100.0
		amount  = 1000.0
		writers = 8
		updates = 2000
	)
	m := newTestMachine(t, entry, amount)
	require.True(t, m.Transition(EventPositionOpened, nil))

	var (
		wg   sync.WaitGroup
		stop atomic.Bool
		torn atomic.Int32
	)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < updates; i++ {
				m.UpdatePrice(entry + float64(w*updates+i%97+1))
			}
		}(w)
	}

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for !stop.Load() {
				c := m.Context()
				wantPct := (c.CurrentPrice - entry) / entry * 100
				wantUSD := c.Amount * (c.CurrentPrice - entry)
				if math.Abs(c.PnLPercent-wantPct) > 1e-9 || math.Abs(c.PnLUSD-wantUSD) > 1e-6 {
					torn.Add(1)
				}
				if c.PeakPrice < c.CurrentPrice {
					torn.Add(1)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.Transition(EventErrorOccurred, nil)
			m.Transition(EventRecoveryCompleted, nil)
			time.Sleep(10 * time.Microsecond)
		}
	}()

	wg.Wait()
	stop.Store(true)
	readers.Wait()

	assert.Zero(t, torn.Load(), "observed torn snapshots")
	pm := m.PerformanceMetrics()
	assert.Equal(t, uint64(writers*updates), pm.PriceUpdates)
	assert.Equal(t, uint64(401), pm.Transitions)
	assert.Equal(t, domain.PositionStateMonitoring, m.State())
}

func TestNext(t *testing.T) {
	tests := []struct {
		from  domain.PositionState
		event Event
		to    domain.PositionState
		ok    bool
	}{
		{domain.PositionStateCreated, EventPositionOpened, domain.PositionStateMonitoring, true},
		{domain.PositionStateCreated, EventExitCompleted, domain.PositionStateCreated, false},
		{domain.PositionStateMonitoring, EventExitConditionMet, domain.PositionStateExitConditionMet, true},
		{domain.PositionStateMonitoring, EventExitApproved, domain.PositionStateMonitoring, false},
		{domain.PositionStateExitConditionMet, EventExitApproved, domain.PositionStateExitApproved, true},
		{domain.PositionStateExitApproved, EventExitCompleted, domain.PositionStateExitCompleted, true},
		{domain.PositionStateExitApproved, EventErrorOccurred, domain.PositionStateError, true},
		{domain.PositionStateExitCompleted, EventErrorOccurred, domain.PositionStateExitCompleted, false},
		{domain.PositionStateError, EventRecoveryCompleted, domain.PositionStateMonitoring, true},
		{domain.PositionStateMonitoring, EventRecoveryCompleted, domain.PositionStateMonitoring, false},
	}
	for _, tt := range tests {
		to, ok := Next(tt.from, tt.event)
		assert.Equal(t, tt.ok, ok, "%s + %s", tt.from, tt.event)
		assert.Equal(t, tt.to, to, "%s + %s", tt.from, tt.event)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestMachine_ReduceSurvivesConcurrentPriceUpdates(t *testing.T) {
	const (
		entry   = 1.0
		amount  = 1024.0
		writers = 16
		reduces = 5
	)
	m := newTestMachine(t, entry, amount)
	require.True(t, m.Transition(EventPositionOpened, nil))

	var (
		wg   sync.WaitGroup
		stop atomic.Bool
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; !stop.Load(); i++ {
				m.UpdatePrice(entry + float64(w+i%13+1)/100)
			}
		}(w)
	}

	for i := 0; i < reduces; i++ {
		require.True(t, m.Reduce(0.5))
		time.Sleep(time.Millisecond)
	}
	stop.Store(true)
	wg.Wait()

	c := m.Context()
	assert.Equal(t, amount/32, c.Amount, "every partial exit is kept")
	assert.Equal(t, reduces, c.PartialExits)
	assert.InDelta(t, c.Amount*(c.CurrentPrice-entry), c.PnLUSD, 1e-9)
}

func TestMachine_ExitCompletedFreezesPrice(t *testing.T) {
	const writers = 8
	for trial := 0; trial < 20; trial++ {
		m := newTestMachine(t, 1, 10)
		require.True(t, m.Transition(EventPositionOpened, nil))
		require.True(t, m.Transition(EventExitConditionMet, nil))
		require.True(t, m.Transition(EventExitApproved, nil))

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					m.UpdatePrice(5 + float64(w))
				}
			}(w)
		}

		exit := 2.0
		close(start)
		require.True(t, m.Transition(EventExitCompleted, &TransitionPayload{ExitPrice: &exit}))
		wg.Wait()

		c := m.Context()
		require.Equal(t, exit, c.CurrentPrice, "trial %d", trial)
		require.InDelta(t, 100, c.PnLPercent, 1e-9)
		assert.False(t, m.UpdatePrice(3))
	}
}
