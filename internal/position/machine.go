package position

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"solana-pool-trader/internal/domain"
)

// maxCASSpins is how many failed CAS attempts UpdatePrice makes back to back
// before it starts yielding the processor between attempts. The snapshot is
// never stored without a CAS: amount and partialExits written by Reduce, and
// the freeze written at EXIT_COMPLETED, must survive a racing price update.
const maxCASSpins = 8

// Errors returned by NewMachine.
var (
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrMissingID         = errors.New("position id is required")
)

// priceSnapshot holds the volatile fields of a position.
// It is never mutated after publication.
type priceSnapshot struct {
	price        float64
	pnlPercent   float64
	pnlUSD       float64
	peak         float64
	amount       float64
	lastUpdated  int64 // ms
	partialExits int
	frozen       bool // set at EXIT_COMPLETED; later prices are rejected
}

// TransitionPayload carries optional data for a transition.
type TransitionPayload struct {
	ExitPrice *float64 // final price for EXIT_COMPLETED; latest snapshot price if nil
	Reason    string
}

// Transition describes a successful state change.
type Transition struct {
	PositionID string
	Event      Event
	From       domain.PositionState
	To         domain.PositionState
	Reason     string
	Context    domain.PositionContext
	At         int64 // ms
}

// Listener is invoked once per successful transition, outside the
// transition lock.
type Listener func(Transition)

// PerformanceMetrics reports fast and slow path counters.
type PerformanceMetrics struct {
	PriceUpdates      uint64
	Transitions       uint64
	CASRetries        uint64
	AvgUpdateLatency  time.Duration
	TotalUpdateTimeNs uint64
}

// Machine is the lifecycle state machine of a single position.
//
// UpdatePrice is lock-free: it replaces an immutable snapshot by CAS and
// never waits on the transition mutex. Transition is serialised by mu.
type Machine struct {
	// immutable identity
	id             string
	token          string
	pool           string
	entryPrice     float64
	openedAt       int64
	exitConfig     domain.ExitStrategyConfig
	entryLiquidity *float64
	creator        *string

	snap  atomic.Pointer[priceSnapshot]
	state atomic.Value // domain.PositionState, written only under mu

	mu        sync.Mutex
	listeners []Listener

	priceUpdates atomic.Uint64
	transitions  atomic.Uint64
	casRetries   atomic.Uint64
	updateNanos  atomic.Uint64

	now func() time.Time
}

// MachineConfig seeds a new Machine.
type MachineConfig struct {
	PositionID     string
	TokenAddress   string
	PoolAddress    string
	EntryPrice     float64
	Amount         float64
	OpenedAt       int64 // ms, defaults to now
	ExitConfig     domain.ExitStrategyConfig
	EntryLiquidity *float64
	Creator        *string

	// Restored state when rehydrating. Empty means CREATED.
	State        domain.PositionState
	PartialExits int

	Now func() time.Time
}

// NewMachine creates a Machine in the configured state (CREATED by default).
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.PositionID == "" {
		return nil, ErrMissingID
	}
	if !(cfg.EntryPrice > 0) {
		return nil, ErrInvalidEntryPrice
	}
	if !(cfg.Amount > 0) {
		return nil, ErrInvalidAmount
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	openedAt := cfg.OpenedAt
	if openedAt == 0 {
		openedAt = now().UnixMilli()
	}
	state := cfg.State
	if state == "" {
		state = domain.PositionStateCreated
	}

	m := &Machine{
		id:             cfg.PositionID,
		token:          cfg.TokenAddress,
		pool:           cfg.PoolAddress,
		entryPrice:     cfg.EntryPrice,
		openedAt:       openedAt,
		exitConfig:     cfg.ExitConfig,
		entryLiquidity: cfg.EntryLiquidity,
		creator:        cfg.Creator,
		now:            now,
	}
	m.state.Store(state)
	m.snap.Store(&priceSnapshot{
		price:        cfg.EntryPrice,
		peak:         cfg.EntryPrice,
		amount:       cfg.Amount,
		lastUpdated:  openedAt,
		partialExits: cfg.PartialExits,
	})
	return m, nil
}

// ID returns the position id.
func (m *Machine) ID() string { return m.id }

// State returns the current lifecycle state.
func (m *Machine) State() domain.PositionState {
	return m.state.Load().(domain.PositionState)
}

// OnTransition registers a listener for successful transitions.
func (m *Machine) OnTransition(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// UpdatePrice records a new market price. Non-positive prices and updates
// after EXIT_COMPLETED are ignored. Safe for concurrent use; never blocks
// on Transition.
func (m *Machine) UpdatePrice(price float64) bool {
	if !(price > 0) || IsTerminal(m.State()) {
		return false
	}
	start := time.Now()
	ts := m.now().UnixMilli()

	for attempt := 0; ; attempt++ {
		old := m.snap.Load()
		if old.frozen {
			return false
		}
		if m.snap.CompareAndSwap(old, m.priced(old, price, ts)) {
			break
		}
		m.casRetries.Add(1)
		if attempt >= maxCASSpins {
			runtime.Gosched()
		}
	}

	m.priceUpdates.Add(1)
	m.updateNanos.Add(uint64(time.Since(start).Nanoseconds()))
	return true
}

// priced derives a snapshot at price from old.
func (m *Machine) priced(old *priceSnapshot, price float64, ts int64) *priceSnapshot {
	peak := old.peak
	if price > peak {
		peak = price
	}
	return &priceSnapshot{
		price:        price,
		pnlPercent:   (price - m.entryPrice) / m.entryPrice * 100,
		pnlUSD:       old.amount * (price - m.entryPrice),
		peak:         peak,
		amount:       old.amount,
		lastUpdated:  ts,
		partialExits: old.partialExits,
	}
}

// Transition applies event if the transition table allows it from the
// current state. Returns false without any mutation otherwise.
func (m *Machine) Transition(event Event, payload *TransitionPayload) bool {
	m.mu.Lock()

	from := m.State()
	to, ok := Next(from, event)
	if !ok {
		m.mu.Unlock()
		return false
	}

	if event == EventExitCompleted {
		m.freeze(payload)
	}

	m.state.Store(to)
	m.transitions.Add(1)

	tr := Transition{
		PositionID: m.id,
		Event:      event,
		From:       from,
		To:         to,
		Context:    m.view(to),
		At:         m.now().UnixMilli(),
	}
	if payload != nil {
		tr.Reason = payload.Reason
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(tr)
	}
	return true
}

// freeze publishes the final snapshot, at the exit price when one is given.
// Price updates racing with it fail their CAS and then observe frozen.
func (m *Machine) freeze(payload *TransitionPayload) {
	ts := m.now().UnixMilli()
	for {
		old := m.snap.Load()
		var next *priceSnapshot
		if payload != nil && payload.ExitPrice != nil && *payload.ExitPrice > 0 {
			next = m.priced(old, *payload.ExitPrice, ts)
		} else {
			cp := *old
			next = &cp
		}
		next.frozen = true
		if m.snap.CompareAndSwap(old, next) {
			return
		}
	}
}

// Reduce sells fraction (0 < f < 1) of the remaining amount and counts a
// partial exit. Only valid while MONITORING.
func (m *Machine) Reduce(fraction float64) bool {
	if !(fraction > 0 && fraction < 1) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != domain.PositionStateMonitoring {
		return false
	}
	for {
		old := m.snap.Load()
		amount := old.amount * (1 - fraction)
		if !(amount > 0) {
			return false
		}
		next := *old
		next.amount = amount
		next.pnlUSD = amount * (old.price - m.entryPrice)
		next.partialExits = old.partialExits + 1
		if m.snap.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// Context returns a consistent point-in-time view of the position.
func (m *Machine) Context() domain.PositionContext {
	return m.view(m.State())
}

func (m *Machine) view(state domain.PositionState) domain.PositionContext {
	s := m.snap.Load()
	return domain.PositionContext{
		PositionID:     m.id,
		TokenAddress:   m.token,
		PoolAddress:    m.pool,
		EntryPrice:     m.entryPrice,
		Amount:         s.amount,
		CurrentPrice:   s.price,
		PeakPrice:      s.peak,
		PnLPercent:     s.pnlPercent,
		PnLUSD:         s.pnlUSD,
		OpenTimestamp:  m.openedAt,
		LastUpdated:    s.lastUpdated,
		State:          state,
		ExitConfig:     m.exitConfig,
		EntryLiquidity: m.entryLiquidity,
		Creator:        m.creator,
		PartialExits:   s.partialExits,
	}
}

// PerformanceMetrics returns fast and slow path counters.
func (m *Machine) PerformanceMetrics() PerformanceMetrics {
	updates := m.priceUpdates.Load()
	total := m.updateNanos.Load()
	pm := PerformanceMetrics{
		PriceUpdates:      updates,
		Transitions:       m.transitions.Load(),
		CASRetries:        m.casRetries.Load(),
		TotalUpdateTimeNs: total,
	}
	if updates > 0 {
		pm.AvgUpdateLatency = time.Duration(total / updates)
	}
	return pm
}
