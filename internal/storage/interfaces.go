package storage

import (
	"context"

	"solana-pool-trader/internal/domain"
)

// TradeStore provides access to trades storage.
// Rows are append-only except for status transitions PENDING -> CONFIRMED/FAILED.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// UpdateStatus moves a PENDING trade to CONFIRMED or FAILED and records the
	// execution outcome. Returns ErrNotFound if trade_id does not exist and
	// ErrInvalidTransition if the trade is no longer PENDING.
	UpdateStatus(ctx context.Context, u TradeUpdate) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// List returns trades ordered by created_at DESC, newest first.
	// A limit <= 0 returns all trades.
	List(ctx context.Context, limit int) ([]*domain.Trade, error)
}

// TradeUpdate is the outcome written by TradeStore.UpdateStatus.
type TradeUpdate struct {
	TradeID           string
	Status            domain.TradeStatus
	PositionID        string // set when non-empty
	Signature         string
	ActualAmountOut   *uint64
	AmountUnconfirmed bool
	Error             string
	Attempts          int
	UpdatedAt         int64 // ms
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new OPEN position. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Close marks an OPEN position CLOSED with its exit fields.
	// Returns ErrNotFound if position_id does not exist and
	// ErrInvalidTransition if the position is already closed.
	Close(ctx context.Context, c PositionClose) error

	// UpdateAmount records a partial exit. Returns ErrNotFound if position_id does not exist.
	UpdateAmount(ctx context.Context, positionID string, amount float64, partialExits int) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// GetOpenPositions returns all OPEN positions ordered by opened_at ASC.
	GetOpenPositions(ctx context.Context) ([]*domain.Position, error)

	// List returns positions ordered by opened_at DESC. A limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]*domain.Position, error)
}

// PositionClose holds the exit fields written by PositionStore.Close.
type PositionClose struct {
	PositionID  string
	ExitTradeID string
	ExitPrice   float64
	PnLPercent  float64
	PnLUSD      float64
	ExitReason  string
	State       domain.PositionState
	ClosedAt    int64 // ms
}

// PositionTickStore provides access to position_ticks storage.
type PositionTickStore interface {
	// InsertBulk adds multiple ticks. Duplicate (position_id, timestamp_ms) rows are
	// collapsed by the backing engine.
	InsertBulk(ctx context.Context, ticks []*domain.PositionTick) error

	// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
	GetByPositionID(ctx context.Context, positionID string) ([]*domain.PositionTick, error)
}
