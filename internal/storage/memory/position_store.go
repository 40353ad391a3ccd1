package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position_id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || !(p.EntryPrice > 0) || !(p.Amount > 0) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	c := clonePosition(p)
	if c.Status == "" {
		c.Status = domain.PositionStatusOpen
	}
	s.data[p.PositionID] = c
	return nil
}

// Close marks an OPEN position CLOSED.
func (s *PositionStore) Close(_ context.Context, c storage.PositionClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[c.PositionID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.Status == domain.PositionStatusClosed {
		return storage.ErrInvalidTransition
	}

	exitPrice, pnlPct, pnlUSD, closedAt := c.ExitPrice, c.PnLPercent, c.PnLUSD, c.ClosedAt
	p.Status = domain.PositionStatusClosed
	p.State = c.State
	p.ExitTradeID = c.ExitTradeID
	p.ExitPrice = &exitPrice
	p.PnLPercent = &pnlPct
	p.PnLUSD = &pnlUSD
	p.ExitReason = c.ExitReason
	p.ClosedAt = &closedAt
	return nil
}

// UpdateAmount records a partial exit.
func (s *PositionStore) UpdateAmount(_ context.Context, positionID string, amount float64, partialExits int) error {
	if !(amount > 0) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[positionID]
	if !exists {
		return storage.ErrNotFound
	}
	p.Amount = amount
	p.PartialExits = partialExits
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clonePosition(p), nil
}

// GetOpenPositions returns all OPEN positions ordered by opened_at ASC.
func (s *PositionStore) GetOpenPositions(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status == domain.PositionStatusOpen {
			result = append(result, clonePosition(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt < result[j].OpenedAt
		}
		return result[i].PositionID < result[j].PositionID
	})
	return result, nil
}

// List returns positions ordered by opened_at DESC.
func (s *PositionStore) List(_ context.Context, limit int) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Position, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, clonePosition(p))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt > result[j].OpenedAt
		}
		return result[i].PositionID < result[j].PositionID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func clonePosition(p *domain.Position) *domain.Position {
	c := *p
	c.EntryLiquidity = clonePtr(p.EntryLiquidity)
	c.Creator = clonePtr(p.Creator)
	c.ExitPrice = clonePtr(p.ExitPrice)
	c.PnLPercent = clonePtr(p.PnLPercent)
	c.PnLUSD = clonePtr(p.PnLUSD)
	c.ClosedAt = clonePtr(p.ClosedAt)
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var _ storage.PositionStore = (*PositionStore)(nil)
