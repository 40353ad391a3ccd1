package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[t.TradeID] = cloneTrade(t)
	return nil
}

// UpdateStatus moves a PENDING trade to CONFIRMED or FAILED.
func (s *TradeStore) UpdateStatus(_ context.Context, u storage.TradeUpdate) error {
	if u.TradeID == "" || (u.Status != domain.TradeStatusConfirmed && u.Status != domain.TradeStatusFailed) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[u.TradeID]
	if !exists {
		return storage.ErrNotFound
	}
	if t.Status != domain.TradeStatusPending {
		return storage.ErrInvalidTransition
	}

	t.Status = u.Status
	if u.PositionID != "" {
		t.PositionID = u.PositionID
	}
	t.Signature = u.Signature
	if u.ActualAmountOut != nil {
		v := *u.ActualAmountOut
		t.ActualAmountOut = &v
	}
	t.AmountUnconfirmed = u.AmountUnconfirmed
	t.Error = u.Error
	t.Attempts = u.Attempts
	t.UpdatedAt = u.UpdatedAt
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneTrade(t), nil
}

// List returns trades ordered by created_at DESC.
func (s *TradeStore) List(_ context.Context, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Trade, 0, len(s.data))
	for _, t := range s.data {
		result = append(result, cloneTrade(t))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].TradeID < result[j].TradeID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len returns the number of stored trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func cloneTrade(t *domain.Trade) *domain.Trade {
	c := *t
	if t.ActualAmountOut != nil {
		v := *t.ActualAmountOut
		c.ActualAmountOut = &v
	}
	c.Route = append([]string(nil), t.Route...)
	return &c
}

var _ storage.TradeStore = (*TradeStore)(nil)
