package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// PositionTickStore is an in-memory implementation of storage.PositionTickStore.
// Like the ClickHouse ReplacingMergeTree, a repeated (position_id, timestamp_ms)
// replaces the earlier tick.
type PositionTickStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]*domain.PositionTick // position_id -> timestamp_ms -> tick
}

// NewPositionTickStore creates a new in-memory position tick store.
func NewPositionTickStore() *PositionTickStore {
	return &PositionTickStore{
		data: make(map[string]map[int64]*domain.PositionTick),
	}
}

// InsertBulk adds multiple ticks.
func (s *PositionTickStore) InsertBulk(_ context.Context, ticks []*domain.PositionTick) error {
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		byTime, ok := s.data[t.PositionID]
		if !ok {
			byTime = make(map[int64]*domain.PositionTick)
			s.data[t.PositionID] = byTime
		}
		c := *t
		c.LiquidityUSD = clonePtr(t.LiquidityUSD)
		byTime[t.TimestampMs] = &c
	}
	return nil
}

// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
func (s *PositionTickStore) GetByPositionID(_ context.Context, positionID string) ([]*domain.PositionTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTime := s.data[positionID]
	result := make([]*domain.PositionTick, 0, len(byTime))
	for _, t := range byTime {
		c := *t
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

var _ storage.PositionTickStore = (*PositionTickStore)(nil)
