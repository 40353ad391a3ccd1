package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// PositionStore implements storage.PositionStore on SQLite.
type PositionStore struct {
	db *gorm.DB
}

// NewPositionStore creates a PositionStore on d.
func NewPositionStore(d *DB) *PositionStore {
	return &PositionStore{db: d.db}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || !(p.EntryPrice > 0) || !(p.Amount > 0) {
		return storage.ErrInvalidInput
	}
	m, err := toPositionModel(p)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Close marks an OPEN position CLOSED.
func (s *PositionStore) Close(ctx context.Context, c storage.PositionClose) error {
	res := s.db.WithContext(ctx).Model(&positionModel{}).
		Where("position_id = ? AND status = ?", c.PositionID, string(domain.PositionStatusOpen)).
		Updates(map[string]interface{}{
			"status":        string(domain.PositionStatusClosed),
			"state":         string(c.State),
			"exit_trade_id": c.ExitTradeID,
			"exit_price":    c.ExitPrice,
			"pnl_percent":   c.PnLPercent,
			"pnl_usd":       c.PnLUSD,
			"exit_reason":   c.ExitReason,
			"closed_at":     c.ClosedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("close position: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&positionModel{}).Where("position_id = ?", c.PositionID).Count(&count).Error; err != nil {
		return fmt.Errorf("check position exists: %w", err)
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// UpdateAmount records a partial exit.
func (s *PositionStore) UpdateAmount(ctx context.Context, positionID string, amount float64, partialExits int) error {
	if !(amount > 0) {
		return storage.ErrInvalidInput
	}
	res := s.db.WithContext(ctx).Model(&positionModel{}).
		Where("position_id = ?", positionID).
		Updates(map[string]interface{}{"amount": amount, "partial_exits": partialExits})
	if res.Error != nil {
		return fmt.Errorf("update position amount: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	var m positionModel
	err := s.db.WithContext(ctx).Where("position_id = ?", positionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return fromPositionModel(&m)
}

// GetOpenPositions returns all OPEN positions ordered by opened_at ASC.
func (s *PositionStore) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", string(domain.PositionStatusOpen)).
		Order("opened_at ASC, position_id ASC")
	return s.find(q)
}

// List returns positions ordered by opened_at DESC. A limit <= 0 returns all.
func (s *PositionStore) List(ctx context.Context, limit int) ([]*domain.Position, error) {
	q := s.db.WithContext(ctx).Order("opened_at DESC, position_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.find(q)
}

func (s *PositionStore) find(q *gorm.DB) ([]*domain.Position, error) {
	var models []positionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	out := make([]*domain.Position, 0, len(models))
	for i := range models {
		p, err := fromPositionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toPositionModel(p *domain.Position) (*positionModel, error) {
	cfg, err := json.Marshal(p.ExitConfig)
	if err != nil {
		return nil, fmt.Errorf("marshal exit config: %w", err)
	}
	status := p.Status
	if status == "" {
		status = domain.PositionStatusOpen
	}
	return &positionModel{
		PositionID:     p.PositionID,
		TokenAddress:   p.TokenAddress,
		PoolAddress:    p.PoolAddress,
		EntryTradeID:   p.EntryTradeID,
		ExitTradeID:    p.ExitTradeID,
		EntryPrice:     p.EntryPrice,
		Amount:         p.Amount,
		Status:         string(status),
		State:          string(p.State),
		ExitConfig:     cfg,
		EntryLiquidity: p.EntryLiquidity,
		Creator:        p.Creator,
		PartialExits:   p.PartialExits,
		ExitPrice:      p.ExitPrice,
		PnLPercent:     p.PnLPercent,
		PnLUSD:         p.PnLUSD,
		ExitReason:     p.ExitReason,
		OpenedAtMs:     p.OpenedAt,
		ClosedAtMs:     p.ClosedAt,
	}, nil
}

func fromPositionModel(m *positionModel) (*domain.Position, error) {
	p := &domain.Position{
		PositionID:     m.PositionID,
		TokenAddress:   m.TokenAddress,
		PoolAddress:    m.PoolAddress,
		EntryTradeID:   m.EntryTradeID,
		ExitTradeID:    m.ExitTradeID,
		EntryPrice:     m.EntryPrice,
		Amount:         m.Amount,
		Status:         domain.PositionStatus(m.Status),
		State:          domain.PositionState(m.State),
		EntryLiquidity: m.EntryLiquidity,
		Creator:        m.Creator,
		PartialExits:   m.PartialExits,
		ExitPrice:      m.ExitPrice,
		PnLPercent:     m.PnLPercent,
		PnLUSD:         m.PnLUSD,
		ExitReason:     m.ExitReason,
		OpenedAt:       m.OpenedAtMs,
		ClosedAt:       m.ClosedAtMs,
	}
	if len(m.ExitConfig) > 0 {
		if err := json.Unmarshal(m.ExitConfig, &p.ExitConfig); err != nil {
			return nil, fmt.Errorf("position %s: parse exit config: %w", m.PositionID, err)
		}
	}
	return p, nil
}
