package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// TradeStore implements storage.TradeStore on SQLite.
type TradeStore struct {
	db *gorm.DB
}

// NewTradeStore creates a TradeStore on d.
func NewTradeStore(d *DB) *TradeStore {
	return &TradeStore{db: d.db}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	m, err := toTradeModel(t)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// UpdateStatus moves a PENDING trade to CONFIRMED or FAILED.
func (s *TradeStore) UpdateStatus(ctx context.Context, u storage.TradeUpdate) error {
	if u.TradeID == "" || (u.Status != domain.TradeStatusConfirmed && u.Status != domain.TradeStatusFailed) {
		return storage.ErrInvalidInput
	}

	fields := map[string]interface{}{
		"status":             string(u.Status),
		"signature":          u.Signature,
		"amount_unconfirmed": u.AmountUnconfirmed,
		"error":              u.Error,
		"attempts":           u.Attempts,
		"updated_at":         u.UpdatedAt,
	}
	if u.PositionID != "" {
		fields["position_id"] = u.PositionID
	}
	if u.ActualAmountOut != nil {
		fields["actual_amount_out"] = strconv.FormatUint(*u.ActualAmountOut, 10)
	}

	res := s.db.WithContext(ctx).Model(&tradeModel{}).
		Where("trade_id = ? AND status = ?", u.TradeID, string(domain.TradeStatusPending)).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update trade status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&tradeModel{}).Where("trade_id = ?", u.TradeID).Count(&count).Error; err != nil {
		return fmt.Errorf("check trade exists: %w", err)
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	var m tradeModel
	err := s.db.WithContext(ctx).Where("trade_id = ?", tradeID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return fromTradeModel(&m)
}

// List returns trades ordered by created_at DESC. A limit <= 0 returns all.
func (s *TradeStore) List(ctx context.Context, limit int) ([]*domain.Trade, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, trade_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []tradeModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	out := make([]*domain.Trade, 0, len(models))
	for i := range models {
		t, err := fromTradeModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toTradeModel(t *domain.Trade) (*tradeModel, error) {
	route := t.Route
	if route == nil {
		route = []string{}
	}
	routeJSON, err := json.Marshal(route)
	if err != nil {
		return nil, fmt.Errorf("marshal route: %w", err)
	}
	status := t.Status
	if status == "" {
		status = domain.TradeStatusPending
	}

	m := &tradeModel{
		TradeID:           t.TradeID,
		PositionID:        t.PositionID,
		Side:              string(t.Side),
		InputMint:         t.InputMint,
		OutputMint:        t.OutputMint,
		PoolAddress:       t.PoolAddress,
		TradeAmountUSD:    t.TradeAmountUSD,
		AmountIn:          strconv.FormatUint(t.AmountIn, 10),
		ExpectedAmountOut: strconv.FormatUint(t.ExpectedAmountOut, 10),
		AmountUnconfirmed: t.AmountUnconfirmed,
		PriceImpactPct:    t.PriceImpactPct,
		SlippageBps:       t.SlippageBps,
		Route:             routeJSON,
		Signature:         t.Signature,
		Status:            string(status),
		Error:             t.Error,
		Attempts:          t.Attempts,
		CreatedAtMs:       t.CreatedAt,
		UpdatedAtMs:       t.UpdatedAt,
	}
	if t.ActualAmountOut != nil {
		v := strconv.FormatUint(*t.ActualAmountOut, 10)
		m.ActualAmountOut = &v
	}
	return m, nil
}

func fromTradeModel(m *tradeModel) (*domain.Trade, error) {
	t := &domain.Trade{
		TradeID:           m.TradeID,
		PositionID:        m.PositionID,
		Side:              domain.Side(m.Side),
		InputMint:         m.InputMint,
		OutputMint:        m.OutputMint,
		PoolAddress:       m.PoolAddress,
		TradeAmountUSD:    m.TradeAmountUSD,
		AmountUnconfirmed: m.AmountUnconfirmed,
		PriceImpactPct:    m.PriceImpactPct,
		SlippageBps:       m.SlippageBps,
		Signature:         m.Signature,
		Status:            domain.TradeStatus(m.Status),
		Error:             m.Error,
		Attempts:          m.Attempts,
		CreatedAt:         m.CreatedAtMs,
		UpdatedAt:         m.UpdatedAtMs,
	}

	var err error
	if t.AmountIn, err = strconv.ParseUint(m.AmountIn, 10, 64); err != nil {
		return nil, fmt.Errorf("trade %s: parse amount_in: %w", m.TradeID, err)
	}
	if t.ExpectedAmountOut, err = strconv.ParseUint(m.ExpectedAmountOut, 10, 64); err != nil {
		return nil, fmt.Errorf("trade %s: parse expected_amount_out: %w", m.TradeID, err)
	}
	if m.ActualAmountOut != nil {
		v, err := strconv.ParseUint(*m.ActualAmountOut, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("trade %s: parse actual_amount_out: %w", m.TradeID, err)
		}
		t.ActualAmountOut = &v
	}
	if len(m.Route) > 0 {
		if err := json.Unmarshal(m.Route, &t.Route); err != nil {
			return nil, fmt.Errorf("trade %s: parse route: %w", m.TradeID, err)
		}
	}
	return t, nil
}
