package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// Base-unit amounts are NUMERIC(20,0) and travel as decimal strings.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, position_id, side, input_mint, output_mint, pool_address,
	trade_amount_usd, amount_in::text, expected_amount_out::text, actual_amount_out::text,
	amount_unconfirmed, price_impact_pct, slippage_bps, route,
	signature, status, error, attempts, created_at, updated_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_trade", time.Now(), &err)

	query := `
		INSERT INTO trades (
			trade_id, position_id, side, input_mint, output_mint, pool_address,
			trade_amount_usd, amount_in, expected_amount_out, actual_amount_out,
			amount_unconfirmed, price_impact_pct, slippage_bps, route,
			signature, status, error, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::numeric, $9::numeric, $10::numeric,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)
	`

	route := t.Route
	if route == nil {
		route = []string{}
	}
	status := t.Status
	if status == "" {
		status = domain.TradeStatusPending
	}

	_, err = s.pool.Exec(ctx, query,
		t.TradeID, t.PositionID, string(t.Side), t.InputMint, t.OutputMint, t.PoolAddress,
		t.TradeAmountUSD, formatUnits(t.AmountIn), formatUnits(t.ExpectedAmountOut), formatUnitsPtr(t.ActualAmountOut),
		t.AmountUnconfirmed, t.PriceImpactPct, t.SlippageBps, route,
		t.Signature, string(status), t.Error, t.Attempts, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// UpdateStatus moves a PENDING trade to CONFIRMED or FAILED.
func (s *TradeStore) UpdateStatus(ctx context.Context, u storage.TradeUpdate) (err error) {
	if u.TradeID == "" || (u.Status != domain.TradeStatusConfirmed && u.Status != domain.TradeStatusFailed) {
		return storage.ErrInvalidInput
	}
	defer observe("update_trade_status", time.Now(), &err)

	query := `
		UPDATE trades SET
			status = $2,
			position_id = CASE WHEN $3 = '' THEN position_id ELSE $3 END,
			signature = $4,
			actual_amount_out = COALESCE($5::numeric, actual_amount_out),
			amount_unconfirmed = $6,
			error = $7,
			attempts = $8,
			updated_at = $9
		WHERE trade_id = $1 AND status = 'PENDING'
	`

	tag, err := s.pool.Exec(ctx, query,
		u.TradeID, string(u.Status), u.PositionID, u.Signature, formatUnitsPtr(u.ActualAmountOut),
		u.AmountUnconfirmed, u.Error, u.Attempts, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update trade status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: either missing or no longer pending.
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE trade_id = $1)`, u.TradeID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check trade exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// List returns trades ordered by created_at DESC. A limit <= 0 returns all.
func (s *TradeStore) List(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at DESC, trade_id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t                     domain.Trade
		side, status          string
		amountIn, expectedOut string
		actualOut             *string
	)
	err := row.Scan(
		&t.TradeID, &t.PositionID, &side, &t.InputMint, &t.OutputMint, &t.PoolAddress,
		&t.TradeAmountUSD, &amountIn, &expectedOut, &actualOut,
		&t.AmountUnconfirmed, &t.PriceImpactPct, &t.SlippageBps, &t.Route,
		&t.Signature, &status, &t.Error, &t.Attempts, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	if t.AmountIn, err = parseUnits(amountIn); err != nil {
		return nil, err
	}
	if t.ExpectedAmountOut, err = parseUnits(expectedOut); err != nil {
		return nil, err
	}
	if actualOut != nil {
		v, err := parseUnits(*actualOut)
		if err != nil {
			return nil, err
		}
		t.ActualAmountOut = &v
	}
	return &t, nil
}

func formatUnits(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatUnitsPtr(v *uint64) *string {
	if v == nil {
		return nil
	}
	s := formatUnits(*v)
	return &s
}

func parseUnits(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse base units %q: %w", s, err)
	}
	return v, nil
}
