package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, token_address, pool_address, entry_trade_id, exit_trade_id,
	entry_price, amount, status, state, exit_config,
	entry_liquidity, creator, partial_exits,
	exit_price, pnl_percent, pnl_usd, exit_reason,
	opened_at, closed_at
`

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.PositionID == "" || !(p.EntryPrice > 0) || !(p.Amount > 0) {
		return storage.ErrInvalidInput
	}
	defer observe("insert_position", time.Now(), &err)

	exitConfig, err := json.Marshal(p.ExitConfig)
	if err != nil {
		return fmt.Errorf("marshal exit config: %w", err)
	}
	status := p.Status
	if status == "" {
		status = domain.PositionStatusOpen
	}

	query := `
		INSERT INTO positions (
			position_id, token_address, pool_address, entry_trade_id, exit_trade_id,
			entry_price, amount, status, state, exit_config,
			entry_liquidity, creator, partial_exits,
			exit_price, pnl_percent, pnl_usd, exit_reason,
			opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19
		)
	`

	_, err = s.pool.Exec(ctx, query,
		p.PositionID, p.TokenAddress, p.PoolAddress, p.EntryTradeID, p.ExitTradeID,
		p.EntryPrice, p.Amount, string(status), string(p.State), exitConfig,
		p.EntryLiquidity, p.Creator, p.PartialExits,
		p.ExitPrice, p.PnLPercent, p.PnLUSD, p.ExitReason,
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Close marks an OPEN position CLOSED.
func (s *PositionStore) Close(ctx context.Context, c storage.PositionClose) (err error) {
	defer observe("close_position", time.Now(), &err)

	query := `
		UPDATE positions SET
			status = 'CLOSED',
			state = $2,
			exit_trade_id = $3,
			exit_price = $4,
			pnl_percent = $5,
			pnl_usd = $6,
			exit_reason = $7,
			closed_at = $8
		WHERE position_id = $1 AND status = 'OPEN'
	`

	tag, err := s.pool.Exec(ctx, query,
		c.PositionID, string(c.State), c.ExitTradeID,
		c.ExitPrice, c.PnLPercent, c.PnLUSD, c.ExitReason, c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := s.exists(ctx, c.PositionID)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// UpdateAmount records a partial exit.
func (s *PositionStore) UpdateAmount(ctx context.Context, positionID string, amount float64, partialExits int) (err error) {
	if !(amount > 0) {
		return storage.ErrInvalidInput
	}
	defer observe("update_position_amount", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET amount = $2, partial_exits = $3 WHERE position_id = $1`,
		positionID, amount, partialExits,
	)
	if err != nil {
		return fmt.Errorf("update position amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpenPositions returns all OPEN positions ordered by opened_at ASC.
func (s *PositionStore) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'OPEN'
		ORDER BY opened_at ASC, position_id ASC`

	return s.queryPositions(ctx, query)
}

// List returns positions ordered by opened_at DESC. A limit <= 0 returns all.
func (s *PositionStore) List(ctx context.Context, limit int) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY opened_at DESC, position_id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.queryPositions(ctx, query, args...)
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}

func (s *PositionStore) exists(ctx context.Context, positionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM positions WHERE position_id = $1)`, positionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check position exists: %w", err)
	}
	return exists, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p             domain.Position
		status, state string
		exitConfig    []byte
	)
	err := row.Scan(
		&p.PositionID, &p.TokenAddress, &p.PoolAddress, &p.EntryTradeID, &p.ExitTradeID,
		&p.EntryPrice, &p.Amount, &status, &state, &exitConfig,
		&p.EntryLiquidity, &p.Creator, &p.PartialExits,
		&p.ExitPrice, &p.PnLPercent, &p.PnLUSD, &p.ExitReason,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(status)
	p.State = domain.PositionState(state)
	if len(exitConfig) > 0 {
		if err := json.Unmarshal(exitConfig, &p.ExitConfig); err != nil {
			return nil, fmt.Errorf("unmarshal exit config: %w", err)
		}
	}
	return &p, nil
}
