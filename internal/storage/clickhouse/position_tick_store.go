package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

// PositionTickStore implements storage.PositionTickStore using ClickHouse.
// The table is a ReplacingMergeTree, so reads use FINAL to collapse a
// repeated (position_id, timestamp_ms).
type PositionTickStore struct {
	conn *Conn
}

// NewPositionTickStore creates a new PositionTickStore.
func NewPositionTickStore(conn *Conn) *PositionTickStore {
	return &PositionTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PositionTickStore = (*PositionTickStore)(nil)

// InsertBulk adds multiple ticks in one batch.
func (s *PositionTickStore) InsertBulk(ctx context.Context, ticks []*domain.PositionTick) (err error) {
	if len(ticks) == 0 {
		return nil
	}
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("insert_position_ticks", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_ticks (
			position_id, token_address, timestamp_ms, price, pnl_percent, liquidity_usd, state
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(
			t.PositionID, t.TokenAddress, t.TimestampMs,
			t.Price, t.PnLPercent, t.LiquidityUSD, t.State,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
func (s *PositionTickStore) GetByPositionID(ctx context.Context, positionID string) ([]*domain.PositionTick, error) {
	query := `
		SELECT position_id, token_address, timestamp_ms, price, pnl_percent, liquidity_usd, state
		FROM position_ticks FINAL
		WHERE position_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("query ticks by position id: %w", err)
	}
	defer rows.Close()

	return scanPositionTicks(rows)
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanPositionTicks(rows chRows) ([]*domain.PositionTick, error) {
	ticks := []*domain.PositionTick{}

	for rows.Next() {
		var t domain.PositionTick

		err := rows.Scan(
			&t.PositionID, &t.TokenAddress, &t.TimestampMs,
			&t.Price, &t.PnLPercent, &t.LiquidityUSD, &t.State,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position tick row: %w", err)
		}
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position tick rows: %w", err)
	}
	return ticks, nil
}
