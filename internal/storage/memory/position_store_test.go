package memory

import (
	"context"
	"errors"
	"testing"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/storage"
)

func openPosition(id string, openedAt int64) *domain.Position {
	return &domain.Position{
		PositionID:   id,
		TokenAddress: "mintA",
		PoolAddress:  "pool1",
		EntryTradeID: "trade-" + id,
		EntryPrice:   0.5,
		Amount:       200,
		Status:       domain.PositionStatusOpen,
		State:        domain.PositionStateMonitoring,
		OpenedAt:     openedAt,
	}
}

func TestPositionStore_InsertAndGet(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, openPosition("p1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, openPosition("p1", 1000)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	bad := openPosition("p2", 1000)
	bad.Amount = 0
	if err := store.Insert(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero amount, got %v", err)
	}

	got, err := store.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.EntryPrice != 0.5 || got.Status != domain.PositionStatusOpen {
		t.Errorf("unexpected position: %+v", got)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPositionStore_CloseAndOpenPositions(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	_ = store.Insert(ctx, openPosition("p2", 2000))
	_ = store.Insert(ctx, openPosition("p1", 1000))

	open, _ := store.GetOpenPositions(ctx)
	if len(open) != 2 || open[0].PositionID != "p1" {
		t.Fatalf("expected p1,p2 open, got %d", len(open))
	}

	err := store.Close(ctx, storage.PositionClose{
		PositionID:  "p1",
		ExitTradeID: "exit1",
		ExitPrice:   0.75,
		PnLPercent:  50,
		PnLUSD:      50,
		ExitReason:  "TAKE_PROFIT",
		State:       domain.PositionStateExitCompleted,
		ClosedAt:    5000,
	})
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "p1")
	if got.Status != domain.PositionStatusClosed || got.ExitPrice == nil || *got.ExitPrice != 0.75 {
		t.Errorf("unexpected closed position: %+v", got)
	}

	open, _ = store.GetOpenPositions(ctx)
	if len(open) != 1 || open[0].PositionID != "p2" {
		t.Errorf("expected only p2 open")
	}

	if err := store.Close(ctx, storage.PositionClose{PositionID: "p1"}); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestPositionStore_UpdateAmount(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	_ = store.Insert(ctx, openPosition("p1", 1000))

	if err := store.UpdateAmount(ctx, "p1", 100, 1); err != nil {
		t.Fatalf("UpdateAmount failed: %v", err)
	}
	got, _ := store.GetByID(ctx, "p1")
	if got.Amount != 100 || got.PartialExits != 1 {
		t.Errorf("unexpected amount %v / partial exits %d", got.Amount, got.PartialExits)
	}

	if err := store.UpdateAmount(ctx, "missing", 1, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
