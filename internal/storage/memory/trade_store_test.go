package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestTradeStore_InsertBulkAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.Trade{
		{TradeID: "t2", RunID: "run1", Seq: 1, Kind: domain.TradeExit, PnL: 12.5},
		{TradeID: "t1", RunID: "run1", Seq: 0, Kind: domain.TradeEntry},
		{TradeID: "t3", RunID: "run2", Seq: 0, Kind: domain.TradeEntry},
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(got))
	}
	if got[0].TradeID != "t1" || got[1].TradeID != "t2" {
		t.Errorf("trades not ordered by seq: %s, %s", got[0].TradeID, got[1].TradeID)
	}
	if got[1].PnL != 12.5 {
		t.Errorf("PnL mismatch: got %f", got[1].PnL)
	}
}

func TestTradeStore_InsertBulkAtomic(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Trade{{TradeID: "t1", RunID: "run1"}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Trade{
		{TradeID: "t2", RunID: "run1", Seq: 1},
		{TradeID: "t1", RunID: "run1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "run1")
	if len(got) != 1 {
		t.Errorf("failed batch must not be partially applied, got %d trades", len(got))
	}

	err = store.InsertBulk(ctx, []*domain.Trade{
		{TradeID: "t5", RunID: "run1"},
		{TradeID: "t5", RunID: "run1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}
