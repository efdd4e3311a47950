package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestMetricsStore_InsertAndGet(t *testing.T) {
	store := NewMetricsStore()
	ctx := context.Background()

	winRate := 0.5
	m := &domain.PerformanceMetrics{InitialCapital: 1000, FinalEquity: 1100, TotalTrades: 2, WinRate: &winRate}
	if err := store.Insert(ctx, "run1", m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "run1", m); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if got.FinalEquity != 1100 || got.WinRate == nil || *got.WinRate != 0.5 {
		t.Errorf("metrics mismatch: %+v", got)
	}

	if _, err := store.GetByRunID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEquityCurveStore_InsertAndGet(t *testing.T) {
	store := NewEquityCurveStore()
	ctx := context.Background()

	points := []domain.EquityPoint{{TimestampMs: 1, Equity: 100}, {TimestampMs: 2, Equity: 101}}
	if err := store.Insert(ctx, "run1", points); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	points[0].Equity = -1

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[0].Equity != 100 {
		t.Errorf("curve mismatch: %+v", got)
	}

	if _, err := store.GetByRunID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
