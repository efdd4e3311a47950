package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func newTestRun(id string, status domain.RunStatus, createdAt int64) *domain.Run {
	return &domain.Run{
		ID:     id,
		Mode:   domain.RunModeBacktest,
		Status: status,
		Config: domain.RunConfig{
			TradingPair:    "BTC/USDT",
			Exchange:       "binance",
			Timeframe:      "1h",
			InitialCapital: 10000,
			Strategy:       domain.StrategyDef{Name: "sma_cross", Params: map[string]float64{"fast": 5}},
		},
		CreatedAt: createdAt,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestRun("run1", domain.RunStatusPending, 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.RunStatusPending {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.RunStatusPending)
	}

	// Mutating the returned copy must not leak into the store.
	got.Config.Strategy.Params["fast"] = 99
	again, _ := store.GetByID(ctx, "run1")
	if again.Config.Strategy.Params["fast"] != 5 {
		t.Errorf("store shares params map with caller")
	}
}

func TestRunStore_Errors(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := newTestRun("run1", domain.RunStatusPending, 1000)
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, run); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Update(ctx, newTestRun("missing", domain.RunStatusRunning, 0)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Run{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestRunStore_UpdateKeepsIdentity(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestRun("run1", domain.RunStatusPending, 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	update := newTestRun("run1", domain.RunStatusRunning, 5000)
	update.Config.TradingPair = "ETH/USDT"
	update.StartedAt = 2000
	if err := store.Update(ctx, update); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "run1")
	if got.Status != domain.RunStatusRunning || got.StartedAt != 2000 {
		t.Errorf("mutable fields not updated: %+v", got)
	}
	if got.CreatedAt != 1000 || got.Config.TradingPair != "BTC/USDT" {
		t.Errorf("identity fields changed: %+v", got)
	}
}

func TestRunStore_UpdateCheckpoint(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestRun("run1", domain.RunStatusRunning, 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	cp := &domain.Checkpoint{BarsProcessed: 1000, TotalBars: 5000, LastEquity: 10250}
	if err := store.UpdateCheckpoint(ctx, "run1", cp); err != nil {
		t.Fatalf("UpdateCheckpoint failed: %v", err)
	}
	cp.BarsProcessed = 1

	got, _ := store.GetByID(ctx, "run1")
	if got.Checkpoint == nil || got.Checkpoint.BarsProcessed != 1000 {
		t.Errorf("checkpoint mismatch: %+v", got.Checkpoint)
	}
	if got.Status != domain.RunStatusRunning {
		t.Errorf("status changed by checkpoint update: %s", got.Status)
	}
}

func TestRunStore_FindByStatusAndList(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	runs := []*domain.Run{
		newTestRun("c", domain.RunStatusQueued, 3000),
		newTestRun("a", domain.RunStatusQueued, 1000),
		newTestRun("b", domain.RunStatusRunning, 2000),
		newTestRun("d", domain.RunStatusCompleted, 4000),
	}
	for _, r := range runs {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	queued, err := store.FindByStatus(ctx, domain.RunStatusQueued)
	if err != nil {
		t.Fatalf("FindByStatus failed: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "a" || queued[1].ID != "c" {
		t.Errorf("expected queued runs [a c] oldest first, got %v", ids(queued))
	}

	all, _ := store.List(ctx, storage.RunFilter{})
	if got := ids(all); len(got) != 4 || got[0] != "d" || got[3] != "a" {
		t.Errorf("expected newest first, got %v", got)
	}

	page, _ := store.List(ctx, storage.RunFilter{Limit: 2, Offset: 1})
	if got := ids(page); len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Errorf("unexpected page: %v", got)
	}

	completed, _ := store.List(ctx, storage.RunFilter{Status: domain.RunStatusCompleted})
	if len(completed) != 1 || completed[0].ID != "d" {
		t.Errorf("status filter failed: %v", ids(completed))
	}

	none, _ := store.List(ctx, storage.RunFilter{TradingPair: "ETH/USDT"})
	if len(none) != 0 {
		t.Errorf("pair filter failed: %v", ids(none))
	}
}

func ids(runs []*domain.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
