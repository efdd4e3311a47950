package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestRunStore_InsertAndGetByID(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	created := createTestRun(t, ctx, pool, "run-001", 1000)

	store := NewRunStore(pool)
	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.RunStatusPending, got.Status)
	assert.Equal(t, created.Config, got.Config)
	assert.Nil(t, got.Checkpoint)
	assert.Empty(t, got.Warnings)
	assert.Equal(t, int64(1000), got.CreatedAt)

	err = store.Insert(ctx, created)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_UpdateAndCheckpoint(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	r := createTestRun(t, ctx, pool, "run-001", 1000)
	store := NewRunStore(pool)

	r.Status = domain.RunStatusRunning
	r.StartedAt = 2000
	r.Warnings = []string{"gap detected"}
	require.NoError(t, store.Update(ctx, r))

	cp := &domain.Checkpoint{BarsProcessed: 1000, TotalBars: 4000, LastEquity: 10100.5, CompletedTrades: 3, TimestampMs: 5000}
	require.NoError(t, store.UpdateCheckpoint(ctx, "run-001", cp))

	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Equal(t, int64(2000), got.StartedAt)
	assert.Equal(t, []string{"gap detected"}, got.Warnings)
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, *cp, *got.Checkpoint)

	assert.ErrorIs(t, store.Update(ctx, &domain.Run{ID: "missing"}), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateCheckpoint(ctx, "missing", cp), storage.ErrNotFound)
}

func TestRunStore_FindByStatusAndList(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	store := NewRunStore(pool)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		r := createTestRun(t, ctx, pool, id, int64(1000*(i+1)))
		if id != "run-b" {
			r.Status = domain.RunStatusQueued
			require.NoError(t, store.Update(ctx, r))
		}
	}

	queued, err := store.FindByStatus(ctx, domain.RunStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "run-a", queued[0].ID)
	assert.Equal(t, "run-c", queued[1].ID)

	all, err := store.List(ctx, storage.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].ID)

	page, err := store.List(ctx, storage.RunFilter{Status: domain.RunStatusQueued, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-a", page[0].ID)

	none, err := store.List(ctx, storage.RunFilter{TradingPair: "ETH/USDT"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
