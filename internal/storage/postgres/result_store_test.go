package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestTradeStore_InsertBulkAndGet(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	createTestRun(t, ctx, pool, "run-001", 1000)
	store := NewTradeStore(pool)

	trades := []*domain.Trade{
		{TradeID: "t-1", RunID: "run-001", Seq: 0, Kind: domain.TradeEntry, Side: domain.SideBuy, TimestampMs: 1000,
			RequestedPrice: 100, ExecutedPrice: 100.05, RequestedQuantity: 10, NetQuantity: 9.99, Commission: 0.01, Slippage: 0.05},
		{TradeID: "t-2", RunID: "run-001", Seq: 1, Kind: domain.TradeExit, Side: domain.SideSell, TimestampMs: 5000,
			RequestedPrice: 110, ExecutedPrice: 109.95, RequestedQuantity: 9.99, NetQuantity: 9.99, Commission: 1.09,
			PnL: 96.3, PnLPct: 9.6, HoldingDurationMs: 4000, EntryPrice: 100.05, ExitPrice: 109.95},
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, *trades[0], *got[0])
	assert.Equal(t, *trades[1], *got[1])

	err = store.InsertBulk(ctx, []*domain.Trade{{TradeID: "t-1", RunID: "run-001", Seq: 7}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.Trade{{TradeID: "t-9", RunID: "missing", Seq: 0}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetricsStore_InsertAndGet(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	createTestRun(t, ctx, pool, "run-001", 1000)
	store := NewMetricsStore(pool)

	winRate := 0.6
	m := &domain.PerformanceMetrics{InitialCapital: 10000, FinalEquity: 10500, TotalReturn: 0.05, TotalTrades: 5, WinRate: &winRate}
	require.NoError(t, store.Insert(ctx, "run-001", m))
	assert.ErrorIs(t, store.Insert(ctx, "run-001", m), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, m.FinalEquity, got.FinalEquity)
	require.NotNil(t, got.WinRate)
	assert.Equal(t, 0.6, *got.WinRate)
	assert.Nil(t, got.ProfitFactor)

	_, err = store.GetByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEquityCurveStore_InsertAndGet(t *testing.T) {
	pool := startPostgres(t)

	ctx := context.Background()
	createTestRun(t, ctx, pool, "run-001", 1000)
	store := NewEquityCurveStore(pool)

	points := []domain.EquityPoint{{TimestampMs: 1000, Equity: 10000}, {TimestampMs: 2000, Equity: 10050.25}}
	require.NoError(t, store.Insert(ctx, "run-001", points))

	got, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, points, got)

	_, err = store.GetByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
