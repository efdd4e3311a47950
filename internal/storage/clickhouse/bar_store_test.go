package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestBarStore_InsertAndRange(t *testing.T) {
	conn := startClickHouse(t)

	ctx := context.Background()
	store := NewBarStore(conn)
	series := storage.BarSeries{Exchange: "binance", TradingPair: "BTC/USDT", Timeframe: "1h"}

	var bars []domain.Bar
	for i := 0; i < 5; i++ {
		ts := int64(1704067200000 + i*3600_000)
		bars = append(bars, domain.Bar{TimestampMs: ts, Open: 100, High: 105, Low: 95, Close: 100 + float64(i), Volume: 10})
	}
	require.NoError(t, store.InsertBulk(ctx, series, bars))

	got, err := store.GetHistoricalBars(ctx, "BTC/USDT", "1h", bars[1].TimestampMs, bars[3].TimestampMs, "binance")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, bars[1], got[0])
	assert.Equal(t, bars[3], got[2])

	other, err := store.GetHistoricalBars(ctx, "BTC/USDT", "4h", 0, bars[4].TimestampMs, "binance")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBarStore_ReinsertReplaces(t *testing.T) {
	conn := startClickHouse(t)

	ctx := context.Background()
	store := NewBarStore(conn)
	series := storage.BarSeries{Exchange: "binance", TradingPair: "ETH/USDT", Timeframe: "1d"}

	bar := domain.Bar{TimestampMs: 1704067200000, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 3}
	require.NoError(t, store.InsertBulk(ctx, series, []domain.Bar{bar}))

	bar.Close = 1.8
	require.NoError(t, store.InsertBulk(ctx, series, []domain.Bar{bar}))

	got, err := store.GetHistoricalBars(ctx, "ETH/USDT", "1d", 0, bar.TimestampMs, "binance")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.8, got[0].Close)
}

func TestBarStore_InvalidSeries(t *testing.T) {
	store := NewBarStore(nil)
	err := store.InsertBulk(context.Background(), storage.BarSeries{}, []domain.Bar{{TimestampMs: 1}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
