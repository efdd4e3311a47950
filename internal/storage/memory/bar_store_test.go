package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestBarStore_UpsertAndRange(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()
	series := storage.BarSeries{Exchange: "binance", TradingPair: "BTC/USDT", Timeframe: "1h"}

	bars := []domain.Bar{
		{TimestampMs: 3000, Close: 103},
		{TimestampMs: 1000, Close: 101},
		{TimestampMs: 2000, Close: 102},
	}
	if err := store.InsertBulk(ctx, series, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	// Re-inserting a timestamp replaces the bar.
	if err := store.InsertBulk(ctx, series, []domain.Bar{{TimestampMs: 2000, Close: 202}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetHistoricalBars(ctx, "BTC/USDT", "1h", 1000, 2000, "binance")
	if err != nil {
		t.Fatalf("GetHistoricalBars failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(got))
	}
	if got[0].TimestampMs != 1000 || got[1].Close != 202 {
		t.Errorf("unexpected bars: %+v", got)
	}

	other, _ := store.GetHistoricalBars(ctx, "BTC/USDT", "1h", 0, 5000, "kraken")
	if len(other) != 0 {
		t.Errorf("expected no bars for other exchange, got %d", len(other))
	}
}

func TestBarStore_InvalidSeries(t *testing.T) {
	store := NewBarStore()
	err := store.InsertBulk(context.Background(), storage.BarSeries{}, []domain.Bar{{TimestampMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
