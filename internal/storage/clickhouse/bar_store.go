package clickhouse

import (
	"context"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
// The bars table is a ReplacingMergeTree, so re-inserted candles collapse
// on merge and reads use FINAL to see the latest version immediately.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk upserts bars of one series in a single batch.
func (s *BarStore) InsertBulk(ctx context.Context, series storage.BarSeries, bars []domain.Bar) (err error) {
	if series.TradingPair == "" || series.Timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "bar_insert_bulk", time.Since(start).Seconds(), err)
	}(time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			exchange, trading_pair, timeframe, timestamp_ms,
			open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			series.Exchange, series.TradingPair, series.Timeframe, b.TimestampMs,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetHistoricalBars retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetHistoricalBars(ctx context.Context, tradingPair, timeframe string, start, end int64, exchange string) (bars []domain.Bar, err error) {
	defer func(began time.Time) {
		observability.RecordDBQuery("clickhouse", "bar_range", time.Since(began).Seconds(), err)
	}(time.Now())

	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM bars FINAL
		WHERE exchange = ? AND trading_pair = ? AND timeframe = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, exchange, tradingPair, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.TimestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}

	return bars, nil
}
