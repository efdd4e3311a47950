package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[storage.BarSeries]map[int64]domain.Bar // series -> timestamp -> bar
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[storage.BarSeries]map[int64]domain.Bar),
	}
}

// InsertBulk upserts bars of one series.
func (s *BarStore) InsertBulk(_ context.Context, series storage.BarSeries, bars []domain.Bar) error {
	if series.TradingPair == "" || series.Timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byTime, ok := s.data[series]
	if !ok {
		byTime = make(map[int64]domain.Bar, len(bars))
		s.data[series] = byTime
	}
	for _, b := range bars {
		byTime[b.TimestampMs] = b
	}
	return nil
}

// GetHistoricalBars retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetHistoricalBars(_ context.Context, tradingPair, timeframe string, start, end int64, exchange string) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTime := s.data[storage.BarSeries{Exchange: exchange, TradingPair: tradingPair, Timeframe: timeframe}]

	var result []domain.Bar
	for ts, b := range byTime {
		if ts >= start && ts <= end {
			result = append(result, b)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
