package storage

import (
	"context"

	"backtest-lab/internal/domain"
)

// RunFilter narrows RunStore.List. Zero values match everything.
type RunFilter struct {
	Status      domain.RunStatus
	TradingPair string
	Limit       int // 0 means no limit
	Offset      int
}

// RunStore provides access to runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if the run ID exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// Update replaces the mutable fields of an existing run
	// (status, checkpoint, queue position, error, warnings, timestamps).
	// Returns ErrNotFound if not exists.
	Update(ctx context.Context, r *domain.Run) error

	// UpdateCheckpoint persists a checkpoint without touching other fields.
	UpdateCheckpoint(ctx context.Context, runID string, cp *domain.Checkpoint) error

	// FindByStatus retrieves runs with the given status, ordered by created_at ASC.
	FindByStatus(ctx context.Context, status domain.RunStatus) ([]*domain.Run, error)

	// List retrieves runs matching filter, newest first.
	List(ctx context.Context, filter RunFilter) ([]*domain.Run, error)
}

// TradeStore provides access to trades storage.
type TradeStore interface {
	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetByRunID retrieves all trades of a run, ordered by seq ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.Trade, error)
}

// MetricsStore provides access to run_metrics storage.
type MetricsStore interface {
	// Insert stores the metrics of a run. Returns ErrDuplicateKey if already stored.
	Insert(ctx context.Context, runID string, m *domain.PerformanceMetrics) error

	// GetByRunID retrieves the metrics of a run. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.PerformanceMetrics, error)
}

// EquityCurveStore provides access to equity_curves storage.
type EquityCurveStore interface {
	// Insert stores the sampled equity curve of a run. Returns ErrDuplicateKey if already stored.
	Insert(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetByRunID retrieves the equity curve of a run. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}

// BarSeries identifies one OHLCV series.
type BarSeries struct {
	Exchange    string
	TradingPair string
	Timeframe   string
}

// BarStore provides access to bars storage.
type BarStore interface {
	// InsertBulk upserts bars of one series. A bar with an existing timestamp replaces the old one.
	InsertBulk(ctx context.Context, series BarSeries, bars []domain.Bar) error

	// GetHistoricalBars retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
	GetHistoricalBars(ctx context.Context, tradingPair, timeframe string, start, end int64, exchange string) ([]domain.Bar, error)
}
