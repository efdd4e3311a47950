package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// MetricsStore implements storage.MetricsStore using PostgreSQL.
type MetricsStore struct {
	pool *Pool
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(pool *Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

// Insert stores the metrics of a run. Returns ErrDuplicateKey if already stored.
func (s *MetricsStore) Insert(ctx context.Context, runID string, m *domain.PerformanceMetrics) (err error) {
	defer func(start time.Time) { observe("metrics_insert", start, err) }(time.Now())

	if runID == "" || m == nil {
		return storage.ErrInvalidInput
	}
	return insertJSON(ctx, s.pool, `INSERT INTO run_metrics (run_id, metrics) VALUES ($1, $2)`, runID, m)
}

// GetByRunID retrieves the metrics of a run. Returns ErrNotFound if not exists.
func (s *MetricsStore) GetByRunID(ctx context.Context, runID string) (m *domain.PerformanceMetrics, err error) {
	defer func(start time.Time) { observe("metrics_get", start, err) }(time.Now())

	m = &domain.PerformanceMetrics{}
	if err := getJSON(ctx, s.pool, `SELECT metrics FROM run_metrics WHERE run_id = $1`, runID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// EquityCurveStore implements storage.EquityCurveStore using PostgreSQL.
type EquityCurveStore struct {
	pool *Pool
}

// NewEquityCurveStore creates a new EquityCurveStore.
func NewEquityCurveStore(pool *Pool) *EquityCurveStore {
	return &EquityCurveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)

// Insert stores the sampled equity curve of a run. Returns ErrDuplicateKey if already stored.
func (s *EquityCurveStore) Insert(ctx context.Context, runID string, points []domain.EquityPoint) (err error) {
	defer func(start time.Time) { observe("equity_insert", start, err) }(time.Now())

	if runID == "" {
		return storage.ErrInvalidInput
	}
	if points == nil {
		points = []domain.EquityPoint{}
	}
	return insertJSON(ctx, s.pool, `INSERT INTO equity_curves (run_id, points) VALUES ($1, $2)`, runID, points)
}

// GetByRunID retrieves the equity curve of a run. Returns ErrNotFound if not exists.
func (s *EquityCurveStore) GetByRunID(ctx context.Context, runID string) (points []domain.EquityPoint, err error) {
	defer func(start time.Time) { observe("equity_get", start, err) }(time.Now())

	if err := getJSON(ctx, s.pool, `SELECT points FROM equity_curves WHERE run_id = $1`, runID, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// insertJSON runs a two-parameter insert whose second column is JSONB.
func insertJSON(ctx context.Context, pool *Pool, query, runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if _, err := pool.Exec(ctx, query, runID, data); err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// getJSON selects a single JSONB column and unmarshals it into dst.
func getJSON(ctx context.Context, pool *Pool, query, runID string, dst any) error {
	var data []byte
	if err := pool.QueryRow(ctx, query, runID).Scan(&data); err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("select: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
