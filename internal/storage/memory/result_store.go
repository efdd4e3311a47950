package memory

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// MetricsStore is an in-memory implementation of storage.MetricsStore.
type MetricsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PerformanceMetrics // keyed by run ID
}

// NewMetricsStore creates a new in-memory metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		data: make(map[string]*domain.PerformanceMetrics),
	}
}

// Insert stores the metrics of a run. Returns ErrDuplicateKey if already stored.
func (s *MetricsStore) Insert(_ context.Context, runID string, m *domain.PerformanceMetrics) error {
	if runID == "" || m == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *m
	s.data[runID] = &copy
	return nil
}

// GetByRunID retrieves the metrics of a run. Returns ErrNotFound if not exists.
func (s *MetricsStore) GetByRunID(_ context.Context, runID string) (*domain.PerformanceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *m
	return &copy, nil
}

var _ storage.MetricsStore = (*MetricsStore)(nil)

// EquityCurveStore is an in-memory implementation of storage.EquityCurveStore.
type EquityCurveStore struct {
	mu   sync.RWMutex
	data map[string][]domain.EquityPoint // keyed by run ID
}

// NewEquityCurveStore creates a new in-memory equity curve store.
func NewEquityCurveStore() *EquityCurveStore {
	return &EquityCurveStore{
		data: make(map[string][]domain.EquityPoint),
	}
}

// Insert stores the sampled equity curve of a run. Returns ErrDuplicateKey if already stored.
func (s *EquityCurveStore) Insert(_ context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[runID] = append([]domain.EquityPoint{}, points...)
	return nil
}

// GetByRunID retrieves the equity curve of a run. Returns ErrNotFound if not exists.
func (s *EquityCurveStore) GetByRunID(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return append([]domain.EquityPoint{}, points...), nil
}

var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)
