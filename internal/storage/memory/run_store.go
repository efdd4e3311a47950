package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Run // keyed by run ID
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.Run),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if the run ID exists.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = cloneRun(r)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneRun(r), nil
}

// Update replaces the mutable fields of an existing run.
func (s *RunStore) Update(_ context.Context, r *domain.Run) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[r.ID]
	if !exists {
		return storage.ErrNotFound
	}

	updated := cloneRun(r)
	// Identity fields are fixed at insert.
	updated.Mode = existing.Mode
	updated.Config = existing.Config
	updated.CreatedAt = existing.CreatedAt
	s.data[r.ID] = updated
	return nil
}

// UpdateCheckpoint persists a checkpoint without touching other fields.
func (s *RunStore) UpdateCheckpoint(_ context.Context, runID string, cp *domain.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[runID]
	if !exists {
		return storage.ErrNotFound
	}

	copy := *cp
	r.Checkpoint = &copy
	return nil
}

// FindByStatus retrieves runs with the given status, ordered by created_at ASC.
func (s *RunStore) FindByStatus(_ context.Context, status domain.RunStatus) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Run
	for _, r := range s.data {
		if r.Status == status {
			result = append(result, cloneRun(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// List retrieves runs matching filter, newest first.
func (s *RunStore) List(_ context.Context, filter storage.RunFilter) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Run
	for _, r := range s.data {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.TradingPair != "" && r.Config.TradingPair != filter.TradingPair {
			continue
		}
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// cloneRun deep-copies a run so callers never share mutable state with the store.
func cloneRun(r *domain.Run) *domain.Run {
	copy := *r
	if r.Checkpoint != nil {
		cp := *r.Checkpoint
		copy.Checkpoint = &cp
	}
	if r.Warnings != nil {
		copy.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.Config.Strategy.Params != nil {
		params := make(map[string]float64, len(r.Config.Strategy.Params))
		for k, v := range r.Config.Strategy.Params {
			params[k] = v
		}
		copy.Config.Strategy.Params = params
	}
	return &copy
}

var _ storage.RunStore = (*RunStore)(nil)
