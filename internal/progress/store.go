// Package progress tracks high-frequency run progress independently of
// the durable run record.
package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults for the stale-record sweep.
const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = 60 * time.Second
)

// Record is the progress of one run.
type Record struct {
	RunID         string
	BarsProcessed int
	TotalBars     int
	UpdatedAt     time.Time
}

// Percentage returns completion in [0, 100].
func (r Record) Percentage() float64 {
	if r.TotalBars <= 0 {
		return 0
	}
	pct := float64(r.BarsProcessed) / float64(r.TotalBars) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Store is a concurrent progress map keyed by run ID.
// Reads never take a lock; each run has a single writer.
type Store struct {
	records sync.Map // run ID -> Record
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	// OnSweep is called with the number of records removed by each sweep.
	OnSweep func(removed int)
}

// Options configures a Store.
type Options struct {
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time // for tests
}

// NewStore creates an empty progress store.
func NewStore(opts Options) *Store {
	s := &Store{
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Init resets the record of a run to zero progress.
func (s *Store) Init(runID string, totalBars int) {
	s.records.Store(runID, Record{RunID: runID, TotalBars: totalBars, UpdatedAt: s.now()})
}

// Update records bars processed for a run.
func (s *Store) Update(runID string, barsProcessed, totalBars int) {
	s.records.Store(runID, Record{
		RunID:         runID,
		BarsProcessed: barsProcessed,
		TotalBars:     totalBars,
		UpdatedAt:     s.now(),
	})
}

// Get returns the progress of a run.
func (s *Store) Get(runID string) (Record, bool) {
	v, ok := s.records.Load(runID)
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// Delete removes the record of a run.
func (s *Store) Delete(runID string) {
	s.records.Delete(runID)
}

// Len returns the number of tracked runs.
func (s *Store) Len() int {
	n := 0
	s.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep deletes records not updated within the TTL and returns how many were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	s.records.Range(func(k, v any) bool {
		if v.(Record).UpdatedAt.Before(cutoff) {
			s.records.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper sweeps stale records every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := s.Sweep()
			if removed > 0 {
				s.logger.Debug("swept stale progress records", zap.Int("removed", removed))
			}
			if s.OnSweep != nil {
				s.OnSweep(removed)
			}
		}
	}
}
