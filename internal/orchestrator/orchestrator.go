// Package orchestrator owns the run lifecycle: admission, execution,
// persistence of results and crash recovery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/progress"
	"backtest-lab/internal/scheduler"
	"backtest-lab/internal/storage"
)

// persistTimeout bounds result and status writes made after a run's
// own context may already be cancelled.
const persistTimeout = 30 * time.Second

// Runner executes a single backtest.
type Runner interface {
	Validate(cfg domain.RunConfig) (domain.RunConfig, error)
	Run(ctx context.Context, runID string, cfg domain.RunConfig) (*domain.RunResult, error)
}

// Slots is the admission control the orchestrator runs under.
type Slots interface {
	RequestSlot(ctx context.Context, runID string) (scheduler.Admission, error)
	ReleaseSlot(runID string)
	Dequeue(ctx context.Context, runID string) (bool, error)
	QueuePosition(ctx context.Context, runID string) (int, bool, error)
}

// ProgressSource reads live run progress.
type ProgressSource interface {
	Get(runID string) (progress.Record, bool)
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	RunStore         storage.RunStore
	TradeStore       storage.TradeStore
	MetricsStore     storage.MetricsStore
	EquityCurveStore storage.EquityCurveStore

	// Collaborators
	Engine    Runner
	Scheduler Slots
	Progress  ProgressSource

	Logger *zap.Logger
	Now    func() time.Time // for tests
	NewID  func() string    // for tests
}

// Orchestrator coordinates run execution.
// Flow: StartRun → scheduler admission → engine run → persist results → release slot.
type Orchestrator struct {
	runs    storage.RunStore
	trades  storage.TradeStore
	metrics storage.MetricsStore
	curves  storage.EquityCurveStore

	engine   Runner
	sched    Slots
	progress ProgressSource

	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	// mu serializes status transitions so admission, promotion,
	// cancellation and completion never interleave on a run record.
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closing bool // set by Shutdown; no task starts afterwards

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		runs:       opts.RunStore,
		trades:     opts.TradeStore,
		metrics:    opts.MetricsStore,
		curves:     opts.EquityCurveStore,
		engine:     opts.Engine,
		sched:      opts.Scheduler,
		progress:   opts.Progress,
		logger:     logger.Named("orchestrator"),
		now:        now,
		newID:      newID,
		cancels:    make(map[string]context.CancelFunc),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

func (o *Orchestrator) isClosing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}

func (o *Orchestrator) nowMs() int64 {
	return o.now().UnixMilli()
}

// StartRun validates cfg, creates a run and asks the scheduler for a slot.
// The returned run is Running when a slot was granted and Queued otherwise.
func (o *Orchestrator) StartRun(ctx context.Context, cfg domain.RunConfig) (*domain.Run, error) {
	cfg, err := o.engine.Validate(cfg)
	if err != nil {
		return nil, err
	}
	if o.isClosing() {
		return nil, ErrShuttingDown
	}

	run := &domain.Run{
		ID:        o.newID(),
		Mode:      domain.RunModeBacktest,
		Status:    domain.RunStatusPending,
		Config:    cfg,
		CreatedAt: o.nowMs(),
	}
	if err := o.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closing {
		return nil, ErrShuttingDown
	}
	return o.admit(ctx, run)
}

// admit requests a slot for run and applies the outcome. Caller holds o.mu.
func (o *Orchestrator) admit(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	adm, err := o.sched.RequestSlot(ctx, run.ID)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		return o.runs.GetByID(ctx, run.ID)
	}
	if err != nil {
		msg := fmt.Sprintf("admission failed: %v", err)
		if terr := o.transition(ctx, run, domain.RunStatusError, func(r *domain.Run) { r.ErrorMessage = msg }); terr != nil {
			o.logger.Error("failed to mark run as error", zap.String("run_id", run.ID), zap.Error(terr))
		}
		return nil, fmt.Errorf("request slot: %w", err)
	}

	switch adm.Outcome {
	case scheduler.OutcomeGranted:
		if err := o.markRunning(ctx, run); err != nil {
			o.sched.ReleaseSlot(run.ID)
			return nil, err
		}
	case scheduler.OutcomeQueued:
		if run.Status == domain.RunStatusQueued {
			run.QueuePosition = adm.Position
			if err := o.runs.Update(ctx, run); err != nil {
				return nil, fmt.Errorf("update queue position: %w", err)
			}
		} else if err := o.transition(ctx, run, domain.RunStatusQueued, func(r *domain.Run) {
			r.QueuePosition = adm.Position
		}); err != nil {
			return nil, err
		}
		o.logger.Info("run queued", zap.String("run_id", run.ID), zap.Int("position", adm.Position))
	}

	return cloneRun(run), nil
}

// Launch starts a run promoted from the queue. It implements scheduler.Launcher.
// Promotions arriving after Shutdown began leave the run Queued so the next
// process re-admits it.
func (o *Orchestrator) Launch(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closing {
		o.logger.Info("promotion ignored during shutdown", zap.String("run_id", runID))
		o.sched.ReleaseSlot(runID)
		return
	}

	ctx, cancel := context.WithTimeout(o.baseCtx, persistTimeout)
	defer cancel()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		o.logger.Error("promoted run not found", zap.String("run_id", runID), zap.Error(err))
		o.sched.ReleaseSlot(runID)
		return
	}
	if run.Status != domain.RunStatusQueued && run.Status != domain.RunStatusPending {
		o.logger.Warn("promoted run is not waiting",
			zap.String("run_id", runID),
			zap.String("status", string(run.Status)),
		)
		o.sched.ReleaseSlot(runID)
		return
	}
	if err := o.markRunning(ctx, run); err != nil {
		o.logger.Error("failed to launch promoted run", zap.String("run_id", runID), zap.Error(err))
		o.sched.ReleaseSlot(runID)
	}
}

// markRunning transitions run to Running and starts its task. Caller holds o.mu.
func (o *Orchestrator) markRunning(ctx context.Context, run *domain.Run) error {
	if o.closing {
		return ErrShuttingDown
	}
	err := o.transition(ctx, run, domain.RunStatusRunning, func(r *domain.Run) {
		r.QueuePosition = 0
		r.StartedAt = o.nowMs()
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(o.baseCtx)
	o.cancels[run.ID] = cancel
	o.wg.Add(1)
	go o.execute(runCtx, cloneRun(run))

	o.logger.Info("run started", zap.String("run_id", run.ID))
	return nil
}

// execute runs the engine for run. Panics become an Error status and the
// slot is always released.
func (o *Orchestrator) execute(ctx context.Context, run *domain.Run) {
	defer o.wg.Done()
	started := o.now()
	status := domain.RunStatusError

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("run panicked", zap.String("run_id", run.ID), zap.Any("panic", p))
			status = o.finish(run.ID, domain.RunStatusError, func(r *domain.Run) {
				r.ErrorMessage = fmt.Sprintf("panic: %v", p)
			})
		}
		o.untrack(run.ID)
		o.sched.ReleaseSlot(run.ID)
		observability.RecordRunFinished(string(status), o.now().Sub(started).Seconds())
	}()
	observability.RecordRunStarted()

	result, err := o.engine.Run(ctx, run.ID, run.Config)
	switch {
	case err == nil:
		if perr := o.persist(result); perr != nil {
			o.logger.Error("failed to persist results", zap.String("run_id", run.ID), zap.Error(perr))
			status = o.finish(run.ID, domain.RunStatusError, func(r *domain.Run) {
				r.ErrorMessage = fmt.Sprintf("persist results: %v", perr)
			})
			return
		}
		status = o.finish(run.ID, domain.RunStatusCompleted, func(r *domain.Run) {
			r.Warnings = result.Warnings
			r.Checkpoint = finalCheckpoint(result, o.nowMs())
		})
		o.logger.Info("run completed",
			zap.String("run_id", run.ID),
			zap.Int("trades", len(result.Trades)),
			zap.Float64("final_equity", result.Metrics.FinalEquity),
		)

	case errors.Is(err, engine.ErrCancelled) && o.baseCtx.Err() != nil:
		status = o.finish(run.ID, domain.RunStatusError, func(r *domain.Run) {
			r.ErrorMessage = "interrupted by shutdown"
		})

	case errors.Is(err, engine.ErrCancelled):
		status = o.finish(run.ID, domain.RunStatusCancelled, nil)

	default:
		o.logger.Warn("run failed", zap.String("run_id", run.ID), zap.Error(err))
		status = o.finish(run.ID, domain.RunStatusError, func(r *domain.Run) {
			r.ErrorMessage = err.Error()
		})
	}
}

// persist writes trades, metrics and the sampled equity curve.
func (o *Orchestrator) persist(result *domain.RunResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if len(result.Trades) > 0 {
		if err := o.trades.InsertBulk(ctx, result.Trades); err != nil {
			return fmt.Errorf("trades: %w", err)
		}
	}
	if err := o.metrics.Insert(ctx, result.RunID, result.Metrics); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := o.curves.Insert(ctx, result.RunID, result.EquityCurve); err != nil {
		return fmt.Errorf("equity curve: %w", err)
	}
	return nil
}

// finish moves a run to a terminal status and returns the status it ends in.
// A run already terminal (cancelled while executing) keeps its status.
func (o *Orchestrator) finish(runID string, to domain.RunStatus, mutate func(r *domain.Run)) domain.RunStatus {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		o.logger.Error("failed to load finished run", zap.String("run_id", runID), zap.Error(err))
		return to
	}
	if run.Status.IsTerminal() {
		return run.Status
	}
	if err := o.transition(ctx, run, to, mutate); err != nil {
		o.logger.Error("failed to record run outcome",
			zap.String("run_id", runID),
			zap.String("status", string(to)),
			zap.Error(err),
		)
	}
	return to
}

// transition validates and persists a status change. Terminal statuses
// also stamp EndedAt. Caller holds o.mu.
func (o *Orchestrator) transition(ctx context.Context, run *domain.Run, to domain.RunStatus, mutate func(r *domain.Run)) error {
	if !run.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, to)
	}
	run.Status = to
	if mutate != nil {
		mutate(run)
	}
	if to.IsTerminal() {
		run.QueuePosition = 0
		run.EndedAt = o.nowMs()
	}
	if err := o.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

func (o *Orchestrator) untrack(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[runID]; ok {
		cancel()
		delete(o.cancels, runID)
	}
}

// CancelRun cancels a pending, queued or running run. A running run's slot
// is released immediately and its bar loop observes cancellation on the
// next bar.
func (o *Orchestrator) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case domain.RunStatusQueued:
		if _, err := o.sched.Dequeue(ctx, runID); err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}
	case domain.RunStatusRunning:
		if cancel, ok := o.cancels[runID]; ok {
			cancel()
		}
		o.sched.ReleaseSlot(runID)
	}

	if err := o.transition(ctx, run, domain.RunStatusCancelled, nil); err != nil {
		return nil, err
	}
	o.logger.Info("run cancelled", zap.String("run_id", runID))
	return cloneRun(run), nil
}

// Progress is the externally visible progress of a run.
type Progress struct {
	RunID         string           `json:"run_id"`
	Status        domain.RunStatus `json:"status"`
	BarsProcessed int              `json:"bars_processed"`
	TotalBars     int              `json:"total_bars"`
	Percentage    float64          `json:"percentage"`
	QueuePosition int              `json:"queue_position,omitempty"`
}

// GetProgress returns live progress, falling back to the last checkpoint
// and then to zero when no progress has been recorded.
func (o *Orchestrator) GetProgress(ctx context.Context, runID string) (*Progress, error) {
	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	p := &Progress{RunID: runID, Status: run.Status}

	if rec, ok := o.progress.Get(runID); ok {
		p.BarsProcessed = rec.BarsProcessed
		p.TotalBars = rec.TotalBars
		p.Percentage = rec.Percentage()
	} else if cp := run.Checkpoint; cp != nil {
		rec := progress.Record{BarsProcessed: cp.BarsProcessed, TotalBars: cp.TotalBars}
		p.BarsProcessed = rec.BarsProcessed
		p.TotalBars = rec.TotalBars
		p.Percentage = rec.Percentage()
	}

	if run.Status == domain.RunStatusQueued {
		p.QueuePosition = run.QueuePosition
		if pos, ok, err := o.sched.QueuePosition(ctx, runID); err == nil && ok {
			p.QueuePosition = pos
		}
	}
	return p, nil
}

// GetRun returns the run record.
func (o *Orchestrator) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return o.runs.GetByID(ctx, runID)
}

// GetResult returns the stored result of a completed run, or a
// *NotReadyError carrying the current status.
func (o *Orchestrator) GetResult(ctx context.Context, runID string) (*domain.RunResult, error) {
	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, &NotReadyError{RunID: runID, Status: run.Status}
	}

	trades, err := o.trades.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	perf, err := o.metrics.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	curve, err := o.curves.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load equity curve: %w", err)
	}

	result := &domain.RunResult{
		RunID:       runID,
		Trades:      trades,
		Metrics:     perf,
		EquityCurve: curve,
		Config:      run.Config,
		Warnings:    run.Warnings,
	}
	if cp := run.Checkpoint; cp != nil {
		result.BarsProcessed = cp.BarsProcessed
		result.TotalBars = cp.TotalBars
	}
	return result, nil
}

// ListRuns returns runs matching filter, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*domain.Run, error) {
	return o.runs.List(ctx, filter)
}

// RecoveryReport summarizes a Recover sweep.
type RecoveryReport struct {
	Orphaned   int // Running runs moved to Error
	Readmitted int // Queued runs handed back to the scheduler
}

// Recover must be called once at startup before serving requests.
// Runs left Running by a previous process are moved to Error with a note
// describing their last checkpoint. Runs left Queued are re-admitted in
// creation order, since the scheduler's queue did not survive the restart.
func (o *Orchestrator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	o.mu.Lock()
	defer o.mu.Unlock()

	orphaned, err := o.runs.FindByStatus(ctx, domain.RunStatusRunning)
	if err != nil {
		return report, fmt.Errorf("find running runs: %w", err)
	}
	for _, run := range orphaned {
		note := crashNote(run)
		if err := o.transition(ctx, run, domain.RunStatusError, func(r *domain.Run) {
			r.ErrorMessage = note
		}); err != nil {
			return report, err
		}
		o.sched.ReleaseSlot(run.ID)
		o.logger.Warn("orphaned run marked as error", zap.String("run_id", run.ID), zap.String("note", note))
		report.Orphaned++
	}

	queued, err := o.runs.FindByStatus(ctx, domain.RunStatusQueued)
	if err != nil {
		return report, fmt.Errorf("find queued runs: %w", err)
	}
	for _, run := range queued {
		if _, err := o.admit(ctx, run); err != nil {
			return report, fmt.Errorf("readmit %s: %w", run.ID, err)
		}
		report.Readmitted++
	}

	if report.Orphaned > 0 || report.Readmitted > 0 {
		o.logger.Info("recovery finished",
			zap.Int("orphaned", report.Orphaned),
			zap.Int("readmitted", report.Readmitted),
		)
	}
	return report, nil
}

// Shutdown cancels all in-flight runs and waits for their tasks to finish
// or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.baseCancel()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func crashNote(run *domain.Run) string {
	cp := run.Checkpoint
	if cp == nil {
		return fmt.Sprintf("%v: run was running at restart; no checkpoint", ErrCrashRecovery)
	}
	return fmt.Sprintf("%v: run was running at restart; last checkpoint %d/%d bars, equity %.2f, %d completed trades",
		ErrCrashRecovery, cp.BarsProcessed, cp.TotalBars, cp.LastEquity, cp.CompletedTrades)
}

func finalCheckpoint(result *domain.RunResult, nowMs int64) *domain.Checkpoint {
	completed := 0
	for _, t := range result.Trades {
		if t.IsExit() {
			completed++
		}
	}
	return &domain.Checkpoint{
		BarsProcessed:   result.BarsProcessed,
		TotalBars:       result.TotalBars,
		LastEquity:      result.Metrics.FinalEquity,
		CompletedTrades: completed,
		TimestampMs:     nowMs,
	}
}

func cloneRun(r *domain.Run) *domain.Run {
	c := *r
	if r.Checkpoint != nil {
		cp := *r.Checkpoint
		c.Checkpoint = &cp
	}
	c.Warnings = append([]string(nil), r.Warnings...)
	return &c
}
