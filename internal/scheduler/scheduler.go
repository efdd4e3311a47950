// Package scheduler limits how many runs execute at once and queues the
// rest in arrival order.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"backtest-lab/internal/observability"
)

// DefaultMaxConcurrent is the slot limit when none is configured.
const DefaultMaxConcurrent = 5

// Scheduler errors
var (
	ErrAlreadyRunning = errors.New("run already running or queued")
	ErrStopped        = errors.New("scheduler stopped")
)

// Outcome is the result of a slot request.
type Outcome string

// Admission outcomes.
const (
	OutcomeGranted Outcome = "granted"
	OutcomeQueued  Outcome = "queued"
)

// Admission is the answer to RequestSlot.
// Position is the 1-based queue position when Outcome is OutcomeQueued.
type Admission struct {
	Outcome  Outcome
	Position int
}

// Launcher starts a run promoted from the queue.
// Launch is called on its own goroutine and must handle its own failures.
type Launcher interface {
	Launch(runID string)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(runID string)

// Launch calls f(runID).
func (f LauncherFunc) Launch(runID string) { f(runID) }

// Status is a snapshot of scheduler occupancy.
type Status struct {
	RunningCount  int `json:"running_count"`
	QueueDepth    int `json:"queue_depth"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Options configures a Scheduler.
type Options struct {
	MaxConcurrent int
	Launcher      Launcher // may be set later with SetLauncher
	Logger        *zap.Logger
}

// state is owned by the loop goroutine.
type state struct {
	running  map[string]struct{}
	queue    []string
	waiting  map[string]struct{}
	launcher Launcher
}

type command func(st *state)

// Scheduler is a single-goroutine arbiter. Every operation is a command
// processed by the loop in arrival order, so occupancy is never raced.
type Scheduler struct {
	maxConcurrent int
	logger        *zap.Logger

	cmds     chan command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler and starts its loop. Call Stop to end it.
func New(opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		maxConcurrent: opts.MaxConcurrent,
		logger:        logger.Named("scheduler"),
		cmds:          make(chan command, 64),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	st := &state{
		running:  make(map[string]struct{}),
		waiting:  make(map[string]struct{}),
		launcher: opts.Launcher,
	}
	go s.loop(st)
	return s
}

func (s *Scheduler) loop(st *state) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.cmds:
			cmd(st)
			observability.UpdateSchedulerGauges(len(st.running), len(st.queue))
		}
	}
}

// Stop ends the loop. Pending and later calls return ErrStopped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.done
}

// send enqueues cmd without waiting for it to run.
func (s *Scheduler) send(ctx context.Context, cmd command) error {
	select {
	case <-s.quit:
		return ErrStopped
	default:
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for it to finish.
func (s *Scheduler) call(ctx context.Context, fn func(st *state)) error {
	finished := make(chan struct{})
	err := s.send(ctx, func(st *state) {
		defer close(finished)
		fn(st)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		// Stopped before the command was taken off the channel.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// SetLauncher replaces the launcher used for promotions.
func (s *Scheduler) SetLauncher(l Launcher) error {
	return s.call(context.Background(), func(st *state) {
		st.launcher = l
	})
}

// RequestSlot grants a slot when capacity allows, otherwise appends runID
// to the queue. A runID already running or queued gets ErrAlreadyRunning.
func (s *Scheduler) RequestSlot(ctx context.Context, runID string) (Admission, error) {
	var (
		adm    Admission
		reqErr error
	)
	err := s.call(ctx, func(st *state) {
		_, running := st.running[runID]
		_, waiting := st.waiting[runID]
		switch {
		case running || waiting:
			reqErr = ErrAlreadyRunning
			observability.RecordAdmission("already_running")
		case len(st.running) < s.maxConcurrent:
			st.running[runID] = struct{}{}
			adm = Admission{Outcome: OutcomeGranted}
			observability.RecordAdmission(string(OutcomeGranted))
		default:
			st.queue = append(st.queue, runID)
			st.waiting[runID] = struct{}{}
			adm = Admission{Outcome: OutcomeQueued, Position: len(st.queue)}
			observability.RecordAdmission(string(OutcomeQueued))
		}
	})
	if err != nil {
		return Admission{}, err
	}
	if reqErr != nil {
		return Admission{}, reqErr
	}

	s.logger.Debug("slot requested",
		zap.String("run_id", runID),
		zap.String("outcome", string(adm.Outcome)),
		zap.Int("position", adm.Position),
	)
	return adm, nil
}

// ReleaseSlot frees the slot held by runID and promotes the head of the
// queue. It does not wait for the loop. Unknown IDs are ignored.
func (s *Scheduler) ReleaseSlot(runID string) {
	err := s.send(context.Background(), func(st *state) {
		if _, ok := st.running[runID]; !ok {
			return
		}
		delete(st.running, runID)
		s.promote(st)
	})
	if err != nil {
		s.logger.Warn("release after stop", zap.String("run_id", runID))
	}
}

// promote moves queued runs into free slots and notifies the launcher
// asynchronously.
func (s *Scheduler) promote(st *state) {
	for len(st.queue) > 0 && len(st.running) < s.maxConcurrent {
		next := st.queue[0]
		st.queue = st.queue[1:]
		delete(st.waiting, next)
		st.running[next] = struct{}{}
		observability.RecordAdmission("promoted")

		if st.launcher == nil {
			s.logger.Warn("promoted run has no launcher", zap.String("run_id", next))
			continue
		}
		s.logger.Info("promoting queued run", zap.String("run_id", next))
		go st.launcher.Launch(next)
	}
}

// Dequeue removes a queued runID. It reports false when runID is not queued.
func (s *Scheduler) Dequeue(ctx context.Context, runID string) (bool, error) {
	var removed bool
	err := s.call(ctx, func(st *state) {
		if _, ok := st.waiting[runID]; !ok {
			return
		}
		delete(st.waiting, runID)
		for i, id := range st.queue {
			if id == runID {
				st.queue = append(st.queue[:i], st.queue[i+1:]...)
				break
			}
		}
		removed = true
	})
	return removed, err
}

// QueuePosition returns the 1-based queue position of runID.
// The second value is false when runID is not queued.
func (s *Scheduler) QueuePosition(ctx context.Context, runID string) (int, bool, error) {
	var pos int
	err := s.call(ctx, func(st *state) {
		for i, id := range st.queue {
			if id == runID {
				pos = i + 1
				return
			}
		}
	})
	return pos, pos > 0, err
}

// IsRunning reports whether runID holds a slot.
func (s *Scheduler) IsRunning(ctx context.Context, runID string) (bool, error) {
	var running bool
	err := s.call(ctx, func(st *state) {
		_, running = st.running[runID]
	})
	return running, err
}

// Status returns current occupancy.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	var status Status
	err := s.call(ctx, func(st *state) {
		status = Status{
			RunningCount:  len(st.running),
			QueueDepth:    len(st.queue),
			MaxConcurrent: s.maxConcurrent,
		}
	})
	return status, err
}

// Reset drops all running and queued runs without launching anything.
func (s *Scheduler) Reset(ctx context.Context) error {
	return s.call(ctx, func(st *state) {
		st.running = make(map[string]struct{})
		st.waiting = make(map[string]struct{})
		st.queue = nil
	})
}
