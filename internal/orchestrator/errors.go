package orchestrator

import (
	"errors"
	"fmt"

	"backtest-lab/internal/domain"
)

// Orchestrator errors
var (
	// ErrCrashRecovery prefixes the error message of runs found orphaned at restart.
	ErrCrashRecovery = errors.New("crash recovery")

	// ErrInvalidTransition is returned when a lifecycle change is not allowed
	// from the run's current status.
	ErrInvalidTransition = errors.New("invalid run status transition")

	// ErrShuttingDown is returned when a run is started after Shutdown began.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// NotReadyError is returned by GetResult for runs that have not completed.
type NotReadyError struct {
	RunID  string
	Status domain.RunStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("run %s has no result: status %s", e.RunID, e.Status)
}
