package engine

import "errors"

// Fatal errors abort a run before any trade is simulated.
var (
	ErrConfig           = errors.New("invalid run config")
	ErrData             = errors.New("historical data unavailable")
	ErrInsufficientData = errors.New("not enough bars for indicator warm-up")
	ErrCancelled        = errors.New("run cancelled")
)

// Per-bar errors are logged and never returned from Run.
var (
	ErrSignalEvaluation    = errors.New("signal evaluation failed")
	ErrExecution           = errors.New("fill simulation failed")
	ErrInsufficientCapital = errors.New("available capital below entry threshold")
)
