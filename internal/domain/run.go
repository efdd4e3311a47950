package domain

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Run status constants.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunModeBacktest is the only supported run mode.
const RunModeBacktest = "backtest"

// allowedTransitions is the run lifecycle state machine.
var allowedTransitions = map[RunStatus][]RunStatus{
	RunStatusPending: {RunStatusQueued, RunStatusRunning, RunStatusCancelled, RunStatusError},
	RunStatusQueued:  {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning: {RunStatusCompleted, RunStatusError, RunStatusCancelled},
}

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError || s == RunStatusCancelled
}

// CanTransition reports whether s -> to is a legal lifecycle transition.
func (s RunStatus) CanTransition(to RunStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Position sizing methods.
const (
	SizingPercentage = "percentage"
	SizingFixed      = "fixed"
)

// PositionSizing selects how much quote capital an entry commits.
type PositionSizing struct {
	Method      string  `json:"method"`                 // percentage | fixed
	Percentage  float64 `json:"percentage,omitempty"`   // fraction of available capital
	FixedAmount float64 `json:"fixed_amount,omitempty"` // quote amount per entry
}

// StrategyDef is the opaque rule set handed to the rule evaluator.
type StrategyDef struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params,omitempty"`
}

// RunConfig holds the parameters of a single backtest.
type RunConfig struct {
	TradingPair    string         `json:"trading_pair"`
	Exchange       string         `json:"exchange"`
	Timeframe      string         `json:"timeframe"`
	StartTime      int64          `json:"start_time"` // ms
	EndTime        int64          `json:"end_time"`   // ms
	InitialCapital float64        `json:"initial_capital"`
	CommissionRate float64        `json:"commission_rate"`
	SlippageBps    float64        `json:"slippage_bps"`
	Sizing         PositionSizing `json:"sizing"`
	Strategy       StrategyDef    `json:"strategy"`
}

// Checkpoint is a mid-run snapshot persisted for crash diagnosis.
type Checkpoint struct {
	BarsProcessed   int     `json:"bars_processed"`
	TotalBars       int     `json:"total_bars"`
	LastEquity      float64 `json:"last_equity"`
	CompletedTrades int     `json:"completed_trades"`
	TimestampMs     int64   `json:"timestamp_ms"`
}

// Run is one backtest execution (a session).
type Run struct {
	ID            string
	Mode          string
	Status        RunStatus
	Config        RunConfig
	Checkpoint    *Checkpoint // nil until the first checkpoint
	QueuePosition int         // 1-based while queued, 0 otherwise
	ErrorMessage  string
	Warnings      []string // data-quality warnings from the last execution
	CreatedAt     int64    // ms
	StartedAt     int64    // ms, 0 until running
	EndedAt       int64    // ms, 0 until terminal
}
