package domain

// Side is the direction of a fill.
type Side string

// Fill sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionSide is the direction of an open position.
type PositionSide string

// Position sides.
const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// TradeKind classifies a simulated fill.
type TradeKind string

// Trade kinds.
const (
	TradeEntry TradeKind = "entry"
	TradeExit  TradeKind = "exit"
	TradeStop  TradeKind = "stop"
)

// Position is the single open position of a run.
type Position struct {
	Symbol      string
	Side        PositionSide
	EntryPrice  float64
	Quantity    float64
	EntryTimeMs int64
}

// ClosedPosition is a Position after exit. Immutable once recorded.
type ClosedPosition struct {
	Position
	ExitPrice   float64
	ExitTimeMs  int64
	RealizedPnL float64
}

// Trade is one simulated fill.
// Entry trades always carry PnL = 0.
type Trade struct {
	TradeID string `json:"trade_id"` // deterministic hash
	RunID   string `json:"run_id"`
	Seq     int    `json:"seq"` // 0-based order within the run

	Kind        TradeKind `json:"kind"`
	Side        Side      `json:"side"`
	TimestampMs int64     `json:"timestamp_ms"`

	RequestedPrice    float64 `json:"requested_price"`
	ExecutedPrice     float64 `json:"executed_price"`
	RequestedQuantity float64 `json:"requested_quantity"`
	NetQuantity       float64 `json:"net_quantity"`
	Commission        float64 `json:"commission"`
	Slippage          float64 `json:"slippage"` // per-unit price slippage

	// Exit analytics. EntryPrice and ExitPrice are executed fill prices;
	// PnL and PnLPct are net of both commissions and measured against the
	// entry's cost basis. Entries set only EntryPrice, to their own fill.
	PnL               float64 `json:"pnl"`
	PnLPct            float64 `json:"pnl_pct"`
	HoldingDurationMs int64   `json:"holding_duration_ms"`
	EntryPrice        float64 `json:"entry_price"`
	ExitPrice         float64 `json:"exit_price"`
}

// IsExit reports whether the trade closes a position.
func (t *Trade) IsExit() bool {
	return t.Kind == TradeExit || t.Kind == TradeStop
}

// EquityPoint is total equity at a bar.
type EquityPoint struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Equity      float64 `json:"equity"`
}
