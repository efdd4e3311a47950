package domain

// Signal is the rule evaluator's decision for one bar.
type Signal struct {
	Entry   bool
	Exit    bool
	Stop    bool
	Context map[string]float64 // indicator values, informational
}

// PositionContext describes the open position to the rule evaluator.
// All fields are zero when flat. EntryPrice is the per-unit cost basis,
// commission included, so UnrealizedPnL matches what a close would realize
// before exit costs.
type PositionContext struct {
	HasPosition      bool
	Quantity         float64
	EntryPrice       float64
	CurrentPrice     float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
}

// SignalRecord is one fired signal in a run's result.
type SignalRecord struct {
	TimestampMs int64     `json:"timestamp_ms"`
	BarIndex    int       `json:"bar_index"`
	Kind        TradeKind `json:"kind"`
	Price       float64   `json:"price"`
	Executed    bool      `json:"executed"`
}
