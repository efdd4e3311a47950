package domain

// PerformanceMetrics is the derived snapshot of a completed run.
// Pointer fields are nil ("not applicable") when the run has no completed trades.
type PerformanceMetrics struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalTrades    int     `json:"total_trades"` // completed (exit) trades

	WinningTrades          *int     `json:"winning_trades"`
	LosingTrades           *int     `json:"losing_trades"`
	WinRate                *float64 `json:"win_rate"`
	ProfitFactor           *float64 `json:"profit_factor"`
	GrossProfit            *float64 `json:"gross_profit"`
	GrossLoss              *float64 `json:"gross_loss"`
	AverageWin             *float64 `json:"average_win"`
	AverageLoss            *float64 `json:"average_loss"`
	AverageTradeDurationMs *float64 `json:"average_trade_duration_ms"`
	LongestWinStreak       *int     `json:"longest_win_streak"`
	LongestLossStreak      *int     `json:"longest_loss_streak"`
}

// RunResult is the composite output of a completed run.
type RunResult struct {
	RunID         string              `json:"run_id"`
	Trades        []*Trade            `json:"trades"`
	Metrics       *PerformanceMetrics `json:"metrics"`
	EquityCurve   []EquityPoint       `json:"equity_curve"`
	Signals       []SignalRecord      `json:"signals,omitempty"`
	Config        RunConfig           `json:"config"`
	Warnings      []string            `json:"warnings,omitempty"`
	BarsProcessed int                 `json:"bars_processed"`
	TotalBars     int                 `json:"total_bars"`
}
