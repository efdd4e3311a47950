package strategy

import (
	"fmt"

	"backtest-lab/internal/domain"
)

// SMACrossRule enters when the fast simple moving average of closes
// crosses above the slow one and exits on the opposite cross.
type SMACrossRule struct {
	Fast int
	Slow int
}

// NewSMACrossRule creates a new SMACrossRule.
func NewSMACrossRule(fast, slow int) *SMACrossRule {
	return &SMACrossRule{Fast: fast, Slow: slow}
}

// ID returns rule identifier.
func (r *SMACrossRule) ID() string {
	return fmt.Sprintf("SMA_CROSS_%d_%d", r.Fast, r.Slow)
}

// WarmupBars needs a full slow window on the previous bar to detect a cross.
func (r *SMACrossRule) WarmupBars() int {
	return r.Slow
}

// Signal implements Rule.
func (r *SMACrossRule) Signal(history []domain.Bar) (entry, exit bool, indicators map[string]float64) {
	n := len(history)
	fastNow := smaClose(history[n-r.Fast:])
	slowNow := smaClose(history[n-r.Slow:])
	fastPrev := smaClose(history[n-1-r.Fast : n-1])
	slowPrev := smaClose(history[n-1-r.Slow : n-1])

	entry = fastPrev <= slowPrev && fastNow > slowNow
	exit = fastPrev >= slowPrev && fastNow < slowNow

	return entry, exit, map[string]float64{
		"sma_fast": fastNow,
		"sma_slow": slowNow,
	}
}
