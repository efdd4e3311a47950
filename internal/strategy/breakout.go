package strategy

import (
	"fmt"

	"backtest-lab/internal/domain"
)

// BreakoutRule enters when the close exceeds the highest high of the
// previous Lookback bars and exits when it falls below their lowest low.
type BreakoutRule struct {
	Lookback int
}

// NewBreakoutRule creates a new BreakoutRule.
func NewBreakoutRule(lookback int) *BreakoutRule {
	return &BreakoutRule{Lookback: lookback}
}

// ID returns rule identifier.
func (r *BreakoutRule) ID() string {
	return fmt.Sprintf("BREAKOUT_%d", r.Lookback)
}

// WarmupBars implements Rule.
func (r *BreakoutRule) WarmupBars() int {
	return r.Lookback
}

// Signal implements Rule.
func (r *BreakoutRule) Signal(history []domain.Bar) (entry, exit bool, indicators map[string]float64) {
	n := len(history)
	window := history[n-1-r.Lookback : n-1]
	upper := highestHigh(window)
	lower := lowestLow(window)
	price := history[n-1].Close

	return price > upper, price < lower, map[string]float64{
		"channel_high": upper,
		"channel_low":  lower,
	}
}
