// Package strategy provides the built-in rule evaluator used by the engine.
package strategy

import (
	"context"

	"backtest-lab/internal/domain"
)

// Rule produces entry and exit decisions from bar history.
type Rule interface {
	// Signal evaluates the newest bar of history, which always holds
	// more than WarmupBars() bars.
	Signal(history []domain.Bar) (entry, exit bool, indicators map[string]float64)

	// WarmupBars returns how many bars precede the first evaluable one.
	WarmupBars() int

	// ID returns rule identifier (includes parameters).
	ID() string
}

// Evaluator resolves a StrategyDef to a Rule plus risk limits and
// evaluates it bar by bar. It is stateless and safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates the built-in evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Validate reports whether def names a known rule with valid parameters.
func (e *Evaluator) Validate(def domain.StrategyDef) error {
	_, _, err := FromDef(def)
	return err
}

// MinimumWarmupBars returns the rule's warm-up requirement, or 0 for an invalid def.
func (e *Evaluator) MinimumWarmupBars(def domain.StrategyDef) int {
	rule, _, err := FromDef(def)
	if err != nil {
		return 0
	}
	return rule.WarmupBars()
}

// Evaluate returns the signal for current given history up to and including it.
// Stop fires when the open position breaches its stop loss; take profit
// raises Exit alongside the rule's own exit.
func (e *Evaluator) Evaluate(ctx context.Context, def domain.StrategyDef, history []domain.Bar, current domain.Bar, pos domain.PositionContext) (domain.Signal, error) {
	if err := ctx.Err(); err != nil {
		return domain.Signal{}, err
	}

	rule, risk, err := FromDef(def)
	if err != nil {
		return domain.Signal{}, err
	}
	if len(history) <= rule.WarmupBars() {
		return domain.Signal{}, ErrNotEnoughHistory
	}
	if history[len(history)-1].TimestampMs != current.TimestampMs {
		return domain.Signal{}, ErrHistoryMismatch
	}

	entry, exit, indicators := rule.Signal(history)
	sig := domain.Signal{Entry: entry, Exit: exit, Context: indicators}

	if pos.HasPosition {
		sig.Stop = risk.stopHit(pos)
		sig.Exit = sig.Exit || risk.targetHit(pos)
	}
	return sig, nil
}

// RiskLimits are optional position-level exits shared by all rules.
// Percentages are fractions of the entry cost (0.05 = 5%). Zero disables a limit.
type RiskLimits struct {
	StopLossPct   float64
	TakeProfitPct float64
}

func (r RiskLimits) stopHit(pos domain.PositionContext) bool {
	return r.StopLossPct > 0 && pos.UnrealizedPnLPct <= -r.StopLossPct*100
}

func (r RiskLimits) targetHit(pos domain.PositionContext) bool {
	return r.TakeProfitPct > 0 && pos.UnrealizedPnLPct >= r.TakeProfitPct*100
}
