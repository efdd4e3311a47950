package strategy

import (
	"errors"
	"fmt"

	"backtest-lab/internal/domain"
)

// Rule names.
const (
	RuleSMACross = "sma_cross"
	RuleBreakout = "breakout"
)

// Factory and evaluation errors
var (
	ErrUnknownRule       = errors.New("unknown strategy rule")
	ErrInvalidSMAPeriods = errors.New("sma_cross requires 0 < fast < slow")
	ErrInvalidLookback   = errors.New("breakout requires lookback >= 1")
	ErrInvalidRiskLimit  = errors.New("stop_loss_pct and take_profit_pct must be in [0, 1)")
	ErrNotEnoughHistory  = errors.New("history shorter than warm-up")
	ErrHistoryMismatch   = errors.New("current bar is not the last history bar")
)

// Parameter defaults.
const (
	DefaultFastPeriod = 10
	DefaultSlowPeriod = 30
	DefaultLookback   = 20
)

// FromDef creates a Rule and its risk limits from a StrategyDef.
// Validates parameters per rule and returns clear errors for invalid ones.
func FromDef(def domain.StrategyDef) (Rule, RiskLimits, error) {
	risk, err := riskFromParams(def.Params)
	if err != nil {
		return nil, RiskLimits{}, err
	}

	switch def.Name {
	case RuleSMACross:
		rule, err := fromSMACrossDef(def)
		return rule, risk, err
	case RuleBreakout:
		rule, err := fromBreakoutDef(def)
		return rule, risk, err
	default:
		return nil, RiskLimits{}, fmt.Errorf("%w: %q", ErrUnknownRule, def.Name)
	}
}

// fromSMACrossDef creates SMACrossRule from params fast and slow.
func fromSMACrossDef(def domain.StrategyDef) (*SMACrossRule, error) {
	fast := intParam(def.Params, "fast", DefaultFastPeriod)
	slow := intParam(def.Params, "slow", DefaultSlowPeriod)
	if fast <= 0 || slow <= fast {
		return nil, ErrInvalidSMAPeriods
	}
	return NewSMACrossRule(fast, slow), nil
}

// fromBreakoutDef creates BreakoutRule from param lookback.
func fromBreakoutDef(def domain.StrategyDef) (*BreakoutRule, error) {
	lookback := intParam(def.Params, "lookback", DefaultLookback)
	if lookback < 1 {
		return nil, ErrInvalidLookback
	}
	return NewBreakoutRule(lookback), nil
}

func riskFromParams(params map[string]float64) (RiskLimits, error) {
	r := RiskLimits{
		StopLossPct:   params["stop_loss_pct"],
		TakeProfitPct: params["take_profit_pct"],
	}
	if r.StopLossPct < 0 || r.StopLossPct >= 1 || r.TakeProfitPct < 0 || r.TakeProfitPct >= 1 {
		return RiskLimits{}, ErrInvalidRiskLimit
	}
	return r, nil
}

func intParam(params map[string]float64, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	return int(v)
}
