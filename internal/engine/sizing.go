package engine

import (
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// SizingPolicy decides the quote amount committed by an entry.
type SizingPolicy interface {
	// Size returns the quote amount to spend given available capital.
	// The result never exceeds available.
	Size(available float64) float64
}

// PercentOfCapital spends a fixed fraction of available capital.
type PercentOfCapital struct {
	Fraction float64
}

// Size implements SizingPolicy.
func (p PercentOfCapital) Size(available float64) float64 {
	if available <= 0 {
		return 0
	}
	return available * p.Fraction
}

// FixedAmount spends a constant quote amount, capped by available capital.
type FixedAmount struct {
	Amount float64
}

// Size implements SizingPolicy.
func (f FixedAmount) Size(available float64) float64 {
	if available <= 0 {
		return 0
	}
	return math.Min(f.Amount, available)
}

// SizingFromConfig builds the policy selected by a run's sizing config.
func SizingFromConfig(s domain.PositionSizing) (SizingPolicy, error) {
	switch s.Method {
	case domain.SizingPercentage, "":
		pct := s.Percentage
		if pct == 0 {
			pct = DefaultPositionPct
		}
		if pct < 0 || pct > 1 {
			return nil, fmt.Errorf("%w: sizing percentage must be in (0, 1]", ErrConfig)
		}
		return PercentOfCapital{Fraction: pct}, nil
	case domain.SizingFixed:
		if s.FixedAmount <= 0 {
			return nil, fmt.Errorf("%w: fixed sizing requires a positive fixed_amount", ErrConfig)
		}
		return FixedAmount{Amount: s.FixedAmount}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sizing method %q", ErrConfig, s.Method)
	}
}
