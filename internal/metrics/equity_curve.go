package metrics

import "backtest-lab/internal/domain"

// DefaultMaxCurvePoints caps sampled equity curves.
const DefaultMaxCurvePoints = 1000

// SampleEquityCurve downsamples points to at most maxPoints, keeping
// chronological order and the exact first and last points.
func SampleEquityCurve(points []domain.EquityPoint, maxPoints int) []domain.EquityPoint {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxCurvePoints
	}
	if maxPoints < 2 {
		maxPoints = 2
	}

	n := len(points)
	if n <= maxPoints {
		out := make([]domain.EquityPoint, n)
		copy(out, points)
		return out
	}

	rate := (n - 1) / (maxPoints - 1)
	if rate < 1 {
		rate = 1
	}

	interior := make([]domain.EquityPoint, 0, (n-2)/rate+1)
	for i := rate; i < n-1; i += rate {
		interior = append(interior, points[i])
	}

	// Integer stride can overshoot the budget; re-thin evenly.
	budget := maxPoints - 2
	if len(interior) > budget {
		thinned := make([]domain.EquityPoint, budget)
		for j := 0; j < budget; j++ {
			thinned[j] = interior[j*len(interior)/budget]
		}
		interior = thinned
	}

	out := make([]domain.EquityPoint, 0, len(interior)+2)
	out = append(out, points[0])
	out = append(out, interior...)
	out = append(out, points[n-1])
	return out
}
