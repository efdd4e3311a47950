// Package metrics computes performance statistics and equity curves for
// completed runs.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"backtest-lab/internal/domain"
)

// ProfitFactorCap is reported when there are winning trades and no losing ones.
const ProfitFactorCap = 999.99

// TradingDaysPerYear annualizes the Sharpe ratio. Period returns are
// treated as daily-equivalent samples.
const TradingDaysPerYear = 252

// Compute derives performance metrics from a run's trades and equity history.
// Trade statistics use exit trades only; entries carry no PnL. With no
// completed trades, trade statistics are nil rather than zero.
func Compute(trades []*domain.Trade, equity []domain.EquityPoint, initialCapital float64) *domain.PerformanceMetrics {
	finalEquity := initialCapital
	if len(equity) > 0 {
		finalEquity = equity[len(equity)-1].Equity
	}

	m := &domain.PerformanceMetrics{
		InitialCapital: initialCapital,
		FinalEquity:    finalEquity,
		TotalReturn:    computeTotalReturn(initialCapital, finalEquity),
		MaxDrawdown:    computeMaxDrawdown(equity),
		SharpeRatio:    computeSharpe(equity),
	}

	exits := exitTrades(trades)
	m.TotalTrades = len(exits)
	if len(exits) == 0 {
		return m
	}

	var wins, losses int
	var grossProfit, grossLoss float64
	var durationSum float64
	for _, t := range exits {
		switch {
		case t.PnL > 0:
			wins++
			grossProfit += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
		}
		durationSum += float64(t.HoldingDurationMs)
	}

	winRate := float64(wins) / float64(len(exits))
	profitFactor := computeProfitFactor(grossProfit, grossLoss)
	avgWin := safeDiv(grossProfit, float64(wins))
	avgLoss := safeDiv(grossLoss, float64(losses))
	avgDuration := durationSum / float64(len(exits))
	winStreak, lossStreak := computeStreaks(exits)

	m.WinningTrades = &wins
	m.LosingTrades = &losses
	m.WinRate = &winRate
	m.ProfitFactor = &profitFactor
	m.GrossProfit = &grossProfit
	m.GrossLoss = &grossLoss
	m.AverageWin = &avgWin
	m.AverageLoss = &avgLoss
	m.AverageTradeDurationMs = &avgDuration
	m.LongestWinStreak = &winStreak
	m.LongestLossStreak = &lossStreak

	return m
}

// exitTrades filters trades to exits and stops, preserving order.
func exitTrades(trades []*domain.Trade) []*domain.Trade {
	var out []*domain.Trade
	for _, t := range trades {
		if t != nil && t.IsExit() {
			out = append(out, t)
		}
	}
	return out
}

func computeTotalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// computeProfitFactor returns grossProfit / |grossLoss|.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return ProfitFactorCap
		}
		return 0
	}
	return grossProfit / math.Abs(grossLoss)
}

// computeMaxDrawdown returns the largest (peak - value) / peak along the path.
func computeMaxDrawdown(equity []domain.EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0].Equity
	maxDrawdown := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// periodReturns returns consecutive-point percentage returns.
// Steps from a non-positive value are skipped.
func periodReturns(equity []domain.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	return returns
}

// computeSharpe returns mean/stddev of period returns scaled by sqrt(252),
// using population statistics.
func computeSharpe(equity []domain.EquityPoint) float64 {
	returns := periodReturns(equity)
	if len(returns) < 2 {
		return 0
	}

	mean, variance := stat.PopMeanVariance(returns, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// computeStreaks scans exits forward. A breakeven trade resets both streaks.
func computeStreaks(exits []*domain.Trade) (longestWin, longestLoss int) {
	var win, loss int
	for _, t := range exits {
		switch {
		case t.PnL > 0:
			win++
			loss = 0
		case t.PnL < 0:
			loss++
			win = 0
		default:
			win, loss = 0, 0
		}
		if win > longestWin {
			longestWin = win
		}
		if loss > longestLoss {
			longestLoss = loss
		}
	}
	return longestWin, longestLoss
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
