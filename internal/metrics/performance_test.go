package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
)

func exit(pnl float64, holdMs int64) *domain.Trade {
	return &domain.Trade{Kind: domain.TradeExit, Side: domain.SideSell, PnL: pnl, HoldingDurationMs: holdMs}
}

func entry() *domain.Trade {
	return &domain.Trade{Kind: domain.TradeEntry, Side: domain.SideBuy}
}

func curve(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{TimestampMs: int64(i) * 3600_000, Equity: v}
	}
	return out
}

func TestCompute_TradeStatistics(t *testing.T) {
	trades := []*domain.Trade{
		entry(), exit(100, 1000),
		entry(), exit(50, 3000),
		entry(), exit(-40, 2000),
		entry(), exit(0, 2000),
		entry(), exit(-10, 2000),
	}
	m := Compute(trades, curve(1000, 1100, 1150, 1110, 1110, 1100), 1000)

	assert.Equal(t, 5, m.TotalTrades)
	require.NotNil(t, m.WinningTrades)
	assert.Equal(t, 2, *m.WinningTrades)
	assert.Equal(t, 2, *m.LosingTrades)
	assert.InDelta(t, 0.4, *m.WinRate, 1e-12)
	assert.InDelta(t, 150.0, *m.GrossProfit, 1e-12)
	assert.InDelta(t, -50.0, *m.GrossLoss, 1e-12)
	assert.InDelta(t, 3.0, *m.ProfitFactor, 1e-12)
	assert.InDelta(t, 75.0, *m.AverageWin, 1e-12)
	assert.InDelta(t, -25.0, *m.AverageLoss, 1e-12)
	assert.InDelta(t, 2000.0, *m.AverageTradeDurationMs, 1e-12)
	assert.Equal(t, 2, *m.LongestWinStreak)
	assert.Equal(t, 1, *m.LongestLossStreak)
	assert.InDelta(t, 0.1, m.TotalReturn, 1e-12)
	assert.Equal(t, 1100.0, m.FinalEquity)
}

func TestCompute_ProfitFactorCap(t *testing.T) {
	m := Compute([]*domain.Trade{exit(10, 0), exit(5, 0)}, curve(100, 115), 100)
	assert.Equal(t, ProfitFactorCap, *m.ProfitFactor)
	assert.Equal(t, 0.0, *m.AverageLoss)
	assert.Equal(t, 2, *m.LongestWinStreak)
	assert.Equal(t, 0, *m.LongestLossStreak)
}

func TestCompute_AllBreakeven(t *testing.T) {
	m := Compute([]*domain.Trade{exit(0, 0)}, curve(100, 100), 100)
	assert.Equal(t, 0.0, *m.ProfitFactor)
	assert.Equal(t, 0.0, *m.WinRate)
}

func TestCompute_ZeroTradesOpenPosition(t *testing.T) {
	// Entry only: position held open across the whole run.
	trades := []*domain.Trade{entry()}
	equity := curve(1000, 1020, 990, 1050, 1010)

	m := Compute(trades, equity, 1000)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Nil(t, m.WinRate)
	assert.Nil(t, m.ProfitFactor)
	assert.Nil(t, m.WinningTrades)
	assert.Nil(t, m.LongestWinStreak)

	assert.InDelta(t, (1050.0-1010.0)/1050.0, m.MaxDrawdown, 1e-12)
	assert.NotZero(t, m.SharpeRatio)
	assert.InDelta(t, 0.01, m.TotalReturn, 1e-12)
}

func TestCompute_EmptyEquity(t *testing.T) {
	m := Compute(nil, nil, 500)
	assert.Equal(t, 500.0, m.FinalEquity)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestComputeMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"monotonic up", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.2},
		{"deeper second dip", []float64{100, 90, 200, 100}, 0.5},
		{"single point", []float64{100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, computeMaxDrawdown(curve(tt.values...)), 1e-12)
		})
	}
}

func TestComputeSharpe(t *testing.T) {
	t.Run("flat curve", func(t *testing.T) {
		assert.Equal(t, 0.0, computeSharpe(curve(100, 100, 100)))
	})
	t.Run("single return", func(t *testing.T) {
		assert.Equal(t, 0.0, computeSharpe(curve(100, 110)))
	})
	t.Run("population statistics", func(t *testing.T) {
		// Returns +10% and -10%: mean 0, so Sharpe is 0.
		assert.InDelta(t, 0.0, computeSharpe(curve(100, 110, 99)), 1e-12)

		// Returns 0.1 and 0.2: mean 0.15, population std 0.05.
		got := computeSharpe(curve(100, 110, 132))
		assert.InDelta(t, 3*math.Sqrt(252), got, 1e-9)
	})
}
