package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
)

func closes(values ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(values))
	for i, v := range values {
		bars[i] = domain.Bar{
			TimestampMs: int64(i) * 60_000,
			Open:        v,
			High:        v + 1,
			Low:         v - 1,
			Close:       v,
			Volume:      10,
		}
	}
	return bars
}

func smaDef(fast, slow float64) domain.StrategyDef {
	return domain.StrategyDef{Name: RuleSMACross, Params: map[string]float64{"fast": fast, "slow": slow}}
}

func TestFromDef(t *testing.T) {
	tests := []struct {
		name    string
		def     domain.StrategyDef
		wantID  string
		wantErr error
	}{
		{"sma defaults", domain.StrategyDef{Name: RuleSMACross}, "SMA_CROSS_10_30", nil},
		{"sma explicit", smaDef(2, 5), "SMA_CROSS_2_5", nil},
		{"sma fast not below slow", smaDef(5, 5), "", ErrInvalidSMAPeriods},
		{"sma zero fast", smaDef(0, 5), "", ErrInvalidSMAPeriods},
		{"breakout defaults", domain.StrategyDef{Name: RuleBreakout}, "BREAKOUT_20", nil},
		{"breakout zero lookback", domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{"lookback": 0}}, "", ErrInvalidLookback},
		{"unknown", domain.StrategyDef{Name: "martingale"}, "", ErrUnknownRule},
		{"bad stop loss", domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{"stop_loss_pct": 1.5}}, "", ErrInvalidRiskLimit},
		{"negative take profit", domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{"take_profit_pct": -0.1}}, "", ErrInvalidRiskLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, _, err := FromDef(tt.def)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, rule.ID())
		})
	}
}

func TestEvaluator_WarmupAndValidate(t *testing.T) {
	e := NewEvaluator()

	assert.Equal(t, 5, e.MinimumWarmupBars(smaDef(2, 5)))
	assert.Equal(t, 3, e.MinimumWarmupBars(domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{"lookback": 3}}))
	assert.Zero(t, e.MinimumWarmupBars(domain.StrategyDef{Name: "nope"}))

	assert.NoError(t, e.Validate(smaDef(2, 5)))
	assert.ErrorIs(t, e.Validate(domain.StrategyDef{Name: "nope"}), ErrUnknownRule)
}

func TestEvaluator_SMACross(t *testing.T) {
	e := NewEvaluator()
	def := smaDef(2, 4)
	ctx := context.Background()

	// Falling then sharply rising: fast crosses above slow at the last bar.
	up := closes(10, 9, 8, 7, 6, 12)
	sig, err := e.Evaluate(ctx, def, up, up[len(up)-1], domain.PositionContext{})
	require.NoError(t, err)
	assert.True(t, sig.Entry)
	assert.False(t, sig.Exit)
	assert.InDelta(t, 9.0, sig.Context["sma_fast"], 1e-9)
	assert.InDelta(t, 8.25, sig.Context["sma_slow"], 1e-9)

	// Rising then sharply falling: fast crosses below slow.
	down := closes(6, 7, 8, 9, 10, 4)
	sig, err = e.Evaluate(ctx, def, down, down[len(down)-1], domain.PositionContext{})
	require.NoError(t, err)
	assert.False(t, sig.Entry)
	assert.True(t, sig.Exit)

	// Steady trend: no cross.
	flat := closes(1, 2, 3, 4, 5, 6)
	sig, err = e.Evaluate(ctx, def, flat, flat[len(flat)-1], domain.PositionContext{})
	require.NoError(t, err)
	assert.False(t, sig.Entry)
	assert.False(t, sig.Exit)
}

func TestEvaluator_Breakout(t *testing.T) {
	e := NewEvaluator()
	def := domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{"lookback": 3}}
	ctx := context.Background()

	bars := closes(10, 11, 10, 13)
	sig, err := e.Evaluate(ctx, def, bars, bars[3], domain.PositionContext{})
	require.NoError(t, err)
	assert.True(t, sig.Entry) // 13 > max high 12
	assert.Equal(t, 12.0, sig.Context["channel_high"])
	assert.Equal(t, 9.0, sig.Context["channel_low"])

	bars = closes(10, 11, 10, 8)
	sig, err = e.Evaluate(ctx, def, bars, bars[3], domain.PositionContext{})
	require.NoError(t, err)
	assert.False(t, sig.Entry)
	assert.True(t, sig.Exit) // 8 < min low 9
}

func TestEvaluator_RiskLimits(t *testing.T) {
	e := NewEvaluator()
	def := domain.StrategyDef{Name: RuleBreakout, Params: map[string]float64{
		"lookback":        3,
		"stop_loss_pct":   0.05,
		"take_profit_pct": 0.10,
	}}
	bars := closes(10, 10, 10, 10)
	ctx := context.Background()

	tests := []struct {
		name     string
		pos      domain.PositionContext
		wantStop bool
		wantExit bool
	}{
		{"flat ignores limits", domain.PositionContext{UnrealizedPnLPct: -50}, false, false},
		{"inside band", domain.PositionContext{HasPosition: true, UnrealizedPnLPct: 2}, false, false},
		{"stop at threshold", domain.PositionContext{HasPosition: true, UnrealizedPnLPct: -5}, true, false},
		{"take profit", domain.PositionContext{HasPosition: true, UnrealizedPnLPct: 12}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := e.Evaluate(ctx, def, bars, bars[3], tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStop, sig.Stop)
			assert.Equal(t, tt.wantExit, sig.Exit)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	e := NewEvaluator()
	def := smaDef(2, 4)
	bars := closes(1, 2, 3, 4, 5)

	_, err := e.Evaluate(context.Background(), def, bars[:4], bars[3], domain.PositionContext{})
	assert.ErrorIs(t, err, ErrNotEnoughHistory)

	_, err = e.Evaluate(context.Background(), def, bars, bars[2], domain.PositionContext{})
	assert.ErrorIs(t, err, ErrHistoryMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, def, bars, bars[4], domain.PositionContext{})
	assert.True(t, errors.Is(err, context.Canceled))
}
