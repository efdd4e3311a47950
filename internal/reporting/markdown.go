package reporting

import (
	"fmt"
	"strings"
	"time"

	"backtest-lab/internal/domain"
)

// RenderMarkdown renders a run result as Markdown string.
func RenderMarkdown(r *domain.RunResult, generatedAt time.Time) string {
	var sb strings.Builder
	cfg := r.Config

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339)))

	// Configuration
	sb.WriteString("## Configuration\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Pair | %s |\n", cfg.TradingPair))
	sb.WriteString(fmt.Sprintf("| Exchange | %s |\n", cfg.Exchange))
	sb.WriteString(fmt.Sprintf("| Timeframe | %s |\n", cfg.Timeframe))
	sb.WriteString(fmt.Sprintf("| Range | %s → %s |\n", formatMs(cfg.StartTime), formatMs(cfg.EndTime)))
	sb.WriteString(fmt.Sprintf("| Strategy | %s%s |\n", cfg.Strategy.Name, formatParams(cfg.Strategy.Params)))
	sb.WriteString(fmt.Sprintf("| Initial Capital | %.2f |\n", cfg.InitialCapital))
	sb.WriteString(fmt.Sprintf("| Commission Rate | %.4f |\n", cfg.CommissionRate))
	sb.WriteString(fmt.Sprintf("| Slippage (bps) | %.2f |\n", cfg.SlippageBps))
	sb.WriteString(fmt.Sprintf("| Bars | %d |\n", r.TotalBars))
	sb.WriteString("\n")

	// Performance
	sb.WriteString("## Performance\n\n")
	if m := r.Metrics; m != nil {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Final Equity | %.2f |\n", m.FinalEquity))
		sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", m.TotalReturn*100))
		sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", m.MaxDrawdown*100))
		sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.3f |\n", m.SharpeRatio))
		sb.WriteString(fmt.Sprintf("| Completed Trades | %d |\n", m.TotalTrades))
		sb.WriteString(fmt.Sprintf("| Win Rate | %s |\n", pct(m.WinRate)))
		sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", num(m.ProfitFactor)))
		sb.WriteString(fmt.Sprintf("| Average Win | %s |\n", num(m.AverageWin)))
		sb.WriteString(fmt.Sprintf("| Average Loss | %s |\n", num(m.AverageLoss)))
		sb.WriteString(fmt.Sprintf("| Avg Trade Duration | %s |\n", duration(m.AverageTradeDurationMs)))
		sb.WriteString(fmt.Sprintf("| Longest Win Streak | %s |\n", count(m.LongestWinStreak)))
		sb.WriteString(fmt.Sprintf("| Longest Loss Streak | %s |\n", count(m.LongestLossStreak)))
	} else {
		sb.WriteString("No metrics available.\n")
	}
	sb.WriteString("\n")

	// Data quality
	if len(r.Warnings) > 0 {
		sb.WriteString("## Data Quality Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	// Trades
	sb.WriteString("## Trades\n\n")
	exits := 0
	for _, t := range r.Trades {
		if !t.IsExit() {
			continue
		}
		if exits == 0 {
			sb.WriteString("| # | Kind | Exit Time | Entry | Exit | PnL | PnL % | Held |\n")
			sb.WriteString("|---|------|-----------|-------|------|-----|-------|------|\n")
		}
		exits++
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.4f | %.4f | %.2f | %.2f | %s |\n",
			exits, t.Kind, formatMs(t.TimestampMs), t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPct,
			time.Duration(t.HoldingDurationMs)*time.Millisecond))
	}
	if exits == 0 {
		sb.WriteString("No completed trades.\n")
	}

	return sb.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func formatParams(params map[string]float64) string {
	if len(params) == 0 {
		return ""
	}
	keys := sortedKeys(params)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, params[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// N/A formatters for metrics that do not apply to runs without trades.

func pct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func num(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func count(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}

func duration(ms *float64) string {
	if ms == nil {
		return "N/A"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}
