package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backtest-lab/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func sampleResult() *domain.RunResult {
	return &domain.RunResult{
		RunID: "run-1",
		Config: domain.RunConfig{
			TradingPair:    "BTCUSDT",
			Exchange:       "binance",
			Timeframe:      "1h",
			StartTime:      1704067200000,
			EndTime:        1704153600000,
			InitialCapital: 10000,
			CommissionRate: 0.001,
			SlippageBps:    5,
			Strategy:       domain.StrategyDef{Name: "sma_cross", Params: map[string]float64{"slow": 30, "fast": 10}},
		},
		Trades: []*domain.Trade{
			{Seq: 0, TradeID: "a", Kind: domain.TradeEntry, Side: domain.SideBuy, TimestampMs: 1704067200000, ExecutedPrice: 100},
			{Seq: 1, TradeID: "b", Kind: domain.TradeStop, Side: domain.SideSell, TimestampMs: 1704074400000,
				PnL: -12.5, PnLPct: -1.25, HoldingDurationMs: 7_200_000, EntryPrice: 100, ExitPrice: 98.75},
		},
		Metrics: &domain.PerformanceMetrics{
			FinalEquity:  9987.5,
			TotalReturn:  -0.002,
			MaxDrawdown:  0.002,
			TotalTrades:  1,
			WinRate:      ptr(0.0),
			ProfitFactor: ptr(0.0),
		},
		EquityCurve: []domain.EquityPoint{{TimestampMs: 1704067200000, Equity: 10000}, {TimestampMs: 1704074400000, Equity: 9987.5}},
		Warnings:    []string{"data gap at bar 3"},
		TotalBars:   24,
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleResult(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"# Backtest Report: run-1",
		"Generated: 2024-01-02T00:00:00Z",
		"| Strategy | sma_cross (fast=10, slow=30) |",
		"| Total Return | -0.20% |",
		"| Win Rate | 0.00% |",
		"| Average Win | N/A |",
		"| Longest Win Streak | N/A |",
		"- data gap at bar 3",
		"| 1 | stop | 2024-01-01 02:00 | 100.0000 | 98.7500 | -12.50 | -1.25 | 2h0m0s |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_NoTrades(t *testing.T) {
	r := sampleResult()
	r.Trades = nil
	r.Warnings = nil
	md := RenderMarkdown(r, time.Now())

	if !strings.Contains(md, "No completed trades.") {
		t.Error("expected no-trades note")
	}
	if strings.Contains(md, "Data Quality Warnings") {
		t.Error("warnings section should be omitted")
	}
}

func TestRenderCSV(t *testing.T) {
	r := sampleResult()

	trades := strings.Split(strings.TrimSpace(RenderTradesCSV(r.Trades)), "\n")
	if len(trades) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(trades))
	}
	if !strings.HasPrefix(trades[0], "seq,trade_id,kind,side,") {
		t.Errorf("unexpected header: %s", trades[0])
	}
	if !strings.HasPrefix(trades[2], "1,b,stop,sell,1704074400000,") {
		t.Errorf("unexpected row: %s", trades[2])
	}

	equity := RenderEquityCSV(r.EquityCurve)
	if equity != "timestamp_ms,equity\n1704067200000,10000.00000000\n1704074400000,9987.50000000\n" {
		t.Errorf("unexpected equity csv:\n%s", equity)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := WriteFiles(dir, sampleResult(), time.Now()); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	for _, name := range []string{ReportFile, TradesFile, EquityFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s not written: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}
