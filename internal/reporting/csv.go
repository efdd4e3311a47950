package reporting

import (
	"fmt"
	"strings"

	"backtest-lab/internal/domain"
)

// RenderTradesCSV renders trades as CSV string.
func RenderTradesCSV(trades []*domain.Trade) string {
	var sb strings.Builder

	// Header
	sb.WriteString("seq,trade_id,kind,side,timestamp_ms,requested_price,executed_price,")
	sb.WriteString("requested_quantity,net_quantity,commission,slippage,")
	sb.WriteString("pnl,pnl_pct,holding_duration_ms,entry_price,exit_price\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%d,%.8f,%.8f,%.8f,%.8f,%.8f,%.8f,%.8f,%.4f,%d,%.8f,%.8f\n",
			t.Seq,
			t.TradeID,
			t.Kind,
			t.Side,
			t.TimestampMs,
			t.RequestedPrice,
			t.ExecutedPrice,
			t.RequestedQuantity,
			t.NetQuantity,
			t.Commission,
			t.Slippage,
			t.PnL,
			t.PnLPct,
			t.HoldingDurationMs,
			t.EntryPrice,
			t.ExitPrice,
		))
	}

	return sb.String()
}

// RenderEquityCSV renders an equity curve as CSV string.
func RenderEquityCSV(points []domain.EquityPoint) string {
	var sb strings.Builder
	sb.WriteString("timestamp_ms,equity\n")
	for _, p := range points {
		sb.WriteString(fmt.Sprintf("%d,%.8f\n", p.TimestampMs, p.Equity))
	}
	return sb.String()
}
