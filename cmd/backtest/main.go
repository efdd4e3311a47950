// Package main runs a single backtest from the command line and prints
// its metrics as JSON. Bars come from a CSV file or from ClickHouse.
// With --report-dir it also writes a Markdown report and CSV exports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"backtest-lab/internal/barcsv"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/reporting"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/strategy"
)

func main() {
	// Data source
	csvPath := flag.String("csv", "", "OHLCV CSV file (timestamp,open,high,low,close,volume)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (used when --csv is empty)")

	// Run config
	pair := flag.String("pair", "", "Trading pair (required)")
	exchange := flag.String("exchange", engine.DefaultExchange, "Exchange")
	timeframe := flag.String("timeframe", engine.DefaultTimeframe, "Bar timeframe")
	start := flag.String("start", "", "Start time, RFC3339 or Unix ms (default: first bar)")
	end := flag.String("end", "", "End time, RFC3339 or Unix ms (default: last bar)")
	capital := flag.Float64("capital", engine.DefaultInitialCapital, "Initial capital")
	commission := flag.Float64("commission", engine.DefaultCommissionRate, "Commission rate")
	slippage := flag.Float64("slippage-bps", engine.DefaultSlippageBps, "Slippage in basis points")
	positionPct := flag.Float64("position-pct", engine.DefaultPositionPct, "Fraction of capital per entry")
	fixedAmount := flag.Float64("fixed-amount", 0, "Fixed quote amount per entry (overrides --position-pct)")

	// Strategy
	rule := flag.String("strategy", strategy.RuleSMACross, "Rule: sma_cross, breakout")
	params := flag.String("params", "", "Rule parameters, e.g. fast=10,slow=30,stop_loss_pct=0.05")

	// Output
	full := flag.Bool("full", false, "Print trades, signals and equity curve as well as metrics")
	reportDir := flag.String("report-dir", "", "Write report.md, trades.csv and equity.csv to this directory")
	verbose := flag.Bool("verbose", false, "Debug logging")

	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(config.LogConfig{Level: level, Development: true})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *pair == "" {
		logger.Fatal("--pair is required")
	}
	strategyParams, err := parseParams(*params)
	if err != nil {
		logger.Fatal("invalid --params", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := domain.RunConfig{
		TradingPair:    *pair,
		Exchange:       *exchange,
		Timeframe:      *timeframe,
		InitialCapital: *capital,
		CommissionRate: *commission,
		SlippageBps:    *slippage,
		Sizing:         domain.PositionSizing{Method: domain.SizingPercentage, Percentage: *positionPct},
		Strategy:       domain.StrategyDef{Name: *rule, Params: strategyParams},
	}
	if *fixedAmount > 0 {
		cfg.Sizing = domain.PositionSizing{Method: domain.SizingFixed, FixedAmount: *fixedAmount}
	}
	if cfg.StartTime, err = parseTime(*start); err != nil {
		logger.Fatal("invalid --start", zap.Error(err))
	}
	if cfg.EndTime, err = parseTime(*end); err != nil {
		logger.Fatal("invalid --end", zap.Error(err))
	}

	var data engine.MarketDataSource
	if *csvPath != "" {
		bars, err := barcsv.ReadFile(*csvPath)
		if err != nil {
			logger.Fatal("read csv", zap.Error(err))
		}
		if len(bars) == 0 {
			logger.Fatal("csv contains no bars")
		}
		if cfg.StartTime == 0 {
			cfg.StartTime = bars[0].TimestampMs
		}
		if cfg.EndTime == 0 {
			cfg.EndTime = bars[len(bars)-1].TimestampMs
		}
		data = barcsv.NewSource(bars)
	} else {
		if *clickhouseDSN == "" {
			logger.Fatal("--csv or --clickhouse-dsn is required")
		}
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatal("connect to clickhouse", zap.Error(err))
		}
		defer conn.Close()
		data = chstore.NewBarStore(conn)
	}

	eng := engine.New(engine.Options{
		Evaluator: strategy.NewEvaluator(),
		Data:      data,
		Logger:    logger,
	})

	started := time.Now()
	result, err := eng.Run(ctx, "cli", cfg)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
	logger.Info("backtest done", zap.Duration("elapsed", time.Since(started)))

	var out any = result.Metrics
	if *full {
		out = result
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal("encode result", zap.Error(err))
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	if *reportDir != "" {
		if err := reporting.WriteFiles(*reportDir, result, time.Now()); err != nil {
			logger.Fatal("write report", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "report written to", *reportDir)
	}
}

// parseParams parses "k=v,k=v" into strategy parameters.
func parseParams(s string) (map[string]float64, error) {
	params := make(map[string]float64)
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, kv := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", kv)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		params[key] = f
	}
	return params, nil
}

// parseTime accepts RFC3339 or Unix milliseconds. Empty means unset.
func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
