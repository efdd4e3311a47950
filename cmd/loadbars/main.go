// Package main loads OHLCV CSV files into the ClickHouse bars table.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/barcsv"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/migrations"
)

const batchSize = 10_000

func main() {
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (required)")
	exchange := flag.String("exchange", "binance", "Exchange of the series")
	pair := flag.String("pair", "", "Trading pair of the series (required)")
	timeframe := flag.String("timeframe", "1h", "Bar timeframe of the series")
	migrate := flag.Bool("migrate", true, "Apply ClickHouse migrations before loading")
	flag.Parse()

	logger, err := logging.New(config.LogConfig{Level: "info", Development: true})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *clickhouseDSN == "" || *pair == "" {
		logger.Fatal("--clickhouse-dsn and --pair are required")
	}
	if _, ok := domain.TimeframeSeconds(*timeframe); !ok {
		logger.Fatal("unsupported timeframe", zap.String("timeframe", *timeframe))
	}
	files := flag.Args()
	if len(files) == 0 {
		logger.Fatal("usage: loadbars [flags] file.csv [file.csv ...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conn *chstore.Conn
	if *migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, *clickhouseDSN)
	}
	if err != nil {
		logger.Fatal("connect to clickhouse", zap.Error(err))
	}
	defer conn.Close()

	store := chstore.NewBarStore(conn)
	series := storage.BarSeries{Exchange: *exchange, TradingPair: *pair, Timeframe: *timeframe}

	total := 0
	for _, path := range files {
		n, err := loadFile(ctx, store, series, path)
		if err != nil {
			logger.Fatal("load failed", zap.String("file", path), zap.Error(err))
		}
		logger.Info("file loaded", zap.String("file", path), zap.Int("bars", n))
		total += n
	}
	logger.Info("done", zap.Int("bars", total), zap.Int("files", len(files)))
}

// loadFile inserts the bars of one CSV file in batches and returns how many were written.
func loadFile(ctx context.Context, store storage.BarStore, series storage.BarSeries, path string) (int, error) {
	bars, err := barcsv.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for from := 0; from < len(bars); from += batchSize {
		to := min(from+batchSize, len(bars))
		if err := store.InsertBulk(ctx, series, bars[from:to]); err != nil {
			return from, err
		}
	}
	return len(bars), nil
}
