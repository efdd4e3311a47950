// Package engine replays historical bars through a rule evaluator and
// simulates the resulting trades.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/fill"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/ledger"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
)

// Engine tuning defaults.
const (
	DefaultCheckpointInterval = 1000
	DefaultMinCapitalFloor    = 10.0
	DefaultGapTolerance       = 0.10
	minProgressInterval       = 100
	minCapitalFraction        = 0.001
	impactLookbackBars        = 20
)

// RuleEvaluator produces trading signals for a strategy definition.
// Implementations must not retain or mutate history.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, def domain.StrategyDef, history []domain.Bar, current domain.Bar, pos domain.PositionContext) (domain.Signal, error)
	MinimumWarmupBars(def domain.StrategyDef) int
}

// MarketDataSource supplies historical bars, oldest first.
type MarketDataSource interface {
	GetHistoricalBars(ctx context.Context, tradingPair, timeframe string, start, end int64, exchange string) ([]domain.Bar, error)
}

// ProgressReporter receives high-frequency progress updates.
type ProgressReporter interface {
	Init(runID string, totalBars int)
	Update(runID string, barsProcessed, totalBars int)
}

// CheckpointWriter persists periodic checkpoints.
type CheckpointWriter interface {
	UpdateCheckpoint(ctx context.Context, runID string, cp *domain.Checkpoint) error
}

// Options configures an Engine. Evaluator and Data are required.
type Options struct {
	Evaluator   RuleEvaluator
	Data        MarketDataSource
	Progress    ProgressReporter // optional
	Checkpoints CheckpointWriter // optional
	Logger      *zap.Logger

	CheckpointInterval   int     // bars between checkpoints
	EquityCurveMaxPoints int     // sampled curve budget
	MinCapitalFloor      float64 // quote units
	GapTolerance         float64 // fraction of expected bar spacing
	DefaultPositionPct   float64 // sizing when a config names none
	ImpactCoefficient    float64 // 0 disables the market impact model
}

// Engine runs backtests. It holds no per-run state and is safe for
// concurrent use by multiple runs.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Engine, filling unset tuning options with defaults.
func New(opts Options) *Engine {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = DefaultCheckpointInterval
	}
	if opts.EquityCurveMaxPoints <= 0 {
		opts.EquityCurveMaxPoints = metrics.DefaultMaxCurvePoints
	}
	if opts.MinCapitalFloor <= 0 {
		opts.MinCapitalFloor = DefaultMinCapitalFloor
	}
	if opts.GapTolerance <= 0 {
		opts.GapTolerance = DefaultGapTolerance
	}
	if opts.DefaultPositionPct <= 0 {
		opts.DefaultPositionPct = DefaultPositionPct
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger.Named("engine")}
}

// Validate applies defaults to cfg and checks it, including the strategy
// definition when the evaluator can validate it.
func (e *Engine) Validate(cfg domain.RunConfig) (domain.RunConfig, error) {
	sizing := cfg.Sizing.Method
	if (sizing == "" || sizing == domain.SizingPercentage) && cfg.Sizing.Percentage == 0 {
		cfg.Sizing.Method = domain.SizingPercentage
		cfg.Sizing.Percentage = e.opts.DefaultPositionPct
	}
	cfg = ApplyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	if v, ok := e.opts.Evaluator.(StrategyValidator); ok {
		if err := v.Validate(cfg.Strategy); err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	return cfg, nil
}

// run is the mutable state of one backtest.
type run struct {
	id       string
	cfg      domain.RunConfig
	bars     []domain.Bar
	ledger   *ledger.Ledger
	sizing   SizingPolicy
	minEntry float64
	logger   *zap.Logger

	trades    []*domain.Trade
	signals   []domain.SignalRecord
	equity    []domain.EquityPoint
	exits     int
	entryFill float64 // executed price of the open position's entry
}

// Run executes a backtest for cfg. Fatal problems are returned before any
// bar is processed; per-bar failures are logged and skipped. The context
// is checked on every bar and cancellation returns ErrCancelled.
func (e *Engine) Run(ctx context.Context, runID string, cfg domain.RunConfig) (*domain.RunResult, error) {
	cfg, err := e.Validate(cfg)
	if err != nil {
		return nil, err
	}
	sizing, err := SizingFromConfig(cfg.Sizing)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(zap.String("run_id", runID), zap.String("pair", cfg.TradingPair))

	bars, err := e.opts.Data.GetHistoricalBars(ctx, cfg.TradingPair, cfg.Timeframe, cfg.StartTime, cfg.EndTime, cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrData, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s %s", ErrData, cfg.TradingPair, cfg.Timeframe)
	}
	if err := checkOrdering(bars); err != nil {
		return nil, err
	}

	warmup := e.opts.Evaluator.MinimumWarmupBars(cfg.Strategy)
	if len(bars) < warmup {
		return nil, fmt.Errorf("%w: have %d bars, need at least %d", ErrInsufficientData, len(bars), warmup)
	}

	warnings := detectGaps(bars, cfg.Timeframe, e.opts.GapTolerance)
	for _, w := range warnings {
		logger.Warn("data quality", zap.String("warning", w))
	}

	r := &run{
		id:       runID,
		cfg:      cfg,
		bars:     bars,
		ledger:   ledger.New(cfg.InitialCapital),
		sizing:   sizing,
		minEntry: math.Max(minCapitalFraction*cfg.InitialCapital, e.opts.MinCapitalFloor),
		logger:   logger,
		equity:   make([]domain.EquityPoint, 0, len(bars)-warmup),
	}

	total := len(bars)
	progressEvery := max(minProgressInterval, total/100)
	if e.opts.Progress != nil {
		e.opts.Progress.Init(runID, total)
	}

	logger.Info("backtest started",
		zap.Int("total_bars", total),
		zap.Int("warmup_bars", warmup),
		zap.String("strategy", cfg.Strategy.Name),
	)

	reported := 0
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			observability.RecordBarsProcessed(i - reported)
			return nil, fmt.Errorf("%w at bar %d: %w", ErrCancelled, i, err)
		}

		if i >= warmup {
			e.step(ctx, r, i)
		}

		// Cadence is keyed on the bar index: index 1000 is the first checkpoint.
		processed := i + 1
		if i == 0 {
			continue
		}
		if e.opts.Progress != nil && i%progressEvery == 0 {
			e.opts.Progress.Update(runID, processed, total)
		}
		if i%e.opts.CheckpointInterval == 0 {
			e.checkpoint(ctx, r, processed, bar)
			observability.RecordBarsProcessed(processed - reported)
			reported = processed
		}
	}
	observability.RecordBarsProcessed(total - reported)

	if e.opts.Progress != nil {
		e.opts.Progress.Update(runID, total, total)
	}

	perf := metrics.Compute(r.trades, r.equity, cfg.InitialCapital)

	logger.Info("backtest finished",
		zap.Int("trades", len(r.trades)),
		zap.Int("completed_trades", r.exits),
		zap.Float64("final_equity", perf.FinalEquity),
		zap.Float64("total_return", perf.TotalReturn),
	)

	return &domain.RunResult{
		RunID:         runID,
		Trades:        r.trades,
		Metrics:       perf,
		EquityCurve:   metrics.SampleEquityCurve(r.equity, e.opts.EquityCurveMaxPoints),
		Signals:       r.signals,
		Config:        cfg,
		Warnings:      warnings,
		BarsProcessed: total,
		TotalBars:     total,
	}, nil
}

// step evaluates and acts on bar i, then records equity.
func (e *Engine) step(ctx context.Context, r *run, i int) {
	bar := r.bars[i]
	posCtx := r.ledger.PositionContext(bar.Close)

	sig, err := e.opts.Evaluator.Evaluate(ctx, r.cfg.Strategy, r.bars[:i+1], bar, posCtx)
	if err != nil {
		observability.RecordSignalError()
		r.logger.Warn("treating bar as no signal",
			zap.Int("bar_index", i),
			zap.Error(fmt.Errorf("%w: %w", ErrSignalEvaluation, err)),
		)
		sig = domain.Signal{}
	}

	switch {
	case posCtx.HasPosition && sig.Stop:
		e.exit(r, i, domain.TradeStop)
	case posCtx.HasPosition && sig.Exit:
		e.exit(r, i, domain.TradeExit)
	case !posCtx.HasPosition && sig.Entry:
		e.enter(r, i)
	}

	r.equity = append(r.equity, domain.EquityPoint{
		TimestampMs: bar.TimestampMs,
		Equity:      r.ledger.TotalEquity(bar.Close),
	})
}

// enter opens a long position sized by the run's policy.
func (e *Engine) enter(r *run, i int) {
	bar := r.bars[i]
	record := domain.SignalRecord{TimestampMs: bar.TimestampMs, BarIndex: i, Kind: domain.TradeEntry, Price: bar.Close}
	defer func() { r.signals = append(r.signals, record) }()

	available := r.ledger.AvailableCapital()
	if available < r.minEntry {
		r.logger.Debug("entry skipped",
			zap.Int("bar_index", i),
			zap.Float64("available", available),
			zap.Error(ErrInsufficientCapital),
		)
		return
	}

	amount := r.sizing.Size(available)
	res, err := fill.Execute(fill.Request{
		Side:           domain.SideBuy,
		Amount:         amount,
		Price:          bar.Close,
		CommissionRate: r.cfg.CommissionRate,
		SlippageBps:    r.cfg.SlippageBps,
		Liquidity:      e.liquidity(r, i),
	})
	if err != nil {
		r.logger.Warn("entry fill failed", zap.Int("bar_index", i), zap.Error(fmt.Errorf("%w: %w", ErrExecution, err)))
		return
	}

	// Cost basis includes commission so capital falls by exactly the amount spent.
	costBasis := res.TotalCost / res.NetQuantity
	if err := r.ledger.Open(r.cfg.TradingPair, domain.PositionLong, costBasis, res.NetQuantity, bar.TimestampMs); err != nil {
		r.logger.Warn("entry rejected by ledger", zap.Int("bar_index", i), zap.Error(fmt.Errorf("%w: %w", ErrExecution, err)))
		return
	}

	r.appendTrade(&domain.Trade{
		Kind:              domain.TradeEntry,
		Side:              domain.SideBuy,
		TimestampMs:       bar.TimestampMs,
		RequestedPrice:    res.RequestedPrice,
		ExecutedPrice:     res.ExecutedPrice,
		RequestedQuantity: res.GrossQuantity,
		NetQuantity:       res.NetQuantity,
		Commission:        res.Commission,
		Slippage:          res.SlippageAmount + res.MarketImpact,
		EntryPrice:        res.ExecutedPrice,
	})
	r.entryFill = res.ExecutedPrice
	record.Executed = true
}

// exit closes the open position with a sell of its full quantity.
func (e *Engine) exit(r *run, i int, kind domain.TradeKind) {
	bar := r.bars[i]
	record := domain.SignalRecord{TimestampMs: bar.TimestampMs, BarIndex: i, Kind: kind, Price: bar.Close}
	defer func() { r.signals = append(r.signals, record) }()

	pos := r.ledger.Position()
	res, err := fill.Execute(fill.Request{
		Side:           domain.SideSell,
		Amount:         pos.Quantity,
		Price:          bar.Close,
		CommissionRate: r.cfg.CommissionRate,
		SlippageBps:    r.cfg.SlippageBps,
		Liquidity:      e.liquidity(r, i),
	})
	if err != nil {
		r.logger.Warn("exit fill failed", zap.Int("bar_index", i), zap.Error(fmt.Errorf("%w: %w", ErrExecution, err)))
		return
	}

	// Closing at proceeds per unit makes realized PnL net of both commissions.
	exitBasis := res.Proceeds / pos.Quantity
	pnl, err := r.ledger.Close(exitBasis, bar.TimestampMs)
	if err != nil {
		r.logger.Warn("exit rejected by ledger", zap.Int("bar_index", i), zap.Error(fmt.Errorf("%w: %w", ErrExecution, err)))
		return
	}

	cost := pos.EntryPrice * pos.Quantity
	pnlPct := 0.0
	if cost > 0 {
		pnlPct = pnl / cost * 100
	}

	r.appendTrade(&domain.Trade{
		Kind:              kind,
		Side:              domain.SideSell,
		TimestampMs:       bar.TimestampMs,
		RequestedPrice:    res.RequestedPrice,
		ExecutedPrice:     res.ExecutedPrice,
		RequestedQuantity: res.GrossQuantity,
		NetQuantity:       res.NetQuantity,
		Commission:        res.Commission,
		Slippage:          res.SlippageAmount + res.MarketImpact,
		PnL:               pnl,
		PnLPct:            pnlPct,
		HoldingDurationMs: bar.TimestampMs - pos.EntryTimeMs,
		EntryPrice:        r.entryFill,
		ExitPrice:         res.ExecutedPrice,
	})
	r.entryFill = 0
	r.exits++
	record.Executed = true
}

func (r *run) appendTrade(t *domain.Trade) {
	t.RunID = r.id
	t.Seq = len(r.trades)
	t.TradeID = idhash.ComputeTradeID(r.id, t.Seq, string(t.Kind), t.TimestampMs)
	r.trades = append(r.trades, t)
	observability.RecordTrade(string(t.Kind))
}

// liquidity returns the impact model input for bar i, or nil when disabled.
func (e *Engine) liquidity(r *run, i int) *fill.Liquidity {
	if e.opts.ImpactCoefficient <= 0 {
		return nil
	}
	from := max(0, i-impactLookbackBars+1)
	sum := 0.0
	for _, b := range r.bars[from : i+1] {
		sum += b.Volume
	}
	avg := sum / float64(i+1-from)
	if avg <= 0 {
		return nil
	}
	return &fill.Liquidity{AverageVolume: avg, ImpactCoefficient: e.opts.ImpactCoefficient}
}

// checkpoint persists a snapshot. Failures are logged; the run continues.
func (e *Engine) checkpoint(ctx context.Context, r *run, processed int, bar domain.Bar) {
	if e.opts.Checkpoints == nil {
		return
	}
	cp := &domain.Checkpoint{
		BarsProcessed:   processed,
		TotalBars:       len(r.bars),
		LastEquity:      r.ledger.TotalEquity(bar.Close),
		CompletedTrades: r.exits,
		TimestampMs:     bar.TimestampMs,
	}
	if err := e.opts.Checkpoints.UpdateCheckpoint(ctx, r.id, cp); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("checkpoint write failed", zap.Int("bars_processed", processed), zap.Error(err))
	}
}
