package engine

import (
	"fmt"

	"backtest-lab/internal/domain"
)

// Run config defaults.
const (
	DefaultInitialCapital = 10000.0
	DefaultCommissionRate = 0.001
	DefaultSlippageBps    = 5.0
	DefaultTimeframe      = "1h"
	DefaultExchange       = "binance"
	DefaultPositionPct    = 0.10
)

// StrategyValidator is implemented by rule evaluators that can reject a
// strategy definition before a run is admitted.
type StrategyValidator interface {
	Validate(def domain.StrategyDef) error
}

// ApplyDefaults fills absent optional fields of cfg.
func ApplyDefaults(cfg domain.RunConfig) domain.RunConfig {
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = DefaultInitialCapital
	}
	if cfg.CommissionRate == 0 {
		cfg.CommissionRate = DefaultCommissionRate
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = DefaultTimeframe
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Sizing.Method == "" {
		cfg.Sizing.Method = domain.SizingPercentage
	}
	if cfg.Sizing.Method == domain.SizingPercentage && cfg.Sizing.Percentage == 0 {
		cfg.Sizing.Percentage = DefaultPositionPct
	}
	return cfg
}

// ValidateConfig checks a defaulted config. All failures wrap ErrConfig.
func ValidateConfig(cfg domain.RunConfig) error {
	switch {
	case cfg.TradingPair == "":
		return fmt.Errorf("%w: trading_pair is required", ErrConfig)
	case cfg.StartTime <= 0 || cfg.EndTime <= 0:
		return fmt.Errorf("%w: start_time and end_time are required", ErrConfig)
	case cfg.EndTime < cfg.StartTime:
		return fmt.Errorf("%w: end_time before start_time", ErrConfig)
	case cfg.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be positive", ErrConfig)
	case cfg.CommissionRate < 0 || cfg.CommissionRate >= 1:
		return fmt.Errorf("%w: commission_rate must be in [0, 1)", ErrConfig)
	case cfg.SlippageBps < 0 || cfg.SlippageBps >= 10_000:
		return fmt.Errorf("%w: slippage_bps must be in [0, 10000)", ErrConfig)
	}

	if _, ok := domain.TimeframeSeconds(cfg.Timeframe); !ok {
		return fmt.Errorf("%w: unsupported timeframe %q", ErrConfig, cfg.Timeframe)
	}
	if _, err := SizingFromConfig(cfg.Sizing); err != nil {
		return err
	}
	return nil
}
