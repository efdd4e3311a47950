// Package config loads service configuration from a YAML file and
// BACKTEST_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BACKTEST_SCHEDULER_MAX_CONCURRENT.
const EnvPrefix = "BACKTEST"

// Config stores all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig defines admission control.
type SchedulerConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// ProgressConfig defines the progress store sweep.
type ProgressConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// EngineConfig defines simulation tuning.
type EngineConfig struct {
	CheckpointInterval   int     `mapstructure:"checkpoint_interval"`
	EquityCurveMaxPoints int     `mapstructure:"equity_curve_max_points"`
	MinCapitalFloor      float64 `mapstructure:"min_capital_floor"`
	DefaultPositionPct   float64 `mapstructure:"default_position_pct"`
	GapTolerance         float64 `mapstructure:"gap_tolerance"`
	ImpactCoefficient    float64 `mapstructure:"impact_coefficient"`
}

// StorageConfig defines database connections.
type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	Migrate       bool   `mapstructure:"migrate"`
}

// LogConfig defines logger construction.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig defines Prometheus settings.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("scheduler.max_concurrent", 5)

	v.SetDefault("progress.ttl", 24*time.Hour)
	v.SetDefault("progress.sweep_interval", 60*time.Second)

	v.SetDefault("engine.checkpoint_interval", 1000)
	v.SetDefault("engine.equity_curve_max_points", 1000)
	v.SetDefault("engine.min_capital_floor", 10.0)
	v.SetDefault("engine.default_position_pct", 0.10)
	v.SetDefault("engine.gap_tolerance", 0.10)
	v.SetDefault("engine.impact_coefficient", 0.0)

	v.SetDefault("storage.use_memory", true)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.namespace", "backtest_lab")
}

// Load reads config.yaml from path (if present) and applies environment
// overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch {
	case c.Scheduler.MaxConcurrent <= 0:
		return errors.New("scheduler.max_concurrent must be positive")
	case c.Engine.DefaultPositionPct <= 0 || c.Engine.DefaultPositionPct > 1:
		return errors.New("engine.default_position_pct must be in (0, 1]")
	case !c.Storage.UseMemory && c.Storage.PostgresDSN == "":
		return errors.New("storage.postgres_dsn is required unless storage.use_memory is set")
	}
	return nil
}
