package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"backtest-lab/internal/domain"
)

// startPostgres runs a throwaway PostgreSQL container with the run schema
// applied. The container is terminated when the test ends.
func startPostgres(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("backtest"),
		tcpostgres.WithUsername("backtest"),
		tcpostgres.WithPassword("backtest"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// The migrations package depends on this one, so the schema is read from disk.
	files, err := filepath.Glob(filepath.Join("..", "migrations", "postgres", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no postgres migrations found")
	for _, f := range files {
		ddl, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(ddl))
		require.NoError(t, err, "apply %s", filepath.Base(f))
	}

	return pool
}

// createTestRun inserts a pending run so dependent rows satisfy foreign keys.
func createTestRun(t *testing.T, ctx context.Context, pool *Pool, id string, createdAt int64) *domain.Run {
	t.Helper()

	r := &domain.Run{
		ID:     id,
		Mode:   domain.RunModeBacktest,
		Status: domain.RunStatusPending,
		Config: domain.RunConfig{
			TradingPair:    "BTC/USDT",
			Exchange:       "binance",
			Timeframe:      "1h",
			StartTime:      1704067200000,
			EndTime:        1706745600000,
			InitialCapital: 10000,
			CommissionRate: 0.001,
			SlippageBps:    5,
			Sizing:         domain.PositionSizing{Method: domain.SizingPercentage, Percentage: 0.1},
			Strategy:       domain.StrategyDef{Name: "sma_cross", Params: map[string]float64{"fast": 10, "slow": 30}},
		},
		CreatedAt: createdAt,
	}
	require.NoError(t, NewRunStore(pool).Insert(ctx, r))
	return r
}
