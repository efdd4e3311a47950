package migrations

import (
	"context"

	"backtest-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Migrations are idempotent (CREATE ... IF NOT EXISTS).
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	_, err := applyDir(PostgresFS, "postgres", func(_, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	})
	return err
}
