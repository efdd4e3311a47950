package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) (err error) {
	if len(trades) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("trade_insert_bulk", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (
			trade_id, run_id, seq, kind, side, timestamp_ms,
			requested_price, executed_price, requested_quantity, net_quantity,
			commission, slippage,
			pnl, pnl_pct, holding_duration_ms, entry_price, exit_price
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12,
			$13, $14, $15, $16, $17
		)
	`

	batch := &pgx.Batch{}
	for _, t := range trades {
		if t == nil || t.TradeID == "" || t.RunID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query,
			t.TradeID, t.RunID, t.Seq, string(t.Kind), string(t.Side), t.TimestampMs,
			t.RequestedPrice, t.ExecutedPrice, t.RequestedQuantity, t.NetQuantity,
			t.Commission, t.Slippage,
			t.PnL, t.PnLPct, t.HoldingDurationMs, t.EntryPrice, t.ExitPrice,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range trades {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			if isForeignKeyError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("insert trade in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRunID retrieves all trades of a run, ordered by seq ASC.
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) (trades []*domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_get_by_run", start, err) }(time.Now())

	query := `
		SELECT
			trade_id, run_id, seq, kind, side, timestamp_ms,
			requested_price, executed_price, requested_quantity, net_quantity,
			commission, slippage,
			pnl, pnl_pct, holding_duration_ms, entry_price, exit_price
		FROM trades
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades by run id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Trade
		var kind, side string
		err := rows.Scan(
			&t.TradeID, &t.RunID, &t.Seq, &kind, &side, &t.TimestampMs,
			&t.RequestedPrice, &t.ExecutedPrice, &t.RequestedQuantity, &t.NetQuantity,
			&t.Commission, &t.Slippage,
			&t.PnL, &t.PnLPct, &t.HoldingDurationMs, &t.EntryPrice, &t.ExitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Kind = domain.TradeKind(kind)
		t.Side = domain.Side(side)
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}
