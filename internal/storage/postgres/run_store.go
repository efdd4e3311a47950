package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	id, mode, status, config, checkpoint, queue_position,
	error_message, warnings, created_at, started_at, ended_at
`

// Insert adds a new run. Returns ErrDuplicateKey if the run ID exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) (err error) {
	defer func(start time.Time) { observe("run_insert", start, err) }(time.Now())

	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	config, checkpoint, warnings, err := encodeRunJSON(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (
			id, mode, status, trading_pair, config, checkpoint, queue_position,
			error_message, warnings, created_at, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.Mode, string(r.Status), r.Config.TradingPair, config, checkpoint, r.QueuePosition,
		r.ErrorMessage, warnings, r.CreatedAt, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (r *domain.Run, err error) {
	defer func(start time.Time) { observe("run_get", start, err) }(time.Now())

	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	r, err = scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// Update replaces the mutable fields of an existing run.
func (s *RunStore) Update(ctx context.Context, r *domain.Run) (err error) {
	defer func(start time.Time) { observe("run_update", start, err) }(time.Now())

	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	_, checkpoint, warnings, err := encodeRunJSON(r)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs SET
			status = $2, checkpoint = $3, queue_position = $4,
			error_message = $5, warnings = $6, started_at = $7, ended_at = $8
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), checkpoint, r.QueuePosition,
		r.ErrorMessage, warnings, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateCheckpoint persists a checkpoint without touching other fields.
func (s *RunStore) UpdateCheckpoint(ctx context.Context, runID string, cp *domain.Checkpoint) (err error) {
	defer func(start time.Time) { observe("run_checkpoint", start, err) }(time.Now())

	if cp == nil {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE runs SET checkpoint = $2 WHERE id = $1`, runID, data)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindByStatus retrieves runs with the given status, ordered by created_at ASC.
func (s *RunStore) FindByStatus(ctx context.Context, status domain.RunStatus) (runs []*domain.Run, err error) {
	defer func(start time.Time) { observe("run_find_by_status", start, err) }(time.Now())

	query := `SELECT ` + runColumns + ` FROM runs WHERE status = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("find runs by status: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// List retrieves runs matching filter, newest first.
func (s *RunStore) List(ctx context.Context, filter storage.RunFilter) (runs []*domain.Run, err error) {
	defer func(start time.Time) { observe("run_list", start, err) }(time.Now())

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TradingPair != "" {
		args = append(args, filter.TradingPair)
		conds = append(conds, fmt.Sprintf("trading_pair = $%d", len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// encodeRunJSON marshals the JSONB columns. A nil checkpoint or warnings slice maps to NULL.
func encodeRunJSON(r *domain.Run) (config, checkpoint, warnings []byte, err error) {
	config, err = json.Marshal(r.Config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if r.Checkpoint != nil {
		if checkpoint, err = json.Marshal(r.Checkpoint); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal checkpoint: %w", err)
		}
	}
	if len(r.Warnings) > 0 {
		if warnings, err = json.Marshal(r.Warnings); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal warnings: %w", err)
		}
	}
	return config, checkpoint, warnings, nil
}

// scanRun scans a single row into a Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		r                            domain.Run
		status                       string
		config, checkpoint, warnings []byte
	)

	err := row.Scan(
		&r.ID, &r.Mode, &status, &config, &checkpoint, &r.QueuePosition,
		&r.ErrorMessage, &warnings, &r.CreatedAt, &r.StartedAt, &r.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)

	if err := json.Unmarshal(config, &r.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(checkpoint) > 0 {
		r.Checkpoint = &domain.Checkpoint{}
		if err := json.Unmarshal(checkpoint, r.Checkpoint); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return &r, nil
}

// scanRuns scans multiple rows.
func scanRuns(rows pgx.Rows) ([]*domain.Run, error) {
	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
