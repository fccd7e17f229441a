package postgres

import (
	"context"
	"fmt"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/google/uuid"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Create opens a run in the running state before any source I/O happens.
func (r *RunRepo) Create(ctx context.Context, source model.Source) (*model.PollRun, error) {
	run := &model.PollRun{
		ID:     uuid.New(),
		Source: source,
		Status: model.RunStatusRunning,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO poll_runs (id, source, status)
		VALUES ($1, $2, $3)
		RETURNING started_at
	`, run.ID, run.Source, run.Status).Scan(&run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Finish records the run's single terminal transition together with its
// accumulated stats. Finishing a run that is not running is an error; runs
// are never reopened.
func (r *RunRepo) Finish(ctx context.Context, id uuid.UUID, status model.RunStatus, stats model.RunStats, errMsg *string) error {
	if status != model.RunStatusSuccess && status != model.RunStatusError {
		return fmt.Errorf("finish run: %q is not a terminal status", status)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE poll_runs
		SET status = $2,
			finished_at = now(),
			fetched = $3,
			upserted = $4,
			errors = $5,
			error = $6
		WHERE id = $1 AND status = $7
	`, id, status, stats.Fetched, stats.Upserted, stats.Errors, errMsg, model.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish run: run %s is not running", id)
	}
	return nil
}
