package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// RunRepository persists [models.SyncRun] rows.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, sequence, started_at, finished_at, dry_run, max_downloads, playlists,
	total, downloaded, skipped, failed, throttle_signals, aborted, log_path`

// Create inserts run with a generated sequence, and a generated ID when run.ID is empty.
func (r *RunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Sequence = sequence

	query := `
		INSERT INTO sync_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Sequence,
		run.StartedAt,
		run.FinishedAt,
		run.DryRun,
		run.MaxDownloads,
		run.Playlists,
		run.Stats.Total,
		run.Stats.Downloaded,
		run.Stats.Skipped,
		run.Stats.Failed,
		run.ThrottleSignals,
		run.Aborted,
		run.LogPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Finish stores the final totals of run.
func (r *RunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	query := `
		UPDATE sync_runs
		SET finished_at = ?, total = ?, downloaded = ?, skipped = ?, failed = ?, throttle_signals = ?, aborted = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		run.FinishedAt,
		run.Stats.Total,
		run.Stats.Downloaded,
		run.Stats.Skipped,
		run.Stats.Failed,
		run.ThrottleSignals,
		run.Aborted,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID)
	}

	return nil
}

// Get retrieves a run by ID, or by sequence number when id is a decimal ordinal.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ? OR CAST(sequence AS TEXT) = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, id, id))
}

// Latest retrieves the most recently started run.
func (r *RunRepository) Latest(ctx context.Context) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY sequence DESC LIMIT 1`
	return r.scan(r.db.QueryRowContext(ctx, query))
}

// List retrieves up to limit runs, newest first. A non-positive limit returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Delete removes a run and, by cascade, its outcomes.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *RunRepository) scan(row scanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.Sequence,
		&run.StartedAt,
		&finishedAt,
		&run.DryRun,
		&run.MaxDownloads,
		&run.Playlists,
		&run.Stats.Total,
		&run.Stats.Downloaded,
		&run.Stats.Skipped,
		&run.Stats.Failed,
		&run.ThrottleSignals,
		&run.Aborted,
		&run.LogPath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}
