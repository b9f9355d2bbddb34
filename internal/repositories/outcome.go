package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// OutcomeRepository persists [models.TrackOutcome] rows.
//
// Artists are stored as a JSON array so multi-artist credits survive unchanged.
type OutcomeRepository struct {
	db *sql.DB
}

// NewOutcomeRepository creates a new OutcomeRepository with the given database connection
func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Create inserts o with a generated ID. The parent run must exist.
func (r *OutcomeRepository) Create(ctx context.Context, o *models.TrackOutcome) error {
	if o.RunID == "" || o.Outcome == "" {
		return fmt.Errorf("%w: outcome requires a run id and an outcome", shared.ErrInvalidInput)
	}

	artists, err := json.Marshal(o.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	o.ID = shared.GenerateID()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO track_outcomes (id, run_id, playlist, title, artists, spotify_url, filename, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		o.ID,
		o.RunID,
		o.Playlist,
		o.Title,
		string(artists),
		o.URL,
		o.Filename,
		o.Outcome,
		o.Error,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}

	return nil
}

// ListByRun retrieves the outcomes of runID in insertion order, optionally restricted to one outcome.
func (r *OutcomeRepository) ListByRun(ctx context.Context, runID, outcome string) ([]*models.TrackOutcome, error) {
	query := `
		SELECT id, run_id, playlist, title, artists, spotify_url, filename, outcome, error, created_at
		FROM track_outcomes
		WHERE run_id = ?
	`
	args := []any{runID}

	if outcome != "" {
		query += " AND outcome = ?"
		args = append(args, outcome)
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*models.TrackOutcome
	for rows.Next() {
		var (
			o       models.TrackOutcome
			artists string
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.Playlist, &o.Title, &artists, &o.URL, &o.Filename, &o.Outcome, &o.Error, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(artists), &o.Artists); err != nil {
			return nil, fmt.Errorf("failed to decode artists for %s: %w", o.ID, err)
		}
		outcomes = append(outcomes, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return outcomes, nil
}

// CountByOutcome returns the number of rows per outcome for runID.
func (r *OutcomeRepository) CountByOutcome(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM track_outcomes WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}
