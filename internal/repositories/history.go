package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/ytmirror/internal/models"
)

// History implements tasks.Recorder using [RunRepository] and [OutcomeRepository].
type History struct {
	Runs     *RunRepository
	Outcomes *OutcomeRepository
}

// NewHistory creates a History over db. Migrations must already be applied.
func NewHistory(db *sql.DB) *History {
	return &History{Runs: NewRunRepository(db), Outcomes: NewOutcomeRepository(db)}
}

func (h *History) StartRun(ctx context.Context, run *models.SyncRun) error {
	return h.Runs.Create(ctx, run)
}

func (h *History) FinishRun(ctx context.Context, run *models.SyncRun) error {
	return h.Runs.Finish(ctx, run)
}

func (h *History) RecordOutcome(ctx context.Context, o *models.TrackOutcome) error {
	return h.Outcomes.Create(ctx, o)
}
