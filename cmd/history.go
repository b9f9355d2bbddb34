package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/ytmirror/internal/formatter"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recent sync runs, or the per-track outcomes of one run with --run.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	history, closeDB, err := r.openHistory()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer closeDB()

	runRef := cmd.String("run")
	if runRef == "" {
		if cmd.IsSet("csv") || cmd.IsSet("outcome") {
			return fmt.Errorf("%w: --csv and --outcome require --run", shared.ErrMissingArgument)
		}

		runs, err := history.Runs.List(ctx, cmd.Int("limit"))
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(runs, true)
		}
		if len(runs) == 0 {
			return r.writePlain("No sync runs recorded\n")
		}
		return r.writePlain("%s\n", formatter.History(runs))
	}

	run, err := history.Runs.Get(ctx, runRef)
	if err != nil {
		return err
	}

	outcomes, err := history.Outcomes.ListByRun(ctx, run.ID, cmd.String("outcome"))
	if err != nil {
		return err
	}

	if path := cmd.String("csv"); path != "" {
		if err := formatter.WriteOutcomesCSV(outcomes, path); err != nil {
			return err
		}
		r.logger.Info("outcomes exported", "file", path, "count", len(outcomes))
		return r.writePlain("✓ Exported %d outcomes to %s\n", len(outcomes), path)
	}

	if cmd.Bool("json") {
		return r.writeJSON(outcomes, true)
	}

	counts, err := history.Outcomes.CountByOutcome(ctx, run.ID)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", formatter.History([]*models.SyncRun{run}))
	r.writePlain("%s\n", formatter.OutcomeCounts(counts))
	return r.writePlain("%s\n", formatter.Outcomes(outcomes))
}
