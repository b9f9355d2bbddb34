package tasks

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/desertthunder/ytmirror/internal/throttle"
)

// DefaultPlaylistDelay is the pause between consecutive playlists.
const DefaultPlaylistDelay = 10 * time.Second

// PlaylistReport is the outcome of one playlist within a session.
type PlaylistReport struct {
	Folder string           `json:"folder"`
	URL    string           `json:"url"`
	Stats  models.SyncStats `json:"stats"`
	Error  string           `json:"error,omitempty"`
}

// SessionReport summarizes a whole sync session.
type SessionReport struct {
	RunID        string           `json:"run_id"`
	Totals       models.SyncStats `json:"totals"`
	Playlists    []PlaylistReport `json:"playlists"`
	Skipped      int              `json:"playlists_skipped"` // Playlists never started because of an abort or cancellation
	Throttle     throttle.Status  `json:"throttle"`
	Downloads    int              `json:"downloads"`
	MaxDownloads int              `json:"max_downloads"`
	DryRun       bool             `json:"dry_run"`
	Started      time.Time        `json:"started"`
	Finished     time.Time        `json:"finished"`
	Errors       int              `json:"errors"`
	LogPath      string           `json:"log_path,omitempty"`
}

// Elapsed returns the wall time of the session.
func (r *SessionReport) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// CoordinatorOpts configures a [Coordinator]. Reconciler and Governor are required.
type CoordinatorOpts struct {
	Reconciler    *Reconciler
	Governor      *throttle.Governor
	PlaylistDelay time.Duration
	Sleep         shared.SleepFunc
	Recorder      Recorder
	Logger        *log.Logger
	LogPath       string
	Now           func() time.Time
}

// Coordinator runs the Reconciler over every registry entry in order, sharing one throttle
// governor and one download budget across the session.
type Coordinator struct {
	reconciler    *Reconciler
	governor      *throttle.Governor
	playlistDelay time.Duration
	sleep         shared.SleepFunc
	recorder      Recorder
	logger        *log.Logger
	logPath       string
	now           func() time.Time
}

// NewCoordinator creates a Coordinator from opts.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	c := &Coordinator{
		reconciler:    opts.Reconciler,
		governor:      opts.Governor,
		playlistDelay: opts.PlaylistDelay,
		sleep:         opts.Sleep,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		logPath:       opts.LogPath,
		now:           opts.Now,
	}
	if c.sleep == nil {
		c.sleep = shared.Sleep
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Run syncs playlists sequentially.
//
// A playlist that cannot be started is logged and counted in the report's Errors; the session
// moves on. Once the governor aborts, no further playlist is started. Cancelling ctx stops the
// session before the next track or playlist.
func (c *Coordinator) Run(
	ctx context.Context, progress chan<- ProgressUpdate, playlists []models.PlaylistRef, opts models.SyncOptions,
) (*SessionReport, error) {
	if c.reconciler == nil || c.governor == nil {
		return nil, fmt.Errorf("%w: coordinator requires a reconciler and a governor", shared.ErrServiceUnavailable)
	}

	opts.RunID = shared.GenerateID()
	budget := NewDownloadBudget(opts.MaxDownloads)
	report := &SessionReport{
		RunID:        opts.RunID,
		Playlists:    make([]PlaylistReport, 0, len(playlists)),
		MaxDownloads: budget.Max(),
		DryRun:       opts.DryRun,
		Started:      c.now(),
		LogPath:      c.logPath,
	}

	run := &models.SyncRun{
		ID:           report.RunID,
		StartedAt:    report.Started,
		DryRun:       opts.DryRun,
		MaxDownloads: budget.Max(),
		Playlists:    len(playlists),
		LogPath:      c.logPath,
	}
	if c.recorder != nil {
		if err := c.recorder.StartRun(ctx, run); err != nil {
			c.logger.Warn("failed to record run start, history disabled for this session", "error", err)
			opts.RunID = ""
		}
	}

	c.logger.Info("starting sync session",
		"run", report.RunID, "playlists", len(playlists), "dry_run", opts.DryRun, "max_downloads", budget.Max())

	for i, ref := range playlists {
		if c.governor.Aborted() {
			report.Skipped = len(playlists) - i
			c.logger.Error("session aborted due to rate limiting, skipping remaining playlists", "remaining", report.Skipped)
			sendProgress(progress, sessionAbortedUpdate(report.Skipped))
			break
		}
		if ctx.Err() != nil {
			report.Skipped = len(playlists) - i
			c.logger.Warn("session cancelled", "remaining", report.Skipped)
			break
		}

		sendProgress(progress, startPlaylistUpdate(i+1, len(playlists), filepath.Base(ref.Folder)))

		stats, err := c.reconciler.Sync(ctx, progress, ref, opts, budget)
		pr := PlaylistReport{Folder: ref.Folder, URL: ref.URL, Stats: stats}
		if err != nil {
			pr.Error = err.Error()
			report.Errors++
			c.logger.Error("playlist failed", "folder", ref.Folder, "error", err)
		}
		report.Playlists = append(report.Playlists, pr)
		report.Totals = report.Totals.Add(stats)

		last := i == len(playlists)-1
		if !opts.DryRun && !last && !c.governor.Aborted() && c.playlistDelay > 0 {
			c.logger.Debug("waiting between playlists", "delay", c.playlistDelay)
			if err := c.sleep(ctx, c.playlistDelay); err != nil {
				c.logger.Debug("playlist delay interrupted", "error", err)
			}
		}
	}

	report.Downloads = budget.Count()
	report.Throttle = c.governor.Status()
	report.Finished = c.now()

	c.logger.Info("sync session complete",
		"downloaded", report.Totals.Downloaded,
		"skipped", report.Totals.Skipped,
		"failed", report.Totals.Failed,
		"total", report.Totals.Total,
		"throttle", report.Throttle.State,
	)

	if c.recorder != nil && opts.RunID != "" {
		finished := report.Finished
		run.FinishedAt = &finished
		run.Stats = report.Totals
		run.ThrottleSignals = report.Throttle.Signals
		run.Aborted = report.Throttle.Aborted
		if err := c.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			c.logger.Warn("failed to record run result", "error", err)
		}
	}

	return report, nil
}
