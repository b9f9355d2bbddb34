package tasks

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/filename"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// Pacing controls the cadence of downloads within a playlist.
type Pacing struct {
	SongDelayMin   time.Duration // Lower bound of the jitter after each download
	SongDelayMax   time.Duration // Upper bound of the jitter after each download
	FailurePause   time.Duration // Cooldown once the failure streak reaches PauseThreshold
	PauseThreshold int
	AbortThreshold int // Streak length that stops the playlist
}

// DefaultPacing returns the reference cadence: 3-8s jitter, a 60s pause after 3 failures, stop at 10.
func DefaultPacing() Pacing {
	return Pacing{
		SongDelayMin:   3 * time.Second,
		SongDelayMax:   8 * time.Second,
		FailurePause:   60 * time.Second,
		PauseThreshold: 3,
		AbortThreshold: 10,
	}
}

// JitterFunc returns a delay drawn from [min, max].
type JitterFunc func(min, max time.Duration) time.Duration

// UniformJitter draws uniformly from [min, max].
func UniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Recorder persists sync history. Errors are logged by the caller and never stop a sync.
type Recorder interface {
	StartRun(ctx context.Context, run *models.SyncRun) error
	FinishRun(ctx context.Context, run *models.SyncRun) error
	RecordOutcome(ctx context.Context, outcome *models.TrackOutcome) error
}

// ReconcilerOpts configures a [Reconciler]. Catalog and Fetcher are required.
type ReconcilerOpts struct {
	Catalog  services.Catalog
	Fetcher  *Fetcher
	Auth     services.Auth
	Pacing   Pacing
	Sleep    shared.SleepFunc
	Jitter   JitterFunc
	Recorder Recorder
	Logger   *log.Logger
}

// Reconciler brings one local folder up to date with one catalog playlist.
type Reconciler struct {
	catalog  services.Catalog
	fetcher  *Fetcher
	auth     services.Auth
	pacing   Pacing
	sleep    shared.SleepFunc
	jitter   JitterFunc
	recorder Recorder
	logger   *log.Logger
}

// NewReconciler creates a Reconciler, filling unset sleep, jitter and logger with defaults.
func NewReconciler(opts ReconcilerOpts) *Reconciler {
	r := &Reconciler{
		catalog:  opts.Catalog,
		fetcher:  opts.Fetcher,
		auth:     opts.Auth,
		pacing:   opts.Pacing,
		sleep:    opts.Sleep,
		jitter:   opts.Jitter,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
	if r.sleep == nil {
		r.sleep = shared.Sleep
	}
	if r.jitter == nil {
		r.jitter = UniformJitter
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	return r
}

// Sync reconciles ref's folder against its playlist.
//
// Tracks already present in the folder (by normalized name) are skipped without contacting the
// backend. Missing tracks are fetched one at a time with jittered delays between downloads.
// A failure streak first pauses and eventually abandons the rest of the playlist. Every
// track failure is written to the folder's failure log.
//
// A non-nil error means the playlist could not be started: its folder could not be created or
// its tracks could not be listed. Stats are zero in that case.
func (r *Reconciler) Sync(
	ctx context.Context, progress chan<- ProgressUpdate, ref models.PlaylistRef, opts models.SyncOptions, budget *DownloadBudget,
) (models.SyncStats, error) {
	var stats models.SyncStats
	if budget == nil {
		budget = NewDownloadBudget(0)
	}

	folder, err := shared.ExpandHome(ref.Folder)
	if err != nil {
		return stats, fmt.Errorf("%w: folder %q: %v", shared.ErrInvalidArgument, ref.Folder, err)
	}
	name := filepath.Base(folder)
	logger := r.logger.With("playlist", name)

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return stats, fmt.Errorf("create folder %s: %w", folder, err)
	}

	logger.Info("syncing playlist", "folder", folder, "url", ref.URL)

	tracks, err := r.catalog.ListTracks(ctx, ref.URL)
	if err != nil {
		return stats, fmt.Errorf("fetch tracks for %s: %w", name, err)
	}
	stats.Total = len(tracks)
	logger.Info("fetched tracks", "count", len(tracks))
	sendProgress(progress, fetchTracksUpdate(name, len(tracks)))

	existing, err := filename.Snapshot(folder)
	if err != nil {
		return models.SyncStats{}, fmt.Errorf("scan folder %s: %w", folder, err)
	}

	streak := 0
	var failed []models.FailedTrack

	for i, track := range tracks {
		step := i + 1
		if ctx.Err() != nil {
			logger.Warn("sync cancelled", "remaining", len(tracks)-i)
			break
		}
		if r.fetcher.governor.Aborted() {
			logger.Warn("session aborted due to rate limiting, stopping")
			break
		}
		if budget.Exhausted() {
			logger.Info("reached max downloads, stopping", "max", budget.Max())
			break
		}

		file := filename.CanonicalFilename(track)
		if _, ok := existing[filename.Key(track)]; ok {
			stats.Skipped++
			logger.Debug("skip (exists)", "step", step, "total", len(tracks), "track", file)
			sendProgress(progress, skipTrackUpdate(step, len(tracks), file))
			r.record(ctx, logger, opts, name, track, file, "exists", nil)
			continue
		}

		logger.Info("downloading", "step", step, "total", len(tracks), "track", file)
		res := r.fetcher.Attempt(ctx, Request{Track: track, DestDir: folder, Auth: r.auth, DryRun: opts.DryRun})

		if res.Outcome == Success {
			stats.Downloaded++
			streak = 0
			budget.Record()
			sendProgress(progress, downloadTrackUpdate(step, len(tracks), file, res))
			r.record(ctx, logger, opts, name, track, file, res.Outcome.String(), nil)

			if !opts.DryRun && step < len(tracks) {
				if err := r.sleep(ctx, r.jitter(r.pacing.SongDelayMin, r.pacing.SongDelayMax)); err != nil {
					logger.Debug("delay interrupted", "error", err)
				}
			}
			continue
		}

		if ctx.Err() != nil {
			logger.Warn("sync cancelled during download", "track", file)
			break
		}
		if !res.Counted() {
			// Refused before reaching the backend; the session is aborting.
			logger.Warn("session aborted due to rate limiting, stopping")
			break
		}

		stats.Failed++
		streak++
		failed = append(failed, models.NewFailedTrack(track))
		sendProgress(progress, trackFailedUpdate(step, len(tracks), file, res))
		r.record(ctx, logger, opts, name, track, file, res.Outcome.String(), res.Err)

		if r.pacing.AbortThreshold > 0 && streak >= r.pacing.AbortThreshold {
			logger.Error("too many consecutive failures, skipping rest of playlist", "failures", streak)
			break
		}
		if r.pacing.PauseThreshold > 0 && streak >= r.pacing.PauseThreshold && !r.fetcher.governor.Aborted() {
			logger.Warn("consecutive failures, pausing", "failures", streak, "pause", r.pacing.FailurePause)
			sendProgress(progress, pauseUpdate(streak, r.pacing.FailurePause))
			if err := r.sleep(ctx, r.pacing.FailurePause); err != nil {
				logger.Debug("pause interrupted", "error", err)
			}
		}
	}

	if len(failed) > 0 {
		if path, err := WriteFailedTracks(folder, failed); err != nil {
			logger.Warn("could not save failed tracks", "path", path, "error", err)
		} else {
			logger.Info("failed tracks saved", "path", path, "count", len(failed))
		}
	}

	logger.Info("playlist done", "downloaded", stats.Downloaded, "skipped", stats.Skipped, "failed", stats.Failed)
	sendProgress(progress, playlistDoneUpdate(name, stats))
	return stats, nil
}

func (r *Reconciler) record(
	ctx context.Context, logger *log.Logger, opts models.SyncOptions, playlist string, t models.Track, file, outcome string, err error,
) {
	if r.recorder == nil || opts.RunID == "" {
		return
	}
	o := &models.TrackOutcome{
		RunID:     opts.RunID,
		Playlist:  playlist,
		Title:     t.Title,
		Artists:   t.Artists,
		URL:       t.URL,
		Filename:  file,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
	if err != nil {
		o.Error = firstLine(err.Error())
	}
	if recErr := r.recorder.RecordOutcome(context.WithoutCancel(ctx), o); recErr != nil {
		logger.Warn("failed to record outcome", "track", file, "error", recErr)
	}
}
