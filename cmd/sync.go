package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/formatter"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/registry"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/desertthunder/ytmirror/internal/tasks"
	"github.com/desertthunder/ytmirror/internal/throttle"
	"github.com/desertthunder/ytmirror/internal/ui"
	"github.com/urfave/cli/v3"
)

// Sync discovers new playlists, then downloads missing tracks for every registered playlist.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	downloadOnly, discoverOnly := cmd.Bool("download-only"), cmd.Bool("discover-only")
	if downloadOnly && discoverOnly {
		return fmt.Errorf("%w: --download-only and --discover-only are mutually exclusive", shared.ErrInvalidArgument)
	}

	opts := models.SyncOptions{
		DryRun:         cmd.Bool("dry-run"),
		MaxDownloads:   r.config.Sync.MaxDownloads,
		PlaylistFilter: cmd.String("playlist"),
	}
	if cmd.IsSet("max-downloads") {
		opts.MaxDownloads = cmd.Int("max-downloads")
	}
	if opts.MaxDownloads < 0 {
		return fmt.Errorf("%w: --max-downloads must not be negative", shared.ErrInvalidArgument)
	}

	lock := shared.NewSessionLock(r.config.Paths.LockFile)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	logger, logPath, closeLog := r.sessionLogger()
	defer closeLog()

	catalog, err := r.catalog(ctx)
	if err != nil {
		return err
	}

	if downloadOnly && !registry.Exists(r.config.Paths.Registry) {
		return fmt.Errorf("%w: %s, run without --download-only first", shared.ErrRegistryNotFound, r.config.Paths.Registry)
	}

	reg, loadErr := registry.Load(r.config.Paths.Registry)
	if loadErr != nil {
		if downloadOnly {
			return loadErr
		}
		logger.Warn("registry unreadable, continuing without it", "path", r.config.Paths.Registry, "error", loadErr)
	}

	if !downloadOnly {
		added := r.discover(ctx, logger, reg, loadErr == nil && !opts.DryRun)
		if discoverOnly {
			if len(added) == 0 {
				return r.writePlain("No new playlists found\n")
			}
			r.writePlain("Registered %d new playlists:\n", len(added))
			return r.writePlain("%s\n", formatter.Registry(added))
		}
	}

	playlists := reg.Filter(opts.PlaylistFilter)
	if len(playlists) == 0 && opts.PlaylistFilter != "" {
		return fmt.Errorf("%w: no playlist matching %q", shared.ErrPlaylistNotFound, opts.PlaylistFilter)
	}
	if len(playlists) == 0 {
		logger.Warn("no playlists to sync", "registry", r.config.Paths.Registry, "filter", opts.PlaylistFilter)
		return r.writePlain("No playlists to sync\n")
	}

	auth := services.ResolveAuth(
		flagOr(cmd, "cookies", r.config.YouTube.CookiesFile),
		flagOr(cmd, "cookies-from-browser", r.config.YouTube.CookiesFromBrowser),
	)
	if auth == (services.Auth{}) {
		logger.Warn("no cookies configured, age-restricted videos will be skipped")
	} else {
		logger.Info("using cookies", "source", auth.Source())
	}

	coordinator, closeHistory, err := r.buildCoordinator(catalog, auth, logger, logPath)
	if err != nil {
		return err
	}
	defer closeHistory()

	progress := make(chan tasks.ProgressUpdate, 64)
	done := ui.NewProgress(r.output, r.verbose).Consume(progress)

	report, err := coordinator.Run(ctx, progress, playlists, opts)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(report, true); err != nil {
			return err
		}
	} else if err := formatter.WriteSummary(r.output, report); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("sync interrupted: %w", ctx.Err())
	}
	return nil
}

// discover merges the user's public playlists into reg and returns the new entries.
// A discovery failure is logged and leaves reg unchanged.
func (r *Runner) discover(ctx context.Context, logger *log.Logger, reg *registry.Registry, save bool) []models.PlaylistRef {
	var discovered []models.Playlist
	err := r.withCatalog(ctx, func(c services.OAuthService) error {
		var err error
		discovered, err = c.ListOwnedPublicPlaylists(ctx)
		return err
	})
	if err != nil {
		logger.Warn("playlist discovery failed, using existing registry", "error", err)
		return nil
	}

	added := reg.Merge(discovered, r.config.Paths.MusicDir)
	logger.Info("playlist discovery complete", "found", len(discovered), "new", len(added))
	for _, ref := range added {
		logger.Info("registered playlist", "folder", ref.Folder, "url", ref.URL)
	}

	if len(added) == 0 {
		return added
	}
	if !save {
		logger.Warn("registry not saved", "path", r.config.Paths.Registry)
		return added
	}
	if err := reg.Save(r.config.Paths.Registry); err != nil {
		logger.Error("failed to save registry", "error", err)
	}
	return added
}

// buildCoordinator wires the engine from the configuration. History is best effort:
// when the database cannot be opened the session runs without it.
func (r *Runner) buildCoordinator(
	catalog services.Catalog, auth services.Auth, logger *log.Logger, logPath string,
) (*tasks.Coordinator, func(), error) {
	cfg := r.config

	governor := throttle.New(
		throttle.Policy{
			WarnWait:     shared.Seconds(cfg.Sync.ThrottleWarnSeconds),
			EscalateWait: shared.Seconds(cfg.Sync.ThrottleEscalateSeconds),
		},
		throttle.WithSleep(r.sleep),
		throttle.WithLogger(logger),
	)

	backend := r.backend
	if backend == nil {
		y, err := services.NewYtdlp(
			cfg.YouTube.YtdlpPath,
			cfg.YouTube.DownloadTimeout(),
			services.WithAudioQuality(cfg.YouTube.AudioQuality),
			services.WithYtdlpLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		backend = y
	}

	fetcherOpts := []tasks.FetcherOption{tasks.WithFetcherLogger(logger)}
	if cfg.Sync.TagFiles {
		fetcherOpts = append(fetcherOpts, tasks.WithTagger(services.NewID3Tagger()))
	}
	fetcher := tasks.NewFetcher(backend, governor, tasks.FetcherConfig{
		MaxDuration:       shared.Seconds(cfg.Sync.MaxDurationSeconds),
		DurationTolerance: shared.Seconds(cfg.Sync.DurationToleranceSeconds),
		SearchSuffix:      cfg.YouTube.SearchSuffix,
	}, fetcherOpts...)

	var recorder tasks.Recorder
	closeHistory := func() {}
	if history, closer, err := r.openHistory(); err != nil {
		logger.Warn("sync history unavailable", "path", cfg.Database.Path, "error", err)
	} else {
		recorder, closeHistory = history, closer
	}

	reconciler := tasks.NewReconciler(tasks.ReconcilerOpts{
		Catalog: catalog,
		Fetcher: fetcher,
		Auth:    auth,
		Pacing: tasks.Pacing{
			SongDelayMin:   shared.Seconds(cfg.Sync.SongDelayMinSeconds),
			SongDelayMax:   shared.Seconds(cfg.Sync.SongDelayMaxSeconds),
			FailurePause:   shared.Seconds(cfg.Sync.FailurePauseSeconds),
			PauseThreshold: cfg.Sync.PauseThreshold,
			AbortThreshold: cfg.Sync.AbortThreshold,
		},
		Sleep:    r.sleep,
		Recorder: recorder,
		Logger:   logger,
	})

	coordinator := tasks.NewCoordinator(tasks.CoordinatorOpts{
		Reconciler:    reconciler,
		Governor:      governor,
		PlaylistDelay: shared.Seconds(cfg.Sync.PlaylistDelaySeconds),
		Sleep:         r.sleep,
		Recorder:      recorder,
		Logger:        logger,
		LogPath:       logPath,
		Now:           r.now,
	})

	return coordinator, closeHistory, nil
}

// sessionLogger tees the runner's log output into a per-run log file. Without a log
// file the runner's logger is returned unchanged.
func (r *Runner) sessionLogger() (*log.Logger, string, func()) {
	f, err := shared.OpenLogFile(r.config.Paths.LogDir, r.now())
	if err != nil {
		r.logger.Warn("logging to stderr only", "error", err)
		return r.logger, "", func() {}
	}

	logger := shared.NewLogger(io.MultiWriter(r.logOutput, f))
	shared.SetLogLevel(logger, r.logger.GetLevel())
	logger.Debug("session log opened", "path", f.Name())

	return logger, f.Name(), func() { f.Close() }
}

// flagOr returns the flag value when it was given on the command line, otherwise fallback.
func flagOr(cmd *cli.Command, name, fallback string) string {
	if cmd.IsSet(name) {
		return cmd.String(name)
	}
	return fallback
}
