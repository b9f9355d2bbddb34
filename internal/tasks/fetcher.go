package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/filename"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/throttle"
)

// Outcome is the result category of a single track attempt.
type Outcome int

const (
	Success Outcome = iota
	SkippedAgeRestricted
	SkippedThrottled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case SkippedAgeRestricted:
		return "age_restricted"
	case SkippedThrottled:
		return "throttled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FetchResult describes one attempt to materialize a track.
type FetchResult struct {
	Outcome Outcome
	// Attempted is false only when the attempt was refused before reaching the backend.
	Attempted     bool
	Path          string
	MediaDuration time.Duration
	Err           error
}

// Counted reports whether the result belongs in playlist stats. Only a fail-fast refusal is excluded.
func (r FetchResult) Counted() bool {
	return r.Outcome == Success || r.Attempted
}

// Request is one track to fetch into DestDir.
type Request struct {
	Track   models.Track
	DestDir string
	Auth    services.Auth
	DryRun  bool
}

const (
	DefaultMaxDuration       = 900 * time.Second
	DefaultDurationTolerance = 30 * time.Second
	DefaultSearchSuffix      = "official audio"
)

// FetcherConfig holds the per-session constraints applied to every download.
type FetcherConfig struct {
	MaxDuration       time.Duration
	DurationTolerance time.Duration
	SearchSuffix      string
}

// DefaultFetcherConfig returns the reference constraints.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxDuration:       DefaultMaxDuration,
		DurationTolerance: DefaultDurationTolerance,
		SearchSuffix:      DefaultSearchSuffix,
	}
}

// Fetcher attempts to produce one local audio file for one track.
type Fetcher struct {
	backend  services.Backend
	governor *throttle.Governor
	tagger   services.Tagger
	config   FetcherConfig
	logger   *log.Logger
}

type FetcherOption func(*Fetcher)

// WithTagger writes metadata into every successful download.
func WithTagger(t services.Tagger) FetcherOption {
	return func(f *Fetcher) { f.tagger = t }
}

func WithFetcherLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher that downloads through backend and reports rate limits to governor.
func NewFetcher(backend services.Backend, governor *throttle.Governor, config FetcherConfig, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		backend:  backend,
		governor: governor,
		config:   config,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Query builds the backend search string for t.
func (f *Fetcher) Query(t models.Track) string {
	q := fmt.Sprintf("%s - %s", t.PrimaryArtist(), t.Title)
	if f.config.SearchSuffix != "" {
		q += " " + f.config.SearchSuffix
	}
	return q
}

// Attempt fetches req.Track into req.DestDir.
//
// It never returns an error directly: every failure is folded into the result's Outcome.
func (f *Fetcher) Attempt(ctx context.Context, req Request) FetchResult {
	if f.governor.Aborted() {
		return FetchResult{Outcome: SkippedThrottled}
	}

	stem := filename.Stem(req.Track)
	template := filepath.Join(req.DestDir, stem)
	query := f.Query(req.Track)
	logger := f.logger.With("track", stem)

	if req.DryRun {
		logger.Info("[DRY RUN] would download", "query", query)
		return FetchResult{Outcome: Success, Attempted: true, Path: template + ".mp3"}
	}

	media, err := f.backend.Fetch(ctx, query, services.Constraints{
		MaxDuration:    f.config.MaxDuration,
		OutputTemplate: template,
		Auth:           req.Auth,
	})
	if err != nil {
		return f.classify(ctx, logger, err)
	}

	if req.Track.Duration > 0 && media.Duration > 0 {
		diff := media.Duration - req.Track.Duration
		if diff < 0 {
			diff = -diff
		}
		if diff > f.config.DurationTolerance {
			logger.Warn("duration mismatch", "expected", req.Track.Duration, "got", media.Duration)
		}
	}

	if f.tagger != nil {
		if err := f.tagger.Tag(media.Path, req.Track); err != nil {
			logger.Warn("failed to tag file", "path", media.Path, "error", err)
		}
	}

	logger.Debug("downloaded", "path", media.Path, "duration", media.Duration)
	return FetchResult{Outcome: Success, Attempted: true, Path: media.Path, MediaDuration: media.Duration}
}

func (f *Fetcher) classify(ctx context.Context, logger *log.Logger, err error) FetchResult {
	msg := err.Error()
	var backendErr *services.BackendError
	if errors.As(err, &backendErr) {
		msg = backendErr.Message
	}

	switch {
	case throttle.IsAgeRestricted(msg):
		logger.Warn("age-restricted, skipping (provide cookies to download)")
		return FetchResult{Outcome: SkippedAgeRestricted, Attempted: true, Err: err}
	case throttle.IsRateLimit(msg):
		if f.governor.Signal(ctx) == throttle.Aborted {
			return FetchResult{Outcome: SkippedThrottled, Attempted: true, Err: err}
		}
		return FetchResult{Outcome: Failed, Attempted: true, Err: err}
	default:
		logger.Error("download failed", "error", firstLine(msg))
		return FetchResult{Outcome: Failed, Attempted: true, Err: err}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
