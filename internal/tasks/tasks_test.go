package tasks

import (
	"context"
	"os"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/services"
	tu "github.com/desertthunder/ytmirror/internal/testing"
	"github.com/desertthunder/ytmirror/internal/throttle"
)

var (
	errRateLimit = &services.BackendError{Message: "ERROR: unable to download video data: HTTP Error 429: Too Many Requests"}
	errAgeGate   = &services.BackendError{Message: "ERROR: [youtube] xyz: Sign in to confirm your age. This video may be inappropriate for some users."}
	errGeneric   = &services.BackendError{Message: "ERROR: [youtube] xyz: Video unavailable"}
)

const testJitter = 5 * time.Second

type mockCatalog struct {
	tracks map[string][]models.Track
	errs   map[string]error
	calls  []string
}

func (m *mockCatalog) ListOwnedPublicPlaylists(ctx context.Context) ([]models.Playlist, error) {
	return nil, nil
}

func (m *mockCatalog) ListTracks(ctx context.Context, playlistURL string) ([]models.Track, error) {
	m.calls = append(m.calls, playlistURL)
	if err := m.errs[playlistURL]; err != nil {
		return nil, err
	}
	return m.tracks[playlistURL], nil
}

func (m *mockCatalog) Name() string {
	return "mock"
}

// mockBackend fails the nth call with errs[n-1] (nil means success) or, when errFor is
// set, with whatever errFor returns for the query.
type mockBackend struct {
	errs        []error
	errFor      func(query string) error
	duration    time.Duration
	writeFiles  bool
	queries     []string
	constraints []services.Constraints
}

func (m *mockBackend) Fetch(ctx context.Context, query string, c services.Constraints) (services.Media, error) {
	m.queries = append(m.queries, query)
	m.constraints = append(m.constraints, c)

	var err error
	switch {
	case m.errFor != nil:
		err = m.errFor(query)
	case len(m.queries) <= len(m.errs):
		err = m.errs[len(m.queries)-1]
	}
	if err != nil {
		return services.Media{}, err
	}

	path := c.OutputTemplate + ".mp3"
	if m.writeFiles {
		if err := os.WriteFile(path, []byte("mp3"), 0o644); err != nil {
			return services.Media{}, err
		}
	}
	return services.Media{Path: path, Duration: m.duration}, nil
}

type mockTagger struct {
	paths []string
	err   error
}

func (m *mockTagger) Tag(path string, track models.Track) error {
	m.paths = append(m.paths, path)
	return m.err
}

type mockRecorder struct {
	started   []*models.SyncRun
	finished  []*models.SyncRun
	outcomes  []*models.TrackOutcome
	startErr  error
	recordErr error
}

func (m *mockRecorder) StartRun(ctx context.Context, run *models.SyncRun) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, run)
	return nil
}

func (m *mockRecorder) FinishRun(ctx context.Context, run *models.SyncRun) error {
	m.finished = append(m.finished, run)
	return nil
}

func (m *mockRecorder) RecordOutcome(ctx context.Context, o *models.TrackOutcome) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.outcomes = append(m.outcomes, o)
	return nil
}

// harness wires the engine with mocks and a single sleep recorder shared by the governor,
// reconciler and coordinator, so every wait in a session lands in one list.
type harness struct {
	catalog    *mockCatalog
	backend    *mockBackend
	sleeps     *tu.SleepRecorder
	governor   *throttle.Governor
	fetcher    *Fetcher
	reconciler *Reconciler
}

func newHarness(catalog *mockCatalog, backend *mockBackend) *harness {
	h := &harness{catalog: catalog, backend: backend, sleeps: &tu.SleepRecorder{}}
	h.governor = throttle.New(throttle.DefaultPolicy(), throttle.WithSleep(h.sleeps.Sleep))
	h.fetcher = NewFetcher(backend, h.governor, DefaultFetcherConfig())
	h.reconciler = NewReconciler(ReconcilerOpts{
		Catalog: catalog,
		Fetcher: h.fetcher,
		Pacing:  DefaultPacing(),
		Sleep:   h.sleeps.Sleep,
		Jitter:  func(min, max time.Duration) time.Duration { return testJitter },
	})
	return h
}

func (h *harness) coordinator(recorder Recorder) *Coordinator {
	h.reconciler.recorder = recorder
	return NewCoordinator(CoordinatorOpts{
		Reconciler:    h.reconciler,
		Governor:      h.governor,
		PlaylistDelay: DefaultPlaylistDelay,
		Sleep:         h.sleeps.Sleep,
		Recorder:      recorder,
	})
}

func tracksN(n int) []models.Track {
	tracks := make([]models.Track, n)
	for i := range tracks {
		tracks[i] = tu.NewTrack("Artist", "Song "+string(rune('A'+i)), 200000)
	}
	return tracks
}
