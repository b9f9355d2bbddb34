package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/ytmirror/internal/filename"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/shared"
	tu "github.com/desertthunder/ytmirror/internal/testing"
)

const playlistURL = "https://open.spotify.com/playlist/abc123"

func syncOnce(t *testing.T, h *harness, dir string, opts models.SyncOptions, budget *DownloadBudget) models.SyncStats {
	t.Helper()
	stats, err := h.reconciler.Sync(context.Background(), nil, models.PlaylistRef{Folder: dir, URL: playlistURL}, opts, budget)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return stats
}

func TestReconcilerSkipsExisting(t *testing.T) {
	tracks := tracksN(3)
	dir := t.TempDir()
	tu.MustTouch(t, dir, filename.CanonicalFilename(tracks[0]))
	tu.MustTouch(t, dir, filename.CanonicalFilename(tracks[1]))
	tu.MustTouch(t, dir, "ARTIST - song c!.MP3")

	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracks}}, &mockBackend{})
	stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)

	want := models.SyncStats{Total: 3, Skipped: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(h.backend.queries) != 0 {
		t.Errorf("expected no backend calls, got %d", len(h.backend.queries))
	}
	if len(h.sleeps.Calls) != 0 {
		t.Errorf("expected no sleeps, got %v", h.sleeps.Calls)
	}
}

func TestReconcilerDownloads(t *testing.T) {
	tracks := tracksN(3)
	dir := t.TempDir()
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracks}}, &mockBackend{writeFiles: true})

	stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)

	want := models.SyncStats{Total: 3, Downloaded: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	for _, tr := range tracks {
		tu.AssertFileExists(t, filepath.Join(dir, filename.CanonicalFilename(tr)))
	}
	if got := h.sleeps.Count(testJitter); got != 2 {
		t.Errorf("expected jitter after every download but the last, got %d sleeps: %v", got, h.sleeps.Calls)
	}
	tu.AssertFileNotExists(t, filepath.Join(dir, FailedTracksFile))

	t.Run("second run is idempotent", func(t *testing.T) {
		h.backend.queries = nil
		stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)
		if stats.Skipped != 3 || stats.Downloaded != 0 {
			t.Errorf("expected all skipped, got %+v", stats)
		}
		if len(h.backend.queries) != 0 {
			t.Errorf("expected no backend calls, got %d", len(h.backend.queries))
		}
	})
}

func TestReconcilerJitterBounds(t *testing.T) {
	var gotMin, gotMax time.Duration
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(2)}}, &mockBackend{})
	h.reconciler.jitter = func(min, max time.Duration) time.Duration {
		gotMin, gotMax = min, max
		return min
	}

	syncOnce(t, h, t.TempDir(), models.SyncOptions{}, nil)

	if gotMin != 3*time.Second || gotMax != 8*time.Second {
		t.Errorf("jitter bounds = [%v, %v], want [3s, 8s]", gotMin, gotMax)
	}
}

func TestUniformJitter(t *testing.T) {
	for range 100 {
		d := UniformJitter(3*time.Second, 8*time.Second)
		if d < 3*time.Second || d > 8*time.Second {
			t.Fatalf("UniformJitter() = %v, out of bounds", d)
		}
	}
	if d := UniformJitter(time.Second, time.Second); d != time.Second {
		t.Errorf("UniformJitter(1s, 1s) = %v", d)
	}
}

func TestReconcilerFailureStreak(t *testing.T) {
	t.Run("abort after ten consecutive failures", func(t *testing.T) {
		dir := t.TempDir()
		h := newHarness(
			&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(12)}},
			&mockBackend{errFor: func(string) error { return errGeneric }},
		)

		stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)

		want := models.SyncStats{Total: 12, Failed: 10}
		if stats != want {
			t.Errorf("stats = %+v, want %+v", stats, want)
		}
		if len(h.backend.queries) != 10 {
			t.Errorf("expected 10 backend calls, got %d", len(h.backend.queries))
		}
		// streaks 3 through 9 pause; the tenth stops instead
		if got := h.sleeps.Count(60 * time.Second); got != 7 {
			t.Errorf("expected 7 pauses, got %d", got)
		}

		failed, err := ReadFailedTracks(dir)
		if err != nil {
			t.Fatalf("ReadFailedTracks() error = %v", err)
		}
		if len(failed) != 10 {
			t.Errorf("expected 10 failed tracks, got %d", len(failed))
		}
		if failed[0].Title != "Song A" || failed[0].URL == "" {
			t.Errorf("unexpected first failure: %+v", failed[0])
		}
	})

	t.Run("one pause then reset on success", func(t *testing.T) {
		dir := t.TempDir()
		h := newHarness(
			&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(6)}},
			&mockBackend{errs: []error{errGeneric, errGeneric, errGeneric, nil, errGeneric, errGeneric}},
		)

		stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)

		want := models.SyncStats{Total: 6, Downloaded: 1, Failed: 5}
		if stats != want {
			t.Errorf("stats = %+v, want %+v", stats, want)
		}
		if got := h.sleeps.Count(60 * time.Second); got != 1 {
			t.Errorf("expected exactly one pause, got %d (%v)", got, h.sleeps.Calls)
		}
		if got := h.sleeps.Count(testJitter); got != 1 {
			t.Errorf("expected one jitter delay, got %d", got)
		}
	})

	t.Run("age restriction counts but never signals", func(t *testing.T) {
		h := newHarness(
			&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(2)}},
			&mockBackend{errs: []error{errAgeGate}},
		)

		stats := syncOnce(t, h, t.TempDir(), models.SyncOptions{}, nil)

		if stats.Failed != 1 || stats.Downloaded != 1 {
			t.Errorf("stats = %+v", stats)
		}
		if h.governor.Signals() != 0 {
			t.Errorf("expected no throttle signals, got %d", h.governor.Signals())
		}
	})
}

func TestReconcilerThrottleAbort(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(
		&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(5)}},
		&mockBackend{errFor: func(string) error { return errRateLimit }},
	)

	stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)

	want := models.SyncStats{Total: 5, Failed: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if !h.governor.Aborted() {
		t.Error("expected governor to abort")
	}
	if len(h.backend.queries) != 3 {
		t.Errorf("expected 3 backend calls, got %d", len(h.backend.queries))
	}
	want60, want300 := h.sleeps.Count(60*time.Second), h.sleeps.Count(300*time.Second)
	if want60 != 1 || want300 != 1 || len(h.sleeps.Calls) != 2 {
		t.Errorf("expected one 60s and one 300s wait, got %v", h.sleeps.Calls)
	}

	failed, err := ReadFailedTracks(dir)
	if err != nil {
		t.Fatalf("ReadFailedTracks() error = %v", err)
	}
	if len(failed) != 3 {
		t.Errorf("expected 3 failed tracks, got %d", len(failed))
	}
}

func TestReconcilerDryRun(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(2)}}, &mockBackend{})

	stats := syncOnce(t, h, dir, models.SyncOptions{DryRun: true}, nil)

	want := models.SyncStats{Total: 2, Downloaded: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(h.backend.queries) != 0 || len(h.sleeps.Calls) != 0 {
		t.Errorf("dry run made %d backend calls and %d sleeps", len(h.backend.queries), len(h.sleeps.Calls))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d files", len(entries))
	}
}

func TestReconcilerBudget(t *testing.T) {
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(3)}}, &mockBackend{})
	budget := NewDownloadBudget(1)

	stats := syncOnce(t, h, t.TempDir(), models.SyncOptions{MaxDownloads: 1}, budget)

	if stats.Downloaded != 1 || stats.Total != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if budget.Count() != 1 || !budget.Exhausted() {
		t.Errorf("budget count = %d, exhausted = %v", budget.Count(), budget.Exhausted())
	}
	if len(h.backend.queries) != 1 {
		t.Errorf("expected 1 backend call, got %d", len(h.backend.queries))
	}
}

func TestReconcilerErrors(t *testing.T) {
	t.Run("catalog failure", func(t *testing.T) {
		catalogErr := errors.Join(shared.ErrAPIRequest, errors.New("boom"))
		h := newHarness(&mockCatalog{errs: map[string]error{playlistURL: catalogErr}}, &mockBackend{})
		dir := filepath.Join(t.TempDir(), "new-folder")

		stats, err := h.reconciler.Sync(context.Background(), nil, models.PlaylistRef{Folder: dir, URL: playlistURL}, models.SyncOptions{}, nil)

		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if stats != (models.SyncStats{}) {
			t.Errorf("expected zero stats, got %+v", stats)
		}
		tu.AssertDirExists(t, dir)
	})

	t.Run("folder cannot be created", func(t *testing.T) {
		parent := t.TempDir()
		blocker := tu.MustTouch(t, parent, "file")
		h := newHarness(&mockCatalog{}, &mockBackend{})

		_, err := h.reconciler.Sync(context.Background(), nil, models.PlaylistRef{Folder: filepath.Join(blocker, "sub"), URL: playlistURL}, models.SyncOptions{}, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if len(h.catalog.calls) != 0 {
			t.Error("catalog should not be called when the folder cannot be created")
		}
	})

	t.Run("failure log write error is not fatal", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, FailedTracksFile), 0o755); err != nil {
			t.Fatal(err)
		}
		h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(1)}}, &mockBackend{errs: []error{errGeneric}})

		stats := syncOnce(t, h, dir, models.SyncOptions{}, nil)
		if stats.Failed != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})
}

func TestReconcilerCancelled(t *testing.T) {
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(3)}}, &mockBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := h.reconciler.Sync(ctx, nil, models.PlaylistRef{Folder: t.TempDir(), URL: playlistURL}, models.SyncOptions{}, nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Total != 3 || stats.Downloaded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(h.backend.queries) != 0 {
		t.Errorf("expected no backend calls, got %d", len(h.backend.queries))
	}
}

func TestReconcilerInterruptedDownload(t *testing.T) {
	dir := t.TempDir()
	previous := []models.FailedTrack{{Title: "Old Song", Artists: []string{"Old Artist"}}}
	if _, err := WriteFailedTracks(dir, previous); err != nil {
		t.Fatalf("WriteFailedTracks() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(
		&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(3)}},
		&mockBackend{errFor: func(string) error {
			cancel()
			return &services.BackendError{Message: "ERROR: interrupted by user", Err: context.Canceled}
		}},
	)
	rec := &mockRecorder{}
	h.reconciler.recorder = rec

	stats, err := h.reconciler.Sync(ctx, nil, models.PlaylistRef{Folder: dir, URL: playlistURL}, models.SyncOptions{RunID: "run-1"}, nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := models.SyncStats{Total: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(h.backend.queries) != 1 {
		t.Errorf("expected 1 backend call, got %d", len(h.backend.queries))
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("expected no recorded outcomes, got %+v", rec.outcomes)
	}

	failed, err := ReadFailedTracks(dir)
	if err != nil {
		t.Fatalf("ReadFailedTracks() error = %v", err)
	}
	if len(failed) != 1 || failed[0].Title != "Old Song" {
		t.Errorf("failure log was rewritten: %+v", failed)
	}
}

func TestReconcilerRecordsOutcomes(t *testing.T) {
	tracks := tracksN(2)
	dir := t.TempDir()
	tu.MustTouch(t, dir, filename.CanonicalFilename(tracks[0]))
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracks}}, &mockBackend{errs: []error{errGeneric}})
	rec := &mockRecorder{}
	h.reconciler.recorder = rec

	syncOnce(t, h, dir, models.SyncOptions{RunID: "run-1"}, nil)

	if len(rec.outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(rec.outcomes))
	}
	if rec.outcomes[0].Outcome != "exists" || rec.outcomes[1].Outcome != "failed" {
		t.Errorf("unexpected outcomes: %q, %q", rec.outcomes[0].Outcome, rec.outcomes[1].Outcome)
	}
	if rec.outcomes[1].Error != errGeneric.Message || rec.outcomes[1].RunID != "run-1" {
		t.Errorf("unexpected failure record: %+v", rec.outcomes[1])
	}

	t.Run("recorder errors are not fatal", func(t *testing.T) {
		h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(1)}}, &mockBackend{})
		h.reconciler.recorder = &mockRecorder{recordErr: errors.New("disk full")}
		if stats := syncOnce(t, h, t.TempDir(), models.SyncOptions{RunID: "run-2"}, nil); stats.Downloaded != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})
}

func TestReconcilerProgress(t *testing.T) {
	h := newHarness(&mockCatalog{tracks: map[string][]models.Track{playlistURL: tracksN(2)}}, &mockBackend{})
	progress := make(chan ProgressUpdate, 16)

	if _, err := h.reconciler.Sync(context.Background(), progress, models.PlaylistRef{Folder: t.TempDir(), URL: playlistURL}, models.SyncOptions{}, nil); err != nil {
		t.Fatal(err)
	}
	close(progress)

	var phases []Phase
	for u := range progress {
		phases = append(phases, u.Phase)
	}
	want := []Phase{FetchTracks, DownloadTrack, DownloadTrack, PlaylistDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %v, want %v", i, phases[i], want[i])
		}
	}
}

func TestFailedTracksFile(t *testing.T) {
	dir := t.TempDir()
	failed := []models.FailedTrack{{Title: "Café <Live>", Artists: []string{"Zoé"}, URL: "https://open.spotify.com/track/1"}}

	path, err := WriteFailedTracks(dir, failed)
	if err != nil {
		t.Fatalf("WriteFailedTracks() error = %v", err)
	}
	content := tu.MustReadFile(t, path)
	want := "[\n  {\n    \"name\": \"Café <Live>\",\n    \"artists\": [\n      \"Zoé\"\n    ],\n    \"spotify_url\": \"https://open.spotify.com/track/1\"\n  }\n]\n"
	if content != want {
		t.Errorf("content = %q, want %q", content, want)
	}

	if _, err := WriteFailedTracks(dir, failed[:0]); err != nil {
		t.Fatal(err)
	}
	if got, err := ReadFailedTracks(dir); err != nil || len(got) != 0 {
		t.Errorf("expected overwrite with empty list, got %v, %v", got, err)
	}
}
