package formatter

import (
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/tasks"
	th "github.com/desertthunder/ytmirror/internal/testing"
	"github.com/desertthunder/ytmirror/internal/throttle"
)

func sampleReport() *tasks.SessionReport {
	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return &tasks.SessionReport{
		RunID: "run-1",
		Playlists: []tasks.PlaylistReport{
			{Folder: "~/Music/Spotify/exports/road-trip", Stats: models.SyncStats{Total: 1200, Downloaded: 3, Skipped: 1195, Failed: 2}},
			{Folder: "~/Music/Spotify/exports/focus/", Error: "fetch tracks for focus: playlist not found"},
		},
		Totals:       models.SyncStats{Total: 1200, Downloaded: 3, Skipped: 1195, Failed: 2},
		Throttle:     throttle.Status{Signals: 1, State: throttle.Warned},
		Downloads:    3,
		MaxDownloads: 10,
		Errors:       1,
		Started:      started,
		Finished:     started.Add(4*time.Minute + 2*time.Second + 300*time.Millisecond),
		LogPath:      "/var/log/ytmirror/sync_20250601_080000.log",
	}
}

func TestSummary(t *testing.T) {
	out := Summary(sampleReport())

	for _, want := range []string{
		"road-trip", "focus", "1,200", "1,195", "error: fetch tracks for focus",
		"3 / 10", "warned (1 signals)", "4m2s", "sync_20250601_080000.log", "Playlist errors",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dry run") {
		t.Error("Summary() should not mention dry run")
	}
}

func TestSummaryRows(t *testing.T) {
	t.Run("dry run and abort", func(t *testing.T) {
		r := sampleReport()
		r.DryRun = true
		r.Skipped = 2
		r.MaxDownloads = 0
		r.Throttle = throttle.Status{Signals: 3, State: throttle.Aborted, Aborted: true}

		rows := SummaryRows(r)
		got := map[string]string{}
		for _, row := range rows {
			got[row[0]] = row[1]
		}

		if got["Mode"] != "dry run" {
			t.Errorf("Mode = %q", got["Mode"])
		}
		if got["Playlists not started"] != "2" {
			t.Errorf("Playlists not started = %q", got["Playlists not started"])
		}
		if got["Downloads"] != "3 (no limit)" {
			t.Errorf("Downloads = %q", got["Downloads"])
		}
		if !strings.HasSuffix(got["Throttle"], "session aborted") {
			t.Errorf("Throttle = %q", got["Throttle"])
		}
	})
}

func TestWriteSummary(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var b strings.Builder
		if err := WriteSummary(&b, sampleReport()); err != nil {
			t.Fatalf("WriteSummary() error = %v", err)
		}
		if b.Len() == 0 {
			t.Error("expected output")
		}
	})

	t.Run("writer error", func(t *testing.T) {
		if err := WriteSummary(&th.FWriter{}, sampleReport()); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{400 * time.Millisecond, "0s"},
		{90*time.Second + 600*time.Millisecond, "1m31s"},
		{2 * time.Hour, "2h0m0s"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.in); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHistory(t *testing.T) {
	finished := time.Now().Add(-time.Hour)
	runs := []*models.SyncRun{
		{
			Sequence:        2,
			StartedAt:       time.Now().Add(-2 * time.Hour),
			FinishedAt:      &finished,
			Playlists:       4,
			Stats:           models.SyncStats{Downloaded: 12, Skipped: 300, Failed: 1},
			ThrottleSignals: 3,
			Aborted:         true,
		},
		{Sequence: 1, StartedAt: time.Now().Add(-48 * time.Hour), DryRun: true},
	}

	out := History(runs)

	for _, want := range []string{"2 hours ago", "1h0m0s", "aborted", "dry-run", "running", "429s"} {
		if !strings.Contains(out, want) {
			t.Errorf("History() missing %q:\n%s", want, out)
		}
	}
}

func TestOutcomes(t *testing.T) {
	long := strings.Repeat("x", 100)
	out := Outcomes([]*models.TrackOutcome{
		{Playlist: "focus", Artists: []string{"A", "B"}, Title: "Song", Outcome: "failed", Error: long},
	})

	if !strings.Contains(out, "A, B") || !strings.Contains(out, "failed") {
		t.Errorf("Outcomes() = %s", out)
	}
	if strings.Contains(out, long) || !strings.Contains(out, "…") {
		t.Error("expected long errors to be truncated")
	}
}

func TestOutcomeCounts(t *testing.T) {
	out := OutcomeCounts(map[string]int{"success": 1200, "failed": 3, "exists": 10})
	if !strings.Contains(out, "1,200") {
		t.Errorf("OutcomeCounts() = %s", out)
	}
	if strings.Index(out, "exists") > strings.Index(out, "failed") || strings.Index(out, "failed") > strings.Index(out, "success") {
		t.Errorf("expected sorted outcomes:\n%s", out)
	}
}

func TestPlaylistsAndRegistry(t *testing.T) {
	out := Playlists([]models.Playlist{{Name: "Road Trip", TotalTracks: 1500, Owner: "me", URL: "https://open.spotify.com/playlist/a"}})
	if !strings.Contains(out, "Road Trip") || !strings.Contains(out, "1,500") {
		t.Errorf("Playlists() = %s", out)
	}

	out = Registry([]models.PlaylistRef{{Folder: "~/m/road-trip", URL: "https://open.spotify.com/playlist/a"}})
	if !strings.Contains(out, "~/m/road-trip") {
		t.Errorf("Registry() = %s", out)
	}
}

func TestFailedTracks(t *testing.T) {
	out := FailedTracks([]models.FailedTrack{
		{Title: "Café", Artists: []string{"Björk", "Thom"}, URL: "https://open.spotify.com/track/x"},
	})
	for _, want := range []string{"Café", "Björk, Thom", "open.spotify.com/track/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("FailedTracks() missing %q:\n%s", want, out)
		}
	}
}

func TestOutcomesCSV(t *testing.T) {
	outcomes := []*models.TrackOutcome{
		{
			RunID:     "run-1",
			Playlist:  "focus",
			Title:     "Song, Live",
			Artists:   []string{"A", "B"},
			Outcome:   "failed",
			Error:     "ERROR: \"quoted\"",
			URL:       "https://open.spotify.com/track/1",
			CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		},
	}

	t.Run("OutcomesToCSV", func(t *testing.T) {
		data, err := OutcomesToCSV(outcomes)
		if err != nil {
			t.Fatalf("OutcomesToCSV() error = %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected header and 1 row, got %d", len(records))
		}
		row := records[1]
		if row[2] != "Song, Live" || row[3] != "A, B" || row[5] != "ERROR: \"quoted\"" || row[8] != "2025-06-01T08:00:00Z" {
			t.Errorf("unexpected row: %v", row)
		}
	})

	t.Run("WriteOutcomesCSV", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "outcomes.csv")
		if err := WriteOutcomesCSV(outcomes, path); err != nil {
			t.Fatalf("WriteOutcomesCSV() error = %v", err)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "Run,Playlist,Title") {
			t.Errorf("unexpected content: %q", content)
		}
	})

	t.Run("WriteOutcomesCSV bad path", func(t *testing.T) {
		if err := WriteOutcomesCSV(outcomes, filepath.Join(t.TempDir(), "missing", "x.csv")); err == nil {
			t.Error("expected error")
		}
	})
}
