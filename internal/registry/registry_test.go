package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
	tu "github.com/desertthunder/ytmirror/internal/testing"
)

const sample = `{
    "~/Music/Spotify/exports/zeta": "https://open.spotify.com/playlist/zzz?si=1",
    "~/Music/Spotify/exports/alpha": "https://open.spotify.com/playlist/aaa",
    "/srv/music/mid": "https://open.spotify.com/playlist/mmm"
}
`

func TestLoad(t *testing.T) {
	t.Run("preserves order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
			t.Fatal(err)
		}

		r, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		want := []string{"~/Music/Spotify/exports/zeta", "~/Music/Spotify/exports/alpha", "/srv/music/mid"}
		entries := r.Entries()
		if len(entries) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(entries))
		}
		for i, folder := range want {
			if entries[i].Folder != folder {
				t.Errorf("entry %d = %q, want %q", i, entries[i].Folder, folder)
			}
		}
	})

	t.Run("missing file is empty", func(t *testing.T) {
		r, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if r.Len() != 0 {
			t.Errorf("expected empty registry, got %d", r.Len())
		}
	})

	t.Run("undecodable file is empty with error", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"garbage", "not json"},
			{"array", `["a", "b"]`},
			{"non-string value", `{"a": 1}`},
			{"truncated", `{"a": "b"`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "playlists.json")
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
				r, err := Load(path)
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				if r == nil || r.Len() != 0 {
					t.Error("expected empty registry")
				}
			})
		}
	})
}

func TestSave(t *testing.T) {
	t.Run("round trip is byte identical", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "in.json")
		dst := filepath.Join(dir, "out", "playlists.json")
		if err := os.WriteFile(src, []byte(sample), 0o644); err != nil {
			t.Fatal(err)
		}

		r, err := Load(src)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Save(dst); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if got := tu.MustReadFile(t, dst); got != sample {
			t.Errorf("Save() wrote\n%s\nwant\n%s", got, sample)
		}
	})

	t.Run("no escaping", func(t *testing.T) {
		r := New(models.PlaylistRef{Folder: "~/Música/a&b", URL: "https://open.spotify.com/playlist/x?a=1&b=<2>"})
		data, err := r.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		want := "{\n    \"~/Música/a&b\": \"https://open.spotify.com/playlist/x?a=1&b=<2>\"\n}\n"
		if string(data) != want {
			t.Errorf("MarshalJSON() = %q, want %q", data, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		data, err := (&Registry{}).MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "{}\n" {
			t.Errorf("MarshalJSON() = %q", data)
		}
	})
}

func TestAdd(t *testing.T) {
	r := New(models.PlaylistRef{Folder: "~/m/road-trip", URL: "https://open.spotify.com/playlist/abc?si=1"})

	tests := []struct {
		name    string
		folder  string
		url     string
		wantErr error
	}{
		{"new entry", "~/m/focus", "https://open.spotify.com/playlist/def", nil},
		{"same url different query", "~/m/other", "https://open.spotify.com/playlist/abc?si=2", shared.ErrDuplicateEntry},
		{"folder collision", "~/m/road-trip", "https://open.spotify.com/playlist/ghi", shared.ErrDuplicateEntry},
		{"missing url", "~/m/x", "", shared.ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Add(tt.folder, tt.url)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if r.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", r.Len())
	}
	if last := r.Entries()[1]; last.Folder != "~/m/focus" {
		t.Errorf("expected new entry appended, got %+v", last)
	}
}

func TestMerge(t *testing.T) {
	r := New(models.PlaylistRef{Folder: "~/custom/name", URL: "https://open.spotify.com/playlist/abc"})
	discovered := []models.Playlist{
		{ID: "abc", Name: "Road Trip", URL: "https://open.spotify.com/playlist/abc?si=zzz"},
		{ID: "def45678extra", Name: "Chill Vibes", URL: "https://open.spotify.com/playlist/def45678extra"},
		{ID: "ghi12345extra", Name: "Chill  Vibes!", URL: "https://open.spotify.com/playlist/ghi12345extra"},
	}

	added := r.Merge(discovered, "~/Music/Spotify/exports")

	if len(added) != 2 {
		t.Fatalf("expected 2 new entries, got %d", len(added))
	}
	want := []string{
		"~/custom/name",
		"~/Music/Spotify/exports/chill-vibes",
		"~/Music/Spotify/exports/chill-vibes-ghi12345",
	}
	for i, e := range r.Entries() {
		if e.Folder != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Folder, want[i])
		}
	}
}

func TestFilter(t *testing.T) {
	r := New(
		models.PlaylistRef{Folder: "~/m/road-trip", URL: "u1"},
		models.PlaylistRef{Folder: "~/m/focus", URL: "u2"},
		models.PlaylistRef{Folder: "~/m/trip-hop", URL: "u3"},
	)

	tests := []struct {
		substr string
		want   int
	}{
		{"", 3},
		{"trip", 2},
		{"focus", 1},
		{"jazz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.substr, func(t *testing.T) {
			if got := r.Filter(tt.substr); len(got) != tt.want {
				t.Errorf("Filter(%q) = %d entries, want %d", tt.substr, len(got), tt.want)
			}
		})
	}
}

func TestFolderFor(t *testing.T) {
	tests := []struct {
		base, name, want string
	}{
		{"~/Music/Spotify/exports", "Road Trip", "~/Music/Spotify/exports/road-trip"},
		{"/srv/music/", "Café del Mar", "/srv/music/cafe-del-mar"},
		{"", "???", DefaultBaseDir + "/unnamed"},
	}
	for _, tt := range tests {
		if got := FolderFor(tt.base, tt.name); got != tt.want {
			t.Errorf("FolderFor(%q, %q) = %q, want %q", tt.base, tt.name, got, tt.want)
		}
	}
}

func TestStripQuery(t *testing.T) {
	if got := StripQuery("https://x/playlist/a?si=1?b"); got != "https://x/playlist/a" {
		t.Errorf("StripQuery() = %q", got)
	}
	if got := StripQuery("plain"); !strings.EqualFold(got, "plain") {
		t.Errorf("StripQuery() = %q", got)
	}
}
