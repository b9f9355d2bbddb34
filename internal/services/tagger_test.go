package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/ytmirror/internal/models"
)

func TestID3Tagger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A, B - Song.mp3")
	if err := os.WriteFile(path, make([]byte, 128), 0o644); err != nil {
		t.Fatal(err)
	}

	track := models.Track{
		Title:   "Song",
		Artists: []string{"A", "B"},
		Album:   "Album",
		URL:     "https://open.spotify.com/track/1",
	}

	tagger := NewID3Tagger()
	if err := tagger.Tag(path, track); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	// Tagging twice must not duplicate the comment frame.
	if err := tagger.Tag(path, track); err != nil {
		t.Fatalf("second Tag failed: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer tag.Close()

	if tag.Title() != "Song" {
		t.Errorf("title = %q", tag.Title())
	}
	if tag.Artist() != "A, B" {
		t.Errorf("artist = %q", tag.Artist())
	}
	if tag.Album() != "Album" {
		t.Errorf("album = %q", tag.Album())
	}

	comments := tag.GetFrames(tag.CommonID("Comments"))
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment frame, got %d", len(comments))
	}
	cf, ok := comments[0].(id3v2.CommentFrame)
	if !ok || cf.Text != track.URL {
		t.Errorf("unexpected comment frame %+v", comments[0])
	}
}

func TestID3TaggerMissingFile(t *testing.T) {
	err := NewID3Tagger().Tag(filepath.Join(t.TempDir(), "missing.mp3"), models.Track{Title: "x", Artists: []string{"y"}})
	if err == nil {
		t.Error("expected error for missing file")
	}
}
