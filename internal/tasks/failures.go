package tasks

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// FailedTracksFile is the per-playlist failure log name.
const FailedTracksFile = ".failed_tracks.json"

// WriteFailedTracks overwrites the failure log in dir with failed.
//
// The file is UTF-8 JSON indented with two spaces, non-ASCII characters unescaped.
func WriteFailedTracks(dir string, failed []models.FailedTrack) (string, error) {
	path := filepath.Join(dir, FailedTracksFile)
	data, err := shared.MarshalJSON(failed, "  ")
	if err != nil {
		return path, err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// ReadFailedTracks loads a failure log written by [WriteFailedTracks].
func ReadFailedTracks(dir string) ([]models.FailedTrack, error) {
	data, err := os.ReadFile(filepath.Join(dir, FailedTracksFile))
	if err != nil {
		return nil, err
	}
	var failed []models.FailedTrack
	if err := json.Unmarshal(data, &failed); err != nil {
		return nil, err
	}
	return failed, nil
}
