package models

import (
	"strings"
	"time"
)

// Track represents a catalog track. Values are never mutated after they are fetched.
type Track struct {
	Title    string        `json:"title"`
	Artists  []string      `json:"artists"` // Ordered, never empty
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"duration"` // Zero when the catalog did not report one
	URL      string        `json:"url,omitempty"`
}

// PrimaryArtist returns the first credited artist.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ArtistString joins all credited artists with ", ".
func (t Track) ArtistString() string {
	return strings.Join(t.Artists, ", ")
}

// Playlist represents a playlist owned by the authenticated catalog user.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Owner       string `json:"owner"`
	TotalTracks int    `json:"total_tracks"`
}

// PlaylistRef pairs a local destination folder with a catalog playlist URL.
type PlaylistRef struct {
	Folder string
	URL    string
}

// SyncStats accumulates outcome counters. Created fresh per playlist and summed per session.
type SyncStats struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Add returns the field-wise sum of s and o.
func (s SyncStats) Add(o SyncStats) SyncStats {
	return SyncStats{
		Total:      s.Total + o.Total,
		Downloaded: s.Downloaded + o.Downloaded,
		Skipped:    s.Skipped + o.Skipped,
		Failed:     s.Failed + o.Failed,
	}
}

// FailedTrack is one entry in a playlist's failure log.
//
// JSON keys match the failure files written by earlier versions of the tool.
type FailedTrack struct {
	Title   string   `json:"name"`
	Artists []string `json:"artists"`
	URL     string   `json:"spotify_url"`
}

// NewFailedTrack builds the failure record for t.
func NewFailedTrack(t Track) FailedTrack {
	return FailedTrack{Title: t.Title, Artists: t.Artists, URL: t.URL}
}

// SyncOptions holds the resolved CLI options the engine needs.
type SyncOptions struct {
	DryRun         bool
	MaxDownloads   int    // 0 means no ceiling
	PlaylistFilter string // Substring of the folder key; empty selects all
	RunID          string // Set by the coordinator for history records
}

// SyncRun is the history record of one sync session.
type SyncRun struct {
	ID              string     `json:"id"`
	Sequence        int        `json:"sequence"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DryRun          bool       `json:"dry_run"`
	MaxDownloads    int        `json:"max_downloads"`
	Playlists       int        `json:"playlists"`
	Stats           SyncStats  `json:"stats"`
	ThrottleSignals int        `json:"throttle_signals"`
	Aborted         bool       `json:"aborted"`
	LogPath         string     `json:"log_path,omitempty"`
}

// TrackOutcome is the history record of one track attempt or skip.
type TrackOutcome struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Playlist  string    `json:"playlist"`
	Title     string    `json:"title"`
	Artists   []string  `json:"artists"`
	URL       string    `json:"spotify_url,omitempty"`
	Filename  string    `json:"filename"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
