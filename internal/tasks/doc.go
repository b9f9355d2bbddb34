// Package tasks implements the sync engine: mirroring catalog playlists into local folders of MP3 files.
//
// # Core Operations
//
//  1. [Fetcher.Attempt] : Materialize one track
//     - Refuses immediately once the session's throttle governor has aborted
//     - Searches the media backend for "<artist> - <title> official audio"
//     - Classifies failures as age-restricted, rate-limited or generic
//     - Tags successful downloads with catalog metadata
//
//  2. [Reconciler.Sync] : Bring one folder up to date with one playlist
//     - Skips tracks whose normalized name already exists in the folder
//     - Paces downloads with a randomized delay
//     - Pauses after a short failure streak and abandons the playlist after a long one
//     - Writes failed tracks to .failed_tracks.json
//
//  3. [Coordinator.Run] : Sync every registry entry in order
//     - Shares one governor and one [DownloadBudget] across playlists
//     - Waits between playlists and stops starting new ones after an abort
//
// Everything runs on a single goroutine. All waits block the one execution path, so the
// request cadence seen by the video platform is slow and serialized.
//
// # Progress Reporting
//
// Run and Sync accept an optional channel of [ProgressUpdate]. Updates use select with default
// to prevent blocking; a nil channel disables them.
//
// # History
//
// The optional [Recorder] interface persists runs and per-track outcomes
// (repositories.History). Recorder errors are logged and never interrupt a sync.
package tasks
