// Package models defines the domain types shared by the ytmirror sync engine.
//
// The package contains two categories of types:
//
// 1. Catalog data: immutable values fetched from the music catalog
//   - [Track] : Song metadata used to search, name and tag a download
//   - [Playlist] : Playlist metadata returned by discovery
//   - [PlaylistRef] : A registry entry pairing a local folder with a playlist URL
//
// 2. Sync bookkeeping: values produced while reconciling playlists
//   - [SyncStats] : Per-playlist and session-wide outcome counters
//   - [FailedTrack] : A record written to a playlist's failure log
//   - [SyncOptions] : Resolved CLI options consumed by the engine
//   - [SyncRun] : History row for one session
//   - [TrackOutcome] : History row for one track
package models
