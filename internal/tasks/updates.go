package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
)

// ProgressUpdate represents a progress event during a sync session.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	StartPlaylist Phase = iota
	FetchTracks
	SkipTrack
	DownloadTrack
	TrackFailed
	Pause
	PlaylistDone
	SessionAborted
)

func (p Phase) String() string {
	switch p {
	case StartPlaylist:
		return "start_playlist"
	case FetchTracks:
		return "fetch_tracks"
	case SkipTrack:
		return "skip_track"
	case DownloadTrack:
		return "download_track"
	case TrackFailed:
		return "track_failed"
	case Pause:
		return "pause"
	case PlaylistDone:
		return "playlist_done"
	case SessionAborted:
		return "session_aborted"
	default:
		return ""
	}
}

func startPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StartPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Playlist: %s", step, total, name),
	}
}

func fetchTracksUpdate(name string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Total:   count,
		Message: fmt.Sprintf("Found %d tracks in %s", count, name),
	}
}

func skipTrackUpdate(step, total int, file string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SkipTrack,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exists: %s", step, total, file),
	}
}

func downloadTrackUpdate(step, total int, file string, res FetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DownloadTrack,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, file),
		Data:    res,
	}
}

func trackFailedUpdate(step, total int, file string, res FetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TrackFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s (%s)", step, total, file, res.Outcome),
		Data:    res,
	}
}

func pauseUpdate(streak int, d time.Duration) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Pause,
		Message: fmt.Sprintf("%d consecutive failures, pausing %s", streak, d),
	}
}

func playlistDoneUpdate(name string, stats models.SyncStats) ProgressUpdate {
	return ProgressUpdate{
		Phase: PlaylistDone,
		Message: fmt.Sprintf(
			"%s: %d downloaded, %d skipped, %d failed", name, stats.Downloaded, stats.Skipped, stats.Failed,
		),
		Data: stats,
	}
}

func sessionAbortedUpdate(remaining int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SessionAborted,
		Total:   remaining,
		Message: fmt.Sprintf("Session aborted by rate limiting, %d playlists not processed", remaining),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
