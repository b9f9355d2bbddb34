package ui

import (
	"fmt"
	"io"

	"github.com/desertthunder/ytmirror/internal/tasks"
)

// Progress writes progress updates to a terminal.
type Progress struct {
	w       io.Writer
	palette *Palette
	verbose bool
}

// NewProgress creates a printer using [Styles]. Skip lines are only written when verbose is set.
func NewProgress(w io.Writer, verbose bool) *Progress {
	return &Progress{w: w, palette: Styles, verbose: verbose}
}

// Line renders a single update. The second return value is false when the update is not shown.
func (p *Progress) Line(u tasks.ProgressUpdate) (string, bool) {
	switch u.Phase {
	case tasks.StartPlaylist:
		return "\n" + p.palette.Title(u.Message), true
	case tasks.FetchTracks:
		return p.palette.Muted(u.Message), true
	case tasks.SkipTrack:
		return p.palette.Muted(u.Message), p.verbose
	case tasks.DownloadTrack:
		return p.palette.OK(u.Message), true
	case tasks.TrackFailed:
		return p.palette.Error(u.Message), true
	case tasks.Pause:
		return p.palette.Warn(u.Message), true
	case tasks.PlaylistDone:
		return p.palette.Title(u.Message), true
	case tasks.SessionAborted:
		return p.palette.Error(u.Message), true
	default:
		return u.Message, u.Message != ""
	}
}

// Consume prints updates until the channel is closed, then closes the returned channel.
func (p *Progress) Consume(updates <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			if line, ok := p.Line(u); ok {
				fmt.Fprintln(p.w, line)
			}
		}
	}()
	return done
}
