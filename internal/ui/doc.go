// Package ui renders sync progress as styled terminal lines.
//
// The [Palette] is a small lipgloss stylesheet. A [Progress] printer drains the
// [tasks.ProgressUpdate] channel fed by the session coordinator and writes one line
// per event, colored by phase. Skipped tracks are only printed in verbose mode since
// large playlists produce thousands of them on every run.
package ui
