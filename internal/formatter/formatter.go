// package formatter renders sync reports, run history and catalog listings as terminal tables,
// and exports per-track outcomes to CSV.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// Summary renders the end-of-session report: one row per playlist followed by the session totals.
func Summary(report *tasks.SessionReport) string {
	var b strings.Builder

	if len(report.Playlists) > 0 {
		rows := make([][]string, 0, len(report.Playlists))
		for _, p := range report.Playlists {
			status := "ok"
			if p.Error != "" {
				status = "error: " + p.Error
			}
			rows = append(rows, []string{
				playlistName(p.Folder),
				humanize.Comma(int64(p.Stats.Total)),
				humanize.Comma(int64(p.Stats.Downloaded)),
				humanize.Comma(int64(p.Stats.Skipped)),
				humanize.Comma(int64(p.Stats.Failed)),
				status,
			})
		}
		b.WriteString(renderTable(
			[]string{"Playlist", "Total", "Downloaded", "Skipped", "Failed", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
		b.WriteString("\n")
	}

	b.WriteString(renderTable([]string{"Session", ""}, SummaryRows(report), []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")
	return b.String()
}

// SummaryRows returns the key/value rows of the session totals.
func SummaryRows(report *tasks.SessionReport) [][]string {
	rows := [][]string{
		{"Downloaded", humanize.Comma(int64(report.Totals.Downloaded))},
		{"Skipped (exists)", humanize.Comma(int64(report.Totals.Skipped))},
		{"Failed", humanize.Comma(int64(report.Totals.Failed))},
		{"Total tracks", humanize.Comma(int64(report.Totals.Total))},
		{"Downloads", DownloadsLabel(report.Downloads, report.MaxDownloads)},
		{"Throttle", ThrottleLabel(report)},
		{"Elapsed", FormatElapsed(report.Elapsed())},
	}
	if report.Errors > 0 {
		rows = append(rows, []string{"Playlist errors", strconv.Itoa(report.Errors)})
	}
	if report.Skipped > 0 {
		rows = append(rows, []string{"Playlists not started", strconv.Itoa(report.Skipped)})
	}
	if report.DryRun {
		rows = append(rows, []string{"Mode", "dry run"})
	}
	if report.LogPath != "" {
		rows = append(rows, []string{"Log", report.LogPath})
	}
	return rows
}

// WriteSummary writes [Summary] to w.
func WriteSummary(w io.Writer, report *tasks.SessionReport) error {
	if _, err := io.WriteString(w, Summary(report)); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// DownloadsLabel renders a download count against its ceiling.
func DownloadsLabel(count, max int) string {
	if max <= 0 {
		return fmt.Sprintf("%s (no limit)", humanize.Comma(int64(count)))
	}
	return fmt.Sprintf("%s / %s", humanize.Comma(int64(count)), humanize.Comma(int64(max)))
}

// ThrottleLabel renders the governor state and signal count.
func ThrottleLabel(report *tasks.SessionReport) string {
	label := fmt.Sprintf("%s (%d signals)", report.Throttle.State, report.Throttle.Signals)
	if report.Throttle.Aborted {
		label += ", session aborted"
	}
	return label
}

// FormatElapsed rounds d to whole seconds.
func FormatElapsed(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Round(time.Second).String()
}

// History renders recent runs, newest first.
func History(runs []*models.SyncRun) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		elapsed := "running"
		if r.FinishedAt != nil {
			elapsed = FormatElapsed(r.FinishedAt.Sub(r.StartedAt))
		}
		flags := []string{}
		if r.DryRun {
			flags = append(flags, "dry-run")
		}
		if r.Aborted {
			flags = append(flags, "aborted")
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Sequence),
			humanize.Time(r.StartedAt),
			elapsed,
			strconv.Itoa(r.Playlists),
			humanize.Comma(int64(r.Stats.Downloaded)),
			humanize.Comma(int64(r.Stats.Skipped)),
			humanize.Comma(int64(r.Stats.Failed)),
			strconv.Itoa(r.ThrottleSignals),
			strings.Join(flags, ","),
		})
	}
	return renderTable(
		[]string{"#", "Started", "Elapsed", "Playlists", "Downloaded", "Skipped", "Failed", "429s", "Flags"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

// Outcomes renders the per-track results of one run.
func Outcomes(outcomes []*models.TrackOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.Playlist,
			strings.Join(o.Artists, ", "),
			o.Title,
			o.Outcome,
			truncate(o.Error, 60),
		})
	}
	return renderTable([]string{"Playlist", "Artists", "Title", "Outcome", "Error"}, rows, nil)
}

// OutcomeCounts renders per-outcome totals sorted by outcome name.
func OutcomeCounts(counts map[string]int) string {
	keys := slices.Sorted(maps.Keys(counts))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, humanize.Comma(int64(counts[k]))})
	}
	return renderTable([]string{"Outcome", "Tracks"}, rows, []columnAlignment{alignLeft, alignRight})
}

// Playlists renders catalog playlists as returned by discovery.
func Playlists(playlists []models.Playlist) string {
	rows := make([][]string, 0, len(playlists))
	for i, p := range playlists {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			p.Name,
			humanize.Comma(int64(p.TotalTracks)),
			p.Owner,
			p.URL,
		})
	}
	return renderTable(
		[]string{"#", "Name", "Tracks", "Owner", "URL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// Registry renders registry entries in sync order.
func Registry(entries []models.PlaylistRef) string {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.Folder, e.URL})
	}
	return renderTable([]string{"#", "Folder", "URL"}, rows, []columnAlignment{alignRight})
}

// FailedTracks renders one playlist's failure log.
func FailedTracks(failed []models.FailedTrack) string {
	rows := make([][]string, 0, len(failed))
	for i, f := range failed {
		rows = append(rows, []string{strconv.Itoa(i + 1), strings.Join(f.Artists, ", "), f.Title, f.URL})
	}
	return renderTable([]string{"#", "Artists", "Title", "URL"}, rows, []columnAlignment{alignRight})
}

// OutcomesToCSV converts outcomes to CSV with columns: Run, Playlist, Title, Artists, Outcome, Error, URL, Filename, Time
func OutcomesToCSV(outcomes []*models.TrackOutcome) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Run", "Playlist", "Title", "Artists", "Outcome", "Error", "URL", "Filename", "Time"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range outcomes {
		record := []string{
			o.RunID,
			o.Playlist,
			o.Title,
			strings.Join(o.Artists, ", "),
			o.Outcome,
			o.Error,
			o.URL,
			o.Filename,
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteOutcomesCSV writes [OutcomesToCSV] output to path.
func WriteOutcomesCSV(outcomes []*models.TrackOutcome, path string) error {
	data, err := OutcomesToCSV(outcomes)
	if err != nil {
		return fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

func playlistName(folder string) string {
	folder = strings.TrimRight(folder, "/")
	if i := strings.LastIndex(folder, "/"); i >= 0 {
		return folder[i+1:]
	}
	return folder
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
