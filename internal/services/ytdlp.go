package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// printPrefix marks the line yt-dlp prints once the final file is in place.
const printPrefix = "ytmirror-done"

// Executor abstracts command execution for testability.
//
// onStdout and onStderr receive each output line as it is produced.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// YtdlpOption configures the backend.
type YtdlpOption func(*Ytdlp)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) YtdlpOption {
	return func(y *Ytdlp) {
		if exec != nil {
			y.exec = exec
		}
	}
}

// WithYtdlpLogger sets the logger used for yt-dlp output at debug level.
func WithYtdlpLogger(l *log.Logger) YtdlpOption {
	return func(y *Ytdlp) {
		if l != nil {
			y.logger = l
		}
	}
}

// WithAudioQuality sets the MP3 bitrate in kbps passed to the audio extractor.
func WithAudioQuality(q string) YtdlpOption {
	return func(y *Ytdlp) {
		if q = strings.TrimSpace(q); q != "" {
			y.quality = q
		}
	}
}

// Ytdlp implements [Backend] by running the yt-dlp binary.
type Ytdlp struct {
	binary  string
	timeout time.Duration
	quality string
	exec    Executor
	logger  *log.Logger
}

// NewYtdlp constructs a backend that runs binary with a per-download timeout.
// A zero timeout disables it.
func NewYtdlp(binary string, timeout time.Duration, opts ...YtdlpOption) (*Ytdlp, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}

	y := &Ytdlp{
		binary:  binary,
		timeout: timeout,
		quality: "320",
		exec:    commandExecutor{},
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y, nil
}

// Args builds the yt-dlp argument list for a single search-and-download.
func (y *Ytdlp) Args(query string, c Constraints) []string {
	args := []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", y.quality + "K",
		"--output", c.OutputTemplate + ".%(ext)s",
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--sleep-interval", "3",
		"--max-sleep-interval", "8",
		"--sleep-requests", "1",
		"--print", "after_move:" + printPrefix + "\t%(duration)s\t%(filepath)s",
	}

	if c.MaxDuration > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration < %d", int(c.MaxDuration.Seconds())))
	}

	switch {
	case c.Auth.CookiesFile != "":
		args = append(args, "--cookies", c.Auth.CookiesFile)
	case c.Auth.CookiesFromBrowser != "":
		args = append(args, "--cookies-from-browser", c.Auth.CookiesFromBrowser)
	}

	return append(args, "ytsearch1:"+query)
}

// Fetch downloads the first search result for query that satisfies c.
func (y *Ytdlp) Fetch(ctx context.Context, query string, c Constraints) (Media, error) {
	if c.OutputTemplate == "" {
		return Media{}, &BackendError{Message: "output template required"}
	}

	runCtx := ctx
	if y.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	var (
		media     Media
		found     bool
		errLines  []string
		lastLines []string
	)

	onStdout := func(line string) {
		if m, ok := parsePrintLine(line); ok {
			media, found = m, true
			return
		}
		y.logger.Debug("yt-dlp", "out", line)
	}
	onStderr := func(line string) {
		y.logger.Debug("yt-dlp", "err", line)
		if strings.HasPrefix(line, "ERROR:") {
			errLines = append(errLines, line)
		}
		if strings.TrimSpace(line) != "" {
			lastLines = append(lastLines, line)
			if len(lastLines) > 5 {
				lastLines = lastLines[1:]
			}
		}
	}

	err := y.exec.Run(runCtx, y.binary, y.Args(query, c), onStdout, onStderr)
	if err != nil {
		y.cleanup(c.OutputTemplate)

		msg := strings.Join(errLines, "\n")
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			msg = fmt.Sprintf("download timed out after %s", y.timeout)
		case msg == "" && len(lastLines) > 0:
			msg = strings.Join(lastLines, "\n")
		case msg == "":
			msg = err.Error()
		}
		return Media{}, &BackendError{Message: msg, Err: err}
	}

	if !found {
		y.cleanup(c.OutputTemplate)
		return Media{}, &BackendError{Message: fmt.Sprintf("no result for %q within the duration limit", query)}
	}

	if media.Path == "" {
		media.Path = c.OutputTemplate + ".mp3"
	}
	if _, err := os.Stat(media.Path); err != nil {
		y.cleanup(c.OutputTemplate)
		return Media{}, &BackendError{Message: fmt.Sprintf("yt-dlp reported %s but it does not exist", media.Path), Err: err}
	}

	return media, nil
}

// artifactSuffix matches what yt-dlp appends to an output stem: a media or sidecar
// extension, optionally behind a format id or temp marker, optionally as a .part,
// fragment or .ytdl file. "Mr. Brightside.mp3" after the stem "Artist - Mr" does not match.
var artifactSuffix = regexp.MustCompile(
	`^(?:f[0-9]+(?:-[0-9]+)?\.)?(?:temp\.)?[A-Za-z0-9]{1,5}(?:\.part(?:-Frag[0-9]+)?(?:\.part)?|\.ytdl)?$`,
)

// isArtifact reports whether name is a file yt-dlp may have produced for stem.
func isArtifact(name, stem string) bool {
	rest, ok := strings.CutPrefix(name, stem+".")
	return ok && artifactSuffix.MatchString(rest)
}

// cleanup removes the artifacts yt-dlp may have produced for template: intermediate
// streams, .part and .ytdl files and a half-written mp3. Other files sharing the stem
// as a prefix are left alone.
func (y *Ytdlp) cleanup(template string) {
	dir, stem := filepath.Split(template)
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name(), stem) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			y.logger.Warn("failed to remove partial download", "path", path, "error", err)
		} else {
			y.logger.Debug("removed partial download", "path", path)
		}
	}
}

// parsePrintLine decodes the "after_move" line: prefix, duration in seconds ("NA" when unknown), path.
func parsePrintLine(line string) (Media, bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 || parts[0] != printPrefix {
		return Media{}, false
	}

	m := Media{Path: strings.TrimSpace(parts[2])}
	if secs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil && secs > 0 {
		m.Duration = time.Duration(secs * float64(time.Second))
	}
	return m, true
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				mu.Lock()
				forward(scanner.Text())
				mu.Unlock()
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
