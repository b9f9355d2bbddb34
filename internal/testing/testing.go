// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
)

// SleepRecorder is a test double for [shared.SleepFunc] that records every requested
// wait instead of blocking.
type SleepRecorder struct {
	Calls []time.Duration
	Err   error
}

func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.Calls = append(s.Calls, d)
	return s.Err
}

// Count returns the number of recorded sleeps equal to d.
func (s *SleepRecorder) Count(d time.Duration) int {
	n := 0
	for _, c := range s.Calls {
		if c == d {
			n++
		}
	}
	return n
}

// Total returns the sum of all recorded sleeps.
func (s *SleepRecorder) Total() time.Duration {
	var sum time.Duration
	for _, c := range s.Calls {
		sum += c
	}
	return sum
}

// NewTrack builds a single-artist track with the given duration in milliseconds.
func NewTrack(artist, title string, ms int) models.Track {
	return models.Track{
		Title:    title,
		Artists:  []string{artist},
		Album:    "Album",
		Duration: time.Duration(ms) * time.Millisecond,
		URL:      "https://open.spotify.com/track/" + artist + title,
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

// MustTouch creates an empty file named name inside dir.
func MustTouch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
