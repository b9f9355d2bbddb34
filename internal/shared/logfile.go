package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LatestLogName is the symlink kept pointing at the most recent run log.
const LatestLogName = "latest.log"

// OpenLogFile creates dir/sync_YYYYMMDD_HHMMSS.log for a run starting at now and repoints
// dir/latest.log at it.
//
// Refreshing the symlink is best effort; a failure there does not fail the call.
func OpenLogFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("sync_%s.log", now.Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	latest := filepath.Join(dir, LatestLogName)
	_ = os.Remove(latest)
	_ = os.Symlink(name, latest)

	return f, nil
}
