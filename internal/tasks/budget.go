package tasks

// DownloadBudget is the session-wide download ceiling shared by every playlist.
//
// A zero or negative max means no ceiling. The zero value is an unlimited budget.
type DownloadBudget struct {
	max   int
	count int
}

// NewDownloadBudget creates a budget allowing at most max successful downloads.
func NewDownloadBudget(max int) *DownloadBudget {
	if max < 0 {
		max = 0
	}
	return &DownloadBudget{max: max}
}

// Max returns the configured ceiling, 0 when unlimited.
func (b *DownloadBudget) Max() int { return b.max }

// Count returns the number of downloads recorded so far.
func (b *DownloadBudget) Count() int { return b.count }

// Exhausted reports whether the ceiling has been reached.
func (b *DownloadBudget) Exhausted() bool {
	return b.max > 0 && b.count >= b.max
}

// Record counts one successful download.
func (b *DownloadBudget) Record() { b.count++ }
