// Package throttle tracks rate-limit signals from the video platform across a whole sync
// session and decides how long to back off or whether to stop entirely.
//
// The escalation policy is a four-state machine driven by [Next]:
//
//	Normal -> Warned -> Escalated -> Aborted
//
// Entering Warned waits [Policy.WarnWait], entering Escalated waits [Policy.EscalateWait] and
// entering Aborted sets a terminal flag that every caller checks before touching the network.
// A [Governor] lives for the whole process and is shared by pointer; it is not safe for
// concurrent use since the sync engine is strictly sequential.
package throttle

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// State is the escalation level of a [Governor].
type State int

const (
	Normal State = iota
	Warned
	Escalated
	Aborted
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Warned:
		return "warned"
	case Escalated:
		return "escalated"
	case Aborted:
		return "aborted"
	default:
		return ""
	}
}

// Next returns the state entered when a rate-limit signal arrives in state s.
// Aborted is terminal.
func Next(s State) State {
	switch s {
	case Normal:
		return Warned
	case Warned:
		return Escalated
	default:
		return Aborted
	}
}

// Policy holds the waits applied on entering each non-terminal state.
type Policy struct {
	WarnWait     time.Duration
	EscalateWait time.Duration
}

// DefaultPolicy waits one minute after the first signal and five after the second.
func DefaultPolicy() Policy {
	return Policy{WarnWait: 60 * time.Second, EscalateWait: 300 * time.Second}
}

// Wait returns the back-off applied on entering s.
func (p Policy) Wait(s State) time.Duration {
	switch s {
	case Warned:
		return p.WarnWait
	case Escalated:
		return p.EscalateWait
	default:
		return 0
	}
}

// Status is a point-in-time copy of a [Governor]'s counters.
type Status struct {
	Signals int   `json:"signals"`
	State   State `json:"state"`
	Aborted bool  `json:"aborted"`
}

// Governor is the session-wide rate-limit oracle consulted before and after each download.
type Governor struct {
	policy  Policy
	state   State
	signals int
	sleep   shared.SleepFunc
	logger  *log.Logger
}

// Option configures a [Governor].
type Option func(*Governor)

// WithSleep replaces the blocking wait (primarily for tests).
func WithSleep(fn shared.SleepFunc) Option {
	return func(g *Governor) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithLogger sets the logger used to report escalations.
func WithLogger(l *log.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Governor in the Normal state.
func New(policy Policy, opts ...Option) *Governor {
	g := &Governor{
		policy: policy,
		state:  Normal,
		sleep:  shared.Sleep,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current escalation level.
func (g *Governor) State() State { return g.state }

// Signals returns the number of rate-limit signals seen this session.
func (g *Governor) Signals() int { return g.signals }

// Aborted reports whether the session must stop making network calls.
func (g *Governor) Aborted() bool { return g.state == Aborted }

// Status returns a copy of the governor's counters.
func (g *Governor) Status() Status {
	return Status{Signals: g.signals, State: g.state, Aborted: g.Aborted()}
}

// Signal records one rate-limit signal, transitions the state machine, performs the
// wait associated with the new state and returns it.
//
// The wait is cut short if ctx is cancelled; the transition still stands.
func (g *Governor) Signal(ctx context.Context) State {
	g.signals++
	g.state = Next(g.state)

	wait := g.policy.Wait(g.state)
	switch g.state {
	case Warned:
		g.logger.Warn("rate limited, backing off", "signals", g.signals, "wait", wait)
	case Escalated:
		g.logger.Warn("rate limited again, backing off", "signals", g.signals, "wait", wait)
	case Aborted:
		g.logger.Error("rate limited repeatedly, aborting downloads for this session", "signals", g.signals)
	}

	if wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			g.logger.Debug("throttle wait interrupted", "error", err)
		}
	}
	return g.state
}
