// Package session owns the sentry's mutable state.
//
// A single Controller holds the authorization, lockdown and scan flags plus
// the running speed statistics. The voice loop writes through Handle/Apply,
// the frame loop writes through Observe, and every other reader works on a
// Snapshot copy.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/aegis/pkg/command"
)

// Announcer speaks a line of text. Implementations must not block the caller.
type Announcer interface {
	Announce(text string)
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(text string)

// Announce calls f(text).
func (f AnnouncerFunc) Announce(text string) { f(text) }

// State is a point-in-time copy of the session.
type State struct {
	SessionID    string    `json:"session_id"`
	Authorized   bool      `json:"authorized"`
	AwaitingCode bool      `json:"awaiting_code"`
	Lockdown     bool      `json:"lockdown"`
	ScanActive   bool      `json:"scan_active"`
	Active       bool      `json:"active"`
	Danger       bool      `json:"danger"`
	PeakSpeed    int       `json:"peak_speed"`
	MeanSpeed    int       `json:"mean_speed"`
	TargetCount  int       `json:"target_count"`
	ScanStarted  time.Time `json:"scan_started,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// View returns the fields the command interpreter reads.
func (s State) View() command.View {
	return command.View{
		Authorized:   s.Authorized,
		AwaitingCode: s.AwaitingCode,
		Lockdown:     s.Lockdown,
		ScanActive:   s.ScanActive,
		Danger:       s.Danger,
		PeakSpeed:    s.PeakSpeed,
		MeanSpeed:    s.MeanSpeed,
		TargetCount:  s.TargetCount,
	}
}

// Mode is the HUD mode label.
func (s State) Mode() string {
	if s.Lockdown {
		return "LOCKDOWN"
	}
	return "TRACKING"
}

// FrameSummary is what the frame loop reports after each processed frame.
type FrameSummary struct {
	MaxSpeed  int
	MeanSpeed int
	Targets   int
	Danger    bool
}

// Controller serializes all session transitions behind one mutex.
type Controller struct {
	announcer Announcer
	clock     clock.Clock
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) {
		ctl.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) {
		ctl.logger = l
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(ctl *Controller) {
		ctl.state.SessionID = id
	}
}

// New creates an active session. A nil announcer discards speech.
func New(announcer Announcer, opts ...Option) *Controller {
	ctl := &Controller{
		announcer: announcer,
		clock:     clock.New(),
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	ctl.state.SessionID = uuid.NewString()
	for _, opt := range opts {
		opt(ctl)
	}
	ctl.logger = ctl.logger.With("component", "session", "session_id", ctl.state.SessionID)
	ctl.state.Active = true
	ctl.state.StartedAt = ctl.clock.Now()
	return ctl
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the session is still running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active
}

// Done is closed when the session shuts down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Apply performs one action and speaks its text. Ignored once inactive.
func (c *Controller) Apply(a command.Action) {
	c.mu.Lock()
	if !c.state.Active {
		c.mu.Unlock()
		return
	}
	c.applyLocked(a)
	c.mu.Unlock()

	c.say(a.Text)
	if a.Kind == command.Shutdown {
		c.stop()
	}
}

// Handle interprets an utterance against the current state and applies the
// resulting actions as one step. It returns the actions applied.
func (c *Controller) Handle(utterance string, interp *command.Interpreter) []command.Action {
	c.mu.Lock()
	if !c.state.Active {
		c.mu.Unlock()
		return nil
	}
	actions := interp.Interpret(utterance, c.state.View())
	for _, a := range actions {
		c.applyLocked(a)
	}
	c.mu.Unlock()

	if len(actions) > 0 {
		c.logger.Info("command", "utterance", utterance, "actions", actions)
	}
	stopped := false
	for _, a := range actions {
		c.say(a.Text)
		stopped = stopped || a.Kind == command.Shutdown
	}
	if stopped {
		c.stop()
	}
	return actions
}

// Observe records the statistics of one processed frame.
func (c *Controller) Observe(f FrameSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active {
		return
	}
	if f.MaxSpeed > c.state.PeakSpeed {
		c.state.PeakSpeed = f.MaxSpeed
	}
	c.state.MeanSpeed = f.MeanSpeed
	c.state.TargetCount = f.Targets
	c.state.Danger = f.Danger
}

// Say speaks text unless the session has ended.
func (c *Controller) Say(text string) {
	if !c.Active() {
		return
	}
	c.say(text)
}

func (c *Controller) applyLocked(a command.Action) {
	s := &c.state

	switch a.Kind {
	case command.RequireAuth:
		s.AwaitingCode = true
		s.Authorized = false
	case command.SubmitCode:
		s.AwaitingCode = false
		s.Authorized = a.Matched
		if !a.Matched {
			c.logger.Warn("authorization code rejected")
		}
	case command.RevokeAuth:
		s.Authorized = false
	case command.SetLockdown:
		s.Lockdown = a.On
	case command.SetScan:
		if a.On && !s.ScanActive {
			s.ScanStarted = c.clock.Now()
		}
		s.ScanActive = a.On
	case command.Shutdown:
		s.Active = false
	}
}

// stop closes Done. It runs after the goodbye was handed to the announcer so
// anything waiting on Done can also wait for that announcement.
func (c *Controller) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) say(text string) {
	if text == "" || c.announcer == nil {
		return
	}
	c.announcer.Announce(text)
}
