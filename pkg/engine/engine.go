// Package engine runs the per-frame pipeline: tracker, threat classifier,
// session statistics, scan verdicts and danger alerts.
package engine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/threat"
	"github.com/teslashibe/aegis/pkg/tracking"
)

// Config holds engine parameters.
type Config struct {
	// Thresholds come from the threat section of the config file.
	Thresholds threat.Thresholds `yaml:"-"`

	// ScanDuration is how long a scan sweeps before its verdict is spoken.
	ScanDuration time.Duration `yaml:"scan_duration"`

	// AlertInterval is the minimum spacing between spoken danger alerts.
	AlertInterval time.Duration `yaml:"alert_interval"`

	// SpeedWindow is the number of recent object speeds in the rolling mean.
	SpeedWindow int `yaml:"speed_window"`
}

// DefaultConfig returns a 1s scan sweep and at most one danger alert per 10s.
func DefaultConfig() Config {
	return Config{
		Thresholds:    threat.DefaultThresholds(),
		ScanDuration:  time.Second,
		AlertInterval: 10 * time.Second,
		SpeedWindow:   120,
	}
}

// Frame is the outcome of processing one set of detections.
type Frame struct {
	At         time.Time
	Assessment threat.Assessment
	State      session.State
	Hostile    bool
	Scanning   bool
}

// Engine feeds detections through the tracker and into the session.
// Process is meant to be called from a single frame loop.
type Engine struct {
	config  Config
	tracker *tracking.Tracker
	session *session.Controller
	clock   clock.Clock
	logger  *slog.Logger
	alerts  *rate.Limiter

	mu          sync.Mutex
	speeds      []float64
	wasHostile  bool
	verdictFor  time.Time
	frames      uint64
	alertsSpoke uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used by Tick.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine over a tracker and a session.
func New(cfg Config, tracker *tracking.Tracker, ctl *session.Controller, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Thresholds == (threat.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.ScanDuration <= 0 {
		cfg.ScanDuration = def.ScanDuration
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = def.AlertInterval
	}
	if cfg.SpeedWindow <= 0 {
		cfg.SpeedWindow = def.SpeedWindow
	}

	e := &Engine{
		config:  cfg,
		tracker: tracker,
		session: ctl,
		clock:   clock.New(),
		logger:  slog.Default(),
		alerts:  rate.NewLimiter(rate.Every(cfg.AlertInterval), 1),
		speeds:  make([]float64, 0, cfg.SpeedWindow),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Tracker returns the underlying tracker.
func (e *Engine) Tracker() *tracking.Tracker {
	return e.tracker
}

// Tick processes detections at the engine clock's current time.
func (e *Engine) Tick(dets []tracking.Detection) Frame {
	return e.Process(dets, e.clock.Now())
}

// Process runs one frame. Lockdown is read from the session before
// classification so every target in the frame sees the same flag.
func (e *Engine) Process(dets []tracking.Detection, now time.Time) Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := e.tracker.Prune(now); n > 0 {
		e.logger.Debug("pruned stale objects", "count", n)
	}
	objs := e.tracker.Update(dets, now)

	snap := e.session.Snapshot()
	a := e.config.Thresholds.Assess(objs, snap.Lockdown)
	hostile := a.MaxSpeed > e.config.Thresholds.Danger

	e.session.Observe(session.FrameSummary{
		MaxSpeed:  a.MaxSpeed,
		MeanSpeed: e.recordSpeeds(objs),
		Targets:   len(objs),
		Danger:    a.Danger,
	})

	if hostile && !e.wasHostile {
		e.logger.Warn("hostile target", "max_speed", a.MaxSpeed, "targets", len(objs))
		if e.alerts.AllowN(now, 1) {
			e.alertsSpoke++
			e.session.Say(command.PhraseDanger)
		}
	}
	e.wasHostile = hostile

	scanning := snap.ScanActive && !snap.ScanStarted.IsZero()
	if scanning && now.Sub(snap.ScanStarted) >= e.config.ScanDuration && !e.verdictFor.Equal(snap.ScanStarted) {
		e.verdictFor = snap.ScanStarted
		// The verdict reflects what was sensed; lockdown alone is not a finding.
		verdict := command.PhraseNormal
		if hostile {
			verdict = command.PhraseDanger
		}
		e.logger.Info("scan verdict", "hostile", hostile, "targets", len(objs))
		e.session.Say(verdict)
	}

	e.frames++
	return Frame{
		At:         now,
		Assessment: a,
		State:      e.session.Snapshot(),
		Hostile:    hostile,
		Scanning:   scanning,
	}
}

// Stats is a summary of engine activity.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Alerts  uint64 `json:"alerts"`
	Tracked int    `json:"tracked"`
}

// Stats returns counters since start.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Frames: e.frames, Alerts: e.alertsSpoke, Tracked: e.tracker.Len()}
}

// recordSpeeds appends this frame's speeds to the window and returns the
// rounded mean of the window.
func (e *Engine) recordSpeeds(objs []tracking.Object) int {
	for _, o := range objs {
		if len(e.speeds) == e.config.SpeedWindow {
			e.speeds = e.speeds[1:]
		}
		e.speeds = append(e.speeds, float64(o.Speed))
	}
	if len(e.speeds) == 0 {
		return 0
	}
	return int(math.Round(stat.Mean(e.speeds, nil)))
}
