// Package web serves the sentry dashboard: REST status, operator text
// commands and live websocket feeds.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/aegis/pkg/camera"
	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/hub"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/threat"
)

const (
	maxLogs         = 500
	shutdownTimeout = 5 * time.Second
)

// Config holds dashboard settings.
type Config struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"` // optional static frontend

	// StatusInterval throttles status broadcasts from the frame loop.
	StatusInterval time.Duration `yaml:"status_interval"`
}

// DefaultConfig listens on :8080 and pushes status at most 5 times a second.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 200 * time.Millisecond,
	}
}

// LogEntry is one line in the dashboard event log.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // command, speech, alert, info
	Message string `json:"message"`
}

// Status is the body of GET /api/status and the /ws/status feed.
type Status struct {
	session.State
	Mode     string       `json:"mode"`
	Highest  threat.Tier  `json:"highest_tier"`
	Speaking bool         `json:"speaking"`
	Stats    engine.Stats `json:"stats"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	session  *session.Controller
	interp   *command.Interpreter
	camera   *camera.Manager
	stats    func() engine.Stats
	speaking func() bool

	frameMu sync.RWMutex
	last    engine.Frame

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub

	statusEvery rate.Sometimes
}

// Option configures a Server.
type Option func(*Server)

// WithCamera exposes camera settings at /api/camera.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) {
		s.camera = m
	}
}

// WithStats reports engine counters in the status body.
func WithStats(fn func() engine.Stats) Option {
	return func(s *Server) {
		s.stats = fn
	}
}

// WithSpeaking reports whether an announcement is playing.
func WithSpeaking(fn func() bool) Option {
	return func(s *Server) {
		s.speaking = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a dashboard over a session. Text commands posted to
// /api/command are interpreted exactly like spoken ones.
func NewServer(cfg Config, ctl *session.Controller, interp *command.Interpreter, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}

	s := &Server{
		config:  cfg,
		logger:  slog.Default(),
		session: ctl,
		interp:  interp,
		logs:    make([]LogEntry, 0, maxLogs),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusEvery = rate.Sometimes{Interval: cfg.StatusInterval}
	s.statusHub = hub.New("status", s.logger)
	s.logHub = hub.New("logs", s.logger)
	s.cameraHub = hub.New("camera", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Aegis Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/objects", s.handleObjects)
	api.Post("/command", s.handleCommand)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleUpdateCamera)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.logger.Info("dashboard listening", "addr", s.config.Addr)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(s.config.Addr)
	}()

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Publish records the latest processed frame and pushes a throttled status
// update to dashboard clients.
func (s *Server) Publish(f engine.Frame) {
	s.frameMu.Lock()
	s.last = f
	s.frameMu.Unlock()

	s.statusEvery.Do(func() {
		if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
			s.logger.Warn("status broadcast failed", "error", err)
		}
	})
}

// SendCameraFrame sends a JPEG frame to all camera clients.
func (s *Server) SendCameraFrame(jpegData []byte) {
	s.cameraHub.BroadcastBinary(jpegData)
}

// CameraClients reports how many clients watch the camera feed.
func (s *Server) CameraClients() int {
	return s.cameraHub.ClientCount()
}

// AddLog appends an event and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	if err := s.logHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("log broadcast failed", "error", err)
	}
}

// App exposes the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) status() Status {
	s.frameMu.RLock()
	a := s.last.Assessment
	s.frameMu.RUnlock()

	st := s.session.Snapshot()
	out := Status{State: st, Mode: st.Mode(), Highest: a.Highest()}
	if s.stats != nil {
		out.Stats = s.stats()
	}
	if s.speaking != nil {
		out.Speaking = s.speaking()
	}
	return out
}

func (s *Server) targets() []threat.Target {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	if s.last.Assessment.Targets == nil {
		return []threat.Target{}
	}
	return s.last.Assessment.Targets
}
