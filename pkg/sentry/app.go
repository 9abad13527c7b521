// Package sentry wires the camera, detector, engine, voice channel and
// dashboard into one running application.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/aegis/internal/config"
	"github.com/teslashibe/aegis/pkg/audio"
	"github.com/teslashibe/aegis/pkg/camera"
	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/hud"
	"github.com/teslashibe/aegis/pkg/listen"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/tracking"
	"github.com/teslashibe/aegis/pkg/tracking/detection"
	"github.com/teslashibe/aegis/pkg/tts"
	"github.com/teslashibe/aegis/pkg/web"
)

// Mode selects where frames and utterances come from.
type Mode int

const (
	// ModeLive reads the webcam and runs the detector.
	ModeLive Mode = iota
	// ModeConsole replays scripted detections and reads commands from stdin.
	ModeConsole
)

func (m Mode) String() string {
	if m == ModeConsole {
		return "console"
	}
	return "live"
}

const windowTitle = "AEGIS SENTRY"

// App is the sentry application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.Config
	mode   Mode
	logger *slog.Logger
	clock  clock.Clock
	input  io.Reader
	opener command.Opener

	// Core
	interp  *command.Interpreter
	session *session.Controller
	tracker *tracking.Tracker
	engine  *engine.Engine

	// Voice
	provider  tts.Provider
	player    audio.Player
	announcer *audio.Announcer
	listener  listen.Listener

	// Vision
	webcam   *camera.Webcam
	detector detection.Detector
	renderer *hud.Renderer
	window   *hud.Window
	replay   *Replay

	// Dashboard
	cameraMgr *camera.Manager
	webServer *web.Server
}

// Option configures an App.
type Option func(*App)

// WithMode selects live or console operation.
func WithMode(m Mode) Option {
	return func(a *App) { a.mode = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithClock sets the clock shared by every component.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithInput sets the reader for the stdin listener.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithProvider replaces the configured speech providers.
func WithProvider(p tts.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithPlayer replaces the playback command.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithListener replaces the configured speech-to-text source.
func WithListener(l listen.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithOpener replaces how the google command opens pages.
func WithOpener(o command.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithReplay sets the console-mode script.
func WithReplay(r *Replay) Option {
	return func(a *App) { a.replay = r }
}

// New creates an application. The config must already carry environment
// and flag overrides.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sentry: invalid config: %w", err)
	}

	a := &App{
		config: cfg,
		logger: slog.Default(),
		clock:  clock.New(),
		input:  os.Stdin,
		opener: openBrowser,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "sentry")
	return a, nil
}

// Init builds every component. Call it after New and before Run.
// Failures of optional components are logged and the component is skipped.
func (a *App) Init(ctx context.Context) error {
	interp, err := command.New(a.config.Command,
		command.WithClock(a.clock),
		command.WithOpener(a.openURL),
	)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}
	a.interp = interp

	a.initVoice(ctx)

	a.session = session.New(session.AnnouncerFunc(a.announce),
		session.WithClock(a.clock),
		session.WithLogger(a.logger),
	)
	a.tracker = tracking.New(a.config.Tracking)
	a.engine = engine.New(a.config.EngineConfig(), a.tracker, a.session,
		engine.WithClock(a.clock),
		engine.WithLogger(a.logger),
	)

	if err := a.initListener(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	switch a.mode {
	case ModeConsole:
		if a.replay == nil {
			a.replay = DefaultReplay()
		}
	default:
		if err := a.initVision(); err != nil {
			return fmt.Errorf("vision: %w", err)
		}
	}

	if a.config.Web.Enabled {
		a.cameraMgr = camera.NewManager(a.config.Camera)
		if a.webcam != nil {
			a.cameraMgr.OnConfigChange = a.webcam.Apply
		}
		opts := []web.Option{
			web.WithCamera(a.cameraMgr),
			web.WithStats(a.engine.Stats),
			web.WithLogger(a.logger),
		}
		if cp, ok := a.player.(*audio.CommandPlayer); ok {
			opts = append(opts, web.WithSpeaking(cp.IsPlaying))
		}
		a.webServer = web.NewServer(a.config.Web.Config, a.session, a.interp, opts...)
	}

	a.logger.Info("initialized",
		"session", a.session.Snapshot().SessionID,
		"mode", a.mode,
		"voice", a.announcer != nil,
		"dashboard", a.webServer != nil,
	)
	return nil
}

// initVoice builds the speech chain and preloads the phrase cache.
func (a *App) initVoice(ctx context.Context) {
	if !a.config.Audio.Enabled {
		return
	}
	if a.provider == nil {
		p, err := a.buildProvider(ctx)
		if err != nil {
			a.logger.Warn("speech disabled", "error", err)
			return
		}
		a.provider = p
	}
	if a.player == nil {
		cp := audio.NewCommandPlayer(a.config.Audio.Player, a.logger)
		cp.OnPlaybackEnd = func(text string, interrupted bool) {
			if interrupted && a.webServer != nil {
				a.webServer.AddLog("speech", "interrupted: "+text)
			}
		}
		a.player = cp
	}

	a.announcer = audio.NewAnnouncer(a.config.Audio.Announcer, a.provider, a.player, a.logger)
	a.announcer.OnAnnounce = func(ann audio.Announcement) {
		if a.webServer != nil {
			a.webServer.AddLog("speech", ann.Text)
		}
	}

	start := a.clock.Now()
	if err := a.announcer.Preload(ctx, command.Manifest()); err != nil {
		a.logger.Warn("phrase preload incomplete", "error", err)
	}
	a.logger.Info("phrases cached", "count", a.announcer.CacheSize(), "took", a.clock.Since(start))
}

// buildProvider chains the configured providers that have credentials.
func (a *App) buildProvider(ctx context.Context) (tts.Provider, error) {
	t := a.config.TTS
	common := []tts.Option{
		tts.WithLanguage(t.Language),
		tts.WithTimeout(t.Timeout),
		tts.WithLogger(a.logger),
	}

	var providers []tts.Provider
	for _, name := range t.Providers {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case config.ProviderGoogle:
			opts := append([]tts.Option{tts.WithVoice(t.GoogleVoice), tts.WithAPIKey(t.GoogleKey)}, common...)
			p, err = tts.NewGoogle(ctx, opts...)
		case config.ProviderOpenAI:
			if t.OpenAIKey == "" {
				err = tts.ErrNoAPIKey
				break
			}
			opts := append([]tts.Option{tts.WithVoice(t.OpenAIVoice), tts.WithAPIKey(t.OpenAIKey)}, common...)
			p, err = tts.NewOpenAI(opts...)
		case config.ProviderMock:
			p = tts.NewMock()
		}
		if err != nil {
			a.logger.Warn("speech provider unavailable", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	chain, err := tts.NewChainWithLogger(a.logger, providers...)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (a *App) initListener() error {
	if a.listener != nil {
		return nil
	}
	source := a.config.Listen.Source
	if a.mode == ModeConsole {
		source = config.ListenStdin
	}
	switch source {
	case config.ListenWS:
		a.listener = listen.NewWSListener(a.config.Listen.WS, a.logger)
	case config.ListenStdin:
		a.listener = listen.NewLineListener(a.input)
	case config.ListenNone:
	default:
		return fmt.Errorf("unknown source %q", source)
	}
	return nil
}

func (a *App) initVision() error {
	cam, err := camera.OpenWebcam(a.config.Camera, a.logger)
	if err != nil {
		return err
	}
	a.webcam = cam

	det, err := detection.NewYOLO(a.config.Detector, a.logger)
	if err != nil {
		return err
	}
	a.detector = det

	a.renderer = hud.NewRenderer(a.clock)
	if a.config.Display {
		a.window = hud.NewWindow(windowTitle)
	}
	return nil
}

// announce is the session's voice. Without audio it only logs.
func (a *App) announce(text string) {
	if a.announcer == nil {
		a.logger.Info("say", "text", text)
		if a.webServer != nil {
			a.webServer.AddLog("speech", text)
		}
		return
	}
	a.announcer.Announce(text)
}

// Session returns the session controller.
func (a *App) Session() *session.Controller {
	return a.session
}

// Engine returns the frame engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Run starts the frame loop, the voice loop and the dashboard, and blocks
// until the operator shuts the system down or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	a.session.Say(command.PhraseBoot)

	if a.webServer != nil {
		g.Go(func() error {
			return a.webServer.Run(runCtx)
		})
	}

	if a.listener != nil {
		g.Go(func() error {
			loop := &listen.Loop{
				Listener:    a.listener,
				Session:     a.session,
				Interpreter: a.interp,
				Logger:      a.logger,
				OnCommand: func(utterance string, _ []command.Action) {
					if a.webServer != nil {
						a.webServer.AddLog("command", utterance)
					}
				},
			}
			err := loop.Run(runCtx)
			if a.mode == ModeConsole && err == nil {
				// End of input ends a console run.
				a.finish()
				cancel()
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		if a.mode == ModeConsole {
			return a.replayLoop(runCtx)
		}
		return a.visionLoop(runCtx)
	})

	g.Go(func() error {
		select {
		case <-a.session.Done():
			a.logger.Info("shutdown requested")
			a.finish()
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})

	return g.Wait()
}

// finish lets the last announcement play out.
func (a *App) finish() {
	if a.announcer == nil {
		return
	}
	if !a.announcer.Wait(a.config.Audio.ShutdownGrace) {
		a.logger.Warn("announcements still playing at exit")
	}
}

// Shutdown releases every component.
func (a *App) Shutdown() error {
	var err error
	if c, ok := a.listener.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if a.window != nil {
		err = multierr.Append(err, a.window.Close())
	}
	if a.detector != nil {
		err = multierr.Append(err, a.detector.Close())
	}
	if a.webcam != nil {
		err = multierr.Append(err, a.webcam.Close())
	}
	if a.announcer != nil {
		err = multierr.Append(err, a.announcer.Close())
	} else if a.provider != nil {
		err = multierr.Append(err, a.provider.Close())
	}

	st := a.session.Snapshot()
	a.logger.Info("goodbye", "peak_speed", st.PeakSpeed, "mean_speed", st.MeanSpeed, "frames", a.engine.Stats().Frames)
	return err
}
