package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/aegis/pkg/tts"
)

// Announcement describes one spoken line.
type Announcement struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	Cached bool      `json:"cached"`
}

// AnnouncerConfig configures an Announcer.
type AnnouncerConfig struct {
	// SynthesisTimeout bounds a single provider call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`

	// PreloadWorkers is the number of parallel synthesis calls in Preload.
	PreloadWorkers int `yaml:"preload_workers"`
}

// DefaultAnnouncerConfig returns a 10s synthesis bound and four preload workers.
func DefaultAnnouncerConfig() AnnouncerConfig {
	return AnnouncerConfig{SynthesisTimeout: 10 * time.Second, PreloadWorkers: 4}
}

// Announcer speaks text without blocking the caller. Each announcement runs
// on its own goroutine; the player cuts off whatever was speaking before.
type Announcer struct {
	config   AnnouncerConfig
	provider tts.Provider
	player   Player
	logger   *slog.Logger

	mu       sync.RWMutex
	cache    map[string]*tts.Audio
	draining bool

	inflight sync.WaitGroup

	// OnAnnounce, if set, is called before each line is synthesized.
	OnAnnounce func(Announcement)
}

// NewAnnouncer creates an announcer. A nil player discards audio.
func NewAnnouncer(cfg AnnouncerConfig, provider tts.Provider, player Player, logger *slog.Logger) *Announcer {
	def := DefaultAnnouncerConfig()
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = def.SynthesisTimeout
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = def.PreloadWorkers
	}
	if player == nil {
		player = NopPlayer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		config:   cfg,
		provider: provider,
		player:   player,
		logger:   logger.With("component", "audio.announcer"),
		cache:    make(map[string]*tts.Audio),
	}
}

// Announce speaks text in the background. Failures are logged. Once Wait
// has been called new announcements are dropped.
func (a *Announcer) Announce(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		a.logger.Debug("announcement dropped while draining", "text", text)
		return
	}
	a.inflight.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.inflight.Done()
		err := a.Speak(context.Background(), text)
		if err != nil && !errors.Is(err, ErrInterrupted) {
			a.logger.Warn("announcement failed", "text", text, "error", err)
		}
	}()
}

// Speak synthesizes (or reuses) text and plays it, blocking until playback
// ends or is replaced.
func (a *Announcer) Speak(ctx context.Context, text string) error {
	clip, cached := a.lookup(text)

	ann := Announcement{ID: uuid.NewString(), Text: text, At: time.Now(), Cached: cached}
	a.logger.Info("announce", "id", ann.ID, "text", text, "cached", cached)
	if a.OnAnnounce != nil {
		a.OnAnnounce(ann)
	}

	if !cached {
		var err error
		if clip, err = a.synthesize(ctx, text); err != nil {
			return err
		}
	}
	return a.player.Play(ctx, clip)
}

// Preload synthesizes phrases into the cache in parallel. It returns every
// failure; phrases that succeeded stay cached.
func (a *Announcer) Preload(ctx context.Context, phrases []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.PreloadWorkers)

	var mu sync.Mutex
	var errs error

	for _, p := range lo.Uniq(lo.Compact(phrases)) {
		if a.Cached(p) {
			continue
		}
		g.Go(func() error {
			clip, err := a.synthesize(ctx, p)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("preload %q: %w", p, err))
				mu.Unlock()
				return nil
			}
			a.mu.Lock()
			a.cache[p] = clip
			a.mu.Unlock()
			return nil
		})
	}
	g.Wait()

	a.logger.Info("phrase cache ready", "phrases", a.CacheSize(), "failed", len(multierr.Errors(errs)))
	return errs
}

// CacheSize returns the number of cached phrases.
func (a *Announcer) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// Cached reports whether text is in the phrase cache.
func (a *Announcer) Cached(text string) bool {
	_, ok := a.lookup(text)
	return ok
}

// Wait stops accepting announcements and blocks until in-flight ones finish
// or the timeout elapses. It reports whether everything finished.
func (a *Announcer) Wait(timeout time.Duration) bool {
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops playback and closes the provider.
func (a *Announcer) Close() error {
	a.player.Cancel()
	return a.provider.Close()
}

func (a *Announcer) lookup(text string) (*tts.Audio, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	clip, ok := a.cache[text]
	return clip, ok
}

func (a *Announcer) synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.SynthesisTimeout)
	defer cancel()
	return a.provider.Synthesize(ctx, text)
}
