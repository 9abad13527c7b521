// Package config loads aegis settings from a YAML file and the environment.
// Flag parsing is done in cmd/aegis; this package is data only.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/aegis/internal/log"
	"github.com/teslashibe/aegis/pkg/audio"
	"github.com/teslashibe/aegis/pkg/camera"
	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/listen"
	"github.com/teslashibe/aegis/pkg/threat"
	"github.com/teslashibe/aegis/pkg/tracking"
	"github.com/teslashibe/aegis/pkg/tracking/detection"
	"github.com/teslashibe/aegis/pkg/tts"
	"github.com/teslashibe/aegis/pkg/web"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "aegis.yaml"

// Listener sources.
const (
	ListenWS    = "ws"    // streaming transcription server
	ListenStdin = "stdin" // one utterance per line
	ListenNone  = "none"
)

// Speech providers, tried in the configured order.
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config holds all configuration for the sentry.
type Config struct {
	Camera   camera.Config     `yaml:"camera"`
	Detector detection.Config  `yaml:"detector"`
	Tracking tracking.Config   `yaml:"tracking"`
	Threat   threat.Thresholds `yaml:"threat"`
	Engine   engine.Config     `yaml:"engine"`
	Command  command.Config    `yaml:"command"`
	Audio    Audio             `yaml:"audio"`
	TTS      TTS               `yaml:"tts"`
	Listen   Listen            `yaml:"listen"`
	Web      Web               `yaml:"web"`
	Log      log.Options       `yaml:"log"`

	// Display opens the HUD window.
	Display bool `yaml:"display"`
}

// Audio configures announcement playback.
type Audio struct {
	Enabled   bool                  `yaml:"enabled"`
	Player    audio.PlayerConfig    `yaml:"player"`
	Announcer audio.AnnouncerConfig `yaml:"announcer"`

	// ShutdownGrace is how long to wait for the goodbye line before exiting.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// TTS configures speech synthesis.
type TTS struct {
	Providers   []string      `yaml:"providers"`
	Language    string        `yaml:"language"`
	OpenAIVoice string        `yaml:"openai_voice"`
	GoogleVoice string        `yaml:"google_voice"`
	Timeout     time.Duration `yaml:"timeout"`

	// Keys come from the environment only.
	OpenAIKey string `yaml:"-"`
	GoogleKey string `yaml:"-"`
}

// Listen configures the speech-to-text source.
type Listen struct {
	Source string          `yaml:"source"`
	WS     listen.WSConfig `yaml:"ws"`
}

// Web configures the dashboard.
type Web struct {
	Enabled    bool `yaml:"enabled"`
	web.Config `yaml:",inline"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Camera:   camera.DefaultConfig(),
		Detector: detection.DefaultConfig(),
		Tracking: tracking.DefaultConfig(),
		Threat:   threat.DefaultThresholds(),
		Engine:   engine.DefaultConfig(),
		Command:  command.DefaultConfig(),
		Audio: Audio{
			Enabled:       true,
			Player:        audio.DefaultPlayerConfig(),
			Announcer:     audio.DefaultAnnouncerConfig(),
			ShutdownGrace: 3 * time.Second,
		},
		TTS: TTS{
			Providers:   []string{ProviderGoogle, ProviderOpenAI},
			Language:    tts.DefaultConfig().Language,
			OpenAIVoice: tts.VoiceFable,
			GoogleVoice: tts.DefaultGoogleVoice,
			Timeout:     tts.DefaultConfig().Timeout,
		},
		Listen: Listen{
			Source: ListenWS,
			WS:     listen.DefaultWSConfig(),
		},
		Web: Web{
			Enabled: true,
			Config:  web.DefaultConfig(),
		},
		Log:     log.Options{Level: "info"},
		Display: true,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Unknown keys are rejected so typos surface at startup.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides. Call it after Load and before
// flag overrides.
func (c *Config) ApplyEnv() {
	if code := os.Getenv("AEGIS_AUTH_CODE"); code != "" {
		c.Command.AuthCode = code
	}
	if word := os.Getenv("AEGIS_WAKE_WORD"); word != "" {
		c.Command.WakeWord = word
	}
	if url := os.Getenv("AEGIS_STT_URL"); url != "" {
		c.Listen.WS.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if os.Getenv("GO_ENV") == "production" {
		c.Log.JSON = true
	}
	c.TTS.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.TTS.GoogleKey = os.Getenv("GOOGLE_API_KEY")
}

// EngineConfig returns the engine settings with the threat thresholds applied.
func (c Config) EngineConfig() engine.Config {
	e := c.Engine
	e.Thresholds = c.Threat
	return e
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error

	for _, msg := range c.Camera.Validate() {
		err = multierr.Append(err, fmt.Errorf("camera: %s", msg))
	}
	if d := c.Detector.MinConfidence; d < 0 || d > 1 {
		err = multierr.Append(err, fmt.Errorf("detector: min_confidence %.2f outside 0..1", d))
	}
	if c.Threat.Caution < 0 || c.Threat.Danger <= c.Threat.Caution {
		err = multierr.Append(err, fmt.Errorf("threat: need 0 <= caution < danger, got %d/%d", c.Threat.Caution, c.Threat.Danger))
	}
	if e := c.Command.Validate(); e != nil {
		err = multierr.Append(err, e)
	}
	if !slices.Contains([]string{ListenWS, ListenStdin, ListenNone}, c.Listen.Source) {
		err = multierr.Append(err, fmt.Errorf("listen: unknown source %q", c.Listen.Source))
	}
	for _, p := range c.TTS.Providers {
		if !slices.Contains([]string{ProviderGoogle, ProviderOpenAI, ProviderMock}, p) {
			err = multierr.Append(err, fmt.Errorf("tts: unknown provider %q", p))
		}
	}
	if c.Audio.Enabled && len(c.Audio.Player.Command) == 0 {
		err = multierr.Append(err, errors.New("audio: player command is empty"))
	}
	return err
}
