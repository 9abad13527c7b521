package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const (
	providerGoogle = "google"

	// DefaultGoogleVoice is a British male neural voice.
	DefaultGoogleVoice = "en-GB-Neural2-B"
)

// Google implements Provider for Google Cloud Text-to-Speech.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Cloud TTS provider. With an API key the key is used;
// otherwise application default credentials are looked up.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Voice = DefaultGoogleVoice
	cfg.Apply(opts...)

	if cfg.SampleRate <= 0 {
		return nil, ErrBadSampleRate
	}

	var clientOpts []option.ClientOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		ts, err := google.DefaultTokenSource(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("%w: %v", ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string { return providerGoogle }

// Synthesize requests LINEAR16 audio and strips the WAV header Cloud TTS adds.
func (g *Google) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if text == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.Language,
			Name:         g.config.Voice,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(g.config.SampleRate),
		},
	}

	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio content: %w", err))
	}
	if len(raw) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	audio := &Audio{PCM: raw, Format: PCM16Mono(g.config.SampleRate)}
	if IsWAV(raw) {
		if audio, err = DecodeWAV(raw); err != nil {
			return nil, WrapError(providerGoogle, err)
		}
	}
	audio.Text = text
	audio.Provider = providerGoogle
	audio.Latency = time.Since(start)

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio.PCM),
		"latency_ms", audio.Latency.Milliseconds(),
		"voice", g.config.Voice,
	)
	return audio, nil
}

// Close is a no-op; the service holds no long-lived resources.
func (g *Google) Close() error {
	return nil
}

var _ Provider = (*Google)(nil)
