// Package audio plays synthesized announcements on the local sound device.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/go-audio/transforms"

	"github.com/teslashibe/aegis/pkg/tts"
)

// ErrInterrupted is returned by Play when newer audio replaced it.
var ErrInterrupted = errors.New("audio: playback interrupted")

// Player plays one clip at a time. Starting a clip stops the current one.
type Player interface {
	Play(ctx context.Context, a *tts.Audio) error
	Cancel()
}

// PlayerConfig configures a CommandPlayer.
type PlayerConfig struct {
	// Command is the playback program and its flags; the WAV path is appended.
	Command []string `yaml:"command"`

	// Normalize scales each clip so its loudest sample reaches Gain.
	Normalize bool    `yaml:"normalize"`
	Gain      float64 `yaml:"gain"`
}

// DefaultPlayerConfig uses aplay on Linux and afplay on macOS.
func DefaultPlayerConfig() PlayerConfig {
	cmd := []string{"aplay", "-q"}
	if runtime.GOOS == "darwin" {
		cmd = []string{"afplay"}
	}
	return PlayerConfig{Command: cmd, Gain: 0.9}
}

// CommandPlayer writes each clip to a temporary WAV file and runs an
// external player on it.
type CommandPlayer struct {
	config PlayerConfig
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	playing bool
	seq     uint64

	// OnPlaybackEnd is called after every clip, with interrupted set when
	// newer audio replaced it.
	OnPlaybackEnd func(text string, interrupted bool)
}

// NewCommandPlayer creates a player.
func NewCommandPlayer(cfg PlayerConfig, logger *slog.Logger) *CommandPlayer {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultPlayerConfig().Command
	}
	if cfg.Gain <= 0 || cfg.Gain > 1 {
		cfg.Gain = DefaultPlayerConfig().Gain
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{config: cfg, logger: logger.With("component", "audio.player")}
}

// Play stops any clip in progress and plays a until it ends, ctx is done,
// or another Play replaces it.
func (p *CommandPlayer) Play(ctx context.Context, a *tts.Audio) error {
	if a == nil || len(a.PCM) == 0 {
		return nil
	}
	if p.config.Normalize {
		a = Normalize(a, p.config.Gain)
	}

	path, err := writeTemp(a)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	p.cancel = cancel
	p.playing = true
	p.mu.Unlock()

	p.logger.Debug("playing", "text", a.Text, "duration", a.Duration())

	args := append(append([]string(nil), p.config.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.config.Command[0], args...)
	runErr := cmd.Run()

	p.mu.Lock()
	replaced := p.seq != seq
	if !replaced {
		p.playing = false
		p.cancel = nil
	}
	p.mu.Unlock()

	if p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd(a.Text, replaced)
	}

	switch {
	case replaced:
		return ErrInterrupted
	case ctx.Err() != nil:
		return ctx.Err()
	case runErr != nil:
		return fmt.Errorf("audio: %s: %w", p.config.Command[0], runErr)
	}
	return nil
}

// Cancel stops the current clip, if any. The interrupted Play returns
// ErrInterrupted.
func (p *CommandPlayer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.seq++
	}
	p.playing = false
}

// IsPlaying reports whether a clip is playing.
func (p *CommandPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func writeTemp(a *tts.Audio) (string, error) {
	f, err := os.CreateTemp("", "aegis-*.wav")
	if err != nil {
		return "", fmt.Errorf("audio: temp file: %w", err)
	}
	if err := a.EncodeWAV(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Normalize returns a copy of a whose peak sample is gain of full scale.
// Silent clips are returned unchanged.
func Normalize(a *tts.Audio, gain float64) *tts.Audio {
	buf := a.IntBuffer().AsFloatBuffer()
	transforms.NormalizeMax(buf)

	out := &tts.Audio{
		PCM:      make([]byte, 2*len(buf.Data)),
		Format:   a.Format,
		Text:     a.Text,
		Provider: a.Provider,
		Latency:  a.Latency,
	}
	for i, v := range buf.Data {
		s := int16(math.Round(v * gain * math.MaxInt16))
		binary.LittleEndian.PutUint16(out.PCM[2*i:], uint16(s))
	}
	return out
}

// NopPlayer discards audio. Used when no sound device is wanted.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, *tts.Audio) error { return nil }
func (NopPlayer) Cancel()                                {}

var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = NopPlayer{}
)
