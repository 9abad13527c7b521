// Package tts synthesizes announcement audio.
//
// Every provider returns raw little-endian PCM so the player can wrap it in a
// WAV container without transcoding. Providers can be stacked in a Chain so a
// cloud outage falls back to the next backend.
//
//	google, _ := tts.NewGoogle(ctx, tts.WithAPIKey(os.Getenv("GOOGLE_API_KEY")))
//	openai, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	chain, _ := tts.NewChain(google, openai)
//	defer chain.Close()
//
//	audio, _ := chain.Synthesize(ctx, "Perimeter is secure.")
package tts

import (
	"context"
	"time"
)

// Provider converts text to speech.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string) (*Audio, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Format describes raw PCM samples.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bit_depth"`
}

// PCM16Mono returns 16-bit mono PCM at the given rate.
func PCM16Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// BytesPerSecond is the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Audio is a synthesized utterance.
type Audio struct {
	// PCM holds little-endian signed samples, interleaved by channel.
	PCM    []byte
	Format Format

	Text     string
	Provider string
	Latency  time.Duration
}

// Duration is the playback length of the samples.
func (a *Audio) Duration() time.Duration {
	bps := a.Format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(a.PCM)) * time.Second / time.Duration(bps)
}
