package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/aegis/internal/log"
	"github.com/teslashibe/aegis/pkg/tts"
)

// fakePlayer records what was played.
type fakePlayer struct {
	mu     sync.Mutex
	played []string
	cancel int
}

func (f *fakePlayer) Play(_ context.Context, a *tts.Audio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, a.Text)
	return nil
}

func (f *fakePlayer) Cancel() {
	f.mu.Lock()
	f.cancel++
	f.mu.Unlock()
}

func (f *fakePlayer) Played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

func pcm(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func TestAnnouncer_AnnounceIsAsync(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 30*time.Millisecond)
	player := &fakePlayer{}
	a := NewAnnouncer(AnnouncerConfig{}, mock, player, log.Discard())

	start := time.Now()
	a.Announce("Perimeter is secure.")
	assert.Less(t, time.Since(start), 20*time.Millisecond, "Announce must not block")

	require.True(t, a.Wait(time.Second))
	assert.Equal(t, []string{"Perimeter is secure."}, player.Played())
}

func TestAnnouncer_EmptyTextIgnored(t *testing.T) {
	mock := tts.NewMock()
	a := NewAnnouncer(AnnouncerConfig{}, mock, &fakePlayer{}, log.Discard())

	a.Announce("")
	require.True(t, a.Wait(time.Second))
	assert.Zero(t, mock.CallCount("Synthesize"))
}

func TestAnnouncer_NoAnnouncementsAfterWait(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 20*time.Millisecond)
	player := &fakePlayer{}
	a := NewAnnouncer(AnnouncerConfig{}, mock, player, log.Discard())

	a.Announce("Powering down systems.")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.True(t, a.Wait(time.Second))
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			a.Announce("late")
		}
	}()
	wg.Wait()

	require.True(t, a.Wait(time.Second))
	played := player.Played()
	assert.Contains(t, played, "Powering down systems.")

	a.Announce("after drain")
	require.True(t, a.Wait(time.Second))
	assert.NotContains(t, player.Played(), "after drain")
}

func TestAnnouncer_PreloadAndCache(t *testing.T) {
	mock := tts.NewMock()
	player := &fakePlayer{}
	a := NewAnnouncer(AnnouncerConfig{PreloadWorkers: 2}, mock, player, log.Discard())

	phrases := []string{"one", "two", "three", "", "two"}
	require.NoError(t, a.Preload(context.Background(), phrases))
	assert.Equal(t, 3, a.CacheSize())
	assert.True(t, a.Cached("two"))
	assert.Equal(t, 3, mock.CallCount("Synthesize"), "duplicates and empty text are skipped")

	mock.Reset()
	var seen []Announcement
	a.OnAnnounce = func(ann Announcement) { seen = append(seen, ann) }

	require.NoError(t, a.Speak(context.Background(), "two"))
	require.NoError(t, a.Speak(context.Background(), "The time is 09:07 PM."))

	assert.Equal(t, []string{"The time is 09:07 PM."}, mock.Texts(), "cached phrase is not synthesized again")
	assert.Equal(t, []string{"two", "The time is 09:07 PM."}, player.Played())
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Cached)
	assert.False(t, seen[1].Cached)
	assert.NotEqual(t, seen[0].ID, seen[1].ID)
}

func TestAnnouncer_PreloadPartialFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	mock := tts.NewMock()
	mock.SynthesizeFunc = func(ctx context.Context, text string) (*tts.Audio, error) {
		if text == "bad" {
			return nil, boom
		}
		return tts.Silence(text), nil
	}
	a := NewAnnouncer(AnnouncerConfig{}, mock, nil, log.Discard())

	err := a.Preload(context.Background(), []string{"good", "bad", "fine"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, a.CacheSize())
	assert.False(t, a.Cached("bad"))
}

func TestAnnouncer_SpeakSynthesisError(t *testing.T) {
	boom := errors.New("offline")
	player := &fakePlayer{}
	a := NewAnnouncer(AnnouncerConfig{}, tts.WithError(boom), player, log.Discard())

	assert.ErrorIs(t, a.Speak(context.Background(), "hello"), boom)
	assert.Empty(t, player.Played())
}

func TestAnnouncer_Close(t *testing.T) {
	mock := tts.NewMock()
	player := &fakePlayer{}
	a := NewAnnouncer(AnnouncerConfig{}, mock, player, log.Discard())

	require.NoError(t, a.Close())
	assert.Equal(t, 1, player.cancel)
	assert.Equal(t, 1, mock.CallCount("Close"))
}

func TestNormalize(t *testing.T) {
	in := &tts.Audio{PCM: pcm(1000, -2000, 0), Format: tts.PCM16Mono(16000), Text: "x"}

	out := Normalize(in, 0.5)

	assert.Equal(t, pcm(8192, -16384, 0), out.PCM)
	assert.Equal(t, in.Format, out.Format)
	assert.Equal(t, "x", out.Text)
	assert.Equal(t, pcm(1000, -2000, 0), in.PCM, "input is not modified")

	silent := Normalize(&tts.Audio{PCM: pcm(0, 0), Format: tts.PCM16Mono(16000)}, 0.9)
	assert.Equal(t, pcm(0, 0), silent.PCM)
}

func clip(text string) *tts.Audio {
	return &tts.Audio{PCM: pcm(1, 2, 3, 4), Format: tts.PCM16Mono(16000), Text: text}
}

func TestCommandPlayer_Success(t *testing.T) {
	p := NewCommandPlayer(PlayerConfig{Command: []string{"true"}}, log.Discard())

	var ended []string
	p.OnPlaybackEnd = func(s string, interrupted bool) {
		assert.False(t, interrupted)
		ended = append(ended, s)
	}

	require.NoError(t, p.Play(context.Background(), clip("hello")))
	assert.Equal(t, []string{"hello"}, ended)
	assert.False(t, p.IsPlaying())

	assert.NoError(t, p.Play(context.Background(), nil), "nil clip is a no-op")
}

func TestCommandPlayer_CommandFailure(t *testing.T) {
	p := NewCommandPlayer(PlayerConfig{Command: []string{"false"}}, log.Discard())
	assert.Error(t, p.Play(context.Background(), clip("hello")))
}

func TestCommandPlayer_Cancel(t *testing.T) {
	p := NewCommandPlayer(PlayerConfig{Command: []string{"sh", "-c", "sleep 5", "player"}}, log.Discard())
	interrupted := make(chan bool, 1)
	p.OnPlaybackEnd = func(_ string, replaced bool) { interrupted <- replaced }

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), clip("long")) }()

	require.Eventually(t, p.IsPlaying, time.Second, 5*time.Millisecond)
	p.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(3 * time.Second):
		t.Fatal("playback was not interrupted")
	}
	assert.True(t, <-interrupted)
	assert.False(t, p.IsPlaying())
}

func TestCommandPlayer_ContextCancel(t *testing.T) {
	p := NewCommandPlayer(PlayerConfig{Command: []string{"sh", "-c", "sleep 5", "player"}}, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Play(ctx, clip("long")), context.DeadlineExceeded)
}

func TestDefaultPlayerConfig(t *testing.T) {
	cfg := DefaultPlayerConfig()
	assert.NotEmpty(t, cfg.Command)
	assert.InDelta(t, 0.9, cfg.Gain, 1e-9)
}
