package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/aegis/internal/log"
	"github.com/teslashibe/aegis/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns silence", func(t *testing.T) {
		audio, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(audio.PCM) == 0 {
			t.Error("expected audio data")
		}
		if audio.Duration() != 110*time.Millisecond {
			t.Errorf("expected 110ms, got %v", audio.Duration())
		}
		if audio.Format.SampleRate != 16000 {
			t.Errorf("expected 16000 sample rate, got %d", audio.Format.SampleRate)
		}
	})

	t.Run("Empty text fails", func(t *testing.T) {
		if _, err := mock.Synthesize(ctx, ""); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if got := mock.CallCount("Synthesize"); got != 2 {
			t.Errorf("expected 2 Synthesize calls, got %d", got)
		}
		if got := mock.Texts(); len(got) != 2 || got[0] != "Hello world" {
			t.Errorf("unexpected texts %q", got)
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	start := time.Now()
	if _, err := mock.Synthesize(context.Background(), "Hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms latency, got %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithVoice("test-voice"),
		tts.WithModel("test-model"),
		tts.WithLanguage("en-US"),
		tts.WithSampleRate(16000),
		tts.WithTimeout(5*time.Second),
		tts.WithRetry(4, time.Millisecond),
	)

	if cfg.Voice != "test-voice" || cfg.Model != "test-model" || cfg.Language != "en-US" {
		t.Errorf("unexpected voice/model/language: %+v", cfg)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("expected 16000, got %d", cfg.SampleRate)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 4 || cfg.RetryDelay != time.Millisecond {
		t.Errorf("unexpected retry settings %d/%v", cfg.MaxRetries, cfg.RetryDelay)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := tts.DefaultConfig()
	if err := cfg.Validate(); err != tts.ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	cfg.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.SampleRate = 0
	if err := cfg.Validate(); err != tts.ErrBadSampleRate {
		t.Errorf("expected ErrBadSampleRate, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		unauth    bool
	}{
		{400, false, false},
		{401, false, true},
		{403, false, true},
		{429, true, false},
		{500, true, false},
		{503, true, false},
	}

	for _, tc := range tests {
		err := &tts.APIError{StatusCode: tc.status}
		if err.IsRetryable() != tc.retryable {
			t.Errorf("IsRetryable(%d): got %v, want %v", tc.status, err.IsRetryable(), tc.retryable)
		}
		if err.IsUnauthorized() != tc.unauth {
			t.Errorf("IsUnauthorized(%d): got %v, want %v", tc.status, err.IsUnauthorized(), tc.unauth)
		}
	}

	err := &tts.APIError{StatusCode: 400, Message: "bad request", Code: "invalid_input", Provider: "openai"}
	if got := err.Error(); got != "tts [openai]: API error 400 (invalid_input): bad request" {
		t.Errorf("unexpected error message: %s", got)
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("google", inner)

	if err.Error() != "tts [google]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match inner")
	}
	if tts.WrapError("google", nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("NewChain requires providers", func(t *testing.T) {
		if _, err := tts.NewChain(); err != tts.ErrProviderUnavailable {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
		if _, err := tts.NewChain(nil); err != tts.ErrProviderUnavailable {
			t.Errorf("nil providers: expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("First provider succeeds", func(t *testing.T) {
		mock1, mock2 := tts.NewMock(), tts.NewMock()
		chain, err := tts.NewChain(mock1, nil, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := chain.Synthesize(ctx, "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mock1.CallCount("Synthesize") != 1 || mock2.CallCount("Synthesize") != 0 {
			t.Error("expected only the first provider to be called")
		}
		if got := chain.Name(); got != "chain(mock,mock)" {
			t.Errorf("unexpected name %q", got)
		}
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		chain, _ := tts.NewChain(tts.WithError(errors.New("provider 1 failed")), tts.NewMock())

		audio, err := chain.Synthesize(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if audio == nil || len(audio.PCM) == 0 {
			t.Error("expected audio from fallback provider")
		}
	})

	t.Run("All providers fail", func(t *testing.T) {
		fail1, fail2 := errors.New("fail 1"), errors.New("fail 2")
		chain, _ := tts.NewChain(tts.WithError(fail1), tts.WithError(fail2))

		_, err := chain.Synthesize(ctx, "Hello")
		var ce *tts.ChainError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ChainError, got %v", err)
		}
		if !errors.Is(err, fail1) || !errors.Is(err, fail2) {
			t.Errorf("expected both provider errors, got %v", err)
		}
	})

	t.Run("Close combines errors", func(t *testing.T) {
		closeErr := errors.New("close failed")
		m1 := tts.NewMock()
		m1.CloseFunc = func() error { return closeErr }
		m2 := tts.NewMock()
		chain, _ := tts.NewChain(m1, m2)

		if err := chain.Close(); !errors.Is(err, closeErr) {
			t.Errorf("expected close error, got %v", err)
		}
		if m2.CallCount("Close") != 1 {
			t.Error("expected every provider to be closed")
		}
	})
}

func TestOpenAI(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}

	var got struct {
		Model          string `json:"model"`
		Voice          string `json:"voice"`
		Input          string `json:"input"`
		ResponseFormat string `json:"response_format"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(pcm)
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("sk-test"), tts.WithBaseURL(srv.URL), tts.WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer p.Close()

	audio, err := p.Synthesize(context.Background(), "Perimeter is secure.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization: got %q", auth)
	}
	if got.Input != "Perimeter is secure." || got.ResponseFormat != "pcm" || got.Model != tts.ModelTTS1 {
		t.Errorf("unexpected request %+v", got)
	}
	if string(audio.PCM) != string(pcm) {
		t.Errorf("PCM: got %v, want %v", audio.PCM, pcm)
	}
	if audio.Format != tts.PCM16Mono(24000) {
		t.Errorf("Format: got %+v", audio.Format)
	}
	if audio.Provider != "openai" {
		t.Errorf("Provider: got %q", audio.Provider)
	}
}

func TestOpenAI_Retry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "hello") {
			t.Errorf("retry lost the request body: %q", body)
		}
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithRetry(2, time.Millisecond), tts.WithLogger(log.Discard()))
	if _, err := p.Synthesize(context.Background(), "hello"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAI_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithLogger(log.Discard()))
	_, err := p.Synthesize(context.Background(), "hello")

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" || apiErr.Message != "bad key" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("401 must not be retried, got %d calls", calls.Load())
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func wavBytes(t *testing.T, a *tts.Audio) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.EncodeWAV(f); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWAVRoundTrip(t *testing.T) {
	in := &tts.Audio{
		PCM:    []byte{0x10, 0x00, 0xf0, 0xff, 0x00, 0x7f, 0x01, 0x80},
		Format: tts.PCM16Mono(22050),
	}

	data := wavBytes(t, in)
	if !tts.IsWAV(data) {
		t.Fatal("expected RIFF/WAVE header")
	}

	out, err := tts.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Format != in.Format {
		t.Errorf("Format: got %+v, want %+v", out.Format, in.Format)
	}
	if string(out.PCM) != string(in.PCM) {
		t.Errorf("PCM: got %v, want %v", out.PCM, in.PCM)
	}

	if _, err := tts.DecodeWAV([]byte("not audio")); !errors.Is(err, tts.ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestGoogle(t *testing.T) {
	want := &tts.Audio{PCM: []byte{1, 0, 2, 0, 3, 0}, Format: tts.PCM16Mono(24000)}
	content := base64.StdEncoding.EncodeToString(wavBytes(t, want))

	var req struct {
		Input       struct{ Text string }
		Voice       struct{ Name, LanguageCode string }
		AudioConfig struct {
			AudioEncoding   string
			SampleRateHertz int
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "text:synthesize") {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"audioContent": content})
	}))
	defer srv.Close()

	p, err := tts.NewGoogle(context.Background(),
		tts.WithAPIKey("test-key"),
		tts.WithBaseURL(srv.URL+"/"),
		tts.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	defer p.Close()

	audio, err := p.Synthesize(context.Background(), "Scan complete.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if req.Input.Text != "Scan complete." || req.Voice.Name != tts.DefaultGoogleVoice || req.AudioConfig.AudioEncoding != "LINEAR16" {
		t.Errorf("unexpected request %+v", req)
	}
	if string(audio.PCM) != string(want.PCM) {
		t.Errorf("PCM: got %v, want %v (WAV header should be stripped)", audio.PCM, want.PCM)
	}
	if audio.Provider != "google" || audio.Text != "Scan complete." {
		t.Errorf("unexpected metadata %+v", audio)
	}
}

func TestAudioDuration(t *testing.T) {
	a := &tts.Audio{PCM: make([]byte, 48000), Format: tts.PCM16Mono(24000)}
	if a.Duration() != time.Second {
		t.Errorf("expected 1s, got %v", a.Duration())
	}
	if (&tts.Audio{PCM: []byte{1}}).Duration() != 0 {
		t.Error("unknown format should have zero duration")
	}
}
