package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMockProvider(t *testing.T) {
	m := NewMock()

	result, err := m.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.CharCount != 5 {
		t.Errorf("CharCount: got %d, want 5", result.CharCount)
	}
	if result.Duration != 100*time.Millisecond {
		t.Errorf("Duration: got %v, want 100ms", result.Duration)
	}
	if m.CallCount("Synthesize") != 1 {
		t.Errorf("CallCount: got %d, want 1", m.CallCount("Synthesize"))
	}
	if last := m.LastCall(); last == nil || last.Text != "hello" {
		t.Errorf("LastCall: %+v", last)
	}
}

func TestMockWithError(t *testing.T) {
	wantErr := errors.New("boom")
	m := WithError(wantErr)

	if _, err := m.Synthesize(context.Background(), "x"); !errors.Is(err, wantErr) {
		t.Errorf("Synthesize error: got %v", err)
	}
	if err := m.Health(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Health error: got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("got %v, want ErrNoAPIKey", err)
		}
	})

	t.Run("missing voice", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Apply(WithAPIKey("key"))
		if err := cfg.ValidateWithVoice(); !errors.Is(err, ErrNoVoiceID) {
			t.Errorf("got %v, want ErrNoVoiceID", err)
		}
	})

	t.Run("complete", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Apply(WithAPIKey("key"), WithVoice("1"), WithTimeout(5*time.Second))
		if err := cfg.ValidateWithVoice(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("Timeout: got %v", cfg.Timeout)
		}
	})
}

func TestChain(t *testing.T) {
	t.Run("first provider wins", func(t *testing.T) {
		first := NewMock()
		second := NewMock()
		chain, err := NewChain(first, second)
		if err != nil {
			t.Fatalf("NewChain: %v", err)
		}

		if _, err := chain.Synthesize(context.Background(), "hi"); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if second.CallCount("Synthesize") != 0 {
			t.Error("second provider should not have been tried")
		}
	})

	t.Run("falls back on failure", func(t *testing.T) {
		broken := WithError(errors.New("down"))
		working := NewMock()
		chain, _ := NewChain(broken, working)

		result, err := chain.Synthesize(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if result == nil || working.CallCount("Synthesize") != 1 {
			t.Error("fallback provider was not used")
		}
	})

	t.Run("all fail", func(t *testing.T) {
		chain, _ := NewChain(WithError(errors.New("a")), WithError(errors.New("b")))

		_, err := chain.Synthesize(context.Background(), "hi")
		var chainErr *ChainError
		if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
			t.Errorf("expected ChainError with 2 errors, got %v", err)
		}
	})

	t.Run("empty chain rejected", func(t *testing.T) {
		if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("got %v, want ErrProviderUnavailable", err)
		}
	})

	t.Run("health requires one healthy", func(t *testing.T) {
		chain, _ := NewChain(WithError(errors.New("down")), NewMock())
		if err := chain.Health(context.Background()); err != nil {
			t.Errorf("Health: %v", err)
		}
	})
}

func TestAPIError(t *testing.T) {
	e := &APIError{StatusCode: 429, Message: "slow down", Provider: "voicevox"}

	if !e.IsRateLimited() || !e.IsRetryable() {
		t.Error("429 should be rate limited and retryable")
	}
	if e.IsUnauthorized() || e.IsServerError() {
		t.Error("429 is neither unauthorized nor a server error")
	}
	if !strings.Contains(e.Error(), "voicevox") {
		t.Errorf("Error() missing provider: %q", e.Error())
	}
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		chars int
		want  time.Duration
	}{
		{0, time.Second},
		{5, time.Second},
		{100, 6 * time.Second},
		{10000, 45 * time.Second},
	}
	for _, tc := range tests {
		if got := EstimateDuration(tc.chars); got != tc.want {
			t.Errorf("EstimateDuration(%d) = %v, want %v", tc.chars, got, tc.want)
		}
	}
}

// buildWAV constructs a minimal RIFF/WAVE buffer with the given byte
// rate and data payload size.
func buildWAV(byteRate, dataSize uint32) []byte {
	b := make([]byte, 0, 44+int(dataSize))
	b = append(b, []byte("RIFF")...)
	b = binary.LittleEndian.AppendUint32(b, 36+dataSize)
	b = append(b, []byte("WAVE")...)
	b = append(b, []byte("fmt ")...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:2], 1)  // PCM
	binary.LittleEndian.PutUint16(fmtBody[2:4], 1)  // mono
	binary.LittleEndian.PutUint32(fmtBody[4:8], byteRate/2)
	binary.LittleEndian.PutUint32(fmtBody[8:12], byteRate)
	binary.LittleEndian.PutUint16(fmtBody[12:14], 2)
	binary.LittleEndian.PutUint16(fmtBody[14:16], 16)
	b = append(b, fmtBody...)
	b = append(b, []byte("data")...)
	b = binary.LittleEndian.AppendUint32(b, dataSize)
	b = append(b, make([]byte, dataSize)...)
	return b
}

func TestWAVDuration(t *testing.T) {
	t.Run("two seconds", func(t *testing.T) {
		wav := buildWAV(48000, 96000)
		d, ok := wavDuration(wav)
		if !ok || d != 2*time.Second {
			t.Errorf("got (%v, %v), want (2s, true)", d, ok)
		}
	})

	t.Run("not a wav", func(t *testing.T) {
		if _, ok := wavDuration([]byte("ID3 definitely mp3")); ok {
			t.Error("mp3 bytes parsed as WAV")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, ok := wavDuration([]byte("RIFF")); ok {
			t.Error("truncated header parsed")
		}
	})
}

func TestVoicevoxSynthesize(t *testing.T) {
	wav := buildWAV(24000, 48000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/audio_query"):
			if r.URL.Query().Get("text") != "konnichiwa" || r.URL.Query().Get("speaker") != "3" {
				t.Errorf("audio_query params: %v", r.URL.Query())
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accent_phrases":[]}`))
		case strings.HasPrefix(r.URL.Path, "/synthesis"):
			w.Header().Set("Content-Type", "audio/wav")
			w.Write(wav)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v, err := NewVoicevox(WithBaseURL(srv.URL), WithVoice("3"))
	if err != nil {
		t.Fatalf("NewVoicevox: %v", err)
	}
	defer v.Close()

	result, err := v.Synthesize(context.Background(), "konnichiwa")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.MIME != "audio/wav" {
		t.Errorf("MIME: %q", result.MIME)
	}
	if result.Duration != 2*time.Second {
		t.Errorf("Duration: got %v, want 2s", result.Duration)
	}
	if len(result.Audio) != len(wav) {
		t.Errorf("Audio length: got %d, want %d", len(result.Audio), len(wav))
	}
}

func TestVoicevoxHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			w.Write([]byte(`"0.21.1"`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v, _ := NewVoicevox(WithBaseURL(srv.URL))
	if err := v.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestOpenAISynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["input"] != "good morning" {
			t.Errorf("input: %v", payload["input"])
		}
		w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	o, err := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer o.Close()

	result, err := o.Synthesize(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.MIME != "audio/mpeg" || string(result.Audio) != "mp3bytes" {
		t.Errorf("result: %+v", result)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("got %v, want ErrNoAPIKey", err)
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := WrapError("voicevox", inner)

	if !errors.Is(wrapped, inner) {
		t.Error("Unwrap broken")
	}
	if !strings.Contains(wrapped.Error(), "voicevox") {
		t.Errorf("Error() missing provider: %q", wrapped.Error())
	}
	if WrapError("x", nil) != nil {
		t.Error("wrapping nil should stay nil")
	}
}
