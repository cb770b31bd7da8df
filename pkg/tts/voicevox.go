package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aegisdesk/go-aegis/internal/httpc"
)

const (
	defaultVoicevoxURL = "http://127.0.0.1:50021"
	providerVoicevox   = "voicevox"
)

// Voicevox implements Provider against a local VOICEVOX engine.
// Synthesis is two calls: audio_query builds the phrase prosody, and
// synthesis renders it to WAV.
type Voicevox struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewVoicevox creates a VOICEVOX provider. The engine needs no API key;
// only the speaker ID is required.
func NewVoicevox(opts ...Option) (*Voicevox, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "1"
	cfg.Apply(opts...)

	if cfg.VoiceID == "" {
		return nil, ErrNoVoiceID
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultVoicevoxURL
	}

	return &Voicevox{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.voicevox"),
		baseURL: baseURL,
	}, nil
}

// Synthesize converts text to a WAV audio buffer.
func (v *Voicevox) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	query, err := v.audioQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	audio, err := v.synthesis(ctx, query)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()

	duration, ok := wavDuration(audio)
	if !ok {
		duration = EstimateDuration(len(text))
	}

	v.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"speaker", v.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		MIME:      "audio/wav",
		Duration:  duration,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks engine connectivity via the version endpoint.
func (v *Voicevox) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", v.baseURL+"/version", nil)
	if err != nil {
		return WrapError(providerVoicevox, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return WrapError(providerVoicevox, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "version check failed", Provider: providerVoicevox}
	}
	return nil
}

// Close releases resources.
func (v *Voicevox) Close() error {
	v.client.CloseIdleConnections()
	return nil
}

// audioQuery builds the synthesis query JSON for text.
func (v *Voicevox) audioQuery(ctx context.Context, text string) ([]byte, error) {
	u := fmt.Sprintf("%s/audio_query?text=%s&speaker=%s",
		v.baseURL, url.QueryEscape(text), url.QueryEscape(v.config.VoiceID))

	req, err := http.NewRequestWithContext(ctx, "POST", u, nil)
	if err != nil {
		return nil, WrapError(providerVoicevox, fmt.Errorf("create query request: %w", err))
	}

	resp, err := v.doWithRetry(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, v.parseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// synthesis renders a query JSON into WAV bytes.
func (v *Voicevox) synthesis(ctx context.Context, query []byte) ([]byte, error) {
	u := fmt.Sprintf("%s/synthesis?speaker=%s", v.baseURL, url.QueryEscape(v.config.VoiceID))

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(query))
	if err != nil {
		return nil, WrapError(providerVoicevox, fmt.Errorf("create synthesis request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.doWithRetry(ctx, req, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, v.parseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// doWithRetry performs the request with retry logic.
func (v *Voicevox) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= v.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(v.config.RetryDelay * time.Duration(attempt)):
			}

			if body != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		resp, err := v.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerVoicevox, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = v.parseError(resp)
			v.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads an error response body into an APIError.
func (v *Voicevox) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Provider:   providerVoicevox,
	}
}

// wavDuration reads playback duration from a RIFF/WAVE header by
// walking chunks to the fmt byte rate and the data chunk size.
func wavDuration(b []byte) (time.Duration, bool) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	var dataSize uint32
	offset := 12
	for offset+8 <= len(b) {
		id := string(b[offset : offset+4])
		size := binary.LittleEndian.Uint32(b[offset+4 : offset+8])
		body := offset + 8

		switch id {
		case "fmt ":
			if body+12 > len(b) {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(b[body+8 : body+12])
		case "data":
			dataSize = size
		}

		// Chunks are word aligned.
		offset = body + int(size)
		if size%2 == 1 {
			offset++
		}
	}

	if byteRate == 0 || dataSize == 0 {
		return 0, false
	}
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), true
}

// Verify Voicevox implements Provider at compile time.
var _ Provider = (*Voicevox)(nil)
