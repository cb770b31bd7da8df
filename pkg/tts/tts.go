// Package tts provides a unified interface for speech-synthesis providers.
//
// The package supports a local VOICEVOX engine and the OpenAI speech API.
// All providers implement the Provider interface, enabling seamless
// switching without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewVoicevox(
//	    tts.WithBaseURL("http://127.0.0.1:50021"),
//	    tts.WithVoice("1"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains WAV/MP3 audio bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the speech-synthesis provider interface.
// All implementations must satisfy this interface for seamless provider
// switching.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data.
	Audio []byte

	// MIME is the audio content type (audio/wav, audio/mpeg).
	MIME string

	// Duration is the audio playback duration. Providers that cannot
	// measure it exactly fall back to a text-length estimate.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// Estimation bounds for playback duration when the audio itself cannot
// be measured.
const (
	perCharDuration = 60 * time.Millisecond
	minEstimate     = time.Second
	maxEstimate     = 45 * time.Second
)

// EstimateDuration approximates spoken duration from text length.
func EstimateDuration(charCount int) time.Duration {
	d := time.Duration(charCount) * perCharDuration
	if d < minEstimate {
		return minEstimate
	}
	if d > maxEstimate {
		return maxEstimate
	}
	return d
}
