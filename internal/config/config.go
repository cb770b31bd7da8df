// Package config provides configuration helpers for the go-aegis service.
package config

import (
	"os"
	"path/filepath"
)

// Default service configuration.
const (
	DefaultPort      = "8700"
	DefaultConfigDir = "./config"
	DefaultModelsDir = "./models"
	DefaultLogLevel  = "info"
)

// Config holds the service configuration, assembled from environment
// variables in Load. Missing values fall back to defaults.
type Config struct {
	// Port is the HTTP listen port for the overlay API.
	Port string

	// ConfigDir holds the persisted JSON documents (reactions.json,
	// scheduler.json).
	ConfigDir string

	// ModelsDir holds per-model asset directories with alias maps.
	ModelsDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// VoicevoxURL is the base URL of a local VOICEVOX engine.
	// Empty disables the VOICEVOX synthesizer.
	VoicevoxURL string

	// VoicevoxSpeaker is the VOICEVOX speaker (style) ID.
	VoicevoxSpeaker string

	// OpenAIKey enables the OpenAI speech synthesizer and the briefing
	// composer when set.
	OpenAIKey string
}

// Load assembles the configuration from environment variables.
func Load() Config {
	return Config{
		Port:            envOr("AEGIS_PORT", DefaultPort),
		ConfigDir:       envOr("AEGIS_CONFIG_DIR", DefaultConfigDir),
		ModelsDir:       envOr("AEGIS_MODELS_DIR", DefaultModelsDir),
		LogLevel:        envOr("AEGIS_LOG_LEVEL", DefaultLogLevel),
		VoicevoxURL:     os.Getenv("VOICEVOX_URL"),
		VoicevoxSpeaker: envOr("VOICEVOX_SPEAKER", "1"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
	}
}

// ReactionsPath returns the path of the reaction rules document.
func (c Config) ReactionsPath() string {
	return filepath.Join(c.ConfigDir, "reactions.json")
}

// SchedulerPath returns the path of the scheduler config document.
func (c Config) SchedulerPath() string {
	return filepath.Join(c.ConfigDir, "scheduler.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
