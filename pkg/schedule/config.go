// Package schedule implements the global one-second tick, scheduled
// routines and the notification gatekeeper.
package schedule

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Window is a day-of-week and time-of-day range. Start and End are
// "HHMM" strings; a window whose Start sorts after End wraps past
// midnight. An empty Days list matches every day.
type Window struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Days  []int  `json:"days,omitempty"`
}

// GateRule gates one notification category. Enabled is a pointer so
// only an explicit false disables the category.
type GateRule struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Deny    *Window `json:"deny,omitempty"`
	Allow   *Window `json:"allow,omitempty"`
}

// Routine is one scheduled action. Time is "HH:MM" or the literal
// "hourly"; Days holds weekdays 0 (Sunday) through 6.
type Routine struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Time    string   `json:"time"`
	Days    []int    `json:"days"`
	Action  string   `json:"action"`
	Enabled bool     `json:"enabled"`
	Target  string   `json:"target,omitempty"`
	Text    string   `json:"text,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
}

// Config is the persisted scheduler document.
type Config struct {
	Gatekeeper map[string]GateRule `json:"gatekeeper"`
	Routines   []Routine           `json:"routines"`
}

// ParseConfig decodes a scheduler config document.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("scheduler config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a scheduler config from disk.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open scheduler config: %w", err)
	}
	defer f.Close()
	return ParseConfig(f)
}
