// Package model loads per-model asset inventories and alias maps from
// the models directory.
package model

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// AliasMap maps friendly alias names to asset files.
type AliasMap struct {
	Motions     map[string]string `json:"motions"`
	Expressions map[string]string `json:"expressions"`
}

// Assets is one model's asset inventory, served to the overlay and
// consulted for alias resolution.
type Assets struct {
	Motions           []string `json:"motions"`
	Expressions       []string `json:"expressions"`
	ModelSettingsFile string   `json:"model_settings_file,omitempty"`
	Aliases           AliasMap `json:"aliases"`
}

// Library manages the models directory: listing, per-model assets and
// the active model whose aliases drive reaction resolution.
type Library struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	active string
	assets Assets
}

// NewLibrary creates a library over dir. No model is active until
// Activate succeeds.
func NewLibrary(dir string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default().With("component", "model")
	}
	return &Library{
		dir:    dir,
		logger: logger,
		assets: emptyAssets(),
	}
}

// List returns the model directory names, sorted.
func (l *Library) List() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.logger.Warn("models directory unreadable", "dir", l.dir, "error", err)
		return []string{}
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Load reads one model's asset inventory from disk. A missing model
// yields an empty inventory, matching the permissive config policy.
func (l *Library) Load(name string) Assets {
	a := emptyAssets()
	root := filepath.Join(l.dir, name)

	// Motions live under animations/ or motions/, referenced with
	// their subdirectory prefix.
	for _, sub := range []string{"animations", "motions"} {
		entries, err := os.ReadDir(filepath.Join(root, sub))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".motion3.json") {
				a.Motions = append(a.Motions, sub+"/"+e.Name())
			}
		}
	}

	if entries, err := os.ReadDir(filepath.Join(root, "expressions")); err == nil {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".exp3.json") {
				a.Expressions = append(a.Expressions, e.Name())
			}
		}
	}

	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".model3.json") {
				a.ModelSettingsFile = e.Name()
				break
			}
		}
	}

	if raw, err := os.ReadFile(filepath.Join(root, "alias.json")); err == nil {
		var aliases AliasMap
		if err := json.Unmarshal(raw, &aliases); err != nil {
			l.logger.Warn("bad alias.json", "model", name, "error", err)
		} else {
			if aliases.Motions != nil {
				a.Aliases.Motions = aliases.Motions
			}
			if aliases.Expressions != nil {
				a.Aliases.Expressions = aliases.Expressions
			}
		}
	}

	return a
}

// Activate loads name's assets and makes its aliases the resolution
// source for reactions.
func (l *Library) Activate(name string) Assets {
	assets := l.Load(name)

	l.mu.Lock()
	l.active = name
	l.assets = assets
	l.mu.Unlock()

	l.logger.Info("model activated",
		"model", name,
		"motions", len(assets.Motions),
		"expressions", len(assets.Expressions),
	)
	return assets
}

// Active returns the active model name and its assets.
func (l *Library) Active() (string, Assets) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.assets
}

// ResolveMotion maps a motion alias to its asset file.
func (l *Library) ResolveMotion(alias string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.assets.Aliases.Motions[alias]
	return f, ok
}

// ResolveExpression maps an expression alias to its asset file.
func (l *Library) ResolveExpression(alias string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.assets.Aliases.Expressions[alias]
	return f, ok
}

func emptyAssets() Assets {
	return Assets{
		Motions:     []string{},
		Expressions: []string{},
		Aliases: AliasMap{
			Motions:     map[string]string{},
			Expressions: map[string]string{},
		},
	}
}
