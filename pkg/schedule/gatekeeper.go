package schedule

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Gatekeeper decides whether a notification category may fire right
// now. It fails open: no config, or no rule for the category, allows.
type Gatekeeper struct {
	mu     sync.Mutex
	rules  map[string]GateRule
	loaded bool

	logger *slog.Logger
	now    func() time.Time
}

// NewGatekeeper creates a gatekeeper with no rules loaded. Everything
// is allowed until SetRules installs a config.
func NewGatekeeper(logger *slog.Logger) *Gatekeeper {
	if logger == nil {
		logger = slog.Default().With("component", "gatekeeper")
	}
	return &Gatekeeper{logger: logger, now: time.Now}
}

// SetRules atomically replaces the category rules.
func (g *Gatekeeper) SetRules(rules map[string]GateRule) {
	g.mu.Lock()
	g.rules = rules
	g.loaded = true
	g.mu.Unlock()
	g.logger.Info("gatekeeper rules loaded", "categories", len(rules))
}

// IsAllowed reports whether category notifications may fire at the
// current time. A deny window always wins over an allow window.
func (g *Gatekeeper) IsAllowed(category string) bool {
	g.mu.Lock()
	rule, ok := g.rules[category]
	loaded := g.loaded
	now := g.now()
	g.mu.Unlock()

	if !loaded || !ok {
		return true
	}
	if rule.Enabled != nil && !*rule.Enabled {
		return false
	}

	day := int(now.Weekday())
	hhmm := now.Hour()*100 + now.Minute()

	if rule.Deny != nil && matchesWindow(*rule.Deny, day, hhmm) {
		return false
	}
	if rule.Allow != nil && !matchesWindow(*rule.Allow, day, hhmm) {
		return false
	}
	return true
}

// matchesWindow checks a (day, HHMM) pair against a window. When the
// window wraps midnight (start > end) the time is in range unless it
// falls strictly between end and start.
func matchesWindow(w Window, day, hhmm int) bool {
	if len(w.Days) > 0 && !containsDay(w.Days, day) {
		return false
	}
	if w.Start == "" || w.End == "" {
		return true
	}
	start, err1 := strconv.Atoi(w.Start)
	end, err2 := strconv.Atoi(w.End)
	if err1 != nil || err2 != nil {
		return true
	}
	if start <= end {
		return hhmm >= start && hhmm <= end
	}
	return !(hhmm < start && hhmm > end)
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
