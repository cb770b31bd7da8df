package reaction

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Rule is one condition to actions mapping. Rules are immutable after
// load and ordered by declaration within their source.
type Rule struct {
	Name      string
	Condition *Condition
	Actions   []Action
}

// Table maps widget source names to ordered rule lists and enforces
// per-source cooldowns. At most one rule fires per trigger call.
type Table struct {
	mu        sync.Mutex
	rules     map[string][]Rule
	lastFired map[string]time.Time
	snapshots map[string]map[string]any
	loaded    bool

	commander *Commander
	logger    *slog.Logger
	now       func() time.Time
}

// NewTable creates an empty reaction table. Until a config loads it
// treats every trigger as a no-op.
func NewTable(c *Commander, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default().With("component", "reaction")
	}
	return &Table{
		rules:     map[string][]Rule{},
		lastFired: map[string]time.Time{},
		snapshots: map[string]map[string]any{},
		commander: c,
		logger:    logger,
		now:       time.Now,
	}
}

// LoadFile loads reaction rules from a JSON document on disk.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reaction rules: %w", err)
	}
	defer f.Close()
	return t.Load(f)
}

// Load parses and atomically installs a rule document. Cooldown state
// survives the swap so a reload cannot re-arm suppressed sources.
func (t *Table) Load(r io.Reader) error {
	rules, err := parseRuleDoc(r, t.logger)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.rules = rules
	t.loaded = true
	t.mu.Unlock()

	total := 0
	for _, list := range rules {
		total += len(list)
	}
	t.logger.Info("reaction rules loaded", "sources", len(rules), "rules", total)
	return nil
}

// CheckAndTrigger evaluates source's rules against fresh widget data.
// The first matching rule's actions execute through the commander and
// start the cooldown window; a call with no match leaves the cooldown
// untouched. It reports whether a rule fired.
func (t *Table) CheckAndTrigger(source string, data map[string]any, cooldown time.Duration, subKey string) bool {
	t.mu.Lock()

	// Keep the latest data visible to briefings even when nothing fires.
	t.snapshots[source] = data

	if !t.loaded {
		t.mu.Unlock()
		return false
	}
	list, ok := t.rules[source]
	if !ok {
		t.mu.Unlock()
		return false
	}

	key := source
	if subKey != "" {
		key = source + ":" + subKey
	}
	if cooldown > 0 {
		if last, seen := t.lastFired[key]; seen && t.now().Sub(last) < cooldown {
			t.mu.Unlock()
			return false
		}
	}

	var fired *Rule
	for i := range list {
		r := &list[i]
		if r.Condition == nil {
			continue
		}
		ok, err := r.Condition.Eval(data)
		if err != nil {
			t.logger.Debug("condition fault treated as non-match",
				"source", source, "rule", r.Name, "error", err)
			continue
		}
		if ok {
			fired = r
			break
		}
	}
	if fired == nil {
		t.mu.Unlock()
		return false
	}

	t.lastFired[key] = t.now()
	actions := fired.Actions
	t.mu.Unlock()

	t.logger.Info("reaction fired", "source", source, "rule", fired.Name, "key", key)
	t.commander.Execute(actions, data)
	return true
}

// Snapshot returns the most recent data record seen for a source.
func (t *Table) Snapshot(source string) (map[string]any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.snapshots[source]
	return data, ok
}

// Sources lists the configured source names.
func (t *Table) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.rules))
	for s := range t.rules {
		out = append(out, s)
	}
	return out
}

// parseRuleDoc walks the JSON token stream instead of unmarshalling into
// a map: Go maps lose key order, and rule priority is declaration order.
func parseRuleDoc(r io.Reader, logger *slog.Logger) (map[string][]Rule, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("reaction rules: %w", err)
	}

	rules := map[string][]Rule{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reaction rules: %w", err)
		}
		source, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("reaction rules: expected source name, got %v", tok)
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("reaction rules: source %q: %w", source, err)
		}

		var list []Rule
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("reaction rules: source %q: %w", source, err)
			}
			name, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("reaction rules: source %q: expected rule name, got %v", source, tok)
			}

			var spec struct {
				Condition string   `json:"condition"`
				Actions   []Action `json:"actions"`
			}
			if err := dec.Decode(&spec); err != nil {
				return nil, fmt.Errorf("reaction rules: rule %s/%s: %w", source, name, err)
			}

			rule := Rule{Name: name, Actions: spec.Actions}
			cond, err := ParseCondition(spec.Condition)
			if err != nil {
				// A broken condition disables its rule, not the table.
				logger.Warn("unparseable condition", "source", source, "rule", name, "error", err)
			} else {
				rule.Condition = cond
			}
			list = append(list, rule)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("reaction rules: source %q: %w", source, err)
		}
		rules[source] = list
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("reaction rules: %w", err)
	}
	return rules, nil
}

func expectDelim(dec *json.Decoder, want rune) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || rune(d) != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
