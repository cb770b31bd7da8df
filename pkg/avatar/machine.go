package avatar

import (
	"log/slog"
	"sync"
	"time"
)

// Event types accepted by Dispatch.
const (
	EventMusicStart = "MUSIC_START"
	EventMusicStop  = "MUSIC_STOP"
	EventTTSStart   = "TTS_START"
	EventTTSStop    = "TTS_STOP"
	EventEmotion    = "EMOTION"
	EventMotion     = "MOTION"
	EventHappyDance = "HAPPY_DANCE"
)

// Default timings for auto-expiring states.
const (
	DefaultEmotionDuration    = 10 * time.Second
	DefaultHappyDanceDuration = 5 * time.Second
)

// EventSink receives resolved avatar-facing effects. The websocket hub
// implements this to forward effects to the browser overlay.
type EventSink interface {
	// PlayMotion plays a one-shot motion file.
	PlayMotion(file string)

	// PlayExpression applies an expression file.
	PlayExpression(file string)

	// EmitEvent forwards a named event with an arbitrary payload.
	EmitEvent(name string, payload map[string]any)
}

// AliasResolver maps model-specific aliases to asset files.
type AliasResolver interface {
	ResolveMotion(alias string) (string, bool)
	ResolveExpression(alias string) (string, bool)
}

// Machine owns the avatar's discrete mode flags and derives the per-frame
// pose from them. All mutation goes through Dispatch; nothing else writes
// the flags.
type Machine struct {
	mu sync.Mutex

	dancing    bool
	happyDance bool
	speaking   bool

	// Generation counters guard against stale expiry timers: each new
	// EMOTION or HAPPY_DANCE bumps the counter so a superseded timer
	// becomes a no-op even if it already fired.
	emotionSeq int
	happySeq   int
	emotionT   *time.Timer
	happyT     *time.Timer

	sink    EventSink
	aliases AliasResolver
	logger  *slog.Logger

	talkingExpression   string
	neutralExpression   string
	celebrateExpression string
}

// Option configures a Machine.
type Option func(*Machine)

// WithAliases sets the alias resolver used for MOTION/EMOTION payloads.
func WithAliases(r AliasResolver) Option {
	return func(m *Machine) { m.aliases = r }
}

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithTalkingExpression sets the expression applied on TTS_START.
// Empty disables it.
func WithTalkingExpression(file string) Option {
	return func(m *Machine) { m.talkingExpression = file }
}

// WithNeutralExpression sets the expression restored after an EMOTION
// expires.
func WithNeutralExpression(file string) Option {
	return func(m *Machine) { m.neutralExpression = file }
}

// WithCelebrateExpression sets the expression played on HAPPY_DANCE.
func WithCelebrateExpression(file string) Option {
	return func(m *Machine) { m.celebrateExpression = file }
}

// NewMachine creates an animation state machine dispatching effects to sink.
func NewMachine(sink EventSink, opts ...Option) *Machine {
	m := &Machine{
		sink:                sink,
		logger:              slog.Default().With("component", "avatar"),
		talkingExpression:   "Talk.exp3.json",
		neutralExpression:   "Normal.exp3.json",
		celebrateExpression: "Smile.exp3.json",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Flags returns a snapshot of the current mode flags.
func (m *Machine) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Flags{Dancing: m.dancing, HappyDance: m.happyDance, Speaking: m.speaking}
}

// Sample returns the pose at elapsed seconds t for the current flags.
// It is a pure function of (flags, t); two calls with identical inputs
// return identical poses.
func (m *Machine) Sample(t float64) Pose {
	return poseFor(m.Flags(), t)
}

// Dispatch applies a discrete avatar event. Unknown event types are
// logged and ignored.
func (m *Machine) Dispatch(eventType string, payload map[string]any) {
	switch eventType {
	case EventMusicStart:
		m.setDancing(true)
	case EventMusicStop:
		m.setDancing(false)
	case EventTTSStart:
		m.setSpeaking(true)
		if m.talkingExpression != "" {
			m.sink.PlayExpression(m.talkingExpression)
		}
	case EventTTSStop:
		m.setSpeaking(false)
	case EventEmotion:
		m.playEmotion(payload)
	case EventMotion:
		if file := m.resolveFile(payload, false); file != "" {
			m.sink.PlayMotion(file)
		}
	case EventHappyDance:
		m.startHappyDance(payloadDuration(payload, DefaultHappyDanceDuration))
	default:
		m.logger.Warn("unknown avatar event", "type", eventType)
	}
}

// ApplySentiment maps an AI sentiment keyword to a fixed motion and
// expression pair and dispatches them.
func (m *Machine) ApplySentiment(sentiment string) {
	switch sentiment {
	case "happy":
		m.Dispatch(EventMotion, map[string]any{"file": "Joy.motion3.json"})
		m.Dispatch(EventEmotion, map[string]any{"file": "Smile.exp3.json"})
	case "serious":
		m.Dispatch(EventMotion, map[string]any{"file": "SignShock.motion3.json"})
		m.Dispatch(EventEmotion, map[string]any{"file": "Sorrow.exp3.json"})
	case "alert":
		m.Dispatch(EventMotion, map[string]any{"file": "Shock.motion3.json"})
		m.Dispatch(EventEmotion, map[string]any{"file": "SignShock.exp3.json"})
	default:
		m.Dispatch(EventMotion, map[string]any{"file": "TapBody.motion3.json"})
	}
}

// Stop cancels any pending expiry timers.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emotionT != nil {
		m.emotionT.Stop()
	}
	if m.happyT != nil {
		m.happyT.Stop()
	}
	m.emotionSeq++
	m.happySeq++
}

func (m *Machine) setDancing(on bool) {
	m.mu.Lock()
	m.dancing = on
	m.mu.Unlock()
}

func (m *Machine) setSpeaking(on bool) {
	m.mu.Lock()
	m.speaking = on
	m.mu.Unlock()
}

// playEmotion applies an expression and schedules the reset back to
// neutral. A newer EMOTION supersedes the pending reset.
func (m *Machine) playEmotion(payload map[string]any) {
	file := m.resolveFile(payload, true)
	if file == "" {
		return
	}
	m.sink.PlayExpression(file)

	d := payloadDuration(payload, DefaultEmotionDuration)

	m.mu.Lock()
	if m.emotionT != nil {
		m.emotionT.Stop()
	}
	m.emotionSeq++
	seq := m.emotionSeq
	m.emotionT = time.AfterFunc(d, func() {
		m.mu.Lock()
		stale := seq != m.emotionSeq
		m.mu.Unlock()
		if stale || m.neutralExpression == "" {
			return
		}
		m.sink.PlayExpression(m.neutralExpression)
	})
	m.mu.Unlock()
}

func (m *Machine) startHappyDance(d time.Duration) {
	m.mu.Lock()
	m.happyDance = true
	if m.happyT != nil {
		m.happyT.Stop()
	}
	m.happySeq++
	seq := m.happySeq
	m.happyT = time.AfterFunc(d, func() {
		m.mu.Lock()
		if seq == m.happySeq {
			m.happyDance = false
		}
		m.mu.Unlock()
	})
	m.mu.Unlock()

	if m.celebrateExpression != "" {
		m.sink.PlayExpression(m.celebrateExpression)
	}
}

// resolveFile extracts the asset file from a payload, resolving an
// alias through the active model's alias map when present.
func (m *Machine) resolveFile(payload map[string]any, expression bool) string {
	if payload == nil {
		return ""
	}
	if alias, ok := payload["alias"].(string); ok && alias != "" && m.aliases != nil {
		var file string
		var found bool
		if expression {
			file, found = m.aliases.ResolveExpression(alias)
		} else {
			file, found = m.aliases.ResolveMotion(alias)
		}
		if found {
			return file
		}
		m.logger.Warn("unknown asset alias", "alias", alias)
	}
	file, _ := payload["file"].(string)
	return file
}

// payloadDuration reads a millisecond duration from a payload.
func payloadDuration(payload map[string]any, fallback time.Duration) time.Duration {
	if payload == nil {
		return fallback
	}
	switch v := payload["duration"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	case time.Duration:
		if v > 0 {
			return v
		}
	}
	return fallback
}
