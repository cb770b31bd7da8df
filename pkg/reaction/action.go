package reaction

import (
	"log/slog"

	"github.com/aegisdesk/go-aegis/pkg/avatar"
)

// Action kinds understood by the Commander.
const (
	KindMotion    = "MOTION"
	KindEmotion   = "EMOTION"
	KindEvent     = "EVENT"
	KindSentiment = "SENTIMENT"
	KindTTS       = "TTS"
)

// Action is one declarative reaction step. Which fields matter depends
// on Kind: MOTION/EMOTION use File or Alias, EVENT and SENTIMENT use
// Value, TTS uses Template, AudioURL and VisualType.
type Action struct {
	Kind       string `json:"type"`
	File       string `json:"file,omitempty"`
	Alias      string `json:"alias,omitempty"`
	Value      string `json:"value,omitempty"`
	Template   string `json:"template,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
	VisualType string `json:"visualType,omitempty"`
}

// Dispatcher receives avatar events produced by actions. The animation
// state machine satisfies this.
type Dispatcher interface {
	Dispatch(eventType string, payload map[string]any)
	ApplySentiment(sentiment string)
}

// Speaker enqueues an utterance. The speech queue satisfies this.
type Speaker interface {
	Speak(text, audioURL, visualType string)
}

// Commander turns matched rule actions into avatar side effects. It
// holds no state; everything flows through the dispatcher and speaker.
type Commander struct {
	dispatcher Dispatcher
	speaker    Speaker
	logger     *slog.Logger
}

// NewCommander wires a commander to its dispatch surfaces.
func NewCommander(d Dispatcher, s Speaker, logger *slog.Logger) *Commander {
	if logger == nil {
		logger = slog.Default().With("component", "commander")
	}
	return &Commander{dispatcher: d, speaker: s, logger: logger}
}

// Execute runs every action in order. A failing or unknown action never
// stops the ones after it.
func (c *Commander) Execute(actions []Action, data map[string]any) {
	for _, a := range actions {
		c.executeOne(a, data)
	}
}

func (c *Commander) executeOne(a Action, data map[string]any) {
	switch a.Kind {
	case KindMotion:
		c.dispatcher.Dispatch(avatar.EventMotion, assetPayload(a))
	case KindEmotion:
		c.dispatcher.Dispatch(avatar.EventEmotion, assetPayload(a))
	case KindSentiment:
		c.dispatcher.ApplySentiment(Format(a.Value, data))
	case KindEvent:
		if a.Value == "" {
			c.logger.Warn("EVENT action without value")
			return
		}
		c.dispatcher.Dispatch(a.Value, mergePayload(data, a))
	case KindTTS:
		if c.speaker == nil {
			c.logger.Warn("TTS action without speaker")
			return
		}
		c.speaker.Speak(
			Format(a.Template, data),
			Format(a.AudioURL, data),
			Format(a.VisualType, data),
		)
	default:
		c.logger.Warn("unknown action kind", "kind", a.Kind)
	}
}

func assetPayload(a Action) map[string]any {
	p := map[string]any{}
	if a.File != "" {
		p["file"] = a.File
	}
	if a.Alias != "" {
		p["alias"] = a.Alias
	}
	return p
}

// mergePayload shallow-merges the triggering data with the action
// descriptor. Descriptor fields win on key collision.
func mergePayload(data map[string]any, a Action) map[string]any {
	p := make(map[string]any, len(data)+6)
	for k, v := range data {
		p[k] = v
	}
	p["type"] = a.Kind
	if a.File != "" {
		p["file"] = a.File
	}
	if a.Alias != "" {
		p["alias"] = a.Alias
	}
	if a.Value != "" {
		p["value"] = a.Value
	}
	if a.Template != "" {
		p["template"] = a.Template
	}
	return p
}
