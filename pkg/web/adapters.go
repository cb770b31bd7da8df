package web

import (
	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/hub"
)

// Overlay event types emitted on the websocket stream, beyond the
// avatar event vocabulary itself.
const (
	EventExpression  = "EXPRESSION"
	EventCaptionShow = "CAPTION_SHOW"
	EventCaptionHide = "CAPTION_HIDE"
	EventReload      = "RELOAD"
	EventMusicVolume = "MUSIC_VOLUME"
	EventWallpaper   = "WALLPAPER_SET"
	EventModelSet    = "MODEL_SET"
)

// AvatarSink forwards resolved avatar effects onto the overlay stream.
// It satisfies avatar.EventSink.
type AvatarSink struct {
	Hub *hub.Hub
}

func (s AvatarSink) PlayMotion(file string) {
	s.Hub.Emit(avatar.EventMotion, map[string]any{"file": file})
}

func (s AvatarSink) PlayExpression(file string) {
	s.Hub.Emit(EventExpression, map[string]any{"file": file})
}

func (s AvatarSink) EmitEvent(name string, payload map[string]any) {
	s.Hub.Emit(name, payload)
}

// CaptionSink broadcasts caption lifecycle events for the speech queue.
// It satisfies speech.CaptionSink.
type CaptionSink struct {
	Hub *hub.Hub
}

func (s CaptionSink) ShowCaption(id, text, visualType string) {
	s.Hub.Emit(EventCaptionShow, map[string]any{
		"id":         id,
		"text":       text,
		"visualType": visualType,
	})
}

func (s CaptionSink) HideCaption(id string) {
	s.Hub.Emit(EventCaptionHide, map[string]any{"id": id})
}
