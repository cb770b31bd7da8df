package web

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aegisdesk/go-aegis/pkg/schedule"
	"github.com/aegisdesk/go-aegis/pkg/speech"
)

// handleStatus reports the service's live state for the overlay debug
// panel.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	activeModel, _ := s.library.Active()
	return c.JSON(fiber.Map{
		"flags":          s.machine.Flags(),
		"speaking":       s.queue.Speaking(),
		"pending_speech": s.queue.Pending(),
		"clients":        s.hub.ClientCount(),
		"active_model":   activeModel,
		"uptime_sec":     int(time.Since(s.started).Seconds()),
	})
}

// AvatarEventRequest is one discrete event for the state machine.
type AvatarEventRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// handleAvatarEvent feeds a discrete event into the state machine and
// returns the resulting flag snapshot.
func (s *Server) handleAvatarEvent(c *fiber.Ctx) error {
	var req AvatarEventRequest
	if err := c.BodyParser(&req); err != nil || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event type required",
		})
	}

	s.machine.Dispatch(req.Type, req.Payload)
	return c.JSON(fiber.Map{"flags": s.machine.Flags()})
}

// handleAvatarPose samples the pose for the current flags at the
// server's elapsed clock. The renderer polls this every frame when the
// websocket stream is unavailable.
func (s *Server) handleAvatarPose(c *fiber.Ctx) error {
	t := time.Since(s.started).Seconds()
	return c.JSON(fiber.Map{
		"t":     t,
		"pose":  s.machine.Sample(t),
		"flags": s.machine.Flags(),
	})
}

// ReactionTriggerRequest carries fresh widget data for rule evaluation.
type ReactionTriggerRequest struct {
	Source     string         `json:"source"`
	Data       map[string]any `json:"data"`
	CooldownMs int            `json:"cooldown_ms"`
	SubKey     string         `json:"sub_key"`
}

// handleReactionTrigger runs one widget's data through the reaction
// table.
func (s *Server) handleReactionTrigger(c *fiber.Ctx) error {
	var req ReactionTriggerRequest
	if err := c.BodyParser(&req); err != nil || req.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source required",
		})
	}

	cooldown := time.Duration(req.CooldownMs) * time.Millisecond
	fired := s.table.CheckAndTrigger(req.Source, req.Data, cooldown, req.SubKey)
	return c.JSON(fiber.Map{"fired": fired})
}

// SpeakRequest is one utterance for the speech queue.
type SpeakRequest struct {
	Text       string `json:"text"`
	SpeechText string `json:"speech_text"`
	AudioURL   string `json:"audio_url"`
	VisualType string `json:"visual_type"`
}

// handleSpeak enqueues an utterance. A full queue drops it and says so.
func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text required",
		})
	}

	id := s.queue.Enqueue(speech.Request{
		Text:       req.Text,
		SpeechText: req.SpeechText,
		AudioURL:   req.AudioURL,
		VisualType: req.VisualType,
	})
	if id == "" {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"queued": false,
		})
	}
	return c.JSON(fiber.Map{"queued": true, "id": id})
}

// handleSpeechDismiss cancels the in-flight utterance.
func (s *Server) handleSpeechDismiss(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"dismissed": s.queue.Dismiss()})
}

// handleGatekeeper answers whether a notification category may fire
// right now.
func (s *Server) handleGatekeeper(c *fiber.Ctx) error {
	category := c.Params("category")
	return c.JSON(fiber.Map{
		"category": category,
		"allowed":  s.gate.IsAllowed(category),
	})
}

// handleGetReactions serves the persisted reaction rules document.
func (s *Server) handleGetReactions(c *fiber.Ctx) error {
	return s.serveDocument(c, s.reactionsPath)
}

// handleSaveReactions validates, installs and persists a new reaction
// rules document. A structurally broken document leaves the running
// table and the file untouched.
func (s *Server) handleSaveReactions(c *fiber.Ctx) error {
	body := c.Body()
	if err := s.table.Load(bytes.NewReader(body)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := saveDocument(s.reactionsPath, body); err != nil {
		s.logger.Error("reaction rules not persisted", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "persist failed",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleGetScheduler serves the persisted scheduler document.
func (s *Server) handleGetScheduler(c *fiber.Ctx) error {
	return s.serveDocument(c, s.schedulerPath)
}

// handleSaveScheduler validates, installs and persists a new scheduler
// document. Gatekeeper rules and routines swap atomically.
func (s *Server) handleSaveScheduler(c *fiber.Ctx) error {
	body := c.Body()
	cfg, err := schedule.ParseConfig(bytes.NewReader(body))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.gate.SetRules(cfg.Gatekeeper)
	s.sched.SetRoutines(cfg.Routines)

	if err := saveDocument(s.schedulerPath, body); err != nil {
		s.logger.Error("scheduler config not persisted", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "persist failed",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleListModels lists model directories and the active one.
func (s *Server) handleListModels(c *fiber.Ctx) error {
	active, _ := s.library.Active()
	return c.JSON(fiber.Map{
		"models": s.library.List(),
		"active": active,
	})
}

// handleGetModel serves one model's asset inventory and alias maps.
func (s *Server) handleGetModel(c *fiber.Ctx) error {
	return c.JSON(s.library.Load(c.Params("name")))
}

// handleActivateModel switches the active model and tells overlays to
// re-rig.
func (s *Server) handleActivateModel(c *fiber.Ctx) error {
	name := c.Params("name")
	assets := s.library.Activate(name)
	s.hub.Emit(EventModelSet, map[string]any{"model": name})
	return c.JSON(assets)
}

// BriefingRequest narrows a widget briefing to one source.
type BriefingRequest struct {
	Source string `json:"source"`
}

// handleBriefing starts a briefing run. Composition and speech happen
// asynchronously; the route only confirms the kick-off.
func (s *Server) handleBriefing(c *fiber.Ctx) error {
	if s.briefings == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "briefing composer not configured",
		})
	}
	if !s.gate.IsAllowed("briefing") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "briefings are gated off right now",
		})
	}

	switch kind := c.Params("kind"); kind {
	case "tactical":
		s.desk.TriggerBriefing()
	case "widget":
		var req BriefingRequest
		if err := c.BodyParser(&req); err != nil || req.Source == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "source required",
			})
		}
		s.desk.TriggerWidgetBriefing(req.Source)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown briefing kind: " + kind,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// handleAudio serves a synthesized clip for the overlay's audio element.
func (s *Server) handleAudio(c *fiber.Ctx) error {
	clip, ok := s.clips.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "clip not found",
		})
	}
	c.Set(fiber.HeaderContentType, clip.MIME)
	return c.Send(clip.Audio)
}

// serveDocument streams a persisted JSON document as-is.
func (s *Server) serveDocument(c *fiber.Ctx, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no document at " + filepath.Base(path),
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// saveDocument writes a config document atomically so a crash mid-save
// cannot leave a truncated file.
func saveDocument(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
