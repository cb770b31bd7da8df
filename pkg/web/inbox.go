package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/speech"
)

// DefaultInboxCapacity bounds the pending external event buffer.
const DefaultInboxCapacity = 100

// ExternalEvent is one command received from an outside agent, held
// until the overlay polls it.
type ExternalEvent struct {
	ID        string         `json:"id"`
	Source    string         `json:"source,omitempty"`
	Command   string         `json:"command"`
	Text      string         `json:"text,omitempty"`
	Motion    string         `json:"motion,omitempty"`
	AudioURL  string         `json:"audio_url,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Interrupt bool           `json:"interrupt,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Inbox is a bounded buffer of external events pending overlay pickup.
// When full, the oldest event is discarded first.
type Inbox struct {
	mu     sync.Mutex
	events []ExternalEvent
	cap    int
}

// NewInbox creates an inbox holding at most capacity pending events.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{cap: capacity}
}

// Push stamps the event with an ID and timestamp and buffers it.
func (i *Inbox) Push(e ExternalEvent) string {
	e.ID = uuid.NewString()
	e.Timestamp = time.Now()

	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.events) >= i.cap {
		i.events = i.events[1:]
	}
	i.events = append(i.events, e)
	return e.ID
}

// Drain returns and clears all pending events.
func (i *Inbox) Drain() []ExternalEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.events
	i.events = nil
	if out == nil {
		out = []ExternalEvent{}
	}
	return out
}

// Len returns the number of pending events.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.events)
}

// ExternalEventRequest is the body of an external agent command.
type ExternalEventRequest struct {
	Command   string         `json:"command"`
	Source    string         `json:"source"`
	Text      string         `json:"text"`
	Motion    string         `json:"motion"`
	AudioURL  string         `json:"audio_url"`
	Data      map[string]any `json:"data"`
	Interrupt bool           `json:"interrupt"`
}

// handleExternalEvent accepts a command from an outside agent, applies
// its core-side effects and buffers it for the overlay.
func (s *Server) handleExternalEvent(c *fiber.Ctx) error {
	var req ExternalEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}
	if req.Command == "" {
		req.Command = "speak"
	}

	switch req.Command {
	case "speak":
		if req.Text == "" && req.AudioURL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "speak requires text or audio_url",
			})
		}
		if req.Interrupt {
			s.queue.Dismiss()
		}
		s.queue.Enqueue(speech.Request{
			Text:     req.Text,
			AudioURL: req.AudioURL,
		})
		if req.Motion != "" {
			s.machine.Dispatch(avatar.EventMotion, map[string]any{"alias": req.Motion})
		}

	case "motion":
		if req.Motion == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "motion requires a motion name",
			})
		}
		s.machine.Dispatch(avatar.EventMotion, map[string]any{"alias": req.Motion})

	case "action":
		if req.Source == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "action requires a source",
			})
		}
		// Agent-driven actions bypass cooldowns; the agent decides when.
		s.table.CheckAndTrigger(req.Source, req.Data, 0, "")

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown command: " + req.Command,
		})
	}

	id := s.inbox.Push(ExternalEvent{
		Source:    req.Source,
		Command:   req.Command,
		Text:      req.Text,
		Motion:    req.Motion,
		AudioURL:  req.AudioURL,
		Data:      req.Data,
		Interrupt: req.Interrupt,
	})
	s.logger.Info("external event accepted",
		"id", id,
		"source", req.Source,
		"command", req.Command,
	)
	return c.JSON(fiber.Map{"status": "success", "event_id": id})
}

// handleDrainExternalEvents hands all pending external events to the
// polling overlay and clears the buffer.
func (s *Server) handleDrainExternalEvents(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"events": s.inbox.Drain(),
	})
}
