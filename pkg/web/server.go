// Package web exposes the avatar core over HTTP and a websocket event
// stream for the browser overlay.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/briefing"
	"github.com/aegisdesk/go-aegis/pkg/hub"
	"github.com/aegisdesk/go-aegis/pkg/model"
	"github.com/aegisdesk/go-aegis/pkg/reaction"
	"github.com/aegisdesk/go-aegis/pkg/schedule"
	"github.com/aegisdesk/go-aegis/pkg/speech"
)

// Composer is the briefing surface the server depends on, extracted so
// tests can substitute a canned composer.
type Composer interface {
	Compose(ctx context.Context, snaps briefing.SnapshotSource) (*briefing.Briefing, error)
	ComposeWidget(ctx context.Context, source string, snaps briefing.SnapshotSource) (*briefing.Briefing, error)
}

// Deps are the collaborators the server routes calls into.
type Deps struct {
	Machine   *avatar.Machine
	Table     *reaction.Table
	Queue     *speech.Queue
	Clips     *speech.Store
	Gate      *schedule.Gatekeeper
	Scheduler *schedule.Scheduler
	Library   *model.Library
	Hub       *hub.Hub
	Desk      *Desk

	// Briefings may be nil when no API key is configured; the briefing
	// route then answers 503.
	Briefings Composer

	// Persisted config documents, saved on POST /api/config/*.
	ReactionsPath string
	SchedulerPath string

	Logger *slog.Logger
}

// Server is the overlay-facing HTTP server.
type Server struct {
	app  *fiber.App
	port string

	machine   *avatar.Machine
	table     *reaction.Table
	queue     *speech.Queue
	clips     *speech.Store
	gate      *schedule.Gatekeeper
	sched     *schedule.Scheduler
	library   *model.Library
	hub       *hub.Hub
	desk      *Desk
	briefings Composer
	inbox     *Inbox

	reactionsPath string
	schedulerPath string

	started time.Time
	logger  *slog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(port string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "web")
	}

	s := &Server{
		port:          port,
		machine:       deps.Machine,
		table:         deps.Table,
		queue:         deps.Queue,
		clips:         deps.Clips,
		gate:          deps.Gate,
		sched:         deps.Scheduler,
		library:       deps.Library,
		hub:           deps.Hub,
		desk:          deps.Desk,
		briefings:     deps.Briefings,
		inbox:         NewInbox(DefaultInboxCapacity),
		reactionsPath: deps.ReactionsPath,
		schedulerPath: deps.SchedulerPath,
		started:       time.Now(),
		logger:        logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Aegis Desk",
		DisableStartupMessage: true,
	})

	// CORS for the overlay during local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	api.Post("/avatar/event", s.handleAvatarEvent)
	api.Get("/avatar/pose", s.handleAvatarPose)

	api.Post("/reaction/trigger", s.handleReactionTrigger)

	api.Post("/speak", s.handleSpeak)
	api.Post("/speech/dismiss", s.handleSpeechDismiss)

	api.Get("/gatekeeper/:category", s.handleGatekeeper)

	api.Get("/config/reactions", s.handleGetReactions)
	api.Post("/config/reactions", s.handleSaveReactions)
	api.Get("/config/scheduler", s.handleGetScheduler)
	api.Post("/config/scheduler", s.handleSaveScheduler)

	api.Get("/models", s.handleListModels)
	api.Get("/models/:name", s.handleGetModel)
	api.Post("/models/:name/activate", s.handleActivateModel)

	api.Post("/briefing/:kind", s.handleBriefing)

	external := app.Group("/api/v1/external")
	external.Post("/events", s.handleExternalEvent)
	external.Get("/events", s.handleDrainExternalEvents)

	app.Get("/audio/:id", s.handleAudio)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/avatar", websocket.New(s.handleAvatarWS))

	s.app = app
	return s
}

// Start runs the overlay hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("overlay server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Inbox exposes the external command inbox, mainly for tests.
func (s *Server) Inbox() *Inbox {
	return s.inbox
}

func (s *Server) handleAvatarWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c).Run()
}
