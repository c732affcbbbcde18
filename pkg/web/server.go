// Package web serves the voiceform HTTP API: rooms and RTC signalling, the
// operator event feed, saved orders and check-ins, and manual tool triggers
// for running sessions.
package web

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/hub"
	"github.com/teslashibe/go-voiceform/pkg/journal"
	"github.com/teslashibe/go-voiceform/pkg/room"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/worker"
)

// Deps are the components the server exposes. Nil components disable their
// routes.
type Deps struct {
	// Agent is the definition sessions run; its tools are listed at /api/tools.
	Agent agent.Definition

	Rooms    *room.Manager
	Hub      *hub.Hub
	Worker   *worker.Worker
	Sessions *worker.Sessions
	Orders   *store.OrderStore
	CheckIns *store.CheckInLog
	Journal  *journal.Journal

	// StaticDir is served at / when it exists.
	StaticDir string

	Logger *slog.Logger
}

// Server is the HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	deps    Deps
	logger  *slog.Logger
	started time.Time
}

// NewServer creates the server and registers every route.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		deps:    deps,
		logger:  deps.Logger.With("component", "web"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voiceform",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/tools", s.handleListTools)
	api.Get("/orders", s.handleListOrders)
	api.Get("/checkins", s.handleListCheckIns)
	api.Get("/checkins/latest", s.handleLatestCheckIn)
	api.Get("/jobs", s.handleListJobs)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:room", s.handleGetSession)
	api.Post("/sessions/:room/tools/:name", s.handleTriggerTool)

	if deps.Rooms != nil {
		deps.Rooms.RegisterRoutes(app)
		deps.Rooms.RegisterAPIRoutes(api)
	}
	if deps.Hub != nil {
		deps.Hub.RegisterRoutes(app)
	}
	if deps.Journal != nil {
		deps.Journal.RegisterRoutes(api)
	}

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			app.Static("/", deps.StaticDir)
		}
	}

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
