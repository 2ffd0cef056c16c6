// Package rest provides the HTTP API for the bulletin processing engine:
// workflow submission and control, pipeline operations, and the
// WebSocket event stream.
package rest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/internal/index"
	"github.com/germanevangelisti/watcher-sub003/internal/orchestrator"
	"github.com/germanevangelisti/watcher-sub003/internal/pipeline"
	"github.com/germanevangelisti/watcher-sub003/internal/progress"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Config holds the server configuration.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool `yaml:"enable_cors"`

	// EnableWebSocket enables the /ws event stream.
	EnableWebSocket bool `yaml:"enable_websocket"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		EnableCORS:      true,
		EnableWebSocket: true,
	}
}

// Server is the REST API server.
type Server struct {
	app      *fiber.App
	config   *Config
	orch     *orchestrator.Orchestrator
	runner   *pipeline.Runner
	tracker  *pipeline.Tracker
	sessions *pipeline.SessionManager
	progress *progress.Aggregator
	store    *index.Store
	bus      *bus.Bus
}

// NewServer wires the API over the engine components. store may be nil
// when indexing is disabled; the search endpoint then reports 404.
func NewServer(
	orch *orchestrator.Orchestrator,
	runner *pipeline.Runner,
	tracker *pipeline.Tracker,
	sessions *pipeline.SessionManager,
	prog *progress.Aggregator,
	store *index.Store,
	b *bus.Bus,
	config *Config,
) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorHandler: customErrorHandler,
		AppName:      "Bulletin Watcher API",
	})

	server := &Server{
		app:      app,
		config:   config,
		orch:     orch,
		runner:   runner,
		tracker:  tracker,
		sessions: sessions,
		progress: prog,
		store:    store,
		bus:      b,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     "*",
			AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Confirm-Reset",
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/ready", s.readyCheck)

	api := s.app.Group("/api/v1")

	api.Get("/health", s.healthCheck)
	api.Get("/ready", s.readyCheck)

	// Workflow routes
	api.Post("/workflows", s.submitWorkflow)
	api.Get("/workflows", s.listWorkflows)
	api.Get("/workflows/:id", s.getWorkflow)
	api.Post("/workflows/:id/execute", s.executeWorkflow)
	api.Delete("/workflows/:id", s.cancelWorkflow)
	api.Post("/workflows/:id/cancel", s.cancelWorkflow)
	api.Get("/workflows/:id/progress", s.getWorkflowProgress)

	// Approval routes
	api.Get("/workflows/:id/tasks/awaiting-approval", s.listAwaitingApproval)
	api.Post("/workflows/:id/tasks/:taskId/approve", s.approveTask)
	api.Post("/workflows/:id/tasks/:taskId/reject", s.rejectTask)

	// Pipeline routes
	api.Get("/pipeline/status", s.pipelineStatus)
	api.Get("/pipeline/documents", s.listDocuments)
	api.Get("/pipeline/documents/:id", s.getDocument)
	api.Post("/pipeline/process/:id", s.processDocument)
	api.Post("/pipeline/process-all", s.processAll)
	api.Post("/pipeline/session/cancel", s.cancelSession)
	api.Post("/pipeline/reset", s.resetPipeline)
	api.Post("/pipeline/reset/:id", s.resetDocument)
	api.Get("/pipeline/search", s.searchIndex)

	if s.config.EnableWebSocket {
		s.setupWebSocketRoutes()
	}
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext starts the server and shuts it down when ctx ends.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}

// errorJSON maps coded engine errors to HTTP statuses and renders the
// standard error body.
func errorJSON(c *fiber.Ctx, err error) error {
	code := types.CodeOf(err)

	status := fiber.StatusInternalServerError
	switch code {
	case types.ErrCodeNotFound:
		status = fiber.StatusNotFound
	case types.ErrCodeInvalidWorkflow, types.ErrCodeConfig:
		status = fiber.StatusBadRequest
	case types.ErrCodeAlreadyRunning, types.ErrCodeInvalidState,
		types.ErrCodeSessionInUse, types.ErrCodeOutOfOrderStage:
		status = fiber.StatusConflict
	case types.ErrCodeRateLimited:
		status = fiber.StatusTooManyRequests
	case types.ErrCodeTimeout:
		status = fiber.StatusGatewayTimeout
	}

	label := "internal_error"
	if code != "" {
		label = strings.ToLower(string(code))
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   label,
		Code:    string(code),
		Message: err.Error(),
	})
}
