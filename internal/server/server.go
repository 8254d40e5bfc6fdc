package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/auth"
	"taskhub/internal/events"
	"taskhub/internal/filter"
	"taskhub/internal/lifecycle"
)

// Options tunes the HTTP surface.
type Options struct {
	StaticDir   string
	CORSOrigins []string
	// Debounce is the search delay of live views.
	Debounce time.Duration
}

// Server provides the task API, the live view stream and the front end.
type Server struct {
	engine    *gin.Engine
	ctrl      *lifecycle.Controller
	bus       *events.Bus
	signer    *auth.Signer
	views     *registry
	logger    *slog.Logger
	staticDir string
	debounce  time.Duration
}

// New constructs the HTTP server with routes and middleware configured.
func New(ctrl *lifecycle.Controller, bus *events.Bus, signer *auth.Signer, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = filter.DefaultDebounce
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(opts.CORSOrigins))

	srv := &Server{
		engine:    router,
		ctrl:      ctrl,
		bus:       bus,
		signer:    signer,
		views:     newRegistry(),
		logger:    logger,
		staticDir: opts.StaticDir,
		debounce:  opts.Debounce,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Close ends every live view stream so an HTTP shutdown is not held open
// by SSE clients.
func (s *Server) Close() {
	n := s.views.closeAll()
	if n > 0 {
		s.logger.Info("closed live views", slog.Int("count", n))
	}
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		tasks := api.Group("/tasks", s.requireActor())
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.GET(":id", s.handleGetTask)
			tasks.PUT(":id", s.handleEditTask)
			tasks.POST(":id/toggle", s.handleToggleTask)
			tasks.DELETE(":id", s.handleSoftDeleteTask)
			tasks.POST(":id/restore", s.handleRestoreTask)
			tasks.DELETE(":id/purge", s.handlePurgeTask)
		}

		views := api.Group("/views", s.requireActor())
		{
			views.GET("/watch", s.handleWatch)
			views.PUT(":id/query", s.handleViewQuery)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "live_views": s.views.len()})
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	attrs := []any{
		slog.String("path", c.FullPath()),
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Warn("request rejected", attrs...)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// respondSuccess writes payload, or just the status when there is none.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
