// Package http implements the REST API of CollegeConnect: role transition
// administration, academic year updates and chat presence.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/interface/http/handlers"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is host:port to listen on.
	Addr string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. "*" allows any origin.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// Location is used to read the optional ?date= parameter.
	Location *time.Location

	// Debug enables gin debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:               "0.0.0.0:8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       60 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		Location:           time.UTC,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Role lifecycle
	RunRoleSweepHandler        *command.RunRoleSweepHandler
	PreviewRoleSweepHandler    *query.PreviewRoleSweepHandler
	UpdateAcademicYearsHandler *command.UpdateAcademicYearsHandler

	// Presence. Both nil when presence tracking is disabled.
	TrackPresenceHandler *command.TrackPresenceHandler
	GetOnlineNowHandler  *query.GetOnlineNowHandler

	// Tokens verifies bearer tokens.
	Tokens *handlers.TokenManager

	// HealthChecker is optional.
	HealthChecker *handlers.HealthChecker

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Tokens == nil {
		return nil, errors.New("http: token manager is required")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if err := registerValidators(); err != nil {
		return nil, err
	}

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoRoute(func(c *gin.Context) {
		handlers.WriteError(c, http.StatusNotFound, "not_found", "route not found", "")
	})
	s.engine.NoMethod(func(c *gin.Context) {
		handlers.WriteError(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", "")
	})

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.engine.Use(handlers.RequestIDMiddleware())
	s.engine.Use(handlers.RecoveryMiddleware(s.logger))
	s.engine.Use(handlers.AccessLogMiddleware(s.logger))
	s.engine.Use(handlers.CORSMiddleware(s.config.AllowedOrigins))
	if s.config.RateLimitPerMinute > 0 {
		s.engine.Use(handlers.RateLimitMiddleware(handlers.NewRateLimiter(s.config.RateLimitPerMinute, time.Minute)))
	}
}

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)

	api := s.engine.Group("/api/v1", handlers.Authenticate(s.deps.Tokens))

	// ─────────────────────────────────────────────────────────────────────────
	// Role transition (administrators only)
	// ─────────────────────────────────────────────────────────────────────────
	rt := api.Group("/role-transition", handlers.RequireRole(user.RoleAdmin))
	rt.POST("/upgrade", s.handleRunRoleSweep)
	rt.GET("/preview", s.handlePreviewRoleSweep)

	// ─────────────────────────────────────────────────────────────────────────
	// Users
	// ─────────────────────────────────────────────────────────────────────────
	api.PUT("/users/:id/academic-years", s.handleUpdateAcademicYears)

	// ─────────────────────────────────────────────────────────────────────────
	// Presence
	// ─────────────────────────────────────────────────────────────────────────
	pr := api.Group("/presence", s.requirePresence)
	pr.POST("/connect", s.handlePresenceConnect)
	pr.POST("/heartbeat", s.handlePresenceHeartbeat)
	pr.POST("/disconnect", s.handlePresenceDisconnect)
	pr.GET("/online", s.handleGetOnline)
	pr.GET("/users/:id", s.handleGetPresenceStatus)
	pr.POST("/typing", s.handleStartTyping)
	pr.GET("/typing/:room", s.handleGetTyping)
}

// requirePresence answers 503 when presence tracking is switched off.
func (s *Server) requirePresence(c *gin.Context) {
	if s.deps.TrackPresenceHandler == nil || s.deps.GetOnlineNowHandler == nil {
		handlers.WriteError(c, http.StatusServiceUnavailable, "presence_disabled", "presence tracking is disabled", "")
		c.Abort()
		return
	}
	c.Next()
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
