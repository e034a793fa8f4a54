// Package http exposes the academy over a JSON REST API: the public catalog,
// early access and onboarding preview, the learner's own progress, the
// leaderboard and a server-sent progress stream.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/application/query"
	"github.com/vibecoding/vibe-academy/internal/application/saga"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/interface/http/handlers"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	// AllowedOrigins for CORS; empty or "*" allows any origin.
	AllowedOrigins []string

	// RateLimitPerMinute per client IP, 0 disables.
	RateLimitPerMinute int

	// AdminToken guards /api/v1/admin; empty disables those routes.
	AdminToken string

	// StreamHeartbeat is the comment interval on the progress stream.
	StreamHeartbeat time.Duration

	// Mode is gin's mode: debug, release or test.
	Mode string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		StreamHeartbeat:    15 * time.Second,
		Mode:               gin.ReleaseMode,
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStream is the live per-user progress source behind the SSE route.
type ProgressStream interface {
	Current(ctx context.Context, userID string) (profile.Progress, error)
	Subscribe(userID string) (<-chan profile.Progress, func())
}

// Dependencies contains everything the handlers call into.
type Dependencies struct {
	Catalog *course.Catalog

	// Commands
	JoinEarlyAccess    *command.JoinEarlyAccessHandler
	CompleteOnboarding *command.CompleteOnboardingHandler
	UpdateDisplayName  *command.UpdateDisplayNameHandler
	DeleteAccount      *command.DeleteAccountHandler
	ReconcileCoins     *command.ReconcileCoinsHandler
	ToggleChapter      *saga.ChapterToggleSaga

	// Queries
	RecommendModules  *query.RecommendModulesHandler
	Leaderboard       *query.LeaderboardBoard
	GetProgress       *query.GetProgressHandler
	GetDashboard      *query.GetDashboardHandler
	GetModuleProgress *query.GetModuleProgressHandler

	Progress ProgressStream

	// StreamEnabled gates the progress stream per user; nil means on.
	StreamEnabled func(userID string) bool

	Auth   *handlers.Authenticator
	Health *handlers.HealthChecker
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
	limiter    *handlers.RateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time

	// streams is closed on Shutdown so open SSE handlers return.
	streams     chan struct{}
	streamsOnce sync.Once
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Catalog == nil {
		return nil, errors.New("http: catalog is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("http: authenticator is required")
	}

	defaults := DefaultConfig()
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.StreamHeartbeat <= 0 {
		config.StreamHeartbeat = defaults.StreamHeartbeat
	}
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}

	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthChecker("")
	}

	gin.SetMode(config.Mode)

	s := &Server{
		config:  config,
		deps:    deps,
		engine:  gin.New(),
		logger:  log.With(logger.Component("http")),
		streams: make(chan struct{}),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = handlers.NewRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the router (tests, embedding).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.APIError{Code: handlers.CodeNotFound, Message: "route not found"})
	})
	s.engine.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.APIError{Code: handlers.CodeBadRequest, Message: "method not allowed"})
	})

	s.engine.Use(
		handlers.RequestIDMiddleware(s.logger),
		handlers.LoggingMiddleware("/health", "/ready"),
		handlers.RecoveryMiddleware(),
		handlers.SecurityHeadersMiddleware(),
		handlers.CORSMiddleware(s.config.AllowedOrigins),
		handlers.BodyLimitMiddleware(s.config.MaxBodyBytes),
	)
	if s.limiter != nil {
		s.engine.Use(s.limiter.Middleware())
	}
}

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.deps.Health.Liveness)
	s.engine.GET("/ready", s.deps.Health.Readiness)

	api := s.engine.Group("/api/v1")

	// ─────────────────────────────────────────────────────────────────────────
	// Public
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/catalog", s.handleListModules)
	api.GET("/catalog/:moduleId", s.handleGetModule)
	api.GET("/catalog/:moduleId/chapters/:chapterId", s.handleGetChapter)
	api.POST("/early-access", s.handleJoinEarlyAccess)
	api.POST("/recommendations", s.handleRecommend)
	api.GET("/leaderboard", s.handleListTopUsers)
	api.POST("/leaderboard/refresh", s.handleRefreshLeaderboard)

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated
	// ─────────────────────────────────────────────────────────────────────────
	me := api.Group("/me", s.deps.Auth.RequireUser(), handlers.NoCacheMiddleware())
	me.POST("/onboarding", s.handleCompleteOnboarding)
	me.GET("/progress", s.handleGetProgress)
	me.GET("/progress/stream", s.handleProgressStream)
	me.GET("/dashboard", s.handleGetDashboard)
	me.GET("/modules/:moduleId", s.handleGetModuleProgress)
	me.POST("/modules/:moduleId/chapters/:chapterId/toggle", s.handleToggleChapter)
	me.PATCH("/profile", s.handleUpdateProfile)
	me.DELETE("", s.handleDeleteAccount)

	// ─────────────────────────────────────────────────────────────────────────
	// Admin
	// ─────────────────────────────────────────────────────────────────────────
	admin := api.Group("/admin", handlers.RequireAdmin(s.config.AdminToken))
	admin.POST("/reconcile", s.handleReconcileAll)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("http: server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.limiter != nil {
		go s.cleanupLimiter(ctx)
	}

	s.logger.Info("http server listening", logger.String("addr", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes open streams and waits for
// in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.streamsOnce.Do(func() { close(s.streams) })
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

func (s *Server) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.streams:
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}
