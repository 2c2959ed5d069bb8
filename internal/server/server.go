// Package server exposes the engine over REST and the user-stats WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unbreakk1/Questify/internal/antispam"
	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/auth"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/engine"
	"github.com/unbreakk1/Questify/internal/logger"
	"github.com/unbreakk1/Questify/internal/namefilter"
	"github.com/unbreakk1/Questify/internal/notify"
)

type Server struct {
	cfg          *config.ServerConfig
	db           *database.Database
	engine       *engine.Engine
	tokens       *auth.TokenManager
	hub          *notify.Hub
	nameFilter   *namefilter.NameFilter
	connLimiter  *ConnLimiter
	loginGuard   *LoginGuard
	actions      *antispam.Limiter
	stopSweep    chan struct{}
	router       *gin.Engine
	httpServer   *http.Server
	StartTime    time.Time
	shutdownOnce sync.Once
}

// NewServer wires the HTTP surface. The hub must be the engine's notifier
// for pushes to reach WebSocket subscribers.
func NewServer(cfg *config.ServerConfig, db *database.Database, eng *engine.Engine, tokens *auth.TokenManager, hub *notify.Hub) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	throttle := antispam.ConfigFromYAML(cfg.Antispam.Enabled, cfg.Antispam.MaxActions, cfg.Antispam.TimeWindowSeconds)
	s := &Server{
		cfg:         cfg,
		db:          db,
		engine:      eng,
		tokens:      tokens,
		hub:         hub,
		nameFilter:  namefilter.New(nil),
		connLimiter: NewConnLimiter(cfg.Connections),
		loginGuard:  NewLoginGuard(cfg.RateLimit),
		actions:     antispam.NewLimiter(throttle),
		stopSweep:   make(chan struct{}),
		StartTime:   time.Now(),
	}
	s.router = s.routes()
	return s
}

// SetNameFilter sets the filter applied to usernames at registration.
func (s *Server) SetNameFilter(nf *namefilter.NameFilter) {
	s.nameFilter = nf
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), s.cors())

	r.GET("/health", s.handleHealth)

	authRoutes := r.Group("/auth")
	authRoutes.POST("/register", s.handleRegister)
	authRoutes.POST("/login", s.handleLogin)

	api := r.Group("/api", s.requireAuth(false), s.throttle())
	api.GET("/users/me", s.handleMe)

	bossRoutes := api.Group("/boss")
	bossRoutes.GET("/active", s.handleActiveBoss)
	bossRoutes.GET("/selection", s.handleSelection)
	bossRoutes.POST("/select/:bossId", s.handleSelectBoss)
	bossRoutes.PUT("/attack", s.handleAttack)
	bossRoutes.GET("/history", s.handleDefeatHistory)

	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
	api.PUT("/tasks/:id/complete", s.handleCompleteTask)

	api.GET("/habits", s.handleListHabits)
	api.POST("/habits", s.handleCreateHabit)
	api.DELETE("/habits/:id", s.handleDeleteHabit)
	api.PUT("/habits/:id/complete", s.handleCompleteHabit)
	api.PUT("/habits/:id/reset", s.handleResetHabit)

	r.GET("/ws/user-stats", s.requireAuth(true), s.handleUserStatsSocket)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "no such route"}})
	})
	return r
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	httpCfg := s.cfg.HTTP
	s.httpServer = &http.Server{
		Addr:         httpCfg.Address,
		Handler:      s.router,
		ReadTimeout:  time.Duration(httpCfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(httpCfg.WriteTimeoutSeconds) * time.Second,
	}

	go s.sweepLoop()

	logger.Info("Server listening", "address", httpCfg.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, disconnects push subscribers and waits
// for in-flight requests until ctx expires. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.loginGuard.Stop()
		close(s.stopSweep)
		s.hub.CloseAll()
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		logger.Info("Server shutdown complete")
	})
	return err
}

// sweepLoop periodically forgets idle users in the action throttle.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.actions.Sweep()
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	conns := s.connLimiter.Stats()
	delivered, dropped := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int(time.Since(s.StartTime).Seconds()),
		"bosses":        s.engine.Catalog().Count(),
		"pushConns":     conns.Total,
		"pushDelivered": delivered,
		"pushDropped":   dropped,
	})
}

// writeError renders err as {"error": {"code", "message"}} with the status
// mapped from its code. Errors without a code are logged and reported as
// INTERNAL.
func writeError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(apperrors.CodeInternal, "internal error", err)
	}
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"code", string(appErr.Code),
			"error", err)
	}

	body := gin.H{"code": appErr.Code, "message": appErr.Message}
	if len(appErr.Metadata) > 0 {
		body["metadata"] = appErr.Metadata
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// bindJSON decodes the request body, reporting malformed input as
// VALIDATION_FAILED.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err))
		return false
	}
	return true
}
