// Package http exposes the approval workflow over a JSON API.
// Handlers translate requests into application service calls and map
// domain error categories onto status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/service"
	"github.com/garyjia/contract-approval/internal/application/workflow"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// RequestMetrics records served requests by route template
type RequestMetrics interface {
	RecordHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// HealthFunc reports readiness plus a component breakdown for /health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// Dependencies are the collaborators the API is served from.
// Metrics, MetricsHandler and Health are optional.
type Dependencies struct {
	Engine         workflow.Engine
	Assignment     service.AssignmentService
	Notification   service.NotificationService
	Audit          service.AuditService
	Stats          service.StatsService
	Auth           *Authenticator
	Metrics        RequestMetrics
	MetricsHandler http.Handler
	Health         HealthFunc
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Engine == nil {
		errs = append(errs, errors.New("engine is required"))
	}
	if d.Assignment == nil {
		errs = append(errs, errors.New("assignment service is required"))
	}
	if d.Notification == nil {
		errs = append(errs, errors.New("notification service is required"))
	}
	if d.Audit == nil {
		errs = append(errs, errors.New("audit service is required"))
	}
	if d.Stats == nil {
		errs = append(errs, errors.New("stats service is required"))
	}
	if d.Auth == nil {
		errs = append(errs, errors.New("authenticator is required"))
	}
	return errors.Join(errs...)
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer builds the router. Call Start to listen.
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid server dependencies: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(s.recoveryHandler))
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	if s.deps.Metrics != nil {
		s.router.Use(metricsMiddleware(s.deps.Metrics))
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	api := s.router.Group("/api", s.deps.Auth.Middleware())
	{
		api.POST("/templates", h.CreateTemplate)
		api.GET("/templates", h.ListTemplates)
		api.GET("/templates/:id", h.GetTemplate)

		api.POST("/subjects", h.RegisterSubject)
		api.GET("/subjects/:id", h.GetSubject)
		api.POST("/subjects/:id/workflow", h.AssignWorkflow)
		api.POST("/subjects/:id/stages/:stageId/approve", h.ApproveStage)
		api.POST("/subjects/:id/stages/:stageId/reject", h.RejectStage)
		api.POST("/subjects/:id/resubmit", h.Resubmit)
		api.GET("/subjects/:id/history", h.History)

		api.GET("/stats", h.Stats)
		api.GET("/stats/export", h.ExportStats)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}

func (s *Server) recoveryHandler(c *gin.Context, recovered interface{}) {
	s.logger.Error("Panic while serving request",
		zap.Any("panic", recovered),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(requestIDKey)))
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   "internal server error",
	})
}

// Start listens until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
