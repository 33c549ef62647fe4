package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/metrics"
	"github.com/cbc-analysis-server/internal/middleware"
	"github.com/cbc-analysis-server/internal/service"
)

// Analyzer is the pipeline the handlers drive.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string, layout domain.Layout) (*service.Analysis, error)
	AnalyzeRecord(ctx context.Context, rec domain.FeatureRecord) (*service.Analysis, error)
}

// HealthCheck probes one dependency for /health.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	analyzer      Analyzer
	documents     domain.DocumentTextSource
	checks        map[string]HealthCheck
	metrics       *metrics.Recorder
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithHealthCheck registers a named dependency probe reported by /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithMetrics records request and prediction metrics and serves them on /metrics.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = recorder
	}
}

// NewServer creates a new HTTP server instance
func NewServer(
	configManager domain.ConfigManager,
	analyzer Analyzer,
	documents domain.DocumentTextSource,
	logger *logrus.Logger,
	opts ...Option,
) *Server {
	cfg := configManager.GetConfig()

	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	server := &Server{
		configManager: configManager,
		analyzer:      analyzer,
		documents:     documents,
		checks:        make(map[string]HealthCheck),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	// Uploads stay in memory up to the body limit.
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	router.Use(middleware.CorrelationID())
	router.Use(server.metrics.Middleware())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposeHeaders: []string{"X-Correlation-ID"},
		MaxAge:        12 * time.Hour,
	}))

	server.router = router
	server.setupRoutes()

	return server
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	cfg := s.configManager.GetServerConfig()

	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	analysis := []gin.HandlerFunc{
		middleware.LimitBodySize(cfg.MaxUploadBytes),
	}
	if cfg.RequestTimeout > 0 {
		analysis = append(analysis, middleware.RequestTimeout(cfg.RequestTimeout))
	}

	root := s.router.Group("/", analysis...)
	{
		root.POST("/predict", s.handlePredict)
		root.POST("/predict_manual", s.handlePredictManual)
	}

	v1 := s.router.Group("/api/v1", analysis...)
	{
		v1.POST("/predict", s.handlePredict)
		v1.POST("/predict_manual", s.handlePredictManual)
	}
}

// handleHealth reports liveness plus the state of registered dependencies.
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = fmt.Sprintf("unhealthy: %v", err)
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"timestamp":    time.Now().UTC(),
		"version":      s.configManager.GetConfig().MCP.ServerVersion,
		"dependencies": deps,
	})
}
