package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/access"
	"vehicle-lookup-api/internal/audit"
	"vehicle-lookup-api/internal/cache"
	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/events"
	"vehicle-lookup-api/internal/logging"
	"vehicle-lookup-api/internal/lookup"
	"vehicle-lookup-api/internal/metrics"
	"vehicle-lookup-api/internal/ratelimit"
)

// Lookup runs an authorized registry lookup
type Lookup interface {
	Lookup(ctx context.Context, req access.Request) (*lookup.Response, error)
}

// PaymentStore is the store subset the handlers read from
type PaymentStore interface {
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*database.Payment, error)
	Ping(ctx context.Context) error
}

// Recorder queues audit entries
type Recorder interface {
	Record(e audit.Entry)
}

// CacheStatus reports on the shared rate counter backend
type CacheStatus interface {
	Ping(ctx context.Context) error
	GetStats() cache.Stats
}

// Deps are the collaborators the server routes to. Limiter, Cache and Bus
// may be nil.
type Deps struct {
	Lookup   Lookup
	Store    PaymentStore
	Recorder Recorder
	Limiter  ratelimit.Limiter
	Cache    CacheStatus
	Bus      *events.EventBus
	Logger   zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	lookup     Lookup
	store      PaymentStore
	recorder   Recorder
	cache      CacheStatus
	eventBus   *events.EventBus
	logger     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// any origin may read, nothing here uses cookies
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	router.Use(logging.GinMiddleware(deps.Logger))
	router.Use(metrics.GinMiddleware())
	if deps.Limiter != nil {
		router.Use(ratelimit.Middleware(deps.Limiter, deps.Logger, "/health", "/metrics"))
	}

	s := &Server{
		router:   router,
		config:   cfg,
		lookup:   deps.Lookup,
		store:    deps.Store,
		recorder: deps.Recorder,
		cache:    deps.Cache,
		eventBus: deps.Bus,
		logger:   deps.Logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/reg", s.handleLookup)
		api.GET("/paymentfind/:id", s.handleFindPayment)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := s.config.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth reports store reachability. The cache is reported but never
// fails the check: the limiter falls back to local counters without it.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":   "healthy",
		"database": "healthy",
		"version":  config.Version,
	}
	if s.cache != nil {
		state := "healthy"
		if err := s.cache.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Cache ping failed")
			state = "unhealthy"
		}
		body["cache"] = gin.H{"status": state, "stats": s.cache.GetStats()}
	}

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		body["status"] = "unhealthy"
		body["database"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}
