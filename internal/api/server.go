package api

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/auth"
	"github.com/fluxbase-eu/tabulate/internal/builder"
	"github.com/fluxbase-eu/tabulate/internal/config"
	"github.com/fluxbase-eu/tabulate/internal/database"
	"github.com/fluxbase-eu/tabulate/internal/middleware"
	"github.com/fluxbase-eu/tabulate/internal/observability"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/resource"
	"github.com/fluxbase-eu/tabulate/internal/scope"
	"github.com/fluxbase-eu/tabulate/internal/tabulate"
)

// Store runs compiled scopes against the database.
type Store interface {
	Count(ctx context.Context, s scope.Scope) (int, error)
	Select(ctx context.Context, s scope.Scope) ([]database.Row, error)
	Health(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	state     atomic.Pointer[catalogState]
	store     Store
	metrics   *observability.Metrics
	verifier  *auth.Verifier
	limiter   fiber.Storage
	startTime time.Time
}

// catalogState is swapped as a whole so a request never sees a catalogue
// with another catalogue's pipelines.
type catalogState struct {
	catalog   *resource.Catalog
	pipelines map[string]*tabulate.Pipeline
}

// ServerOption customizes a Server
type ServerOption func(*Server)

// WithRateLimitStorage shares listing rate limit counters through storage.
func WithRateLimitStorage(storage fiber.Storage) ServerOption {
	return func(s *Server) {
		s.limiter = storage
	}
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg *config.Config, catalog *resource.Catalog, store Store, metrics *observability.Metrics, opts ...ServerOption) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Tabulate",
		AppName:               "Tabulate " + observability.Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	server := &Server{
		app:       app,
		config:    cfg,
		store:     store,
		metrics:   metrics,
		startTime: time.Now(),
	}
	if cfg.Auth.Enabled {
		server.verifier = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Reload(catalog)

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

// buildPipelines binds every catalogue resource to the store once. Pipelines
// hold no request state, so handlers share them.
func buildPipelines(cfg *config.Config, catalog *resource.Catalog, store Store, metrics *observability.Metrics) map[string]*tabulate.Pipeline {
	var filterOpts []builder.Option
	if cfg.Filter.LegacyGreaterThan {
		filterOpts = append(filterOpts, builder.WithLegacyGreaterThan())
	}
	filterer := builder.NewFilterer(filterOpts...)
	counter := pagination.CounterFunc(store.Count)

	pipelines := make(map[string]*tabulate.Pipeline)
	for _, name := range catalog.Names() {
		res, _ := catalog.Get(name)
		opts := []tabulate.Option{
			tabulate.WithFilterer(filterer),
			tabulate.WithSearcher(res.Searches),
		}
		if metrics != nil {
			opts = append(opts, tabulate.WithRecorder(metrics))
		}
		pipelines[name] = tabulate.NewPipeline(res.Config, counter, opts...)
	}
	return pipelines
}

// Reload publishes a new catalogue. Requests already running finish against
// the catalogue they started with.
func (s *Server) Reload(catalog *resource.Catalog) {
	s.state.Store(&catalogState{
		catalog:   catalog,
		pipelines: buildPipelines(s.config, catalog, s.store, s.metrics),
	})
}

func (s *Server) current() *catalogState {
	return s.state.Load()
}

func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first so every log line can carry it
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	if s.config.Tracing.Enabled {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	loggerCfg := middleware.DefaultStructuredLoggerConfig()
	loggerCfg.SlowRequestThreshold = s.config.Server.SlowThreshold
	s.app.Use(middleware.StructuredLogger(loggerCfg))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.handleMetrics)
	}

	v1 := s.app.Group("/api/v1")
	if s.verifier != nil {
		v1.Use(middleware.RequireJWT(s.verifier))
	}

	limiter := middleware.TableListLimiter(s.config.Server.RateLimitMax, s.config.Server.RateLimitWindow, s.limiter)

	tables := v1.Group("/tables", middleware.ETag())
	tables.Get("/", s.handleListResources)
	tables.Get("/:resource", middleware.RequireResourceAccess(), limiter, s.handleTable)
	tables.Get("/:resource/export", middleware.RequireResourceAccess(), limiter, s.handleExport)
}

// handleHealth reports whether the database answers
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbHealthy := true
	if err := s.store.Health(ctx); err != nil {
		dbHealthy = false
		log.Error().Err(err).Msg("Database health check failed")
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !dbHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database": dbHealthy,
		},
		"resources": len(s.current().pipelines),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// handleMetrics refreshes the gauges that are sampled rather than observed
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	s.metrics.UpdateUptime(s.startTime)
	if reporter, ok := s.store.(interface{ ReportStats() sql.DBStats }); ok {
		stats := reporter.ReportStats()
		s.metrics.UpdateDBStats(stats.OpenConnections, stats.InUse, stats.Idle)
	}
	return s.metrics.Handler()(c)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().
		Str("address", s.config.Server.Address).
		Strs("resources", s.current().catalog.Names()).
		Msg("Starting HTTP server")
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying fiber app, for tests
func (s *Server) App() *fiber.App {
	return s.app
}
