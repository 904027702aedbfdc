// Package server exposes the bundling worker over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/config"
	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/middleware"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// Version is reported by the health endpoint; set at build time.
var Version = "dev"

// Server represents the HTTP server
type Server struct {
	app      *fiber.App
	config   *config.Config
	pipeline *bundler.Pipeline
	cache    *fetchcache.Cache
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	// open WebSocket connections, drained on shutdown
	conns sync.WaitGroup
}

// NewServer creates a server. All connections share one response cache, so
// a registry file is fetched at most once per process.
func NewServer(cfg *config.Config, metrics *observability.Metrics, tracer *observability.Tracer) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "bundlesize",
		AppName:               "bundlesize " + Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	pipeline, cache := bundler.FromConfig(cfg, metrics)

	s := &Server{
		app:      app,
		config:   cfg,
		pipeline: pipeline,
		cache:    cache,
		metrics:  metrics,
		tracer:   tracer,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	log.Debug().Str("registry", cfg.Registry.BaseURL()).Msg("Server initialization complete")
	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())

	if s.tracer.IsEnabled() {
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.RequestLogger())

	if s.config.Metrics.Enabled {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(cors.New())
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	bundleHandlers := []fiber.Handler{}
	if limit := s.config.Server.BundleRateLimit; limit > 0 {
		bundleHandlers = append(bundleHandlers, middleware.BundleLimiter(limit))
	}

	s.app.Get("/ws", append(bundleHandlers, s.handleWebSocket)...)

	v1 := s.app.Group("/api/v1")
	v1.Post("/bundle", append(bundleHandlers, s.handleBundle)...)
	v1.Get("/cache", s.handleCacheStats)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "ok",
		"version":       Version,
		"registry":      s.config.Registry.BaseURL(),
		"cache_entries": s.cache.Len(),
	})
}

func (s *Server) handleCacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"entries": s.cache.Len(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown stops accepting requests and waits for open WebSocket sessions
// and their in-flight bundles, up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All worker connections closed")
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for worker connections")
	}
}

// App returns the fiber app for testing
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
