package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/quality"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *quality.Engine, gateEngine *quality.GateEngine, runner *pipeline.Runner, scoringService *scoring.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, gateEngine, runner, scoringService, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(MetricsMiddleware)      // Prometheus metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and metrics endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Transaction ledger
		r.Post("/transactions", handler.IngestTransaction)
		r.Get("/transactions/{id}", handler.GetTransaction)

		// Pipeline runs and artifacts
		r.Post("/pipeline/run", handler.RunPipeline)
		r.Get("/pipeline/artifacts", handler.ListArtifacts)
		r.Get("/pipeline/artifacts/{version}", handler.GetArtifact)

		// Derived per-customer views
		r.Get("/rfm/{customerId}", handler.GetRFMSummary)
		r.Get("/rfm/{customerId}/preview", handler.PreviewRFM)
		r.Get("/segments/{customerId}", handler.GetSegment)

		// Model parameters
		r.Post("/models", handler.CreateModel)
		r.Get("/models/{version}", handler.GetModel)

		// Scoring
		r.Post("/score", handler.Score)
		r.Get("/scores/{id}", handler.GetScore)

		// Quality rule management
		r.Get("/quality/rules", handler.ListQualityRules)
		r.Get("/quality/rules/{id}", handler.GetQualityRule)
		r.Post("/quality/rules", handler.CreateQualityRule)
		r.Post("/quality/rules/reload", handler.ReloadQualityRules)

		// Quality gate management
		r.Get("/quality/gates", handler.ListQualityGates)
		r.Post("/quality/gates", handler.CreateQualityGate)
		r.Delete("/quality/gates/{id}", handler.DeleteQualityGate)
		r.Post("/quality/gates/reload", handler.ReloadQualityGates)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
