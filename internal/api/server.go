package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/config"
	"github.com/JakeFAU/creator-discovery/internal/dispatcher"
	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/plan"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
	"github.com/JakeFAU/creator-discovery/internal/status"
	"github.com/JakeFAU/creator-discovery/internal/suggest"
	"github.com/JakeFAU/creator-discovery/internal/telemetry"
)

// Deps are the collaborators the handlers call.
type Deps struct {
	Dispatcher *dispatcher.Dispatcher
	Status     *status.Reader
	Plans      *plan.Enforcer
	Campaigns  scraping.CampaignStore
	IDs        scraping.IDGenerator
	Clock      scraping.Clock
	// Suggest is optional; without it the suggestions route answers 503.
	Suggest *suggest.Service
	// ClerkWebhook is optional; without it the webhook route is not mounted.
	ClerkWebhook http.Handler
	// Auth authenticates /api routes other than webhooks.
	Auth func(http.Handler) http.Handler
	// Ready reports downstream readiness for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the domain services.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", bypassHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if deps.ClerkWebhook != nil {
			r.Method(http.MethodPost, "/webhooks/clerk", deps.ClerkWebhook)
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout()))
			if deps.Auth != nil {
				r.Use(deps.Auth)
			}
			if cfg.RateLimit.RequestsPerMinute > 0 {
				r.Use(rateLimitByUser(cfg.RateLimit.RequestsPerMinute))
			}
			if cfg.Plans.BypassHeaderEnabled && !cfg.IsProduction() {
				r.Use(bypassMiddleware)
			}

			r.Post("/scraping/{platform}", s.createJob)
			r.Get("/scraping/jobs", s.getJobStatus)
			r.Get("/scraping/jobs/{job_id}", s.getJobStatus)
			r.Post("/campaigns", s.createCampaign)
			r.Get("/campaigns", s.listCampaigns)
			r.Get("/usage", s.usage)
			r.Post("/suggestions", s.suggestions)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
