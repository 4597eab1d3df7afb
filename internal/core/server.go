// Package core provides the HTTP chassis for the subscription service.
// It builds a chi router and enforces cross-cutting concerns (recovery,
// request correlation, logging, CORS) before requests reach the domain
// handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subhub/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to every request
// context. All downstream calls (gateway; database) inherit it.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Razorpay-Signature",
}

// RouteRegistrar registers a group of domain routes on the v1 router. The
// indirection keeps core free of imports on the handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the router and the dependencies every middleware
// needs, allowing distinct configuration per environment and easy injection
// during testing.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	// V1Registrars is populated by the entry point before MountRoutes.
	V1Registrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the chassis. The caller mounts routes afterwards via
// MountRoutes; the separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the v1 route groups and
// the health endpoint.
//
// Middleware order matters:
//  1. Recoverer       - outermost, catches all panics.
//  2. ContextTimeout  - soft deadline before anything else runs.
//  3. RequestID       - correlation id for logs and gateway calls.
//  4. SecurityHeaders - present on every response, including errors.
//  5. RequestLogger   - structured logging with redacted headers.
//  6. CORS            - browser access headers and preflight handling.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1Registrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CorsAllowedOrigins) > 0 {
		return s.Config.Server.CorsAllowedOrigins
	}
	return []string{"*"}
}
