package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentstation/hitlfeed/internal/server/handlers"
	"github.com/agentstation/hitlfeed/internal/server/middleware"
)

// unmatchedRoute labels requests no pattern matched, keeping label values bounded.
const unmatchedRoute = "unmatched"

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(handlers.Deps{
		Pipeline:        s.pipeline,
		Table:           s.table,
		History:         s.history,
		Cache:           s.cache,
		WSHub:           s.wsHub,
		SSEBroadcaster:  s.sseBroadcaster,
		Upgrader:        s.upgrader,
		Logger:          s.logger,
		RequireUpstream: s.config.RequireUpstream,
		Replay:          s.config.ReplayOnConnect,
	})

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux, mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)

	// Feed endpoints
	mux.HandleFunc("GET "+prefix+"/events", h.HandleListEvents)
	mux.HandleFunc("POST "+prefix+"/events", h.HandleIngestEvents)
	mux.HandleFunc("DELETE "+prefix+"/events", h.HandleClearEvents)
	mux.HandleFunc("GET "+prefix+"/events/history", h.HandleHistory)
	mux.HandleFunc("GET "+prefix+"/categories", h.HandleCategories)
	mux.HandleFunc("GET "+prefix+"/stats", h.HandleStats)

	// Real-time endpoints
	mux.HandleFunc("GET "+prefix+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/updates/stream", h.HandleSSE)

	// Metrics endpoint (optional)
	if s.config.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
}

// applyMiddleware wraps handler with middleware chain. mux resolves the
// route label for request metrics.
func (s *Server) applyMiddleware(handler http.Handler, mux *http.ServeMux) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if s.rateLimiter != nil {
		handler = middleware.RateLimit(s.rateLimiter)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		authConfig.HeaderName = cfg.AuthHeader
		authConfig.PublicPaths = append(authConfig.PublicPaths, cfg.PathPrefix+"/health", cfg.PathPrefix+"/ready")
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		if cfg.AuthHeader != "" {
			corsConfig.AllowedHeaders = append(corsConfig.AllowedHeaders, cfg.AuthHeader)
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Request metrics (if enabled)
	if s.httpMetrics != nil {
		handler = middleware.Metrics(s.httpMetrics, func(r *http.Request) string {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
			return unmatchedRoute
		})(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
