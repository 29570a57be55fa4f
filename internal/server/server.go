// Package server provides the HTTP relay for a HITL event feed.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/metrics"
	"github.com/agentstation/hitlfeed/internal/server/broker"
	"github.com/agentstation/hitlfeed/internal/server/broker/adapters"
	"github.com/agentstation/hitlfeed/internal/server/cache"
	"github.com/agentstation/hitlfeed/internal/server/handlers"
	"github.com/agentstation/hitlfeed/internal/server/middleware"
	"github.com/agentstation/hitlfeed/internal/server/sse"
	ws "github.com/agentstation/hitlfeed/internal/server/websocket"
	"github.com/agentstation/hitlfeed/pkg/feed"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline       *ingest.Pipeline
	store          *feed.Store
	table          *projection.Table
	history        handlers.History
	cache          *cache.Cache
	broker         *broker.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	rateLimiter    *middleware.RateLimiter
	upgrader       websocket.Upgrader
	registry       *prometheus.Registry
	httpMetrics    *metrics.HTTPObserver
	logger         *zerolog.Logger
	config         Config

	unsubscribe []func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
	startTime   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTable sets the category table used for filtering.
func WithTable(t *projection.Table) Option {
	return func(s *Server) {
		if t != nil {
			s.table = t
		}
	}
}

// WithHistory enables the history endpoint.
func WithHistory(h handlers.History) Option {
	return func(s *Server) { s.history = h }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// New creates a server relaying the store behind pipeline.
func New(cfg Config, pipeline *ingest.Pipeline, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	nop := zerolog.Nop()
	s := &Server{
		pipeline: pipeline,
		store:    pipeline.Store(),
		table:    projection.DefaultTable(),
		logger:   &nop,
		config:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	logger := s.logger
	logger.Debug().Msg("Creating new server instance")

	s.cache = cache.New(cfg.CacheTTL, cfg.CacheTTL*2)
	s.broker = broker.NewBroker(logger)
	s.wsHub = ws.NewHub(logger)
	s.sseBroadcaster = sse.NewBroadcaster(logger)
	if cfg.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
	}

	s.broker.Subscribe(adapters.NewWebSocketSubscriber(s.wsHub))
	s.broker.Subscribe(adapters.NewSSESubscriber(s.sseBroadcaster))

	if cfg.MetricsEnabled {
		fm, err := metrics.NewFeedMetrics(metrics.DefaultNamespace, s.registry, s.store, pipeline.Duplicates)
		if err != nil {
			return nil, err
		}
		s.httpMetrics, err = metrics.NewHTTPObserver(metrics.DefaultNamespace, s.registry)
		if err != nil {
			return nil, err
		}
		s.unsubscribe = append(s.unsubscribe, fm.Observe(s.store))
	}

	// Listeners run under the store's dispatch lock; both only enqueue or clear.
	s.unsubscribe = append(s.unsubscribe,
		s.store.Subscribe(s.broker.Listener()),
		s.store.Subscribe(s.cache.Listener()),
	)

	s.ctx, s.cancel = context.WithCancel(context.Background())

	logger.Debug().Msg("Server instance created successfully")
	return s, nil
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster,
// rate limiter cleanup). Calling Start more than once has no effect.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		s.logger.Debug().Msg("Starting background services")

		s.goRun(s.broker.Run)
		s.goRun(s.wsHub.Run)
		s.goRun(s.sseBroadcaster.Run)
		if s.rateLimiter != nil {
			s.goRun(s.rateLimiter.Run)
		}

		s.logger.Debug().Msg("All background services started")
	})
}

func (s *Server) goRun(run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(s.ctx)
	}()
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer returns an http.Server for the configured address and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Shutdown detaches from the store and stops background services, waiting
// for them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("Shutting down server background services")
		for _, unsubscribe := range s.unsubscribe {
			unsubscribe()
		}
		s.cancel()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// Broker returns the change broker.
func (s *Server) Broker() *broker.Broker {
	return s.broker
}

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
