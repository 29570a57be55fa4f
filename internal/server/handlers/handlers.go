package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/internal/archive"
	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/server/cache"
	"github.com/agentstation/hitlfeed/internal/server/sse"
	ws "github.com/agentstation/hitlfeed/internal/server/websocket"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
	"github.com/agentstation/hitlfeed/pkg/logging"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// History is the read side of an event archive.
type History interface {
	Query(ctx context.Context, q archive.Query) ([]events.SystemEvent, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators handlers need. History may be nil.
type Deps struct {
	Pipeline       *ingest.Pipeline
	Table          *projection.Table
	History        History
	Cache          *cache.Cache
	WSHub          *ws.Hub
	SSEBroadcaster *sse.Broadcaster
	Upgrader       websocket.Upgrader
	Logger         *zerolog.Logger

	// RequireUpstream makes readiness depend on the upstream connection.
	RequireUpstream bool
	// Replay sends the current feed to new WebSocket clients before live events.
	Replay bool
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	pipeline        *ingest.Pipeline
	store           *feed.Store
	table           *projection.Table
	history         History
	cache           *cache.Cache
	wsHub           *ws.Hub
	sseBroadcaster  *sse.Broadcaster
	upgrader        websocket.Upgrader
	logger          *zerolog.Logger
	requireUpstream bool
	replay          bool
	startTime       time.Time
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	table := d.Table
	if table == nil {
		table = projection.DefaultTable()
	}
	logger := d.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Handlers{
		pipeline:        d.Pipeline,
		store:           d.Pipeline.Store(),
		table:           table,
		history:         d.History,
		cache:           d.Cache,
		wsHub:           d.WSHub,
		sseBroadcaster:  d.SSEBroadcaster,
		upgrader:        d.Upgrader,
		logger:          logger,
		requireUpstream: d.RequireUpstream,
		replay:          d.Replay,
		startTime:       time.Now(),
	}
}

// log returns the request-scoped logger set by the logging middleware, or
// the handlers' logger for requests that bypassed it.
func (h *Handlers) log(r *http.Request) *zerolog.Logger {
	if logging.RequestID(r.Context()) != "" {
		return logging.Ctx(r.Context())
	}
	return h.logger
}
