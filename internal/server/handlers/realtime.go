package handlers

import (
	"fmt"
	"net/http"
	"time"

	ws "github.com/agentstation/hitlfeed/internal/server/websocket"
	"github.com/agentstation/hitlfeed/pkg/logging"
)

// HandleWebSocket handles WebSocket connections at /api/v1/updates/ws.
// Frames are SystemEvent JSON, so another hitlfeed can use this endpoint as
// its upstream.
// @Summary WebSocket relay
// @Description Relays every event added to the feed
// @Tags updates
// @Success 101 "Switching Protocols"
// @Security ApiKeyAuth
// @Router /api/v1/updates/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log(r).Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID := logging.RequestID(r.Context())
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano())
	}
	client := ws.NewClient(clientID, h.wsHub, conn)

	var replay func() []ws.Message
	if h.replay {
		replay = h.store.Events
	}
	h.wsHub.Register(client, replay)

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles Server-Sent Events at /api/v1/updates/stream.
// @Summary SSE stream
// @Description Streams added events (named by event type), feed.cleared and connection frames
// @Tags updates
// @Produce text/event-stream
// @Success 200 "Event stream"
// @Security ApiKeyAuth
// @Router /api/v1/updates/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log(r).Debug().Err(err).Msg("Could not clear write deadline for SSE stream")
	}
	h.sseBroadcaster.ServeHTTP(w, r)
}
