package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/hitlfeed/internal/server/response"
)

// HandleHealth handles GET /api/v1/health.
// @Summary Health check
// @Description Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /api/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "hitlfeed-relay",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready.
// @Summary Readiness check
// @Description Ready when the upstream feed (if any) is connected
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	conn := h.store.Connection()
	if h.requireUpstream && !conn.Connected {
		msg := "Upstream feed not connected"
		if conn.LastError != "" {
			msg += ": " + conn.LastError
		}
		response.ServiceUnavailable(w, msg)
		return
	}

	response.OK(w, map[string]any{
		"status":            "ready",
		"uptime":            time.Since(h.startTime).Round(time.Second).String(),
		"connection":        conn,
		"events":            h.store.Len(),
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
