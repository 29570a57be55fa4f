package handlers

import (
	"net/http"

	"github.com/agentstation/hitlfeed/internal/server/filter"
	"github.com/agentstation/hitlfeed/internal/server/response"
	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// HandleHistory handles GET /api/v1/events/history.
// @Summary Archived events
// @Description Events from the persistent archive, oldest first
// @Tags events
// @Produce json
// @Param category query string false "Category (all, runs, gates, artifacts, sessions, errors)"
// @Param type query string false "Comma-separated event types"
// @Param since query string false "RFC 3339 lower bound on event timestamp"
// @Param limit query int false "Maximum number of events (most recent kept)"
// @Success 200 {object} response.Response{data=object}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 503 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events/history [get].
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.ServiceUnavailable(w, "Event archive is not enabled")
		return
	}

	f, err := filter.ParseEventFilter(r, h.table, constants.MaxHistoryLimit)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	evts, err := h.history.Query(r.Context(), f.Query())
	if err != nil {
		h.log(r).Error().Err(err).Msg("History query failed")
		response.ErrorFromType(w, err)
		return
	}
	if f.Category != projection.All {
		evts = h.table.FilterByCategory(evts, f.Category)
	}
	if evts == nil {
		evts = []events.SystemEvent{}
	}

	response.OK(w, map[string]any{
		"category": f.Category,
		"count":    len(evts),
		"events":   evts,
	})
}
