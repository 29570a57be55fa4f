package handlers

import (
	"net/http"

	"github.com/agentstation/hitlfeed/internal/server/response"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// CategoryInfo describes one category and its current size.
type CategoryInfo struct {
	Name  projection.Category `json:"name"`
	Label string              `json:"label"`
	Types []string            `json:"types,omitempty"`
	Count int                 `json:"count"`
}

// HandleCategories handles GET /api/v1/categories.
// @Summary List categories
// @Description Category table with the number of retained events in each
// @Tags events
// @Produce json
// @Success 200 {object} response.Response{data=[]CategoryInfo}
// @Security ApiKeyAuth
// @Router /api/v1/categories [get].
func (h *Handlers) HandleCategories(w http.ResponseWriter, _ *http.Request) {
	counts := h.table.CountByCategory(h.store.Events())

	types := make(map[projection.Category][]string)
	for _, def := range h.table.Definitions() {
		types[def.Name] = def.Types
	}

	out := make([]CategoryInfo, 0, len(counts))
	for _, c := range h.table.Categories() {
		out = append(out, CategoryInfo{
			Name:  c,
			Label: h.table.Label(c),
			Types: types[c],
			Count: counts[c],
		})
	}
	response.OK(w, out)
}

// HandleStats handles GET /api/v1/stats.
// @Summary Feed statistics
// @Description Store counters, connection state, relay clients and cache usage
// @Tags events
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Security ApiKeyAuth
// @Router /api/v1/stats [get].
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"feed":              h.store.Stats(),
		"connection":        h.store.Connection(),
		"duplicates":        h.pipeline.Duplicates(),
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
		"cache":             h.cache.GetStats(),
	}
	if h.history != nil {
		if n, err := h.history.Count(r.Context()); err == nil {
			stats["archived"] = n
		} else {
			h.log(r).Warn().Err(err).Msg("Archive count failed")
		}
	}
	response.OK(w, stats)
}
