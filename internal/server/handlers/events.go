package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentstation/hitlfeed/internal/server/cache"
	"github.com/agentstation/hitlfeed/internal/server/filter"
	"github.com/agentstation/hitlfeed/internal/server/response"
	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// EventsPage is the body of GET /events.
type EventsPage struct {
	Category projection.Category  `json:"category"`
	Count    int                  `json:"count"`
	Total    int                  `json:"total"`
	Events   []events.SystemEvent `json:"events"`
}

// IngestResult is the body of POST /events.
type IngestResult struct {
	Accepted   int           `json:"accepted"`
	Duplicates int           `json:"duplicates"`
	Events     []IngestedRef `json:"events"`
}

// IngestedRef identifies one normalized event.
type IngestedRef struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// HandleListEvents handles GET /api/v1/events.
// @Summary List feed events
// @Description Current feed contents in receipt order, optionally filtered by category
// @Tags events
// @Produce json
// @Param category query string false "Category (all, runs, gates, artifacts, sessions, errors)"
// @Param type query string false "Comma-separated event types"
// @Param since query string false "RFC 3339 lower bound on event timestamp"
// @Param limit query int false "Return only the most recent N matching events"
// @Success 200 {object} response.Response{data=EventsPage}
// @Failure 400 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events [get].
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := filter.ParseEventFilter(r, h.table, h.store.Capacity())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	page := h.cache.Remember(cache.Key("events", f.Key()), func() any {
		snapshot := h.store.Events()
		matched := f.Apply(snapshot, h.table)
		return EventsPage{
			Category: f.Category,
			Count:    len(matched),
			Total:    len(snapshot),
			Events:   matched,
		}
	})

	response.OK(w, page)
}

// HandleIngestEvents handles POST /api/v1/events.
// @Summary Ingest events
// @Description Accepts one event object or an array of them. The event type is
// @Description taken from the "type" query parameter or each payload's "type" field.
// @Tags events
// @Accept json
// @Produce json
// @Param type query string false "Event type for every payload in the body"
// @Success 202 {object} response.Response{data=IngestResult}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 413 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events [post].
func (h *Handlers) HandleIngestEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, "Maximum body size is "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		response.BadRequest(w, "Failed to read request body", err.Error())
		return
	}

	payloads, err := splitPayloads(body)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	rawType := strings.TrimSpace(r.URL.Query().Get("type"))
	result := IngestResult{Events: make([]IngestedRef, 0, len(payloads))}
	for _, p := range payloads {
		e, added := h.pipeline.Ingest(rawType, p)
		ref := IngestedRef{ID: e.ID, Type: e.Type}
		if added {
			result.Accepted++
		} else {
			result.Duplicates++
			ref.Duplicate = true
		}
		result.Events = append(result.Events, ref)
	}

	h.log(r).Debug().
		Int("accepted", result.Accepted).
		Int("duplicates", result.Duplicates).
		Msg("Producer events ingested")

	response.Accepted(w, result)
}

// HandleClearEvents handles DELETE /api/v1/events.
// @Summary Clear the feed
// @Description Removes every retained event. Archived history is kept.
// @Tags events
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Security ApiKeyAuth
// @Router /api/v1/events [delete].
func (h *Handlers) HandleClearEvents(w http.ResponseWriter, r *http.Request) {
	n := h.store.Len()
	h.store.ClearEvents()
	h.log(r).Info().Int("cleared", n).Msg("Feed cleared via API")
	response.OK(w, map[string]any{"cleared": n})
}

// splitPayloads returns the elements of a JSON array body, or the body itself.
func splitPayloads(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.NewValidationError("body", "", "must contain a JSON object or array")
	}
	if !json.Valid(body) {
		return nil, errors.NewParseError("json", "request body", "invalid JSON", nil)
	}
	if body[0] != '[' {
		return []json.RawMessage{body}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, errors.WrapParse("json", "request body", err)
	}
	if len(items) == 0 {
		return nil, errors.NewValidationError("body", "[]", "must contain at least one event")
	}
	return items, nil
}
