// Package filter parses event query parameters and applies them to feed
// snapshots and archive queries.
package filter

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/hitlfeed/internal/archive"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// EventFilter contains the filter criteria accepted by event endpoints.
type EventFilter struct {
	// Category restricts events to one category of the table.
	Category projection.Category

	// Types restricts events to exact event types.
	Types []events.EventType

	// Since drops events with an earlier timestamp.
	Since time.Time

	// Limit keeps only the most recent N matches. Zero means no limit.
	Limit int
}

// ParseEventFilter extracts filter parameters from r. Unknown categories,
// malformed timestamps and negative limits are validation errors. Limits
// above maxLimit are clamped; maxLimit <= 0 disables clamping.
func ParseEventFilter(r *http.Request, table *projection.Table, maxLimit int) (EventFilter, error) {
	q := r.URL.Query()

	f := EventFilter{Category: projection.ParseCategory(q.Get("category"))}
	if !table.Has(f.Category) {
		return EventFilter{}, errors.NewValidationError("category", string(f.Category), "unknown category")
	}

	for _, t := range strings.Split(q.Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, events.EventType(t))
		}
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return EventFilter{}, errors.NewValidationError("since", raw, "must be an RFC 3339 timestamp")
		}
		f.Since = since
	}

	limit, err := ParseLimit(q.Get("limit"), maxLimit)
	if err != nil {
		return EventFilter{}, err
	}
	f.Limit = limit

	return f, nil
}

// ParseLimit parses a non-negative limit, clamped to maxLimit. Empty means zero.
func ParseLimit(raw string, maxLimit int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewValidationError("limit", raw, "must be a non-negative integer")
	}
	if maxLimit > 0 && n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// Apply returns the events matching f, in their original order, trimmed to
// the most recent Limit.
func (f EventFilter) Apply(evts []events.SystemEvent, table *projection.Table) []events.SystemEvent {
	results := make([]events.SystemEvent, 0, len(evts))
	for _, e := range evts {
		if f.matches(e, table) {
			results = append(results, e)
		}
	}
	if f.Limit > 0 && len(results) > f.Limit {
		results = results[len(results)-f.Limit:]
	}
	return results
}

// Query converts f to an archive query. Category membership can include
// prefixes the archive cannot express, so callers still Apply the category
// to the rows returned.
func (f EventFilter) Query() archive.Query {
	return archive.Query{
		Types: f.Types,
		Since: f.Since,
		Limit: f.Limit,
	}
}

// Key returns a stable cache key for f.
func (f EventFilter) Key() string {
	types := make([]string, len(f.Types))
	for i, t := range f.Types {
		types[i] = string(t)
	}
	since := ""
	if !f.Since.IsZero() {
		since = strconv.FormatInt(f.Since.UnixNano(), 10)
	}
	return strings.Join([]string{string(f.Category), strings.Join(types, ","), since, strconv.Itoa(f.Limit)}, "|")
}

func (f EventFilter) matches(e events.SystemEvent, table *projection.Table) bool {
	if !table.Contains(f.Category, e.Type) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func containsType(types []events.EventType, t events.EventType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
