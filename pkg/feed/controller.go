package feed

import (
	"slices"
	"sync"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// ScrollMetrics describes a view's viewport, in whatever unit the view
// scrolls by (rows for a terminal, pixels for a browser).
type ScrollMetrics struct {
	Offset         int
	ViewportHeight int
	ContentHeight  int
}

// DistanceFromBottom returns how far the viewport's bottom edge is above the content's end.
func (m ScrollMetrics) DistanceFromBottom() int {
	d := m.ContentHeight - (m.Offset + m.ViewportHeight)
	if d < 0 {
		return 0
	}
	return d
}

// Controller is the state of one rendered feed: live or paused, the active
// filter and the set of expanded events. Controllers read a shared Store
// and are never shared between views.
type Controller struct {
	store *Store
	table *projection.Table

	mu         sync.Mutex
	paused     bool
	filter     projection.Category
	expanded   map[string]struct{}
	nearBottom bool
	threshold  int
	displayCap int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithTable sets the category table used for filtering and counters.
func WithTable(t *projection.Table) ControllerOption {
	return func(c *Controller) {
		if t != nil {
			c.table = t
		}
	}
}

// WithInitialFilter sets the category shown when the view opens.
func WithInitialFilter(category projection.Category) ControllerOption {
	return func(c *Controller) {
		c.filter = category
	}
}

// WithScrollThreshold sets how close to the bottom counts as following the tail.
func WithScrollThreshold(units int) ControllerOption {
	return func(c *Controller) {
		if units >= 0 {
			c.threshold = units
		}
	}
}

// WithDisplayCap bounds how many events Visible returns.
func WithDisplayCap(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.displayCap = n
		}
	}
}

// NewController creates a live controller over store showing every category.
func NewController(store *Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:      store,
		table:      projection.DefaultTable(),
		filter:     projection.All,
		expanded:   make(map[string]struct{}),
		nearBottom: true,
		threshold:  constants.AutoScrollThreshold,
		displayCap: constants.MaxEvents,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the store this controller reads.
func (c *Controller) Store() *Store {
	return c.store
}

// Table returns the category table in use.
func (c *Controller) Table() *projection.Table {
	return c.table
}

// TogglePause flips between live and paused and returns true when now paused.
// Pausing only stops auto-scroll; events keep arriving in the store.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	return c.paused
}

// Paused reports whether the view is paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetFilter replaces the active category. Expanded events stay expanded.
func (c *Controller) SetFilter(category projection.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = category
}

// Filter returns the active category.
func (c *Controller) Filter() projection.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// CycleFilter advances to the next category of the table and returns it.
func (c *Controller) CycleFilter() projection.Category {
	categories := c.table.Categories()
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(categories, c.filter)
	c.filter = categories[(i+1)%len(categories)]
	return c.filter
}

// ToggleExpand flips whether the event's payload is shown and reports the
// new state. Events that are not in the store, or that have an empty
// payload, cannot be expanded.
func (c *Controller) ToggleExpand(id string) bool {
	c.mu.Lock()
	_, was := c.expanded[id]
	c.mu.Unlock()

	if !was {
		e, ok := c.store.Find(id)
		if !ok || !e.HasPayload() {
			return false
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if was {
		delete(c.expanded, id)
		return false
	}
	c.expanded[id] = struct{}{}
	return true
}

// IsExpanded reports whether the event's payload is shown.
func (c *Controller) IsExpanded(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.expanded[id]
	return ok
}

// Expanded returns the expanded event IDs, sorted.
func (c *Controller) Expanded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.expanded))
	for id := range c.expanded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear empties the shared store and forgets every expanded event.
func (c *Controller) Clear() {
	c.mu.Lock()
	clear(c.expanded)
	c.mu.Unlock()

	c.store.ClearEvents()
}

// Visible returns the events the view shows: the store contents under the
// active filter, oldest first, limited to the newest displayCap events.
func (c *Controller) Visible() []events.SystemEvent {
	return c.project(c.store.Events())
}

// Project applies the view's filter and display cap to a store snapshot,
// such as Change.Events.
func (c *Controller) Project(snapshot []events.SystemEvent) []events.SystemEvent {
	return c.project(slices.Clone(snapshot))
}

func (c *Controller) project(evts []events.SystemEvent) []events.SystemEvent {
	c.mu.Lock()
	filter, displayCap := c.filter, c.displayCap
	c.mu.Unlock()

	visible := c.table.FilterByCategory(evts, filter)
	if len(visible) > displayCap {
		visible = visible[len(visible)-displayCap:]
	}
	return visible
}

// Count returns how many events the view shows.
func (c *Controller) Count() int {
	return len(c.Visible())
}

// Counts returns per-category totals over the whole store, ignoring the filter.
func (c *Controller) Counts() map[projection.Category]int {
	return c.table.CountByCategory(c.store.Events())
}

// RecordScroll stores the viewport position observed before an update.
func (c *Controller) RecordScroll(m ScrollMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nearBottom = m.DistanceFromBottom() <= c.threshold
}

// ShouldAutoScroll reports whether the view should jump to the bottom after
// an update: it was following the tail and is not paused.
func (c *Controller) ShouldAutoScroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nearBottom && !c.paused
}
