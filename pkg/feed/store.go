// Package feed holds the bounded, observable event store shared by every
// view of a session, and the per-view controller that filters, pauses and
// expands what one view shows.
package feed

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/events"
)

// ChangeKind says which mutation produced a Change.
type ChangeKind int

// Change kinds.
const (
	EventAdded ChangeKind = iota + 1
	EventsCleared
	ConnectionChanged
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case EventAdded:
		return "event_added"
	case EventsCleared:
		return "events_cleared"
	case ConnectionChanged:
		return "connection_changed"
	default:
		return "unknown"
	}
}

// ConnectionState mirrors the transport's connection as last reported.
type ConnectionState struct {
	Connected         bool   `json:"connected"`
	Reconnecting      bool   `json:"reconnecting"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
}

// Change describes one store mutation to listeners.
type Change struct {
	Kind ChangeKind

	// Event is the inserted event for EventAdded.
	Event events.SystemEvent

	// Evicted holds events pushed out by the insertion, oldest first.
	Evicted []events.SystemEvent

	// Connection is the connection state after the mutation.
	Connection ConnectionState

	// Events is the ordered contents after the mutation. The slice is shared
	// between listeners and must not be modified.
	Events []events.SystemEvent
}

// Listener observes store mutations. Listeners run synchronously on the
// mutating goroutine and must not mutate the store themselves.
type Listener func(Change)

// Stats are lifetime counters for a store.
type Stats struct {
	Ingested uint64 `json:"ingested"`
	Evicted  uint64 `json:"evicted"`
	Cleared  uint64 `json:"cleared"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

type listenerEntry struct {
	fn     Listener
	active atomic.Bool
}

// Store is a fixed-capacity ring of the most recent events, oldest first,
// plus the current connection state. Every mutation notifies all listeners
// before it returns, and mutations are serialized so every listener sees
// the same sequence of states.
type Store struct {
	// dispatch is held across a mutation and its notifications.
	dispatch sync.Mutex

	mu        sync.RWMutex
	buf       []events.SystemEvent
	head      int
	size      int
	conn      ConnectionState
	listeners []*listenerEntry
	stats     Stats

	logger *zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets how many events the store retains. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.buf = make([]events.SystemEvent, n)
		}
	}
}

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty, disconnected store holding up to constants.MaxEvents events.
func NewStore(opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		buf:    make([]events.SystemEvent, constants.MaxEvents),
		logger: &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the maximum number of retained events.
func (s *Store) Capacity() int {
	return len(s.buf)
}

// AddEvent appends e, evicting the oldest event when the store is full.
func (s *Store) AddEvent(e events.SystemEvent) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	var evicted []events.SystemEvent
	if s.size == len(s.buf) {
		evicted = []events.SystemEvent{s.buf[s.head]}
		s.buf[s.head] = e
		s.head = (s.head + 1) % len(s.buf)
		s.stats.Evicted++
	} else {
		s.buf[(s.head+s.size)%len(s.buf)] = e
		s.size++
	}
	s.stats.Ingested++
	change := Change{Kind: EventAdded, Event: e, Evicted: evicted}
	listeners := s.prepareLocked(&change)
	s.mu.Unlock()

	s.notify(listeners, change)
}

// ClearEvents empties the store. Connection state and listeners are kept.
func (s *Store) ClearEvents() {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	clear(s.buf)
	s.head, s.size = 0, 0
	s.stats.Cleared++
	change := Change{Kind: EventsCleared}
	listeners := s.prepareLocked(&change)
	s.mu.Unlock()

	s.notify(listeners, change)
}

// SetConnected records whether the transport is connected. Connecting resets
// the reconnect counter, the reconnecting flag and the last error.
func (s *Store) SetConnected(connected bool) {
	s.updateConnection(func(c *ConnectionState) {
		c.Connected = connected
		if connected {
			c.Reconnecting = false
			c.ReconnectAttempts = 0
			c.LastError = ""
		}
	})
}

// SetConnectionError records the last transport error. An empty message clears it.
func (s *Store) SetConnectionError(message string) {
	s.updateConnection(func(c *ConnectionState) {
		c.LastError = message
	})
}

// SetReconnecting records whether the transport is retrying.
func (s *Store) SetReconnecting(reconnecting bool) {
	s.updateConnection(func(c *ConnectionState) {
		c.Reconnecting = reconnecting
	})
}

// SetReconnectAttempts records the transport's reconnect counter.
func (s *Store) SetReconnectAttempts(n int) {
	if n < 0 {
		n = 0
	}
	s.updateConnection(func(c *ConnectionState) {
		c.ReconnectAttempts = n
	})
}

// updateConnection applies fn and notifies only when the state changed.
func (s *Store) updateConnection(fn func(*ConnectionState)) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	before := s.conn
	fn(&s.conn)
	if s.conn == before {
		s.mu.Unlock()
		return
	}
	change := Change{Kind: ConnectionChanged}
	listeners := s.prepareLocked(&change)
	s.mu.Unlock()

	s.notify(listeners, change)
}

// prepareLocked fills the shared parts of a change and returns the listeners to notify.
func (s *Store) prepareLocked(change *Change) []*listenerEntry {
	change.Connection = s.conn
	if len(s.listeners) == 0 {
		return nil
	}
	change.Events = s.snapshotLocked()
	listeners := make([]*listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func (s *Store) notify(listeners []*listenerEntry, change Change) {
	for _, l := range listeners {
		if !l.active.Load() {
			continue
		}
		s.invoke(l.fn, change)
	}
}

func (s *Store) invoke(fn Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("change", change.Kind.String()).
				Msg("Feed listener panicked")
		}
	}()
	fn(change)
}

// Subscribe registers a listener and returns a function that removes it.
// The returned function is idempotent; once it returns the listener will
// not be invoked for later mutations.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	entry := &listenerEntry{fn: fn}
	entry.active.Store(true)

	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l == entry {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (s *Store) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Events returns a copy of the retained events, oldest first.
func (s *Store) Events() []events.SystemEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []events.SystemEvent {
	out := make([]events.SystemEvent, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Find returns the retained event with the given ID.
func (s *Store) Find(id string) (events.SystemEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.size; i++ {
		if e := s.buf[(s.head+i)%len(s.buf)]; e.ID == id {
			return e, true
		}
	}
	return events.SystemEvent{}, false
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Connection returns the current connection state.
func (s *Store) Connection() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Stats returns lifetime counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Size = s.size
	st.Capacity = len(s.buf)
	return st
}
