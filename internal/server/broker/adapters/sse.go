package adapters

import (
	"github.com/agentstation/hitlfeed/internal/server/broker"
	"github.com/agentstation/hitlfeed/internal/server/sse"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// SSE event names for non-event changes.
const (
	SSECleared    = "feed.cleared"
	SSEConnection = "connection"
)

var _ broker.Subscriber = (*SSESubscriber)(nil)

// SSESubscriber adapts the SSE broadcaster to the Subscriber interface.
// Every change kind is forwarded so dashboards can mirror the feed exactly.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates a new SSE subscriber.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send converts a change to an SSE frame and broadcasts it.
func (s *SSESubscriber) Send(change feed.Change) error {
	s.broadcaster.Broadcast(Frame(change))
	return nil
}

// Close is a no-op; the broadcaster manages its own lifecycle.
func (s *SSESubscriber) Close() error {
	return nil
}

// Frame renders a change as an SSE event. Added events are named by their
// event type and carry the SystemEvent as data.
func Frame(change feed.Change) sse.Event {
	switch change.Kind {
	case feed.EventAdded:
		return sse.Event{
			Event: string(change.Event.Type),
			ID:    change.Event.ID,
			Data:  change.Event,
		}
	case feed.EventsCleared:
		return sse.Event{Event: SSECleared, Data: map[string]any{}}
	default:
		return sse.Event{Event: SSEConnection, Data: change.Connection}
	}
}
