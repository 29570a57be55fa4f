package broker

import "github.com/agentstation/hitlfeed/pkg/feed"

// Subscriber is an interface for feed change consumers.
// Implementations adapt the change stream to a specific transport
// (WebSocket, SSE).
type Subscriber interface {
	// Send delivers a change to the subscriber. It must not block for long:
	// the broker delivers to subscribers one at a time.
	Send(feed.Change) error

	// Close cleanly shuts down the subscriber.
	Close() error
}
