// Package adapters provides transport-specific implementations of the
// broker's Subscriber interface.
package adapters

import (
	"github.com/agentstation/hitlfeed/internal/server/broker"
	ws "github.com/agentstation/hitlfeed/internal/server/websocket"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

var _ broker.Subscriber = (*WebSocketSubscriber)(nil)

// WebSocketSubscriber relays added events to the WebSocket hub. Clears and
// connection changes are not relayed: downstream feeds own their own state.
type WebSocketSubscriber struct {
	hub *ws.Hub
}

// NewWebSocketSubscriber creates a new WebSocket subscriber.
func NewWebSocketSubscriber(hub *ws.Hub) *WebSocketSubscriber {
	return &WebSocketSubscriber{hub: hub}
}

// Send broadcasts the inserted event of an EventAdded change.
func (w *WebSocketSubscriber) Send(change feed.Change) error {
	if change.Kind == feed.EventAdded {
		w.hub.Broadcast(change.Event)
	}
	return nil
}

// Close is a no-op; the hub manages its own lifecycle.
func (w *WebSocketSubscriber) Close() error {
	return nil
}
