// Package broker fans feed changes out to relay transports.
//
// The broker decouples the store's synchronous listeners from network
// writes: Publish only enqueues, and a single Run loop delivers each change
// to every subscriber in publish order.
package broker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// Broker distributes feed changes to registered subscribers.
type Broker struct {
	subscribers []Subscriber
	changes     chan feed.Change
	mu          sync.RWMutex
	dropped     uint64
	logger      *zerolog.Logger
}

// NewBroker creates a new broker.
func NewBroker(logger *zerolog.Logger) *Broker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broker{
		subscribers: make([]Subscriber, 0),
		changes:     make(chan feed.Change, constants.ChannelBufferSize),
		logger:      logger,
	}
}

// Run delivers published changes until ctx is cancelled, then closes all
// subscribers. Delivery is sequential so every subscriber observes changes
// in the order they were published.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for _, sub := range b.subscribers {
				_ = sub.Close()
			}
			b.subscribers = nil
			b.mu.Unlock()
			b.logger.Info().Msg("Event broker shut down")
			return

		case change := <-b.changes:
			b.mu.RLock()
			subs := make([]Subscriber, len(b.subscribers))
			copy(subs, b.subscribers)
			b.mu.RUnlock()

			for _, sub := range subs {
				if err := sub.Send(change); err != nil {
					b.logger.Warn().
						Err(err).
						Str("change", change.Kind.String()).
						Msg("Failed to send change to subscriber")
				}
			}

			b.logger.Debug().
				Str("change", change.Kind.String()).
				Int("subscribers", len(subs)).
				Msg("Change broadcasted")
		}
	}
}

// Publish enqueues a change for delivery. It never blocks; when the queue is
// full the change is dropped and logged.
func (b *Broker) Publish(change feed.Change) {
	select {
	case b.changes <- change:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		b.logger.Warn().
			Str("change", change.Kind.String()).
			Msg("Change queue full, change dropped")
	}
}

// Listener returns a feed.Listener that publishes every store change.
func (b *Broker) Listener() feed.Listener {
	return b.Publish
}

// Subscribe registers a subscriber. It is safe to call before Run.
func (b *Broker) Subscribe(sub Subscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	n := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Debug().Int("total_subscribers", n).Msg("Subscriber registered")
}

// Unsubscribe removes and closes a subscriber.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			_ = s.Close()
			break
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many changes were discarded because the queue was full.
func (b *Broker) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
