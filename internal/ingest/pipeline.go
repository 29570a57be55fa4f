// Package ingest connects a transport to the feed store: frames are
// normalized, redeliveries dropped, and connection state mirrored.
package ingest

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/internal/transport"
	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// Source is the part of a transport the pipeline consumes.
type Source interface {
	Subscribe(eventType string, handler transport.Handler) transport.Subscription
	OnStateChange(fn func(transport.StateChange)) (remove func())
}

// Pipeline normalizes raw events into a store.
type Pipeline struct {
	store      *feed.Store
	normalizer *events.Normalizer
	seen       *lru.Cache[string, struct{}]
	logger     *zerolog.Logger

	// mu keeps de-duplication and insertion in the same order.
	mu         sync.Mutex
	duplicates atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*pipelineConfig)

type pipelineConfig struct {
	normalizer *events.Normalizer
	logger     *zerolog.Logger
	dedupSize  int
}

// WithNormalizer sets the normalizer.
func WithNormalizer(n *events.Normalizer) Option {
	return func(c *pipelineConfig) {
		c.normalizer = n
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *pipelineConfig) {
		c.logger = logger
	}
}

// WithDedupSize sets how many recent event IDs are remembered. Zero disables de-duplication.
func WithDedupSize(n int) Option {
	return func(c *pipelineConfig) {
		c.dedupSize = n
	}
}

// New creates a pipeline writing into store.
func New(store *feed.Store, opts ...Option) *Pipeline {
	nop := zerolog.Nop()
	cfg := pipelineConfig{logger: &nop, dedupSize: constants.DedupCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = &nop
	}
	if cfg.normalizer == nil {
		cfg.normalizer = events.NewNormalizer(events.WithLogger(cfg.logger))
	}

	p := &Pipeline{
		store:      store,
		normalizer: cfg.normalizer,
		logger:     cfg.logger,
	}
	if cfg.dedupSize > 0 {
		// lru.New only fails for non-positive sizes.
		p.seen, _ = lru.New[string, struct{}](cfg.dedupSize)
	}
	return p
}

// Store returns the store the pipeline writes to.
func (p *Pipeline) Store() *feed.Store {
	return p.store
}

// Ingest normalizes one raw event and adds it to the store. It returns the
// event and false when an event with the same ID was seen recently.
func (p *Pipeline) Ingest(rawType string, payload any) (events.SystemEvent, bool) {
	e := p.normalizer.Normalize(rawType, payload)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen != nil {
		if found, _ := p.seen.ContainsOrAdd(e.ID, struct{}{}); found {
			p.duplicates.Add(1)
			p.logger.Debug().
				Str("event_id", e.ID).
				Str("event_type", string(e.Type)).
				Msg("Duplicate event dropped")
			return e, false
		}
	}

	p.store.AddEvent(e)
	p.logger.Debug().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Msg("Event ingested")
	return e, true
}

// Duplicates returns how many redelivered events were dropped.
func (p *Pipeline) Duplicates() uint64 {
	return p.duplicates.Load()
}

// Forget clears the de-duplication memory, so previously seen IDs are accepted again.
func (p *Pipeline) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen != nil {
		p.seen.Purge()
	}
}

// Attach subscribes the pipeline to every frame and state change of src.
// The returned function detaches it and is safe to call more than once.
func (p *Pipeline) Attach(src Source) (detach func()) {
	sub := src.Subscribe(constants.WildcardEventType, func(eventType string, payload json.RawMessage) {
		p.Ingest(eventType, payload)
	})
	removeState := src.OnStateChange(p.HandleState)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			removeState()
		})
	}
}

// HandleState mirrors a transport state change into the store.
func (p *Pipeline) HandleState(change transport.StateChange) {
	switch change.State {
	case transport.StateConnected:
		p.store.SetConnected(true)

	case transport.StateReconnecting:
		p.store.SetConnected(false)
		p.store.SetReconnecting(true)
		p.store.SetReconnectAttempts(change.Attempt)
		p.store.SetConnectionError(errorMessage(change.Err))

	case transport.StateDisconnected:
		p.store.SetConnected(false)
		if change.Err != nil {
			// dropped unexpectedly; the transport is about to retry
			p.store.SetReconnecting(true)
			p.store.SetConnectionError(change.Err.Error())
		} else {
			p.store.SetReconnecting(false)
		}

	case transport.StateFailed:
		p.store.SetConnected(false)
		p.store.SetReconnecting(false)
		p.store.SetReconnectAttempts(change.Attempt)
		p.store.SetConnectionError(errorMessage(change.Err))
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
