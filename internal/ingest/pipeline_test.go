package ingest_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/transport"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// fakeSource records subscriptions and lets the test push frames and states.
type fakeSource struct {
	handlers map[int]transport.Handler
	states   map[int]func(transport.StateChange)
	next     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		handlers: make(map[int]transport.Handler),
		states:   make(map[int]func(transport.StateChange)),
	}
}

type fakeSub struct {
	src *fakeSource
	id  int
}

func (s fakeSub) Unsubscribe() { delete(s.src.handlers, s.id) }

func (f *fakeSource) Subscribe(eventType string, h transport.Handler) transport.Subscription {
	f.next++
	f.handlers[f.next] = h
	return fakeSub{src: f, id: f.next}
}

func (f *fakeSource) OnStateChange(fn func(transport.StateChange)) func() {
	f.next++
	id := f.next
	f.states[id] = fn
	return func() { delete(f.states, id) }
}

func (f *fakeSource) push(eventType, frame string) {
	for _, h := range f.handlers {
		h(eventType, json.RawMessage(frame))
	}
}

func (f *fakeSource) state(c transport.StateChange) {
	for _, fn := range f.states {
		fn(c)
	}
}

func TestPipelineIngest(t *testing.T) {
	store := feed.NewStore()
	p := ingest.New(store)

	e, added := p.Ingest("gate.created", map[string]any{"gate_id": "g1"})
	require.True(t, added)
	assert.Equal(t, events.GateCreated, e.Type)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, "g1", store.Events()[0].Data.String("gate_id"))
}

// relayed builds the frame another hitlfeed instance sends for an event.
func relayed(id, typ string) map[string]any {
	return map[string]any{"id": id, "type": typ, "data": map[string]any{}}
}

func TestPipelineDropsRedeliveries(t *testing.T) {
	store := feed.NewStore()
	p := ingest.New(store)

	_, first := p.Ingest("", relayed("evt_1_up", "run.started"))
	_, second := p.Ingest("", relayed("evt_1_up", "run.started"))
	_, other := p.Ingest("", relayed("evt_2_up", "run.started"))

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, other)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, uint64(1), p.Duplicates())

	p.Forget()
	_, again := p.Ingest("", relayed("evt_1_up", "run.started"))
	assert.True(t, again)
}

func TestPipelineKeepsEventsSharingPayloadID(t *testing.T) {
	store := feed.NewStore()
	p := ingest.New(store)

	started, ok1 := p.Ingest("run.started", map[string]any{"type": "run.started", "id": "run-42"})
	completed, ok2 := p.Ingest("run.completed", map[string]any{"type": "run.completed", "id": "run-42"})

	require.True(t, ok1)
	require.True(t, ok2)
	assert.NotEqual(t, started.ID, completed.ID)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, uint64(0), p.Duplicates())

	found, ok := store.Find(completed.ID)
	require.True(t, ok)
	assert.Equal(t, events.RunCompleted, found.Type)
	assert.Equal(t, "run-42", found.Data.String("id"))
}

func TestPipelineDedupDisabled(t *testing.T) {
	store := feed.NewStore()
	p := ingest.New(store, ingest.WithDedupSize(0))

	p.Ingest("", relayed("same", "run.started"))
	p.Ingest("", relayed("same", "run.started"))
	assert.Equal(t, 2, store.Len())
}

func TestPipelineAttach(t *testing.T) {
	store := feed.NewStore()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := ingest.New(store, ingest.WithNormalizer(events.NewNormalizer(events.WithClock(func() time.Time { return fixed }))))
	src := newFakeSource()

	detach := p.Attach(src)

	src.push("session.started", `{"type":"session.started","session_id":"s1"}`)
	src.push("", `{"broken"`)

	evts := store.Events()
	require.Len(t, evts, 2)
	assert.Equal(t, events.SessionStarted, evts[0].Type)
	assert.Equal(t, "s1", evts[0].Data.String("session_id"))
	assert.Equal(t, events.Error, evts[1].Type)
	assert.True(t, fixed.Equal(evts[1].Timestamp))

	detach()
	detach()
	assert.Empty(t, src.handlers)
	assert.Empty(t, src.states)

	src.push("run.started", `{}`)
	assert.Equal(t, 2, store.Len())
}

func TestPipelineHandleState(t *testing.T) {
	store := feed.NewStore()
	p := ingest.New(store)
	src := newFakeSource()
	defer p.Attach(src)()

	boom := errors.New("connection refused")

	src.state(transport.StateChange{State: transport.StateReconnecting, Attempt: 2, Err: boom})
	assert.Equal(t, feed.ConnectionState{
		Reconnecting:      true,
		ReconnectAttempts: 2,
		LastError:         "connection refused",
	}, store.Connection())

	src.state(transport.StateChange{State: transport.StateConnected})
	assert.Equal(t, feed.ConnectionState{Connected: true}, store.Connection())

	src.state(transport.StateChange{State: transport.StateDisconnected, Err: boom})
	assert.Equal(t, feed.ConnectionState{Reconnecting: true, LastError: "connection refused"}, store.Connection())

	src.state(transport.StateChange{State: transport.StateFailed, Attempt: 5, Err: boom})
	assert.Equal(t, feed.ConnectionState{ReconnectAttempts: 5, LastError: "connection refused"}, store.Connection())

	src.state(transport.StateChange{State: transport.StateConnected})
	src.state(transport.StateChange{State: transport.StateDisconnected})
	assert.Equal(t, feed.ConnectionState{}, store.Connection())
}
