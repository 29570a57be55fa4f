package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

func newPipeline() *ingest.Pipeline {
	return ingest.New(feed.NewStore())
}

func TestOptionsEmpty(t *testing.T) {
	assert.True(t, Options{}.Empty())
	assert.False(t, Options{Simulate: true}.Empty())
	assert.False(t, Options{URL: "ws://localhost:1"}.Empty())
}

func TestStartSimulator(t *testing.T) {
	p := newPipeline()
	r, err := Start(context.Background(), p, Options{Simulate: true, Interval: time.Millisecond, Seed: 7}, nil)
	require.NoError(t, err)
	assert.Nil(t, r.Client())
	assert.True(t, p.Store().Connection().Connected)

	require.Eventually(t, func() bool { return p.Store().Len() >= 3 }, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	n := p.Store().Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, p.Store().Len(), "no events after Stop")
	assert.False(t, p.Store().Connection().Connected)
	r.Stop()
}

func TestStartUpstream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"gate.created","gate_id":"g1"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p := newPipeline()
	r, err := Start(context.Background(), p, Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	require.NoError(t, err)
	defer r.Stop()
	require.NotNil(t, r.Client())

	require.Eventually(t, func() bool { return p.Store().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, events.GateCreated, p.Store().Events()[0].Type)
	assert.True(t, p.Store().Connection().Connected)

	r.Stop()
	assert.False(t, p.Store().Connection().Connected)
	assert.Zero(t, r.Client().HandlerCount())
}

func TestStartCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Start(ctx, newPipeline(), Options{URL: "ws://localhost:1"}, nil)
	assert.Error(t, err)
}
