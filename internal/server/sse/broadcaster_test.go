package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, b.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestBroadcaster_BasicOperation tests registration and broadcast.
func TestBroadcaster_BasicOperation(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroadcaster(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	client := make(chan Event, 8)
	b.newClients <- client
	waitForClients(t, b, 1)

	b.Broadcast(Event{Event: "gate.created", ID: "evt_1", Data: map[string]any{"gate_id": "g1"}})

	select {
	case received := <-client:
		if received.Event != "gate.created" || received.ID != "evt_1" {
			t.Errorf("unexpected event: %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
}

// TestBroadcaster_Shutdown tests that cancelling Run closes client streams.
func TestBroadcaster_Shutdown(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroadcaster(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	client := make(chan Event, 8)
	b.newClients <- client
	waitForClients(t, b, 1)

	cancel()
	select {
	case _, ok := <-client:
		if ok {
			t.Error("expected closed client channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client channel not closed on shutdown")
	}
	if count := b.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", count)
	}
}

// TestBroadcaster_ServeHTTP tests the wire format of a live stream.
func TestBroadcaster_ServeHTTP(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroadcaster(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if line == "\n" {
				return sb.String()
			}
			sb.WriteString(line)
		}
	}

	if hello := readFrame(); !strings.HasPrefix(hello, "event: connected\n") {
		t.Fatalf("expected connected frame first, got %q", hello)
	}

	waitForClients(t, b, 1)
	b.Broadcast(Event{Event: "run.started", ID: "evt_7", Data: map[string]any{"run_id": "r7"}})

	frame := readFrame()
	want := "event: run.started\nid: evt_7\ndata: {\"run_id\":\"r7\"}\n"
	if frame != want {
		t.Errorf("frame mismatch\nwant %q\ngot  %q", want, frame)
	}
}

// TestBroadcaster_ServeAfterShutdown tests that a stopped broadcaster refuses streams.
func TestBroadcaster_ServeAfterShutdown(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroadcaster(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
