package feed_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

func testEvent(i int, typ events.EventType) events.SystemEvent {
	return events.SystemEvent{
		ID:        fmt.Sprintf("evt_%d", i),
		Type:      typ,
		Timestamp: time.Unix(int64(i), 0),
		Data:      events.Data{"n": i},
	}
}

func eventIDs(evts []events.SystemEvent) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.ID
	}
	return out
}

func TestStoreCapScenario(t *testing.T) {
	store := feed.NewStore()
	for i := 0; i < 150; i++ {
		store.AddEvent(testEvent(i, events.RunStarted))
	}

	want := make([]string, 0, 100)
	for i := 50; i < 150; i++ {
		want = append(want, fmt.Sprintf("evt_%d", i))
	}
	assert.Equal(t, want, eventIDs(store.Events()))
	assert.Equal(t, 100, store.Len())

	stats := store.Stats()
	assert.Equal(t, uint64(150), stats.Ingested)
	assert.Equal(t, uint64(50), stats.Evicted)
	assert.Equal(t, 100, stats.Capacity)
}

func TestStoreCapInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		n := rapid.IntRange(0, 80).Draw(t, "n")
		store := feed.NewStore(feed.WithCapacity(capacity))

		for i := 0; i < n; i++ {
			store.AddEvent(testEvent(i, events.GateCreated))
		}

		got := eventIDs(store.Events())
		first := n - capacity
		if first < 0 {
			first = 0
		}
		if len(got) != n-first {
			t.Fatalf("size %d, want %d", len(got), n-first)
		}
		for i, id := range got {
			if want := fmt.Sprintf("evt_%d", first+i); id != want {
				t.Fatalf("position %d: %s, want %s", i, id, want)
			}
		}
	})
}

func TestStoreNotifiesBeforeReturning(t *testing.T) {
	store := feed.NewStore(feed.WithCapacity(2))

	var changes []feed.Change
	unsubscribe := store.Subscribe(func(c feed.Change) {
		changes = append(changes, c)
	})
	defer unsubscribe()

	store.AddEvent(testEvent(0, events.RunStarted))
	require.Len(t, changes, 1)
	assert.Equal(t, feed.EventAdded, changes[0].Kind)
	assert.Equal(t, "evt_0", changes[0].Event.ID)
	assert.Empty(t, changes[0].Evicted)

	store.AddEvent(testEvent(1, events.RunStarted))
	store.AddEvent(testEvent(2, events.RunStarted))
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"evt_0"}, eventIDs(changes[2].Evicted))
	assert.Equal(t, []string{"evt_1", "evt_2"}, eventIDs(changes[2].Events))

	store.ClearEvents()
	require.Len(t, changes, 4)
	assert.Equal(t, feed.EventsCleared, changes[3].Kind)
	assert.Empty(t, changes[3].Events)
}

func TestStoreListenersSeeSameEviction(t *testing.T) {
	store := feed.NewStore(feed.WithCapacity(3))
	var a, b [][]string
	defer store.Subscribe(func(c feed.Change) { a = append(a, eventIDs(c.Events)) })()
	defer store.Subscribe(func(c feed.Change) { b = append(b, eventIDs(c.Events)) })()

	for i := 0; i < 10; i++ {
		store.AddEvent(testEvent(i, events.RunStarted))
	}
	assert.Equal(t, a, b)
	assert.Len(t, a, 10)
}

func TestStoreConcurrentWritersSerializeNotifications(t *testing.T) {
	store := feed.NewStore()

	var mu sync.Mutex
	var sizes []int
	defer store.Subscribe(func(c feed.Change) {
		mu.Lock()
		sizes = append(sizes, len(c.Events))
		mu.Unlock()
	})()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.AddEvent(testEvent(w*1000+i, events.RunStarted))
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sizes, 200)
	// Notifications arrive in mutation order: sizes grow to the cap and stay there.
	for i, size := range sizes {
		want := i + 1
		if want > 100 {
			want = 100
		}
		assert.Equal(t, want, size, "notification %d", i)
	}
}

func TestStoreUnsubscribeIdempotent(t *testing.T) {
	store := feed.NewStore()
	calls := 0
	unsubscribe := store.Subscribe(func(feed.Change) { calls++ })
	other := 0
	defer store.Subscribe(func(feed.Change) { other++ })()

	store.AddEvent(testEvent(0, events.RunStarted))
	unsubscribe()
	unsubscribe()
	store.AddEvent(testEvent(1, events.RunStarted))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
	assert.Equal(t, 1, store.ListenerCount())
}

func TestStoreUnsubscribeFromListener(t *testing.T) {
	store := feed.NewStore()
	calls := 0
	var unsubscribe func()
	unsubscribe = store.Subscribe(func(feed.Change) {
		calls++
		unsubscribe()
	})

	store.AddEvent(testEvent(0, events.RunStarted))
	store.AddEvent(testEvent(1, events.RunStarted))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, store.ListenerCount())
}

func TestStoreListenerPanicDoesNotBreakIngestion(t *testing.T) {
	store := feed.NewStore()
	after := 0
	defer store.Subscribe(func(feed.Change) { panic("view bug") })()
	defer store.Subscribe(func(feed.Change) { after++ })()

	assert.NotPanics(t, func() {
		store.AddEvent(testEvent(0, events.RunStarted))
	})
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, after)
}

func TestStoreConnectionState(t *testing.T) {
	store := feed.NewStore()
	assert.Equal(t, feed.ConnectionState{}, store.Connection())

	var kinds []feed.ChangeKind
	defer store.Subscribe(func(c feed.Change) { kinds = append(kinds, c.Kind) })()

	store.SetReconnecting(true)
	store.SetReconnectAttempts(3)
	store.SetConnectionError("dial tcp: refused")
	assert.Equal(t, feed.ConnectionState{
		Reconnecting:      true,
		ReconnectAttempts: 3,
		LastError:         "dial tcp: refused",
	}, store.Connection())

	store.SetConnected(true)
	assert.Equal(t, feed.ConnectionState{Connected: true}, store.Connection())

	// no-op updates do not notify
	store.SetConnected(true)
	store.SetConnectionError("")
	assert.Equal(t, []feed.ChangeKind{
		feed.ConnectionChanged, feed.ConnectionChanged, feed.ConnectionChanged, feed.ConnectionChanged,
	}, kinds)

	store.SetReconnectAttempts(-4)
	assert.Equal(t, 0, store.Connection().ReconnectAttempts)
}

func TestStoreClearKeepsConnectionAndListeners(t *testing.T) {
	store := feed.NewStore()
	store.SetConnected(true)
	defer store.Subscribe(func(feed.Change) {})()
	store.AddEvent(testEvent(0, events.RunStarted))

	store.ClearEvents()

	assert.Equal(t, 0, store.Len())
	assert.True(t, store.Connection().Connected)
	assert.Equal(t, 1, store.ListenerCount())
	assert.Equal(t, uint64(1), store.Stats().Cleared)

	store.AddEvent(testEvent(1, events.RunStarted))
	assert.Equal(t, []string{"evt_1"}, eventIDs(store.Events()))
}

func TestStoreFind(t *testing.T) {
	store := feed.NewStore(feed.WithCapacity(2))
	for i := 0; i < 3; i++ {
		store.AddEvent(testEvent(i, events.RunStarted))
	}
	_, ok := store.Find("evt_0")
	assert.False(t, ok)
	e, ok := store.Find("evt_2")
	assert.True(t, ok)
	assert.Equal(t, 2, e.Data.Int("n"))
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "event_added", feed.EventAdded.String())
	assert.Equal(t, "events_cleared", feed.EventsCleared.String())
	assert.Equal(t, "connection_changed", feed.ConnectionChanged.String())
	assert.Equal(t, "unknown", feed.ChangeKind(0).String())
}
