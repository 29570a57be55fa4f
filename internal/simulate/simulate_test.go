package simulate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

type recordingIngester struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingIngester) Ingest(rawType string, _ any) (events.SystemEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, rawType)
	return events.SystemEvent{Type: events.EventType(rawType)}, true
}

func (r *recordingIngester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.types)
}

func TestLifecycleShape(t *testing.T) {
	s := New(nil, WithSeed(1))

	for i := 0; i < 50; i++ {
		steps := s.Lifecycle()
		require.GreaterOrEqual(t, len(steps), 7)
		assert.Equal(t, events.SessionStarted, steps[0].Type)
		assert.Equal(t, events.RunStarted, steps[1].Type)
		assert.Equal(t, events.SessionCompleted, steps[len(steps)-1].Type)

		var outcome events.EventType
		for _, st := range steps {
			if st.Type == events.RunCompleted || st.Type == events.RunFailed {
				outcome = st.Type
			}
		}
		assert.NotEmpty(t, outcome, "every run has an outcome")
	}
}

func TestLifecycleDescribesWithoutFallback(t *testing.T) {
	s := New(nil, WithSeed(7), WithErrorRate(1))
	for _, st := range s.Lifecycle() {
		e := events.SystemEvent{Type: st.Type, Data: st.Payload}
		assert.NotContains(t, projection.Describe(e), "Event:", "type %s", st.Type)
	}
}

func TestFailureRateExtremes(t *testing.T) {
	always := New(nil, WithSeed(3), WithFailureRate(5))
	never := New(nil, WithSeed(3), WithFailureRate(-1))

	hasType := func(steps []Step, typ events.EventType) bool {
		for _, st := range steps {
			if st.Type == typ {
				return true
			}
		}
		return false
	}

	for i := 0; i < 20; i++ {
		assert.True(t, hasType(always.Lifecycle(), events.RunFailed))
		assert.False(t, hasType(never.Lifecycle(), events.RunFailed))
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a := New(nil, WithSeed(42))
	b := New(nil, WithSeed(42))
	assert.Equal(t, a.Lifecycle(), b.Lifecycle())
}

func TestRunEmitsUntilCancelled(t *testing.T) {
	target := &recordingIngester{}
	s := New(target, WithSeed(9), WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return target.count() >= 10 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	assert.Equal(t, string(events.SessionStarted), target.types[0])
}
