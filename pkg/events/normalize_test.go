package events_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/agentstation/hitlfeed/pkg/events"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newNormalizer() *events.Normalizer {
	return events.NewNormalizer(events.WithClock(func() time.Time { return fixedNow }))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		description string
		rawType     string
		payload     any
		wantType    events.EventType
		wantData    events.Data
		wantTime    time.Time
	}{
		{
			name:        "object payload",
			description: "maps become the data verbatim and the timestamp is parsed",
			rawType:     "gate.created",
			payload:     map[string]any{"gate_id": "g1", "timestamp": "2025-01-02T03:04:05Z"},
			wantType:    events.GateCreated,
			wantData:    events.Data{"gate_id": "g1", "timestamp": "2025-01-02T03:04:05Z"},
			wantTime:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:        "missing timestamp",
			description: "falls back to the clock",
			rawType:     "run.started",
			payload:     map[string]any{"run_id": "r1"},
			wantType:    events.RunStarted,
			wantData:    events.Data{"run_id": "r1"},
			wantTime:    fixedNow,
		},
		{
			name:        "unparseable timestamp",
			description: "garbage timestamps fall back to the clock",
			rawType:     "run.started",
			payload:     map[string]any{"timestamp": "yesterday-ish"},
			wantType:    events.RunStarted,
			wantData:    events.Data{"timestamp": "yesterday-ish"},
			wantTime:    fixedNow,
		},
		{
			name:        "epoch seconds",
			description: "numeric timestamps are unix seconds",
			rawType:     "run.completed",
			payload:     map[string]any{"timestamp": float64(1700000000)},
			wantType:    events.RunCompleted,
			wantData:    events.Data{"timestamp": float64(1700000000)},
			wantTime:    time.Unix(1700000000, 0),
		},
		{
			name:        "string payload",
			description: "non-object payloads are wrapped",
			rawType:     "custom.thing",
			payload:     "hello",
			wantType:    "custom.thing",
			wantData:    events.Data{"value": "hello"},
			wantTime:    fixedNow,
		},
		{
			name:        "number payload",
			rawType:     "custom.count",
			payload:     42,
			wantType:    "custom.count",
			wantData:    events.Data{"value": 42},
			wantTime:    fixedNow,
		},
		{
			name:        "nil payload",
			rawType:     "session.completed",
			payload:     nil,
			wantType:    events.SessionCompleted,
			wantData:    events.Data{},
			wantTime:    fixedNow,
		},
		{
			name:        "json bytes",
			description: "raw frames are decoded before interpretation",
			rawType:     "artifact.created",
			payload:     []byte(`{"artifact_id":"a1"}`),
			wantType:    events.ArtifactCreated,
			wantData:    events.Data{"artifact_id": "a1"},
			wantTime:    fixedNow,
		},
		{
			name:        "json array",
			rawType:     "custom.list",
			payload:     json.RawMessage(`[1,2]`),
			wantType:    "custom.list",
			wantData:    events.Data{"value": []any{float64(1), float64(2)}},
			wantTime:    fixedNow,
		},
		{
			name:        "type from payload",
			description: "an empty transport type falls back to the payload's type",
			rawType:     "",
			payload:     map[string]any{"type": "gate.decided", "decision": "approved"},
			wantType:    events.GateDecided,
			wantData:    events.Data{"type": "gate.decided", "decision": "approved"},
			wantTime:    fixedNow,
		},
		{
			name:     "no type anywhere",
			rawType:  "",
			payload:  map[string]any{"x": 1},
			wantType: "unknown",
			wantData: events.Data{"x": 1},
			wantTime: fixedNow,
		},
	}

	n := newNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.rawType, tt.payload)
			assert.Equal(t, tt.wantType, got.Type, tt.description)
			assert.Equal(t, tt.wantData, got.Data, tt.description)
			assert.True(t, tt.wantTime.Equal(got.Timestamp), "timestamp %v != %v", got.Timestamp, tt.wantTime)
			assert.True(t, strings.HasPrefix(got.ID, "evt_"), got.ID)
		})
	}
}

func TestNormalizeInvalidJSON(t *testing.T) {
	n := newNormalizer()

	got := n.Normalize("gate.created", []byte(`{"gate_id": `))

	assert.Equal(t, events.Error, got.Type)
	assert.Equal(t, "gate.created", got.Data.String("original_type"))
	assert.Contains(t, got.Data.String("message"), "invalid JSON payload")
	assert.Equal(t, `{"gate_id":`, got.Data.String("raw"))
	assert.NotEmpty(t, got.ID)
}

func TestNormalizeAssignsFreshIDs(t *testing.T) {
	n := newNormalizer()

	created := n.Normalize("gate.created", map[string]any{"id": "g1"})
	decided := n.Normalize("gate.decided", map[string]any{"id": "g1"})

	assert.NotEqual(t, created.ID, decided.ID)
	assert.True(t, strings.HasPrefix(created.ID, "evt_"))
	assert.True(t, strings.HasPrefix(decided.ID, "evt_"))
	assert.Equal(t, "g1", created.Data.String("id"))
	assert.Equal(t, "g1", decided.Data.String("id"))

	// extra keys mean this is a producer payload, not a relayed event
	withData := n.Normalize("run.started", map[string]any{"id": "run-42", "data": map[string]any{}, "run_id": "run-42"})
	assert.NotEqual(t, "run-42", withData.ID)
	assert.Equal(t, "run-42", withData.Data.String("run_id"))
}

func TestNormalizeRelayedEnvelope(t *testing.T) {
	n := newNormalizer()
	frame := []byte(`{"id":"evt_9_abc","type":"gate.decided","timestamp":"2025-02-03T04:05:06Z","data":{"gate_id":"g2","decision":"rejected"}}`)

	got := n.Normalize("", frame)

	assert.Equal(t, "evt_9_abc", got.ID)
	assert.Equal(t, events.GateDecided, got.Type)
	assert.Equal(t, events.Data{"gate_id": "g2", "decision": "rejected"}, got.Data)
	assert.True(t, time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC).Equal(got.Timestamp))
}

func TestNormalizeDoesNotAliasProducerMap(t *testing.T) {
	n := newNormalizer()
	payload := map[string]any{"k": "v"}

	got := n.Normalize("run.started", payload)
	payload["k"] = "changed"

	assert.Equal(t, "v", got.Data["k"])
}

func TestNormalizeUniqueIDs(t *testing.T) {
	n := newNormalizer()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := n.Normalize("run.started", nil).ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNormalizeNeverPanics(t *testing.T) {
	n := newNormalizer()

	rapid.Check(t, func(t *rapid.T) {
		rawType := rapid.OneOf(
			rapid.Just(""),
			rapid.SampledFrom([]string{"run.started", "gate.created", "error", "*"}),
			rapid.String(),
		).Draw(t, "type")
		payload := anyPayload().Draw(t, "payload")

		var got events.SystemEvent
		assert.NotPanics(t, func() {
			got = n.Normalize(rawType, payload)
		})

		if got.ID == "" {
			t.Fatalf("empty id for payload %#v", payload)
		}
		if got.Type == "" {
			t.Fatalf("empty type for %q", rawType)
		}
		if got.Timestamp.IsZero() {
			t.Fatalf("zero timestamp")
		}
		if got.Data == nil {
			t.Fatalf("nil data")
		}
		if got.PayloadJSON() == "" {
			t.Fatalf("empty payload rendering")
		}
	})
}

func anyPayload() *rapid.Generator[any] {
	scalar := rapid.OneOf(
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.Int(), func(i int) any { return i }),
		rapid.Map(rapid.Float64(), func(f float64) any { return f }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Just[any](nil),
	)
	return rapid.OneOf(
		scalar,
		rapid.Map(rapid.SliceOf(rapid.Byte()), func(b []byte) any { return b }),
		rapid.Map(rapid.String(), func(s string) any { return json.RawMessage(s) }),
		rapid.Map(rapid.MapOf(rapid.String(), scalar), func(m map[string]any) any { return m }),
		rapid.Map(rapid.SliceOf(scalar), func(s []any) any { return s }),
	)
}

func TestPayloadJSON(t *testing.T) {
	t.Run("renders indented json", func(t *testing.T) {
		e := events.SystemEvent{Data: events.Data{"a": 1}}
		assert.Equal(t, "{\n  \"a\": 1\n}", e.PayloadJSON())
		assert.True(t, e.HasPayload())
	})

	t.Run("empty", func(t *testing.T) {
		e := events.SystemEvent{}
		assert.Equal(t, "{}", e.PayloadJSON())
		assert.False(t, e.HasPayload())
	})

	t.Run("cyclic payload", func(t *testing.T) {
		cyclic := map[string]any{}
		cyclic["self"] = cyclic
		e := events.SystemEvent{Data: events.Data{"loop": cyclic}}
		assert.Contains(t, e.PayloadJSON(), "unrenderable payload")
	})

	t.Run("unsupported value", func(t *testing.T) {
		e := events.SystemEvent{Data: events.Data{"ch": make(chan int)}}
		assert.Contains(t, e.PayloadJSON(), "unrenderable payload")
	})
}
