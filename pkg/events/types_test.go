package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/hitlfeed/pkg/events"
)

func TestEventTypeParts(t *testing.T) {
	tests := []struct {
		typ    events.EventType
		domain string
		verb   string
		known  bool
	}{
		{events.RunFailed, "run", "failed", true},
		{events.GateDecided, "gate", "decided", true},
		{events.Error, "error", "", true},
		{"deploy.rolled.back", "deploy", "rolled.back", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.domain, tt.typ.Domain())
			assert.Equal(t, tt.verb, tt.typ.Verb())
			assert.Equal(t, tt.known, tt.typ.IsKnown())
		})
	}
}

func TestKnownTypesIsACopy(t *testing.T) {
	types := events.KnownTypes()
	assert.Len(t, types, 10)
	types[0] = "mutated"
	assert.Equal(t, events.RunStarted, events.KnownTypes()[0])
}

func TestDataAccessors(t *testing.T) {
	d := events.Data{
		"name":    "deploy",
		"count":   "12",
		"ratio":   0.5,
		"ok":      "true",
		"when":    "2025-01-02T03:04:05Z",
		"millis":  float64(1700000000123),
		"nested":  map[string]any{"k": "v"},
		"garbage": []int{1},
	}

	assert.Equal(t, "deploy", d.String("name"))
	assert.Equal(t, "", d.String("garbage"))
	assert.Equal(t, "fallback", d.StringOr("missing", "fallback"))
	assert.Equal(t, 12, d.Int("count"))
	assert.Equal(t, 0, d.Int("name"))
	assert.Equal(t, 0.5, d.Float("ratio"))
	assert.True(t, d.Bool("ok"))
	assert.False(t, d.Bool("missing"))
	assert.True(t, d.Has("garbage"))
	assert.Equal(t, events.Data{"k": "v"}, d.Map("nested"))
	assert.Nil(t, d.Map("name"))

	when, ok := d.Time("when")
	assert.True(t, ok)
	assert.True(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).Equal(when))

	millis, ok := d.Time("millis")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000123), millis.UnixMilli())

	_, ok = d.Time("missing")
	assert.False(t, ok)

	var nilData events.Data
	assert.Equal(t, "", nilData.String("x"))
}
