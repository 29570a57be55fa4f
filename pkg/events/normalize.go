package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/agentstation/hitlfeed/pkg/constants"
)

// maxSalvagedBytes bounds how much of an unparseable payload is kept on the error event.
const maxSalvagedBytes = 512

// Normalizer converts raw transport payloads into SystemEvents.
// It is safe for concurrent use.
type Normalizer struct {
	ids    *IDGenerator
	now    func() time.Time
	logger *zerolog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock overrides the time source used when a payload has no usable timestamp.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithIDGenerator sets the generator used for events without a producer ID.
func WithIDGenerator(ids *IDGenerator) NormalizerOption {
	return func(n *Normalizer) {
		if ids != nil {
			n.ids = ids
		}
	}
}

// WithLogger sets the logger used to report degraded payloads.
func WithLogger(logger *zerolog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	nop := zerolog.Nop()
	n := &Normalizer{
		ids:    NewIDGenerator(),
		now:    time.Now,
		logger: &nop,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds a SystemEvent from a transport-level type and payload.
//
// Object payloads become the event data as-is, JSON bytes are decoded first,
// and any other value is wrapped as {"value": raw}. The timestamp comes from
// the payload's "timestamp" field when parseable, otherwise the current time.
// Events relayed by another hitlfeed instance keep their id so redeliveries
// can be recognized; every other event gets a fresh id, and a payload "id"
// field stays in the data untouched.
//
// Normalize never panics. A payload that cannot be interpreted yields an
// event of type "error" describing the failure.
func (n *Normalizer) Normalize(rawType string, raw any) (event SystemEvent) {
	defer func() {
		if r := recover(); r != nil {
			event = n.failure(rawType, fmt.Errorf("normalize panic: %v", r), nil)
		}
	}()

	data, err := toData(raw)
	if err != nil {
		return n.failure(rawType, err, raw)
	}

	id := ""
	ts, hasTS := parseTime(data["timestamp"])
	if env, ok := unwrapEnvelope(data); ok {
		id = env.id
		if rawType == "" {
			rawType = env.typ
		}
		if env.hasTS {
			ts, hasTS = env.ts, true
		}
		data = env.data
	}
	if id == "" {
		id = n.ids.Next()
	}
	if !hasTS {
		ts = n.now()
	}

	return SystemEvent{
		ID:        id,
		Type:      resolveType(rawType, data),
		Timestamp: ts,
		Data:      data,
	}
}

// failure builds the best-effort error event for an unusable payload.
func (n *Normalizer) failure(rawType string, cause error, raw any) SystemEvent {
	data := Data{
		"message":       cause.Error(),
		"original_type": rawType,
	}
	if salvaged := salvage(raw); salvaged != "" {
		data["raw"] = salvaged
	}

	n.logger.Warn().
		Err(cause).
		Str("event_type", rawType).
		Msg("Payload could not be normalized")

	return SystemEvent{
		ID:        n.ids.Next(),
		Type:      Error,
		Timestamp: n.now(),
		Data:      data,
	}
}

func resolveType(rawType string, data Data) EventType {
	if t := strings.TrimSpace(rawType); t != "" && t != constants.WildcardEventType {
		return EventType(t)
	}
	if t, ok := data["type"].(string); ok && strings.TrimSpace(t) != "" {
		return EventType(strings.TrimSpace(t))
	}
	return EventType(constants.FallbackEventType)
}

// toData interprets a raw payload as an event data map.
func toData(raw any) (Data, error) {
	switch v := raw.(type) {
	case nil:
		return Data{}, nil
	case Data:
		return maps.Clone(v), nil
	case map[string]any:
		return Data(maps.Clone(v)), nil
	case json.RawMessage:
		return decodeJSON(v)
	case []byte:
		return decodeJSON(v)
	case string, bool, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Data{"value": v}, nil
	}

	if m, err := cast.ToStringMapE(raw); err == nil {
		return Data(m), nil
	}
	return Data{"value": raw}, nil
}

func decodeJSON(b []byte) (Data, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Data{}, nil
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	switch v := decoded.(type) {
	case map[string]any:
		return Data(v), nil
	case nil:
		return Data{}, nil
	default:
		return Data{"value": v}, nil
	}
}

// envelope is the shape of an already-normalized event, as relayed by another
// hitlfeed instance: {"id", "type", "timestamp", "data"} and nothing else.
type envelope struct {
	id    string
	typ   string
	ts    time.Time
	hasTS bool
	data  Data
}

func unwrapEnvelope(d Data) (envelope, bool) {
	id, ok := d["id"].(string)
	if id = strings.TrimSpace(id); !ok || id == "" {
		return envelope{}, false
	}
	for k := range d {
		switch k {
		case "id", "type", "timestamp", "data":
		default:
			return envelope{}, false
		}
	}
	var nested Data
	switch v := d["data"].(type) {
	case map[string]any:
		nested = Data(v)
	case Data:
		nested = v
	case nil:
		if _, present := d["data"]; !present {
			return envelope{}, false
		}
		nested = Data{}
	default:
		return envelope{}, false
	}
	env := envelope{id: id, data: nested}
	env.typ, _ = d["type"].(string)
	env.ts, env.hasTS = parseTime(d["timestamp"])
	return env, true
}

func salvage(raw any) string {
	var s string
	switch v := raw.(type) {
	case []byte:
		s = string(v)
	case json.RawMessage:
		s = string(v)
	case string:
		s = v
	default:
		return ""
	}
	if len(s) > maxSalvagedBytes {
		s = s[:maxSalvagedBytes]
	}
	return s
}
