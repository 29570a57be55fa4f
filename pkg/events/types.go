// Package events defines the SystemEvent record that flows through the feed
// and the normalizer that turns raw transport payloads into it.
//
// The set of event types is open: the constants below name the types the
// dashboard knows how to describe, but any other type string is carried
// through unchanged and rendered generically.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies what happened, conventionally "<domain>.<verb>".
type EventType string

// Known event types.
const (
	// Run lifecycle.
	RunStarted   EventType = "run.started"
	RunCompleted EventType = "run.completed"
	RunFailed    EventType = "run.failed"

	// Approval gates.
	GateCreated EventType = "gate.created"
	GateDecided EventType = "gate.decided"

	// Produced artifacts.
	ArtifactCreated  EventType = "artifact.created"
	ArtifactApproved EventType = "artifact.approved"

	// Agent sessions.
	SessionStarted   EventType = "session.started"
	SessionCompleted EventType = "session.completed"

	// Error is emitted by producers and by the normalizer for unusable payloads.
	Error EventType = "error"
)

var knownTypes = []EventType{
	RunStarted, RunCompleted, RunFailed,
	GateCreated, GateDecided,
	ArtifactCreated, ArtifactApproved,
	SessionStarted, SessionCompleted,
	Error,
}

// KnownTypes returns the event types with dedicated descriptions, in display order.
func KnownTypes() []EventType {
	out := make([]EventType, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// IsKnown reports whether t is one of the known event types.
func (t EventType) IsKnown() bool {
	for _, k := range knownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Domain returns the part before the first dot, or the whole type when there is none.
func (t EventType) Domain() string {
	domain, _, _ := strings.Cut(string(t), ".")
	return domain
}

// Verb returns the part after the first dot, or "" when there is none.
func (t EventType) Verb() string {
	_, verb, _ := strings.Cut(string(t), ".")
	return verb
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return string(t)
}

// SystemEvent is one normalized occurrence reported by the upstream system.
// ID is the only identity used for de-duplication and list keys.
type SystemEvent struct {
	ID        string    `json:"id" yaml:"id"`
	Type      EventType `json:"type" yaml:"type"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Data      Data      `json:"data" yaml:"data"`
}

// HasPayload reports whether the event carries any payload fields.
func (e SystemEvent) HasPayload() bool {
	return len(e.Data) > 0
}

// PayloadJSON renders the payload as indented JSON for inspection.
// It never fails: unrenderable payloads produce a placeholder.
func (e SystemEvent) PayloadJSON() (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<unrenderable payload: %v>", r)
		}
	}()
	if e.Data == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unrenderable payload: %v>", err)
	}
	return string(b)
}
