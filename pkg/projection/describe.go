package projection

import (
	"fmt"
	"strings"

	"github.com/agentstation/hitlfeed/pkg/events"
)

// Describe renders a one-line sentence for an event. Unrecognized types
// render as "Event: <type>". Describe never panics and never returns "".
func Describe(e events.SystemEvent) string {
	d := e.Data
	switch e.Type {
	case events.RunStarted:
		return withSubject("Run", d.StringOr("run_id", d.String("name")), "started")
	case events.RunCompleted:
		s := withSubject("Run", d.StringOr("run_id", d.String("name")), "completed")
		if dur := d.String("duration"); dur != "" {
			s += " in " + dur
		}
		return s
	case events.RunFailed:
		s := withSubject("Run", d.StringOr("run_id", d.String("name")), "failed")
		if reason := d.StringOr("error", d.String("reason")); reason != "" {
			s += ": " + reason
		}
		return s
	case events.GateCreated:
		s := withSubject("Gate", d.StringOr("gate_id", d.String("name")), "awaiting approval")
		if stage := d.String("stage"); stage != "" {
			s += " at " + stage
		}
		return s
	case events.GateDecided:
		decision := d.StringOr("decision", "decided")
		s := withSubject("Gate", d.StringOr("gate_id", d.String("name")), decision)
		if by := d.StringOr("decided_by", d.String("reviewer")); by != "" {
			s += " by " + by
		}
		return s
	case events.ArtifactCreated:
		return withSubject("Artifact", d.StringOr("name", d.String("artifact_id")), "created")
	case events.ArtifactApproved:
		return withSubject("Artifact", d.StringOr("name", d.String("artifact_id")), "approved")
	case events.SessionStarted:
		s := withSubject("Session", d.String("session_id"), "started")
		if agent := d.String("agent"); agent != "" {
			s += " by " + agent
		}
		return s
	case events.SessionCompleted:
		return withSubject("Session", d.String("session_id"), "completed")
	case events.Error:
		if msg := d.String("message"); msg != "" {
			return "Error: " + msg
		}
	}
	return fallback(e.Type)
}

func withSubject(noun, subject, verb string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Sprintf("%s %s", noun, verb)
	}
	return fmt.Sprintf("%s %s %s", noun, subject, verb)
}

func fallback(t events.EventType) string {
	return "Event: " + string(t)
}
