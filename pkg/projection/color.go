package projection

import (
	"strings"

	"github.com/agentstation/hitlfeed/pkg/events"
)

// Color is a semantic color token, mapped to concrete colors by each view.
type Color string

// Color tokens.
const (
	Info    Color = "info"
	Success Color = "success"
	Failure Color = "error"
	Warning Color = "warning"
	Accent  Color = "accent"
	Muted   Color = "muted"
)

// colorRules are checked in order; the first matching substring wins.
var colorRules = []struct {
	needles []string
	color   Color
}{
	{[]string{"started"}, Info},
	{[]string{"completed", "approved"}, Success},
	{[]string{"failed", "error"}, Failure},
	{[]string{"created"}, Warning},
	{[]string{"decided"}, Accent},
}

// ColorClass returns the color token for an event type. Every input maps to
// a token; types matching no rule are Muted.
func ColorClass(t events.EventType) Color {
	s := string(t)
	for _, rule := range colorRules {
		for _, needle := range rule.needles {
			if strings.Contains(s, needle) {
				return rule.color
			}
		}
	}
	return Muted
}

// Colors returns every color token.
func Colors() []Color {
	return []Color{Info, Success, Failure, Warning, Accent, Muted}
}
