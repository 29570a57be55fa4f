// Package projection holds the pure, read-only views over a feed: the
// category table used for filtering, human descriptions of events and the
// color token each event type renders with.
package projection

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category names a group of event types a feed can be filtered to.
type Category string

// Default categories.
const (
	All       Category = "all"
	Runs      Category = "runs"
	Gates     Category = "gates"
	Artifacts Category = "artifacts"
	Sessions  Category = "sessions"
	Errors    Category = "errors"
)

var titleCaser = cases.Title(language.English)

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// Label returns the category name for display.
func (c Category) Label() string {
	return titleCaser.String(string(c))
}

// ParseCategory normalizes user input to a category. The empty string maps to All.
// ParseCategory does not validate against a table; callers check with Table.Has.
func ParseCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return All
	}
	return Category(s)
}
