package projection

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
)

// CategoryDef is one row of the category table as written in configuration.
// Types holds exact event types or "<domain>.*" prefixes.
type CategoryDef struct {
	Name  Category `yaml:"name" json:"name"`
	Label string   `yaml:"label,omitempty" json:"label,omitempty"`
	Types []string `yaml:"types" json:"types"`
}

// tableFile is the on-disk layout of a category table.
type tableFile struct {
	Categories []CategoryDef `yaml:"categories"`
}

// Table maps categories to the event types they contain.
// A type may belong to several categories. Tables are immutable once built.
type Table struct {
	defs  []CategoryDef
	exact map[Category]map[events.EventType]bool
	glob  map[Category][]string
}

// DefaultTable returns the standard category table. run.failed is in both
// runs and errors.
func DefaultTable() *Table {
	t, _ := NewTable([]CategoryDef{
		{Name: Runs, Types: []string{string(events.RunStarted), string(events.RunCompleted), string(events.RunFailed)}},
		{Name: Gates, Types: []string{string(events.GateCreated), string(events.GateDecided)}},
		{Name: Artifacts, Types: []string{string(events.ArtifactCreated), string(events.ArtifactApproved)}},
		{Name: Sessions, Types: []string{string(events.SessionStarted), string(events.SessionCompleted)}},
		{Name: Errors, Types: []string{string(events.Error), string(events.RunFailed)}},
	})
	return t
}

// NewTable validates defs and builds a Table.
func NewTable(defs []CategoryDef) (*Table, error) {
	t := &Table{
		exact: make(map[Category]map[events.EventType]bool, len(defs)),
		glob:  make(map[Category][]string),
	}
	for i, def := range defs {
		name := ParseCategory(string(def.Name))
		switch {
		case strings.TrimSpace(string(def.Name)) == "":
			return nil, errors.NewValidationError("categories", i, "category name is required")
		case name == All:
			return nil, errors.NewValidationError("categories", name, "\"all\" is reserved")
		case t.exact[name] != nil:
			return nil, errors.NewValidationError("categories", name, "duplicate category")
		case len(def.Types) == 0:
			return nil, errors.NewValidationError("categories", name, "category has no types")
		}

		members := make(map[events.EventType]bool, len(def.Types))
		for _, typ := range def.Types {
			typ = strings.TrimSpace(typ)
			if typ == "" {
				return nil, errors.NewValidationError("categories", name, "empty event type")
			}
			if prefix, ok := strings.CutSuffix(typ, "*"); ok {
				t.glob[name] = append(t.glob[name], prefix)
				continue
			}
			members[events.EventType(typ)] = true
		}
		t.exact[name] = members
		t.defs = append(t.defs, CategoryDef{Name: name, Label: def.Label, Types: slices.Clone(def.Types)})
	}
	return t, nil
}

// LoadTable reads a YAML category table:
//
//	categories:
//	  - name: deploys
//	    label: Deployments
//	    types: [deploy.*, rollback.completed]
func LoadTable(r io.Reader) (*Table, error) {
	var file tableFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	if len(file.Categories) == 0 {
		return nil, errors.NewValidationError("categories", nil, "table defines no categories")
	}
	return NewTable(file.Categories)
}

// LoadTableFile reads a YAML category table from path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := LoadTable(f)
	if err != nil {
		return nil, errors.NewConfigError("categories", path, err)
	}
	return t, nil
}

// Marshal renders the table in the format LoadTable reads.
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(tableFile{Categories: t.Definitions()})
}

// Definitions returns the table rows in declaration order.
func (t *Table) Definitions() []CategoryDef {
	out := make([]CategoryDef, len(t.defs))
	for i, def := range t.defs {
		out[i] = CategoryDef{Name: def.Name, Label: def.Label, Types: slices.Clone(def.Types)}
	}
	return out
}

// Categories returns All followed by the table's categories in declaration order.
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.defs)+1)
	out = append(out, All)
	for _, def := range t.defs {
		out = append(out, def.Name)
	}
	return out
}

// Has reports whether c is All or a category in the table.
func (t *Table) Has(c Category) bool {
	if c == All {
		return true
	}
	_, ok := t.exact[c]
	return ok
}

// Label returns the configured label for c, or its title-cased name.
func (t *Table) Label(c Category) string {
	for _, def := range t.defs {
		if def.Name == c && def.Label != "" {
			return def.Label
		}
	}
	return c.Label()
}

// Contains reports whether events of type typ belong to category c.
// All contains every type; an unknown category contains none.
func (t *Table) Contains(c Category, typ events.EventType) bool {
	if c == All {
		return true
	}
	if t.exact[c][typ] {
		return true
	}
	for _, prefix := range t.glob[c] {
		if strings.HasPrefix(string(typ), prefix) {
			return true
		}
	}
	return false
}

// CategoriesOf returns every category, excluding All, that contains typ.
func (t *Table) CategoriesOf(typ events.EventType) []Category {
	var out []Category
	for _, def := range t.defs {
		if t.Contains(def.Name, typ) {
			out = append(out, def.Name)
		}
	}
	return out
}

// FilterByCategory returns the events whose type belongs to category, keeping
// their order. All, and any category the table does not know, return the
// input unchanged so a stale filter never hides the feed.
func (t *Table) FilterByCategory(evts []events.SystemEvent, category Category) []events.SystemEvent {
	if !t.Has(category) || category == All {
		return evts
	}
	out := make([]events.SystemEvent, 0, len(evts))
	for _, e := range evts {
		if t.Contains(category, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

// CountByCategory returns how many events fall in each category, All included.
func (t *Table) CountByCategory(evts []events.SystemEvent) map[Category]int {
	counts := make(map[Category]int, len(t.defs)+1)
	counts[All] = len(evts)
	for _, def := range t.defs {
		counts[def.Name] = 0
	}
	for _, e := range evts {
		for _, c := range t.CategoriesOf(e.Type) {
			counts[c]++
		}
	}
	return counts
}

var defaultTable = DefaultTable()

// FilterByCategory filters with the default table.
func FilterByCategory(evts []events.SystemEvent, category Category) []events.SystemEvent {
	return defaultTable.FilterByCategory(evts, category)
}
