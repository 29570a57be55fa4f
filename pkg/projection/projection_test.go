package projection_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	pkgerrors "github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

func evt(id string, typ events.EventType) events.SystemEvent {
	return events.SystemEvent{ID: id, Type: typ, Timestamp: time.Unix(0, 0), Data: events.Data{}}
}

func ids(evts []events.SystemEvent) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.ID
	}
	return out
}

func TestFilterByCategory(t *testing.T) {
	feed := []events.SystemEvent{
		evt("1", events.RunStarted),
		evt("2", events.GateCreated),
		evt("3", events.RunFailed),
		evt("4", "deploy.finished"),
		evt("5", events.Error),
	}

	tests := []struct {
		name     string
		category projection.Category
		want     []string
	}{
		{"all is identity", projection.All, []string{"1", "2", "3", "4", "5"}},
		{"runs", projection.Runs, []string{"1", "3"}},
		{"gates", projection.Gates, []string{"2"}},
		{"errors include run.failed", projection.Errors, []string{"3", "5"}},
		{"sessions empty", projection.Sessions, []string{}},
		{"unknown category fails open", projection.Category("deploys"), []string{"1", "2", "3", "4", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := projection.FilterByCategory(feed, tt.category)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterByCategoryProperty(t *testing.T) {
	table := projection.DefaultTable()
	types := append(events.KnownTypes(), "deploy.started", "custom")

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(t, "n")
		feed := make([]events.SystemEvent, n)
		for i := range feed {
			feed[i] = evt(fmt.Sprintf("e%d", i), rapid.SampledFrom(types).Draw(t, "type"))
		}
		category := rapid.SampledFrom(table.Categories()).Draw(t, "category")

		got := table.FilterByCategory(feed, category)

		// exactly the members, in input order
		var want []string
		for _, e := range feed {
			if table.Contains(category, e.Type) {
				want = append(want, e.ID)
			}
		}
		if len(want) != len(got) {
			t.Fatalf("got %d events, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("position %d: got %s want %s", i, got[i].ID, want[i])
			}
		}
	})
}

func TestCategoryMembershipRoundTrip(t *testing.T) {
	table := projection.DefaultTable()
	for _, def := range table.Definitions() {
		for _, typ := range def.Types {
			e := evt("x", events.EventType(typ))
			got := table.FilterByCategory([]events.SystemEvent{e}, def.Name)
			assert.Len(t, got, 1, "%s should be in %s", typ, def.Name)
		}
	}

	assert.ElementsMatch(t,
		[]projection.Category{projection.Runs, projection.Errors},
		table.CategoriesOf(events.RunFailed))
	assert.Equal(t, []projection.Category{projection.Gates}, table.CategoriesOf(events.GateDecided))
	assert.Empty(t, table.CategoriesOf("deploy.started"))
}

func TestCountByCategory(t *testing.T) {
	feed := []events.SystemEvent{
		evt("1", events.RunStarted),
		evt("2", events.RunFailed),
		evt("3", events.Error),
		evt("4", "custom"),
	}
	counts := projection.DefaultTable().CountByCategory(feed)
	assert.Equal(t, map[projection.Category]int{
		projection.All:       4,
		projection.Runs:      2,
		projection.Gates:     0,
		projection.Artifacts: 0,
		projection.Sessions:  0,
		projection.Errors:    2,
	}, counts)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		typ  events.EventType
		data events.Data
		want string
	}{
		{"run started", events.RunStarted, events.Data{"run_id": "r-1"}, "Run r-1 started"},
		{"run started without id", events.RunStarted, events.Data{}, "Run started"},
		{"run completed with duration", events.RunCompleted, events.Data{"run_id": "r-1", "duration": "3m"}, "Run r-1 completed in 3m"},
		{"run failed with reason", events.RunFailed, events.Data{"run_id": "r-2", "error": "tests failed"}, "Run r-2 failed: tests failed"},
		{"gate created", events.GateCreated, events.Data{"gate_id": "g-1", "stage": "deploy"}, "Gate g-1 awaiting approval at deploy"},
		{"gate decided", events.GateDecided, events.Data{"gate_id": "g-1", "decision": "approved", "decided_by": "ana"}, "Gate g-1 approved by ana"},
		{"gate decided without decision", events.GateDecided, events.Data{}, "Gate decided"},
		{"artifact created", events.ArtifactCreated, events.Data{"name": "design.md"}, "Artifact design.md created"},
		{"artifact approved by id", events.ArtifactApproved, events.Data{"artifact_id": "a-9"}, "Artifact a-9 approved"},
		{"session started", events.SessionStarted, events.Data{"session_id": "s-1", "agent": "planner"}, "Session s-1 started by planner"},
		{"session completed", events.SessionCompleted, events.Data{"session_id": "s-1"}, "Session s-1 completed"},
		{"error with message", events.Error, events.Data{"message": "boom"}, "Error: boom"},
		{"error without message", events.Error, events.Data{}, "Event: error"},
		{"unknown type", "deploy.rolled_back", events.Data{"x": 1}, "Event: deploy.rolled_back"},
		{"mistyped fields", events.RunStarted, events.Data{"run_id": []int{1}}, "Run started"},
		{"nil data", events.SessionCompleted, nil, "Session completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projection.Describe(events.SystemEvent{Type: tt.typ, Data: tt.data}))
		})
	}
}

func TestDescribeFallbackTotality(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		typ := events.EventType(rapid.String().Draw(t, "type"))
		if typ.IsKnown() {
			return
		}
		got := projection.Describe(events.SystemEvent{Type: typ})
		if got == "" || !strings.Contains(got, string(typ)) {
			t.Fatalf("describe(%q) = %q", typ, got)
		}
	})
}

func TestColorClass(t *testing.T) {
	tests := []struct {
		typ  events.EventType
		want projection.Color
	}{
		{events.RunStarted, projection.Info},
		{events.SessionStarted, projection.Info},
		{events.RunCompleted, projection.Success},
		{events.ArtifactApproved, projection.Success},
		{events.RunFailed, projection.Failure},
		{events.Error, projection.Failure},
		{events.GateCreated, projection.Warning},
		{events.ArtifactCreated, projection.Warning},
		{events.GateDecided, projection.Accent},
		{"deploy.queued", projection.Muted},
		{"", projection.Muted},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, projection.ColorClass(tt.typ))
		})
	}
}

func TestColorClassTotal(t *testing.T) {
	valid := projection.Colors()
	rapid.Check(t, func(t *rapid.T) {
		c := projection.ColorClass(events.EventType(rapid.String().Draw(t, "type")))
		found := false
		for _, v := range valid {
			found = found || v == c
		}
		if !found {
			t.Fatalf("unexpected color %q", c)
		}
	})
}

func TestLoadTable(t *testing.T) {
	t.Run("valid file with globs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yaml")
		content := `categories:
  - name: Deploys
    label: Deployments
    types: ["deploy.*", rollback.completed]
  - name: errors
    types: [error]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		table, err := projection.LoadTableFile(path)
		require.NoError(t, err)

		assert.Equal(t, []projection.Category{projection.All, "deploys", projection.Errors}, table.Categories())
		assert.True(t, table.Contains("deploys", "deploy.started"))
		assert.True(t, table.Contains("deploys", "rollback.completed"))
		assert.False(t, table.Contains("deploys", "rollback.started"))
		assert.Equal(t, "Deployments", table.Label("deploys"))
		assert.Equal(t, "Errors", table.Label(projection.Errors))
		assert.False(t, table.Has(projection.Runs))
	})

	t.Run("round trips through Marshal", func(t *testing.T) {
		data, err := projection.DefaultTable().Marshal()
		require.NoError(t, err)
		table, err := projection.LoadTable(strings.NewReader(string(data)))
		require.NoError(t, err)
		assert.Equal(t, projection.DefaultTable().Definitions(), table.Definitions())
	})

	invalid := []struct {
		name    string
		content string
	}{
		{"empty", "categories: []\n"},
		{"reserved all", "categories:\n  - name: all\n    types: [x]\n"},
		{"duplicate", "categories:\n  - name: a\n    types: [x]\n  - name: A\n    types: [y]\n"},
		{"no types", "categories:\n  - name: a\n"},
		{"missing name", "categories:\n  - types: [x]\n"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := projection.LoadTable(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidationError(err), err.Error())
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := projection.LoadTableFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		var ioErr *pkgerrors.IOError
		assert.ErrorAs(t, err, &ioErr)
	})
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, projection.All, projection.ParseCategory(""))
	assert.Equal(t, projection.Runs, projection.ParseCategory(" Runs "))
	assert.Equal(t, "Artifacts", projection.Artifacts.Label())
}
