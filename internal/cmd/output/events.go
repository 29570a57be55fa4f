package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// EventsToTableData converts events to table rows. Wide adds the ID and the
// compact payload.
func EventsToTableData(evts []events.SystemEvent, wide bool) Data {
	headers := []string{"Time", "Type", "Description"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft}
	if wide {
		headers = append([]string{"ID"}, append(headers, "Payload")...)
		align = append(align, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(evts))
	for _, e := range evts {
		row := []string{
			e.Timestamp.Local().Format(time.TimeOnly),
			string(e.Type),
			projection.Describe(e),
		}
		if wide {
			row = append([]string{e.ID}, append(row, compactPayload(e))...)
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// CategoriesToTableData lists the table's categories with their event types
// and, when counts is non-nil, how many events each holds.
func CategoriesToTableData(table *projection.Table, counts map[projection.Category]int) Data {
	types := make(map[projection.Category][]string)
	for _, def := range table.Definitions() {
		types[def.Name] = def.Types
	}

	headers := []string{"Key", "Category", "Types"}
	if counts != nil {
		headers = append(headers, "Events")
	}

	var rows [][]string
	for i, c := range table.Categories() {
		matches := "*"
		if c != projection.All {
			matches = strings.Join(types[c], ", ")
		}
		row := []string{fmt.Sprint(i + 1), table.Label(c), matches}
		if counts != nil {
			row = append(row, fmt.Sprint(counts[c]))
		}
		rows = append(rows, row)
	}

	align := []Align{AlignRight, AlignLeft, AlignLeft, AlignRight}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align[:len(headers)]}
}

func compactPayload(e events.SystemEvent) string {
	if !e.HasPayload() {
		return ""
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return "<unrenderable>"
	}
	return string(b)
}

// colorAttrs maps projection color tokens to terminal attributes.
var colorAttrs = map[projection.Color][]color.Attribute{
	projection.Info:    {color.FgCyan},
	projection.Success: {color.FgGreen},
	projection.Failure: {color.FgRed, color.Bold},
	projection.Warning: {color.FgYellow},
	projection.Accent:  {color.FgMagenta},
	projection.Muted:   {color.FgHiBlack},
}

// LinePrinter writes one line per event, as `tail -f` would.
type LinePrinter struct {
	w       io.Writer
	wide    bool
	colors  map[projection.Color]*color.Color
	dimmed  *color.Color
}

// NewLinePrinter creates a printer writing to w. useColor forces colors on or
// off regardless of the terminal.
func NewLinePrinter(w io.Writer, useColor, wide bool) *LinePrinter {
	p := &LinePrinter{
		w:      w,
		wide:   wide,
		colors: make(map[projection.Color]*color.Color, len(colorAttrs)),
		dimmed: color.New(color.Faint),
	}
	for token, attrs := range colorAttrs {
		p.colors[token] = color.New(attrs...)
	}
	for _, c := range append(p.all(), p.dimmed) {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *LinePrinter) all() []*color.Color {
	out := make([]*color.Color, 0, len(p.colors))
	for _, c := range p.colors {
		out = append(out, c)
	}
	return out
}

// Print writes e as a single line.
func (p *LinePrinter) Print(e events.SystemEvent) error {
	c := p.colors[projection.ColorClass(e.Type)]
	line := fmt.Sprintf("%s %s %s",
		p.dimmed.Sprint(e.Timestamp.Local().Format(time.TimeOnly)),
		c.Sprintf("%-18s", e.Type),
		projection.Describe(e),
	)
	if p.wide {
		if payload := compactPayload(e); payload != "" {
			line += " " + p.dimmed.Sprint(payload)
		}
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}
