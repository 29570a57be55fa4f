// Package tui renders a live feed in the terminal with Bubble Tea.
package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// chromeLines is the number of lines used by the header and footer.
const chromeLines = 5

// Model is the Bubble Tea model for one feed view.
type Model struct {
	ctrl    *feed.Controller
	changed <-chan struct{}
	stop    func()
	title   string

	visible []events.SystemEvent
	counts  map[projection.Category]int
	conn    feed.ConnectionState

	cursor int // index into visible
	offset int // first rendered content row
	width  int
	height int
}

// Option configures a Model.
type Option func(*Model)

// WithTitle sets the header title.
func WithTitle(title string) Option {
	return func(m *Model) {
		if title != "" {
			m.title = title
		}
	}
}

// New creates a model over ctrl and subscribes to its store. Call Close when
// the program exits.
func New(ctrl *feed.Controller, opts ...Option) Model {
	changed, stop := watch(ctrl.Store())
	m := Model{
		ctrl:    ctrl,
		changed: changed,
		stop:    stop,
		title:   "hitlfeed",
	}
	for _, opt := range opts {
		opt(&m)
	}
	m = m.sync()
	m.cursor, m.offset = m.last(), m.bottom()
	return m
}

// Close unsubscribes from the store.
func (m Model) Close() {
	if m.stop != nil {
		m.stop()
	}
}

// Run shows the feed until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl *feed.Controller, opts ...Option) error {
	m := New(ctrl, opts...)
	defer m.Close()

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("feed view failed: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.changed)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m.follow(), nil

	case storeChangedMsg:
		return m.refresh(), waitForChange(m.changed)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case " ":
		if !m.ctrl.TogglePause() {
			m = m.sync()
			m.cursor, m.offset = m.last(), m.bottom()
		}

	case "tab":
		m.ctrl.CycleFilter()
		m = m.sync()
		m.cursor, m.offset = m.last(), m.bottom()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m = m.follow()

	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		m = m.follow()

	case "enter":
		if m.cursor < len(m.visible) {
			m.ctrl.ToggleExpand(m.visible[m.cursor].ID)
			m = m.follow()
		}

	case "c":
		m.ctrl.Clear()
		m = m.sync()
		m.cursor, m.offset = 0, 0

	case "g", "home":
		m.cursor, m.offset = 0, 0

	case "G", "end":
		m.cursor, m.offset = m.last(), m.bottom()

	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			categories := m.ctrl.Table().Categories()
			if i := int(key[0] - '1'); i < len(categories) {
				m.ctrl.SetFilter(categories[i])
				m = m.sync()
				m.cursor, m.offset = m.last(), m.bottom()
			}
		}
	}
	return m, nil
}

// refresh handles a store change: the scroll position before the update
// decides whether the view follows the tail.
func (m Model) refresh() Model {
	var selected string
	if m.cursor < len(m.visible) {
		selected = m.visible[m.cursor].ID
	}

	m.ctrl.RecordScroll(m.scrollMetrics())
	m = m.sync()

	if m.ctrl.ShouldAutoScroll() {
		m.cursor, m.offset = m.last(), m.bottom()
		return m
	}
	m.cursor = m.indexOf(selected)
	return m.follow()
}

// sync reloads the view state from the controller.
func (m Model) sync() Model {
	m.visible = m.ctrl.Visible()
	m.counts = m.ctrl.Counts()
	m.conn = m.ctrl.Store().Connection()
	if m.cursor > m.last() {
		m.cursor = m.last()
	}
	return m
}

// follow clamps the cursor and scrolls just enough to keep it on screen.
func (m Model) follow() Model {
	m.cursor = max(0, min(m.cursor, m.last()))

	start := 0
	for i := 0; i < m.cursor; i++ {
		start += m.rowHeight(m.visible[i])
	}
	end := start
	if m.cursor < len(m.visible) {
		end += m.rowHeight(m.visible[m.cursor])
	}

	vh := m.viewportHeight()
	if start < m.offset {
		m.offset = start
	} else if end > m.offset+vh {
		m.offset = end - vh
	}
	m.offset = max(0, min(m.offset, m.bottom()))
	return m
}

func (m Model) indexOf(id string) int {
	for i, e := range m.visible {
		if e.ID == id {
			return i
		}
	}
	return m.cursor
}

func (m Model) last() int {
	return max(0, len(m.visible)-1)
}

func (m Model) bottom() int {
	return max(0, m.contentHeight()-m.viewportHeight())
}

func (m Model) rowHeight(e events.SystemEvent) int {
	if !m.ctrl.IsExpanded(e.ID) {
		return 1
	}
	return 1 + strings.Count(e.PayloadJSON(), "\n") + 1
}

func (m Model) contentHeight() int {
	n := 0
	for _, e := range m.visible {
		n += m.rowHeight(e)
	}
	return n
}

func (m Model) viewportHeight() int {
	if m.height == 0 {
		return max(1, m.contentHeight())
	}
	return max(1, m.height-chromeLines)
}

func (m Model) scrollMetrics() feed.ScrollMetrics {
	return feed.ScrollMetrics{
		Offset:         m.offset,
		ViewportHeight: m.viewportHeight(),
		ContentHeight:  m.contentHeight(),
	}
}

// View implements tea.Model.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderTabs(),
		m.divider(),
		m.renderBody(),
		m.divider(),
		helpStyle.Render("space pause · tab/1-6 filter · ↑/↓ select · enter expand · c clear · g/G top/bottom · q quit"),
	)
}

func (m Model) renderHeader() string {
	status := liveStyle.Render("LIVE")
	if m.ctrl.Paused() {
		status = pausedStyle.Render("PAUSED")
	}
	return strings.Join([]string{
		titleStyle.Render(m.title),
		status,
		m.renderConnection(),
		fmt.Sprintf("%d shown", len(m.visible)),
	}, "  ")
}

func (m Model) renderConnection() string {
	switch {
	case m.conn.Connected:
		return liveStyle.Render("● connected")
	case m.conn.Reconnecting:
		return pausedStyle.Render(fmt.Sprintf("◌ reconnecting (attempt %d)", m.conn.ReconnectAttempts))
	case m.conn.LastError != "":
		return errorStyle.Render("○ disconnected: " + m.conn.LastError)
	default:
		return dimStyle.Render("○ disconnected")
	}
}

func (m Model) renderTabs() string {
	table := m.ctrl.Table()
	active := m.ctrl.Filter()
	tabs := make([]string, 0, len(table.Categories()))
	for i, c := range table.Categories() {
		label := fmt.Sprintf("%d %s (%d)", i+1, table.Label(c), m.counts[c])
		if c == active {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	return strings.Join(tabs, "  ")
}

func (m Model) renderBody() string {
	if len(m.visible) == 0 {
		return dimStyle.Render("  No events yet")
	}

	var lines []string
	for i, e := range m.visible {
		row := m.renderRow(e)
		if i == m.cursor {
			row = selectedStyle.Render(row)
		}
		lines = append(lines, row)
		if m.ctrl.IsExpanded(e.ID) {
			for _, l := range strings.Split(e.PayloadJSON(), "\n") {
				lines = append(lines, payloadStyle.Render(l))
			}
		}
	}

	end := min(len(lines), m.offset+m.viewportHeight())
	return strings.Join(lines[min(m.offset, end):end], "\n")
}

func (m Model) renderRow(e events.SystemEvent) string {
	marker := " "
	if e.HasPayload() {
		marker = "▸"
		if m.ctrl.IsExpanded(e.ID) {
			marker = "▾"
		}
	}
	kind := typeStyle(projection.ColorClass(e.Type)).Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s  %s  %s", marker, e.Timestamp.Local().Format("15:04:05"), kind, projection.Describe(e))
}

func (m Model) divider() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return dimStyle.Render(strings.Repeat("─", width))
}
