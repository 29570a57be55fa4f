package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agentstation/hitlfeed/pkg/projection"
)

// palette maps projection color tokens to terminal colors.
var palette = map[projection.Color]lipgloss.Color{
	projection.Info:    lipgloss.Color("39"),
	projection.Success: lipgloss.Color("46"),
	projection.Failure: lipgloss.Color("196"),
	projection.Warning: lipgloss.Color("214"),
	projection.Accent:  lipgloss.Color("171"),
	projection.Muted:   lipgloss.Color("245"),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	liveStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	pausedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	activeTab     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("86"))
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	payloadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).PaddingLeft(4)
	errorStyle    = lipgloss.NewStyle().Foreground(palette[projection.Failure])
)

// typeStyle returns the style an event type renders with.
func typeStyle(c projection.Color) lipgloss.Style {
	color, ok := palette[c]
	if !ok {
		color = palette[projection.Muted]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}
