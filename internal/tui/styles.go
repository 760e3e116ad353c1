package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/pomodoro"
)

var (
	colorPrimary   = lipgloss.Color("#E76F51")
	colorFocus     = lipgloss.Color("#E63946")
	colorBreak     = lipgloss.Color("#2A9D8F")
	colorLongBreak = lipgloss.Color("#457B9D")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#2ECC71")
	colorWarning   = lipgloss.Color("#F4A261")
	colorError     = lipgloss.Color("#E74C3C")
	colorFg        = lipgloss.Color("#E5E7EB")
	colorSubtle    = lipgloss.Color("#374151")
)

// groupColors are offered when creating a group.
var groupColors = []string{"#E76F51", "#2A9D8F", "#457B9D", "#F4A261", "#9B5DE5", "#E63946", "#8AB17D", "#6B7280"}

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(1, 2)

	activePanelStyle = panelStyle.BorderForeground(colorPrimary)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Align(lipgloss.Center)

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorFg)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	secretStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)

	headerStyle = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	normalItemStyle   = lipgloss.NewStyle().Foreground(colorFg)
	doneItemStyle     = lipgloss.NewStyle().Foreground(colorMuted).Strikethrough(true)
)

// modeColor is the accent used for a pomodoro phase.
func modeColor(m pomodoro.Mode) lipgloss.Color {
	switch m {
	case pomodoro.ShortBreak:
		return colorBreak
	case pomodoro.LongBreak:
		return colorLongBreak
	case pomodoro.Overtime:
		return colorWarning
	}
	return colorFocus
}
