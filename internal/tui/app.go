// Package tui is the interactive terminal front end: a task list, the
// pomodoro timer, focus statistics and settings.
package tui

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/export"
	"github.com/sadopc/taskr/internal/pomodoro"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/secret"
	"github.com/sadopc/taskr/internal/store"
	"github.com/sadopc/taskr/internal/syncer"
)

// Options wires the optional collaborators. Nil fields disable the
// feature that needs them.
type Options struct {
	Secret    *secret.Mode
	Reminders *reminder.Scheduler
	Sync      *syncer.Reconciler
	// Inbox receives reminder notifications. NewApp creates one when nil.
	Inbox     Inbox
	ExportDir string
	Log       *slog.Logger
	Now       func() time.Time
}

// App is the root Bubble Tea model.
type App struct {
	store  *store.Store
	secret *secret.Mode
	inbox  Inbox
	log    *slog.Logger
	now    func() time.Time
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int
	exportDir     string

	tasks    tasksModel
	pomodoro pomodoroModel
	stats    statsModel
	settings settingsModel

	help   help.Model
	status string
	isErr  bool
}

func NewApp(s *store.Store, opts Options) App {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Inbox == nil {
		opts.Inbox = NewInbox(16)
	}
	if opts.ExportDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.ExportDir = home
		} else {
			opts.ExportDir = "."
		}
	}
	logger := opts.Log.With("component", "tui")

	h := help.New()
	h.ShowAll = false

	return App{
		store:      s,
		secret:     opts.Secret,
		inbox:      opts.Inbox,
		log:        logger,
		now:        opts.Now,
		activeView: viewTasks,
		exportDir:  opts.ExportDir,
		tasks:      newTasksModel(s, opts.Secret, opts.Reminders, opts.Now),
		pomodoro:   newPomodoroModel(s, opts.Inbox, logger, opts.Now),
		stats:      newStatsModel(s, opts.Now),
		settings:   newSettingsModel(s, opts.Sync),
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.tasks.refresh(),
		a.settings.refresh(),
		a.inbox.wait(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4
		a.tasks.setSize(a.width, contentHeight)
		a.pomodoro.setSize(a.width, contentHeight)
		a.stats.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			a.endSession()
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			return a.switchTo(viewTasks)
		case key.Matches(msg, keys.Tab2):
			return a.switchTo(viewPomodoro)
		case key.Matches(msg, keys.Tab3):
			return a.switchTo(viewStats)
		case key.Matches(msg, keys.Tab4):
			return a.switchTo(viewSettings)
		case key.Matches(msg, keys.Tab):
			return a.switchTo((a.activeView + 1) % viewState(len(viewNames)))
		}

	case tickMsg:
		var cmd tea.Cmd
		a.pomodoro, cmd = a.pomodoro.update(msg)
		return a, tea.Batch(tickCmd(), cmd)

	case noteMsg:
		a.status = msg.Title
		if msg.Body != "" {
			a.status += ": " + msg.Body
		}
		a.isErr = false
		cmds := []tea.Cmd{a.inbox.wait()}
		if a.activeView == viewStats && msg.TaskID == 0 {
			cmds = append(cmds, a.stats.refresh())
		}
		return a, tea.Batch(cmds...)

	case statusMsg:
		a.status = msg.text
		a.isErr = msg.isError
		if msg.isError {
			a.log.Warn(msg.text)
		}
		return a, nil

	case settingsSavedMsg:
		var cmd tea.Cmd
		a.pomodoro, cmd = a.pomodoro.update(msg)
		a.status = "Settings saved"
		a.isErr = false
		return a, cmd

	case exportDoneMsg:
		a.status = fmt.Sprintf("Exported %d tasks to %s", msg.count, msg.path)
		a.isErr = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) switchTo(v viewState) (tea.Model, tea.Cmd) {
	a.activeView = v
	return a, a.refreshCurrentView()
}

// endSession delivers the session end event to secret mode.
func (a App) endSession() {
	if a.secret == nil {
		return
	}
	ended, err := a.secret.Trigger(secret.EventSessionEnd)
	if err != nil {
		a.log.Error("end secret mode on exit", "err", err)
		return
	}
	if ended {
		a.log.Info("secret mode ended with the session")
	}
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewTasks:
		a.tasks, cmd = a.tasks.update(msg)
	case viewPomodoro:
		a.pomodoro, cmd = a.pomodoro.update(msg)
	case viewStats:
		a.stats, cmd = a.stats.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTasks:
		return a.tasks.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewTasks:
		return a.tasks.refresh()
	case viewStats:
		return a.stats.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewTasks:
		content = a.tasks.view()
	case viewPomodoro:
		content = a.pomodoro.view()
	case viewStats:
		content = a.stats.view()
	case viewSettings:
		content = a.settings.view()
	}
	if a.exportPicking {
		content = a.renderExportPicker()
	}

	contentHeight := max(a.height-lipgloss.Height(header)-lipgloss.Height(footer), 1)
	content = lipgloss.NewStyle().Width(a.width).Height(contentHeight).Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("taskr")
	if a.tasks.secretActive {
		title += " " + secretStyle.Render("(secret)")
	}
	gap := max(a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow))
}

func (a App) renderFooter() string {
	left := footerStyle.Render(a.help.View(keys))

	var timer string
	snap := a.pomodoro.snapshot()
	if snap.Status != pomodoro.Idle {
		style := lipgloss.NewStyle().Foreground(modeColor(snap.Mode))
		clock := formatDuration(snap.Remaining)
		if snap.Mode == pomodoro.Overtime {
			clock = "+" + formatDuration(snap.Elapsed)
		}
		marker := " ● "
		if snap.Status == pomodoro.Paused {
			marker = " ⏸ "
		}
		timer = style.Render(marker + snap.Mode.Label() + " " + clock)
	}

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	right := timer + status
	gap := max(a.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export Format"), ""}
	for i, f := range export.Formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+strings.ToUpper(f)))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))
	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(export.Formats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(export.Formats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes every task, leaving secret ones out while secret mode is
// on.
func (a App) doExport(format string) tea.Cmd {
	return func() tea.Msg {
		now := a.now()
		hide := false
		if a.secret != nil {
			active, err := a.secret.Active(now)
			hide = active || err != nil
		}
		path := filepath.Join(a.exportDir, fmt.Sprintf("taskr-export-%s.%s", now.Format(dateLayout), format))
		n, err := export.FromStore(a.store, format, path, hide)
		if err != nil {
			return errStatus("Export", err)
		}
		return exportDoneMsg{path: path, count: n}
	}
}
