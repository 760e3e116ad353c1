package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/pomodoro"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/store"
)

type pomodoroModel struct {
	store    *store.Store
	engine   *pomodoro.Engine
	notifier reminder.Notifier
	log      *slog.Logger
	now      func() time.Time
	width    int
	height   int
}

func newPomodoroModel(s *store.Store, n reminder.Notifier, logger *slog.Logger, now func() time.Time) pomodoroModel {
	ps, err := s.GetPomodoroSettings()
	if err != nil {
		logger.Warn("load pomodoro settings", "err", err)
	}
	return pomodoroModel{
		store:    s,
		engine:   pomodoro.New(pomodoro.Settings(ps)),
		notifier: n,
		log:      logger,
		now:      now,
	}
}

func (p *pomodoroModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

func (p pomodoroModel) snapshot() pomodoro.Snapshot {
	return p.engine.Snapshot(p.now())
}

func (p pomodoroModel) update(msg tea.Msg) (pomodoroModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		for _, tr := range p.engine.Tick(time.Time(msg)) {
			p.finish(tr)
		}
		return p, nil

	case settingsSavedMsg:
		p.engine.Configure(pomodoro.Settings(msg.settings))
		return p, nil

	case tea.KeyMsg:
		now := p.now()
		switch {
		case key.Matches(msg, keys.Start):
			if p.engine.Snapshot(now).Status != pomodoro.Running {
				p.engine.Start(now)
			}
		case key.Matches(msg, keys.Pause):
			switch p.engine.Snapshot(now).Status {
			case pomodoro.Running:
				p.engine.Pause(now)
			case pomodoro.Paused:
				p.engine.Resume(now)
			default:
				p.engine.Start(now)
			}
		case key.Matches(msg, keys.Skip):
			if p.engine.Snapshot(now).Status == pomodoro.Idle {
				return p, nil
			}
			p.finish(p.engine.Next(now))
		case key.Matches(msg, keys.Reset):
			p.engine.Reset()
			return p, func() tea.Msg { return statusMsg{text: "Pomodoro reset"} }
		}
	}
	return p, nil
}

// finish records a phase that ended and posts its notification.
func (p pomodoroModel) finish(tr pomodoro.Transition) {
	if tr.Actual > 0 {
		_, err := p.store.AddPomodoroRecord(store.PomodoroRecord{
			Mode:      string(tr.From),
			Planned:   int64(tr.Planned.Seconds()),
			Actual:    int64(tr.Actual.Seconds()),
			Completed: tr.Completed,
			StartedAt: tr.StartedAt,
			EndedAt:   tr.EndedAt,
		})
		if err != nil {
			p.log.Error("record pomodoro phase", "mode", tr.From, "err", err)
		}
	}
	if p.notifier != nil {
		p.notifier.Notify(reminder.FromTransition(tr))
	}
}

func (p pomodoroModel) view() string {
	w := p.width - 4
	snap := p.snapshot()
	accent := lipgloss.NewStyle().Foreground(modeColor(snap.Mode)).Bold(true)

	clock := formatDuration(snap.Remaining)
	if snap.Mode == pomodoro.Overtime {
		clock = "+" + formatDuration(snap.Elapsed)
	}

	var state string
	switch snap.Status {
	case pomodoro.Idle:
		state = mutedStyle.Render("Press s to begin")
	case pomodoro.Paused:
		state = warningStyle.Render("paused")
	default:
		state = successStyle.Render("running")
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Pomodoro"),
		"",
		clockStyle.Foreground(modeColor(snap.Mode)).Width(max(w-6, 10)).Render(clock),
		accent.Render(snap.Mode.Label()),
		state,
		"",
		renderRounds(snap),
	)

	controls := mutedStyle.Render("s: start  space: pause/resume  >: next phase  r: reset")
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Center, content, "", controls))
}

// renderRounds shows progress toward the next long break.
func renderRounds(s pomodoro.Snapshot) string {
	done := s.Rounds % s.Target
	if s.Rounds > 0 && done == 0 && s.Mode == pomodoro.LongBreak {
		done = s.Target
	}
	var parts []string
	for i := 0; i < s.Target; i++ {
		switch {
		case i < done:
			parts = append(parts, successStyle.Render("●"))
		case i == done && (s.Mode == pomodoro.Focus || s.Mode == pomodoro.Overtime) && s.Status != pomodoro.Idle:
			parts = append(parts, lipgloss.NewStyle().Foreground(colorFocus).Render("◐"))
		default:
			parts = append(parts, mutedStyle.Render("○"))
		}
	}
	return strings.Join(parts, " ") + mutedStyle.Render(fmt.Sprintf("  %d rounds", s.Rounds))
}
