package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/remote"
	"github.com/sadopc/taskr/internal/store"
	"github.com/sadopc/taskr/internal/syncer"
)

// pomodoroFields backs the settings form. Durations are typed in minutes.
type pomodoroFields struct {
	Focus           string
	ShortBreak      string
	LongBreak       string
	Rounds          string
	AutoStartBreaks bool
	AutoStartFocus  bool
	Overtime        bool
}

func fieldsFromSettings(ps store.PomodoroSettings) pomodoroFields {
	return pomodoroFields{
		Focus:           durToMin(ps.Focus),
		ShortBreak:      durToMin(ps.ShortBreak),
		LongBreak:       durToMin(ps.LongBreak),
		Rounds:          strconv.Itoa(ps.Rounds),
		AutoStartBreaks: ps.AutoStartBreaks,
		AutoStartFocus:  ps.AutoStartFocus,
		Overtime:        ps.Overtime,
	}
}

func (f pomodoroFields) settings() (store.PomodoroSettings, error) {
	var ps store.PomodoroSettings
	var err error
	if ps.Focus, err = minToDur(f.Focus); err != nil {
		return ps, fmt.Errorf("focus: %w", err)
	}
	if ps.ShortBreak, err = minToDur(f.ShortBreak); err != nil {
		return ps, fmt.Errorf("short break: %w", err)
	}
	if ps.LongBreak, err = minToDur(f.LongBreak); err != nil {
		return ps, fmt.Errorf("long break: %w", err)
	}
	if ps.Rounds, err = positiveInt(f.Rounds); err != nil {
		return ps, fmt.Errorf("rounds: %w", err)
	}
	ps.AutoStartBreaks = f.AutoStartBreaks
	ps.AutoStartFocus = f.AutoStartFocus
	ps.Overtime = f.Overtime
	return ps, nil
}

func durToMin(d time.Duration) string {
	return strconv.Itoa(int(d.Minutes()))
}

func minToDur(s string) (time.Duration, error) {
	n, err := positiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a positive number", s)
	}
	return n, nil
}

func validPositive(s string) error {
	_, err := positiveInt(s)
	return err
}

type settingsModel struct {
	store  *store.Store
	sync   *syncer.Reconciler
	width  int
	height int

	current    store.PomodoroSettings
	syncStatus *syncer.Status
	signedIn   bool

	formActive bool
	form       *huh.Form
	fields     *pomodoroFields
}

func newSettingsModel(s *store.Store, r *syncer.Reconciler) settingsModel {
	return settingsModel{
		store:   s,
		sync:    r,
		current: store.DefaultPomodoroSettings(),
		fields:  &pomodoroFields{},
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings   store.PomodoroSettings
	syncStatus *syncer.Status
	signedIn   bool
	err        error
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ps, err := s.store.GetPomodoroSettings()
		if err != nil {
			return settingsDataMsg{err: err}
		}
		msg := settingsDataMsg{settings: ps}
		if tok, err := (remote.SettingsTokens{KV: s.store}).Tokens(); err == nil && tok.Refresh != "" {
			msg.signedIn = true
		}
		if s.sync != nil {
			if st, err := s.sync.Status(); err == nil {
				msg.syncStatus = &st
			}
		}
		return msg
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		if msg.err != nil {
			return s, func() tea.Msg { return errStatus("Load settings", msg.err) }
		}
		s.current = msg.settings
		s.syncStatus = msg.syncStatus
		s.signedIn = msg.signedIn
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) || key.Matches(msg, keys.New) {
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.fields = fieldsFromSettings(s.current)

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Focus (min)").Value(&s.fields.Focus).Validate(validPositive),
			huh.NewInput().Title("Short break (min)").Value(&s.fields.ShortBreak).Validate(validPositive),
			huh.NewInput().Title("Long break (min)").Value(&s.fields.LongBreak).Validate(validPositive),
			huh.NewInput().Title("Rounds before long break").Value(&s.fields.Rounds).Validate(validPositive),
		).Title("Durations"),
		huh.NewGroup(
			huh.NewConfirm().Title("Start breaks automatically").Value(&s.fields.AutoStartBreaks),
			huh.NewConfirm().Title("Start focus automatically").Value(&s.fields.AutoStartFocus),
			huh.NewConfirm().Title("Count overtime after focus").Value(&s.fields.Overtime),
		).Title("Behaviour"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		s.formActive = false
		s.form = nil
		return s, nil
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}
	if s.form.State != huh.StateCompleted {
		return s, cmd
	}

	s.formActive = false
	s.form = nil
	return s, s.save()
}

func (s settingsModel) save() tea.Cmd {
	ps, err := s.fields.settings()
	if err != nil {
		return func() tea.Msg { return errStatus("Invalid settings", err) }
	}
	if err := s.store.SavePomodoroSettings(ps); err != nil {
		return func() tea.Msg { return errStatus("Save settings", err) }
	}
	return tea.Batch(
		s.refresh(),
		func() tea.Msg { return settingsSavedMsg{settings: ps} },
	)
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	ps := s.current
	rows := []string{title, ""}
	add := func(label, value string) {
		rows = append(rows, fmt.Sprintf("  %s %s", lipgloss.NewStyle().Width(26).Render(label), value))
	}
	add("Focus", fmt.Sprintf("%d min", int(ps.Focus.Minutes())))
	add("Short break", fmt.Sprintf("%d min", int(ps.ShortBreak.Minutes())))
	add("Long break", fmt.Sprintf("%d min", int(ps.LongBreak.Minutes())))
	add("Rounds before long break", strconv.Itoa(ps.Rounds))
	add("Auto-start breaks", onOff(ps.AutoStartBreaks))
	add("Auto-start focus", onOff(ps.AutoStartFocus))
	add("Overtime", onOff(ps.Overtime))

	rows = append(rows, "")
	add("Signed in", onOff(s.signedIn))
	if st := s.syncStatus; st != nil {
		last := "never"
		if !st.LastSync.IsZero() {
			last = st.LastSync.Format("2006-01-02 15:04")
		}
		add("Last sync", last)
		add("Pending changes", fmt.Sprintf("%d tasks, %d groups", st.PendingTasks, st.PendingGroups))
	}

	rows = append(rows, "", mutedStyle.Render("Press enter to edit pomodoro settings"))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func onOff(b bool) string {
	if b {
		return successStyle.Render("yes")
	}
	return mutedStyle.Render("no")
}
