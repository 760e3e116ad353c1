package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/secret"
	"github.com/sadopc/taskr/internal/store"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// taskFields backs the task form. Dates and times are typed as text.
type taskFields struct {
	Title       string
	Description string
	Date        string
	Start       string
	End         string
	Secret      bool
	Group       string // local group id, "" for none
}

// input converts the form text into a TaskInput.
func (f taskFields) input(now time.Time) (store.TaskInput, error) {
	in := store.TaskInput{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		IsSecret:    f.Secret,
	}

	sc, err := store.ParseSchedule(now, f.Date, f.Start, f.End)
	if err != nil {
		return in, err
	}
	in.Date, in.TimeStart, in.TimeEnd = sc.Date, sc.TimeStart, sc.TimeEnd

	if f.Group != "" {
		id, err := strconv.ParseInt(f.Group, 10, 64)
		if err != nil {
			return in, fmt.Errorf("bad group %q", f.Group)
		}
		in.GroupID = &id
	}
	return in, in.Validate()
}

func fieldsFromTask(t store.Task) taskFields {
	f := taskFields{
		Title:       t.Title,
		Description: t.Description,
		Start:       formatClock(t.TimeStart),
		End:         formatClock(t.TimeEnd),
		Secret:      t.IsSecret,
	}
	if t.Date != 0 {
		f.Date = time.UnixMilli(t.Date).Format(dateLayout)
	}
	if t.GroupID != nil {
		f.Group = strconv.FormatInt(*t.GroupID, 10)
	}
	return f
}

type groupFields struct {
	Name  string
	Color string
}

type tasksModel struct {
	store     *store.Store
	secret    *secret.Mode
	reminders *reminder.Scheduler
	now       func() time.Time
	width     int
	height    int

	tasks        []store.Task
	groups       map[int64]store.Group
	groupList    []store.Group
	cursor       int
	showAll      bool
	secretActive bool

	formActive bool
	form       *huh.Form
	formType   string // "task", "edit_task", "group"
	fields     *taskFields
	group      *groupFields
	editingID  int64
}

func newTasksModel(s *store.Store, sm *secret.Mode, r *reminder.Scheduler, now func() time.Time) tasksModel {
	return tasksModel{
		store:     s,
		secret:    sm,
		reminders: r,
		now:       now,
		groups:    map[int64]store.Group{},
		fields:    &taskFields{},
		group:     &groupFields{},
	}
}

func (m *tasksModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type tasksDataMsg struct {
	tasks        []store.Task
	groups       []store.Group
	secretActive bool
	err          error
}

func (m tasksModel) refresh() tea.Cmd {
	return func() tea.Msg {
		now := m.now()
		active := false
		if m.secret != nil {
			var err error
			// Hide secret tasks when the state cannot be read.
			if active, err = m.secret.Active(now); err != nil {
				active = true
			}
		}
		f := store.TaskFilter{HideSecret: active}
		if !m.showAll {
			f.Date = store.StartOfDay(now)
		}
		tasks, err := m.store.ListTasks(f)
		if err != nil {
			return tasksDataMsg{err: err}
		}
		groups, err := m.store.ListGroups(false)
		return tasksDataMsg{tasks: tasks, groups: groups, secretActive: active, err: err}
	}
}

func (m tasksModel) selected() (store.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return store.Task{}, false
	}
	return m.tasks[m.cursor], true
}

func (m tasksModel) update(msg tea.Msg) (tasksModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tasksDataMsg:
		if msg.err != nil {
			return m, func() tea.Msg { return errStatus("Load tasks", msg.err) }
		}
		m.tasks = msg.tasks
		m.groupList = msg.groups
		m.groups = make(map[int64]store.Group, len(msg.groups))
		for _, g := range msg.groups {
			m.groups[g.ID] = g
		}
		m.secretActive = msg.secretActive
		if m.cursor >= len(m.tasks) {
			m.cursor = max(0, len(m.tasks)-1)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Filter):
			m.showAll = !m.showAll
			m.cursor = 0
			return m, m.refresh()
		case key.Matches(msg, keys.New):
			return m.showTaskForm(nil)
		case key.Matches(msg, keys.Enter):
			if t, ok := m.selected(); ok {
				return m.showTaskForm(&t)
			}
		case key.Matches(msg, keys.Group):
			return m.showGroupForm()
		case key.Matches(msg, keys.Toggle):
			if t, ok := m.selected(); ok {
				return m, m.toggle(t)
			}
		case key.Matches(msg, keys.Delete):
			if t, ok := m.selected(); ok {
				return m, m.remove(t)
			}
		}
	}
	return m, nil
}

func (m tasksModel) toggle(t store.Task) tea.Cmd {
	if err := m.store.SetTaskCompleted(t.ID, !t.IsCompleted); err != nil {
		return func() tea.Msg { return errStatus("Update task", err) }
	}
	m.reschedule(t.ID)
	return m.refresh()
}

func (m tasksModel) remove(t store.Task) tea.Cmd {
	if err := m.store.DeleteTask(t.ID); err != nil {
		return func() tea.Msg { return errStatus("Delete task", err) }
	}
	if m.reminders != nil {
		m.reminders.Cancel(t.ID)
	}
	return tea.Batch(m.refresh(), func() tea.Msg {
		return statusMsg{text: "Deleted " + t.Title}
	})
}

// reschedule re-arms the reminder for a task after it changed.
func (m tasksModel) reschedule(id int64) {
	if m.reminders == nil {
		return
	}
	t, err := m.store.GetTask(id)
	if err != nil {
		m.reminders.Cancel(id)
		return
	}
	m.reminders.Schedule(*t)
}

func (m tasksModel) showTaskForm(t *store.Task) (tasksModel, tea.Cmd) {
	if t != nil {
		*m.fields = fieldsFromTask(*t)
		m.formType = "edit_task"
		m.editingID = t.ID
	} else {
		*m.fields = taskFields{}
		if !m.showAll {
			m.fields.Date = m.now().Format(dateLayout)
		}
		m.formType = "task"
		m.editingID = 0
	}

	groupOptions := []huh.Option[string]{huh.NewOption("None", "")}
	for _, g := range m.groupList {
		groupOptions = append(groupOptions, huh.NewOption(g.Name, strconv.FormatInt(g.ID, 10)))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&m.fields.Title).Validate(notBlank),
			huh.NewText().Title("Description").Value(&m.fields.Description),
			huh.NewInput().Title("Date (YYYY-MM-DD)").Value(&m.fields.Date).Validate(optionalLayout(dateLayout)),
			huh.NewInput().Title("Start (HH:MM)").Value(&m.fields.Start).Validate(optionalLayout(clockLayout)),
			huh.NewInput().Title("End (HH:MM)").Value(&m.fields.End).Validate(optionalLayout(clockLayout)),
			huh.NewSelect[string]().Title("Group").Options(groupOptions...).Value(&m.fields.Group),
			huh.NewConfirm().Title("Secret").Value(&m.fields.Secret),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m tasksModel) showGroupForm() (tasksModel, tea.Cmd) {
	*m.group = groupFields{Color: groupColors[0]}
	m.formType = "group"

	colorOptions := make([]huh.Option[string], len(groupColors))
	for i, c := range groupColors {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Render("●")
		colorOptions[i] = huh.NewOption(dot+" "+c, c)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Group Name").Value(&m.group.Name).Validate(notBlank),
			huh.NewSelect[string]().Title("Color").Options(colorOptions...).Value(&m.group.Color),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func optionalLayout(layout string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := time.Parse(layout, strings.TrimSpace(s)); err != nil {
			return fmt.Errorf("expected %s", layout)
		}
		return nil
	}
}

func (m tasksModel) updateForm(msg tea.Msg) (tasksModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		m.formActive = false
		m.form = nil
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.formActive = false
	m.form = nil
	return m, m.submit()
}

// submit stores whatever the completed form describes.
func (m tasksModel) submit() tea.Cmd {
	switch m.formType {
	case "group":
		g, err := m.store.CreateGroup(strings.TrimSpace(m.group.Name), m.group.Color)
		if err != nil {
			return func() tea.Msg { return errStatus("Create group", err) }
		}
		return tea.Batch(m.refresh(), func() tea.Msg {
			return statusMsg{text: "Created group " + g.Name}
		})
	}

	in, err := m.fields.input(m.now())
	if err != nil {
		return func() tea.Msg { return errStatus("Invalid task", err) }
	}
	if m.formType == "edit_task" {
		if err := m.store.UpdateTask(m.editingID, in); err != nil {
			return func() tea.Msg { return errStatus("Update task", err) }
		}
		m.reschedule(m.editingID)
		return m.refresh()
	}
	t, err := m.store.CreateTask(in)
	if err != nil {
		return func() tea.Msg { return errStatus("Create task", err) }
	}
	if m.reminders != nil {
		m.reminders.Schedule(*t)
	}
	return m.refresh()
}

func (m tasksModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		title := "New Task"
		switch m.formType {
		case "edit_task":
			title = "Edit Task"
		case "group":
			title = "New Group"
		}
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), "", m.form.View()),
		)
	}

	scope := "Today"
	if m.showAll {
		scope = "All tasks"
	}
	header := titleStyle.Render(scope)
	if m.secretActive {
		header += "  " + secretStyle.Render("secret mode")
	}

	if len(m.tasks) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header, "", mutedStyle.Render("No tasks. Press n to add one."),
		))
	}

	rows := []string{header, ""}
	for i, t := range m.tasks {
		rows = append(rows, m.renderRow(i, t))
	}
	rows = append(rows, "", mutedStyle.Render("  n: new  enter: edit  x: done  d: delete  g: new group  f: today/all"))
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m tasksModel) renderRow(i int, t store.Task) string {
	cursor := "  "
	style := normalItemStyle
	if i == m.cursor {
		cursor = "> "
		style = selectedItemStyle
	}
	check := "[ ]"
	if t.IsCompleted {
		check = "[x]"
		if i != m.cursor {
			style = doneItemStyle
		}
	}

	when := formatClock(t.TimeStart)
	if end := formatClock(t.TimeEnd); end != "" {
		when += "-" + end
	}
	if m.showAll && t.Date != 0 {
		when = time.UnixMilli(t.Date).Format("Jan 02") + " " + when
	}

	dot := " "
	if t.GroupID != nil {
		if g, ok := m.groups[*t.GroupID]; ok && g.Color != "" {
			dot = lipgloss.NewStyle().Foreground(lipgloss.Color(g.Color)).Render("●")
		}
	}
	row := style.Render(fmt.Sprintf("%s%s ", cursor, check)) + dot + style.Render(" "+t.Title)
	if when != "" {
		row += mutedStyle.Render("  " + strings.TrimSpace(when))
	}
	if t.IsSecret {
		row += " " + secretStyle.Render("*")
	}
	return row
}
