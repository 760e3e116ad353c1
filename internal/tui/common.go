package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/store"
)

type viewState int

const (
	viewTasks viewState = iota
	viewPomodoro
	viewStats
	viewSettings
)

var viewNames = []string{"Tasks", "Pomodoro", "Stats", "Settings"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type noteMsg reminder.Notification

type exportDoneMsg struct {
	path  string
	count int
}

type settingsSavedMsg struct {
	settings store.PomodoroSettings
}

// Inbox delivers notifications from the reminder scheduler and the pomodoro
// view to the status line. A full inbox drops the notification.
type Inbox chan reminder.Notification

func NewInbox(size int) Inbox {
	return make(Inbox, size)
}

func (in Inbox) Notify(n reminder.Notification) {
	select {
	case in <- n:
	default:
	}
}

func (in Inbox) wait() tea.Cmd {
	return func() tea.Msg {
		return noteMsg(<-in)
	}
}

// --- Helpers ---

func errStatus(prefix string, err error) statusMsg {
	return statusMsg{text: fmt.Sprintf("%s: %v", prefix, err), isError: true}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatMinutes(secs int64) string {
	return fmt.Sprintf("%dm", secs/60)
}

// formatClock renders unix millis as HH:MM, or "" when unset.
func formatClock(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("15:04")
}
