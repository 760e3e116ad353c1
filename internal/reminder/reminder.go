// Package reminder arms one alarm per upcoming task and posts a
// notification when it fires.
package reminder

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sadopc/taskr/internal/pomodoro"
	"github.com/sadopc/taskr/internal/store"
)

// SecretTitle replaces the title of a secret task while secret mode is on.
const SecretTitle = "Secret task"

type Notification struct {
	TaskID int64 // zero for non-task notifications
	Title  string
	Body   string
	At     time.Time
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Notify(n Notification) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "task", n.TaskID, "title", n.Title, "body", n.Body, "at", n.At.Format(time.RFC3339))
}

// FromTransition builds the notification posted when a pomodoro phase ends.
func FromTransition(tr pomodoro.Transition) Notification {
	var body string
	switch {
	case tr.To == pomodoro.Overtime:
		body = "Focus time is up. Overtime is counting."
	case tr.To.IsBreak():
		body = fmt.Sprintf("Take a %s. %d rounds done.", breakName(tr.To), tr.Rounds)
	default:
		body = "Break is over. Back to focus."
	}
	return Notification{Title: tr.From.Label() + " finished", Body: body, At: tr.EndedAt}
}

func breakName(m pomodoro.Mode) string {
	if m == pomodoro.LongBreak {
		return "long break"
	}
	return "short break"
}

// ============================================================
// Clock
// ============================================================

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ============================================================
// Scheduler
// ============================================================

// SecretState reports whether secret tasks are hidden right now.
type SecretState interface {
	Active(now time.Time) (bool, error)
}

// TaskSource lists tasks that may need an alarm.
type TaskSource interface {
	ListUpcomingTasks(from time.Time) ([]store.Task, error)
}

type Pending struct {
	TaskID int64
	Title  string
	At     time.Time
}

type alarm struct {
	task  store.Task
	at    time.Time
	timer Timer
	gen   uint64
}

type Scheduler struct {
	mu       sync.Mutex
	alarms   map[int64]*alarm
	gen      uint64
	stopped  bool
	clock    Clock
	notifier Notifier
	secret   SecretState
	lead     time.Duration
	log      *slog.Logger
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLead fires alarms d before the task starts.
func WithLead(d time.Duration) Option { return func(s *Scheduler) { s.lead = d } }

func WithSecret(st SecretState) Option { return func(s *Scheduler) { s.secret = st } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func New(n Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		alarms:   map[int64]*alarm{},
		clock:    realClock{},
		notifier: n,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "reminder")
	return s
}

// Schedule arms an alarm for t, replacing any alarm already set for it.
// Completed tasks, tasks without a start time and past alarms are not
// armed; Schedule reports whether an alarm is now pending.
func (s *Scheduler) Schedule(t store.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(t.ID)
	if s.stopped || t.IsCompleted || t.Deleted || t.TimeStart == 0 {
		return false
	}
	at := t.Start().Add(-s.lead)
	now := s.clock.Now()
	if !at.After(now) {
		return false
	}

	s.gen++
	a := &alarm{task: t, at: at, gen: s.gen}
	id, gen := t.ID, s.gen
	a.timer = s.clock.AfterFunc(at.Sub(now), func() { s.fire(id, gen) })
	s.alarms[t.ID] = a
	s.log.Debug("alarm armed", "task", t.ID, "at", at)
	return true
}

func (s *Scheduler) Cancel(taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(taskID)
}

func (s *Scheduler) cancelLocked(taskID int64) {
	if a, ok := s.alarms[taskID]; ok {
		a.timer.Stop()
		delete(s.alarms, taskID)
	}
}

// Reload cancels every alarm and re-arms from src.
func (s *Scheduler) Reload(src TaskSource) error {
	tasks, err := src.ListUpcomingTasks(s.clock.Now())
	if err != nil {
		return fmt.Errorf("reload reminders: %w", err)
	}
	s.mu.Lock()
	for id := range s.alarms {
		s.cancelLocked(id)
	}
	s.mu.Unlock()

	armed := 0
	for _, t := range tasks {
		if s.Schedule(t) {
			armed++
		}
	}
	s.log.Info("reminders reloaded", "armed", armed)
	return nil
}

// Pending lists armed alarms, soonest first.
func (s *Scheduler) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, Pending{TaskID: a.task.ID, Title: a.task.Title, At: a.at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Stop cancels every alarm. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.alarms {
		s.cancelLocked(id)
	}
	s.stopped = true
}

func (s *Scheduler) fire(taskID int64, gen uint64) {
	s.mu.Lock()
	a, ok := s.alarms[taskID]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.alarms, taskID)
	s.mu.Unlock()

	now := s.clock.Now()
	s.notifier.Notify(Notification{
		TaskID: a.task.ID,
		Title:  s.title(a.task, now),
		Body:   body(a.task),
		At:     now,
	})
}

func (s *Scheduler) title(t store.Task, now time.Time) string {
	if !t.IsSecret || s.secret == nil {
		return t.Title
	}
	active, err := s.secret.Active(now)
	if err != nil {
		s.log.Warn("secret mode state unavailable", "err", err)
		return SecretTitle
	}
	if active {
		return SecretTitle
	}
	return t.Title
}

func body(t store.Task) string {
	start := t.Start().Format("15:04")
	if t.TimeEnd != 0 {
		return fmt.Sprintf("%s - %s", start, time.UnixMilli(t.TimeEnd).Format("15:04"))
	}
	return "Starts at " + start
}
