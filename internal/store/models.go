package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

// Task is a to-do item. Date, TimeStart, TimeEnd and UpdatedAt are unix
// milliseconds; zero means unset.
type Task struct {
	ID          int64
	RemoteID    string
	Title       string
	Description string
	Date        int64
	TimeStart   int64
	TimeEnd     int64
	IsCompleted bool
	IsSecret    bool
	GroupID     *int64
	UpdatedAt   int64
	Dirty       bool
	Synced      bool
	Deleted     bool
	CreatedAt   time.Time
}

// Start returns the task's start time, or the zero time when unset.
func (t Task) Start() time.Time {
	if t.TimeStart == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.TimeStart)
}

// TaskInput carries the user-editable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	Date        int64
	TimeStart   int64
	TimeEnd     int64
	IsSecret    bool
	GroupID     *int64
}

func (in TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrInvalid)
	}
	if in.TimeStart != 0 && in.TimeEnd != 0 && in.TimeEnd < in.TimeStart {
		return fmt.Errorf("end time before start time: %w", ErrInvalid)
	}
	return nil
}

// TaskFilter narrows ListTasks. Zero value lists every live task.
type TaskFilter struct {
	Date           int64 // start-of-day millis
	GroupID        *int64
	HideCompleted  bool
	HideSecret     bool
	Search         string
	IncludeDeleted bool
}

type Group struct {
	ID        int64
	RemoteID  string
	Name      string
	Color     string
	UpdatedAt int64
	Dirty     bool
	Synced    bool
	Deleted   bool
	CreatedAt time.Time
}

type PomodoroSettings struct {
	Focus           time.Duration
	ShortBreak      time.Duration
	LongBreak       time.Duration
	Rounds          int
	AutoStartBreaks bool
	AutoStartFocus  bool
	Overtime        bool
}

func DefaultPomodoroSettings() PomodoroSettings {
	return PomodoroSettings{
		Focus:           25 * time.Minute,
		ShortBreak:      5 * time.Minute,
		LongBreak:       15 * time.Minute,
		Rounds:          4,
		AutoStartBreaks: true,
		AutoStartFocus:  false,
		Overtime:        false,
	}
}

// PomodoroRecord is one finished pomodoro phase.
type PomodoroRecord struct {
	ID        int64
	TaskID    *int64
	Mode      string
	Planned   int64 // seconds
	Actual    int64 // seconds
	Completed bool  // ran to zero rather than skipped
	StartedAt time.Time
	EndedAt   time.Time
}

type Setting struct {
	Key   string
	Value string
}

// DailyFocus is the focus time recorded on one day.
type DailyFocus struct {
	Date         string
	TotalSeconds int64
	Rounds       int
}

// Schedule is the date and time span of a task in unix millis.
type Schedule struct {
	Date      int64
	TimeStart int64
	TimeEnd   int64
}

// ParseSchedule reads a YYYY-MM-DD date and HH:MM start and end times in
// now's location. Empty strings leave a field unset; a time given without
// a date falls on now's day.
func ParseSchedule(now time.Time, date, start, end string) (Schedule, error) {
	var sc Schedule
	date, start, end = strings.TrimSpace(date), strings.TrimSpace(start), strings.TrimSpace(end)

	var day time.Time
	switch {
	case date != "":
		t, err := time.ParseInLocation("2006-01-02", date, now.Location())
		if err != nil {
			return sc, fmt.Errorf("date %q must look like 2006-01-02: %w", date, ErrInvalid)
		}
		day = t
	case start != "" || end != "":
		day = now
	default:
		return sc, nil
	}
	sc.Date = StartOfDay(day)

	var err error
	if sc.TimeStart, err = atClock(day, start); err != nil {
		return sc, err
	}
	if sc.TimeEnd, err = atClock(day, end); err != nil {
		return sc, err
	}
	return sc, nil
}

func atClock(day time.Time, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time %q must look like 15:04: %w", s, ErrInvalid)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()).UnixMilli(), nil
}

// StartOfDay returns local midnight of t in unix millis.
func StartOfDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UnixMilli()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
