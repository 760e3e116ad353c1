// Package pomodoro implements the focus timer: a countdown that cycles
// Focus → ShortBreak/LongBreak → Focus, with an optional Overtime phase that
// counts up after a focus round reaches zero.
//
// The engine never reads the wall clock. Every operation takes the current
// time, so callers drive it from a ticker and tests drive it with fixed
// instants.
package pomodoro

import (
	"errors"
	"sync"
	"time"
)

type Mode string

const (
	Focus      Mode = "focus"
	ShortBreak Mode = "short_break"
	LongBreak  Mode = "long_break"
	Overtime   Mode = "overtime"
)

func (m Mode) IsBreak() bool {
	return m == ShortBreak || m == LongBreak
}

func (m Mode) Label() string {
	switch m {
	case Focus:
		return "FOCUS"
	case ShortBreak:
		return "SHORT BREAK"
	case LongBreak:
		return "LONG BREAK"
	case Overtime:
		return "OVERTIME"
	}
	return string(m)
}

type Status int

const (
	Idle Status = iota
	Running
	Paused
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "idle"
}

var (
	ErrRunning    = errors.New("timer already running")
	ErrNotRunning = errors.New("timer not running")
	ErrNotPaused  = errors.New("timer not paused")
)

// Settings has the same layout as store.PomodoroSettings so either converts
// to the other.
type Settings struct {
	Focus           time.Duration
	ShortBreak      time.Duration
	LongBreak       time.Duration
	Rounds          int
	AutoStartBreaks bool
	AutoStartFocus  bool
	Overtime        bool
}

func (s Settings) normalized() Settings {
	if s.Focus <= 0 {
		s.Focus = 25 * time.Minute
	}
	if s.ShortBreak <= 0 {
		s.ShortBreak = 5 * time.Minute
	}
	if s.LongBreak <= 0 {
		s.LongBreak = 15 * time.Minute
	}
	if s.Rounds <= 0 {
		s.Rounds = 4
	}
	return s
}

func (s Settings) duration(m Mode) time.Duration {
	switch m {
	case ShortBreak:
		return s.ShortBreak
	case LongBreak:
		return s.LongBreak
	case Overtime:
		return 0
	}
	return s.Focus
}

// Transition describes a phase that just ended.
type Transition struct {
	From      Mode
	To        Mode
	StartedAt time.Time
	EndedAt   time.Time
	Planned   time.Duration
	Actual    time.Duration // running time, pauses excluded
	Completed bool          // false when the phase was skipped
	Rounds    int           // focus rounds completed after the transition
}

type Snapshot struct {
	Mode      Mode
	Status    Status
	Remaining time.Duration
	Elapsed   time.Duration
	Planned   time.Duration
	Rounds    int
	Target    int
}

type Engine struct {
	mu  sync.Mutex
	cfg Settings

	mode      Mode
	status    Status
	completed int

	remaining  time.Duration // valid while not running
	phaseEnd   time.Time     // valid while running
	phaseStart time.Time
	runStart   time.Time
	spent      time.Duration // running time before runStart
}

func New(cfg Settings) *Engine {
	e := &Engine{cfg: cfg.normalized()}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.mode = Focus
	e.status = Idle
	e.completed = 0
	e.remaining = e.cfg.Focus
	e.phaseEnd = time.Time{}
	e.phaseStart = time.Time{}
	e.runStart = time.Time{}
	e.spent = 0
}

// Reset stops the timer and returns to an idle first focus round.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// Configure replaces the settings. An idle engine picks up the new focus
// length immediately; otherwise the change applies from the next phase.
func (e *Engine) Configure(cfg Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.normalized()
	if e.status == Idle {
		e.remaining = e.cfg.duration(e.mode)
	}
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start begins the current phase, or resumes it when paused.
func (e *Engine) Start(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == Running {
		return ErrRunning
	}
	e.run(now)
	return nil
}

func (e *Engine) Pause(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Running {
		return ErrNotRunning
	}
	e.spent += now.Sub(e.runStart)
	if e.mode != Overtime {
		e.remaining = max(e.phaseEnd.Sub(now), 0)
	}
	e.status = Paused
	return nil
}

func (e *Engine) Resume(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Paused {
		return ErrNotPaused
	}
	e.run(now)
	return nil
}

func (e *Engine) run(now time.Time) {
	if e.phaseStart.IsZero() {
		e.phaseStart = now
	}
	e.runStart = now
	e.phaseEnd = now.Add(e.remaining)
	e.status = Running
}

// Tick advances the engine to now and reports every phase that ended on the
// way. With auto-start enabled several phases can end in one call after a
// long gap.
func (e *Engine) Tick(now time.Time) []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Transition
	for e.status == Running && e.mode != Overtime && !now.Before(e.phaseEnd) {
		end := e.phaseEnd
		tr := Transition{
			From:      e.mode,
			StartedAt: e.phaseStart,
			EndedAt:   end,
			Planned:   e.cfg.duration(e.mode),
			Actual:    e.spent + end.Sub(e.runStart),
			Completed: true,
		}

		var next Mode
		var autoStart bool
		if e.mode == Focus {
			e.completed++
			if e.cfg.Overtime {
				next, autoStart = Overtime, true
			} else {
				next, autoStart = e.breakAfterFocus(), e.cfg.AutoStartBreaks
			}
		} else {
			next, autoStart = Focus, e.cfg.AutoStartFocus
		}
		tr.To = next
		tr.Rounds = e.completed
		out = append(out, tr)

		e.enter(next, end, autoStart)
	}
	return out
}

// Next ends the current phase now. A skipped focus round earns no credit
// and is followed by a short break; ending Overtime finishes the round and
// moves to the break it earned. The next phase always starts running:
// skipping is an explicit request to go on, so AutoStartBreaks and
// AutoStartFocus only apply to phases that end on their own in Tick.
func (e *Engine) Next(now time.Time) Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	actual := e.spent
	if e.status == Running {
		actual += now.Sub(e.runStart)
	}
	tr := Transition{
		From:      e.mode,
		StartedAt: e.phaseStart,
		EndedAt:   now,
		Planned:   e.cfg.duration(e.mode),
		Actual:    actual,
		Completed: e.mode == Overtime,
	}
	if tr.StartedAt.IsZero() {
		tr.StartedAt = now
	}

	var next Mode
	switch e.mode {
	case Focus:
		next = ShortBreak
	case Overtime:
		next = e.breakAfterFocus()
	default:
		next = Focus
	}
	tr.To = next
	tr.Rounds = e.completed

	e.enter(next, now, true)
	return tr
}

func (e *Engine) breakAfterFocus() Mode {
	if e.completed > 0 && e.completed%e.cfg.Rounds == 0 {
		return LongBreak
	}
	return ShortBreak
}

func (e *Engine) enter(m Mode, at time.Time, running bool) {
	e.mode = m
	e.spent = 0
	e.remaining = e.cfg.duration(m)
	e.phaseStart = time.Time{}
	if running {
		e.run(at)
		return
	}
	e.status = Paused
}

func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Mode:    e.mode,
		Status:  e.status,
		Planned: e.cfg.duration(e.mode),
		Rounds:  e.completed,
		Target:  e.cfg.Rounds,
	}
	s.Elapsed = e.spent
	if e.status == Running {
		s.Elapsed += now.Sub(e.runStart)
	}
	switch {
	case e.mode == Overtime:
		s.Remaining = 0
	case e.status == Running:
		s.Remaining = max(e.phaseEnd.Sub(now), 0)
	default:
		s.Remaining = e.remaining
	}
	return s
}
