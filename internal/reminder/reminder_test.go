package reminder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/taskr/internal/pomodoro"
	"github.com/sadopc/taskr/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// advance moves the clock and runs every timer that came due.
func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			t.f()
		}
	}
}

type recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

type staticSecret struct {
	active bool
	err    error
}

func (s staticSecret) Active(time.Time) (bool, error) { return s.active, s.err }

func task(id int64, title string, start time.Time) store.Task {
	return store.Task{ID: id, Title: title, TimeStart: start.UnixMilli()}
}

func TestScheduleFires(t *testing.T) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	s := New(rec, WithClock(clock))

	if !s.Schedule(task(1, "Standup", t0.Add(30*time.Minute))) {
		t.Fatal("expected alarm to be armed")
	}
	clock.advance(29 * time.Minute)
	if len(rec.got) != 0 {
		t.Fatal("fired early")
	}
	clock.advance(time.Minute)
	if len(rec.got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rec.got))
	}
	n := rec.got[0]
	if n.TaskID != 1 || n.Title != "Standup" || n.Body != "Starts at 09:30" {
		t.Errorf("notification = %+v", n)
	}
	if len(s.Pending()) != 0 {
		t.Error("fired alarm should leave the pending list")
	}
}

func TestScheduleWithLead(t *testing.T) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	s := New(rec, WithClock(clock), WithLead(10*time.Minute))
	s.Schedule(task(1, "Call", t0.Add(30*time.Minute)))

	p := s.Pending()
	if len(p) != 1 || !p[0].At.Equal(t0.Add(20*time.Minute)) {
		t.Fatalf("pending = %+v", p)
	}
	clock.advance(20 * time.Minute)
	if len(rec.got) != 1 {
		t.Fatal("lead not applied")
	}
}

func TestScheduleSkips(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := New(&recorder{}, WithClock(clock))

	done := task(1, "Done", t0.Add(time.Hour))
	done.IsCompleted = true
	tests := []struct {
		name string
		task store.Task
	}{
		{"completed", done},
		{"past", task(2, "Past", t0.Add(-time.Minute))},
		{"now", task(3, "Now", t0)},
		{"no start", store.Task{ID: 4, Title: "Someday"}},
	}
	for _, tt := range tests {
		if s.Schedule(tt.task) {
			t.Errorf("%s: should not be armed", tt.name)
		}
	}
	if len(s.Pending()) != 0 {
		t.Errorf("pending = %+v", s.Pending())
	}
}

func TestRescheduleReplaces(t *testing.T) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	s := New(rec, WithClock(clock))

	s.Schedule(task(1, "Old", t0.Add(10*time.Minute)))
	s.Schedule(task(1, "New", t0.Add(20*time.Minute)))
	if len(s.Pending()) != 1 {
		t.Fatalf("pending = %+v", s.Pending())
	}

	clock.advance(time.Hour)
	if len(rec.got) != 1 || rec.got[0].Title != "New" {
		t.Fatalf("got %+v", rec.got)
	}
}

func TestCancel(t *testing.T) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	s := New(rec, WithClock(clock))
	s.Schedule(task(1, "A", t0.Add(time.Minute)))
	s.Cancel(1)
	s.Cancel(99) // unknown ids are ignored

	clock.advance(time.Hour)
	if len(rec.got) != 0 {
		t.Fatal("cancelled alarm fired")
	}
}

func TestPendingSorted(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := New(&recorder{}, WithClock(clock))
	s.Schedule(task(1, "Late", t0.Add(3*time.Hour)))
	s.Schedule(task(2, "Early", t0.Add(time.Hour)))
	s.Schedule(task(3, "Mid", t0.Add(2*time.Hour)))

	p := s.Pending()
	if len(p) != 3 || p[0].TaskID != 2 || p[1].TaskID != 3 || p[2].TaskID != 1 {
		t.Fatalf("pending = %+v", p)
	}
}

func TestStopIgnoresLaterSchedules(t *testing.T) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	s := New(rec, WithClock(clock))
	s.Schedule(task(1, "A", t0.Add(time.Minute)))
	s.Stop()
	if s.Schedule(task(2, "B", t0.Add(time.Minute))) {
		t.Error("schedule after stop should be ignored")
	}
	clock.advance(time.Hour)
	if len(rec.got) != 0 {
		t.Fatal("alarm fired after stop")
	}
}

func TestSecretTitleMasked(t *testing.T) {
	tests := []struct {
		name   string
		secret SecretState
		want   string
	}{
		{"active", staticSecret{active: true}, SecretTitle},
		{"inactive", staticSecret{active: false}, "Dentist"},
		{"error hides", staticSecret{err: errors.New("db closed")}, SecretTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: t0}
			rec := &recorder{}
			s := New(rec, WithClock(clock), WithSecret(tt.secret))

			tk := task(1, "Dentist", t0.Add(time.Minute))
			tk.IsSecret = true
			s.Schedule(tk)
			clock.advance(time.Minute)
			if len(rec.got) != 1 || rec.got[0].Title != tt.want {
				t.Fatalf("got %+v, want title %q", rec.got, tt.want)
			}
		})
	}
}

func TestReloadFromStore(t *testing.T) {
	st, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	now := time.Now()
	future := now.Add(2 * time.Hour)
	st.CreateTask(store.TaskInput{Title: "Future", TimeStart: future.UnixMilli()})
	st.CreateTask(store.TaskInput{Title: "Past", TimeStart: now.Add(-time.Hour).UnixMilli()})
	done, _ := st.CreateTask(store.TaskInput{Title: "Done", TimeStart: future.UnixMilli()})
	st.SetTaskCompleted(done.ID, true)

	clock := &fakeClock{now: now}
	s := New(&recorder{}, WithClock(clock))
	s.Schedule(task(999, "Stale", now.Add(time.Hour)))

	if err := s.Reload(st); err != nil {
		t.Fatal(err)
	}
	p := s.Pending()
	if len(p) != 1 || p[0].Title != "Future" {
		t.Fatalf("pending = %+v", p)
	}
}

func TestFromTransition(t *testing.T) {
	tests := []struct {
		tr        pomodoro.Transition
		wantTitle string
		wantBody  string
	}{
		{pomodoro.Transition{From: pomodoro.Focus, To: pomodoro.ShortBreak, Rounds: 1}, "FOCUS finished", "Take a short break. 1 rounds done."},
		{pomodoro.Transition{From: pomodoro.Focus, To: pomodoro.LongBreak, Rounds: 4}, "FOCUS finished", "Take a long break. 4 rounds done."},
		{pomodoro.Transition{From: pomodoro.Focus, To: pomodoro.Overtime}, "FOCUS finished", "Focus time is up. Overtime is counting."},
		{pomodoro.Transition{From: pomodoro.ShortBreak, To: pomodoro.Focus}, "SHORT BREAK finished", "Break is over. Back to focus."},
	}
	for _, tt := range tests {
		n := FromTransition(tt.tr)
		if n.Title != tt.wantTitle || n.Body != tt.wantBody {
			t.Errorf("FromTransition(%s→%s) = %q / %q", tt.tr.From, tt.tr.To, n.Title, n.Body)
		}
	}
}
