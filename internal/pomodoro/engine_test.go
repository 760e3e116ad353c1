package pomodoro

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{
		Focus:           25 * time.Minute,
		ShortBreak:      5 * time.Minute,
		LongBreak:       15 * time.Minute,
		Rounds:          4,
		AutoStartBreaks: true,
		AutoStartFocus:  true,
	}
}

func TestNewEngineIdle(t *testing.T) {
	e := New(testSettings())
	s := e.Snapshot(t0)
	if s.Mode != Focus || s.Status != Idle {
		t.Fatalf("new engine should be idle focus, got %v/%v", s.Mode, s.Status)
	}
	if s.Remaining != 25*time.Minute {
		t.Fatalf("remaining = %v, want 25m", s.Remaining)
	}
}

func TestNormalizedDefaults(t *testing.T) {
	e := New(Settings{})
	cfg := e.Settings()
	if cfg.Focus != 25*time.Minute || cfg.ShortBreak != 5*time.Minute || cfg.LongBreak != 15*time.Minute || cfg.Rounds != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestCountdown(t *testing.T) {
	e := New(testSettings())
	if err := e.Start(t0); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(t0); !errors.Is(err, ErrRunning) {
		t.Fatalf("double start should fail, got %v", err)
	}

	if tr := e.Tick(t0.Add(10 * time.Minute)); len(tr) != 0 {
		t.Fatalf("no transition expected, got %+v", tr)
	}
	s := e.Snapshot(t0.Add(10 * time.Minute))
	if s.Remaining != 15*time.Minute || s.Elapsed != 10*time.Minute {
		t.Fatalf("remaining=%v elapsed=%v", s.Remaining, s.Elapsed)
	}
}

func TestFocusToShortBreak(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)

	trs := e.Tick(t0.Add(25 * time.Minute))
	if len(trs) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(trs))
	}
	tr := trs[0]
	if tr.From != Focus || tr.To != ShortBreak || !tr.Completed || tr.Rounds != 1 {
		t.Fatalf("unexpected transition: %+v", tr)
	}
	if tr.Actual != 25*time.Minute || tr.Planned != 25*time.Minute {
		t.Fatalf("actual=%v planned=%v", tr.Actual, tr.Planned)
	}
	if !tr.StartedAt.Equal(t0) || !tr.EndedAt.Equal(t0.Add(25*time.Minute)) {
		t.Fatalf("bad bounds: %v - %v", tr.StartedAt, tr.EndedAt)
	}

	s := e.Snapshot(t0.Add(26 * time.Minute))
	if s.Mode != ShortBreak || s.Status != Running || s.Remaining != 4*time.Minute {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestFullCycleWithLongBreak(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)

	var modes []Mode
	now := t0
	for i := 0; i < 8; i++ {
		s := e.Snapshot(now)
		now = now.Add(s.Remaining)
		for _, tr := range e.Tick(now) {
			modes = append(modes, tr.To)
		}
	}
	want := []Mode{ShortBreak, Focus, ShortBreak, Focus, ShortBreak, Focus, LongBreak, Focus}
	if len(modes) != len(want) {
		t.Fatalf("modes = %v, want %v", modes, want)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("modes = %v, want %v", modes, want)
		}
	}
	if got := e.Snapshot(now).Rounds; got != 4 {
		t.Fatalf("rounds = %d, want 4", got)
	}
}

func TestTickCatchesUpAfterGap(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)

	// 25 focus + 5 break + 25 focus = 55m, then 3 minutes into a break.
	trs := e.Tick(t0.Add(58 * time.Minute))
	if len(trs) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(trs))
	}
	if !trs[1].StartedAt.Equal(t0.Add(25*time.Minute)) || !trs[1].EndedAt.Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("chained phase bounds wrong: %+v", trs[1])
	}
	s := e.Snapshot(t0.Add(58 * time.Minute))
	if s.Mode != ShortBreak || s.Remaining != 2*time.Minute || s.Rounds != 2 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestNoAutoStartPausesNextPhase(t *testing.T) {
	cfg := testSettings()
	cfg.AutoStartBreaks = false
	cfg.AutoStartFocus = false
	e := New(cfg)
	e.Start(t0)

	trs := e.Tick(t0.Add(2 * time.Hour))
	if len(trs) != 1 {
		t.Fatalf("expected exactly one transition without auto-start, got %d", len(trs))
	}
	s := e.Snapshot(t0.Add(2 * time.Hour))
	if s.Mode != ShortBreak || s.Status != Paused || s.Remaining != 5*time.Minute {
		t.Fatalf("break should wait paused with full duration: %+v", s)
	}

	later := t0.Add(3 * time.Hour)
	if err := e.Resume(later); err != nil {
		t.Fatal(err)
	}
	trs = e.Tick(later.Add(5 * time.Minute))
	if len(trs) != 1 || trs[0].To != Focus {
		t.Fatalf("expected break->focus, got %+v", trs)
	}
	if e.Snapshot(later.Add(5*time.Minute)).Status != Paused {
		t.Fatal("focus should wait for the user")
	}
}

func TestPauseResume(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)
	if err := e.Pause(t0.Add(10 * time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := e.Pause(t0.Add(11 * time.Minute)); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}

	// Time passes while paused.
	if trs := e.Tick(t0.Add(time.Hour)); len(trs) != 0 {
		t.Fatal("paused engine must not transition")
	}
	s := e.Snapshot(t0.Add(time.Hour))
	if s.Remaining != 15*time.Minute || s.Elapsed != 10*time.Minute {
		t.Fatalf("pause should freeze: %+v", s)
	}

	resume := t0.Add(time.Hour)
	if err := e.Resume(resume); err != nil {
		t.Fatal(err)
	}
	trs := e.Tick(resume.Add(15 * time.Minute))
	if len(trs) != 1 {
		t.Fatalf("expected focus to end after resumed remainder, got %d", len(trs))
	}
	if trs[0].Actual != 25*time.Minute {
		t.Fatalf("actual should exclude pause, got %v", trs[0].Actual)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	e := New(testSettings())
	if err := e.Resume(t0); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestStartResumesWhenPaused(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)
	e.Pause(t0.Add(time.Minute))
	if err := e.Start(t0.Add(2 * time.Minute)); err != nil {
		t.Fatal(err)
	}
	if s := e.Snapshot(t0.Add(2 * time.Minute)); s.Status != Running || s.Remaining != 24*time.Minute {
		t.Fatalf("start should resume: %+v", s)
	}
}

func TestSkipFocusEarnsNoRound(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)
	tr := e.Next(t0.Add(3 * time.Minute))
	if tr.From != Focus || tr.To != ShortBreak || tr.Completed {
		t.Fatalf("unexpected skip transition: %+v", tr)
	}
	if tr.Rounds != 0 || tr.Actual != 3*time.Minute {
		t.Fatalf("skip should not count: %+v", tr)
	}
	if s := e.Snapshot(t0.Add(3 * time.Minute)); s.Status != Running || s.Mode != ShortBreak {
		t.Fatalf("next phase should run: %+v", s)
	}
}

func TestSkipBreak(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)
	e.Tick(t0.Add(25 * time.Minute))
	tr := e.Next(t0.Add(26 * time.Minute))
	if tr.From != ShortBreak || tr.To != Focus {
		t.Fatalf("unexpected: %+v", tr)
	}
	if s := e.Snapshot(t0.Add(26 * time.Minute)); s.Remaining != 25*time.Minute {
		t.Fatalf("focus should start full: %+v", s)
	}
}

func TestSkipIgnoresAutoStart(t *testing.T) {
	cfg := testSettings()
	cfg.AutoStartBreaks = false
	cfg.AutoStartFocus = false
	e := New(cfg)
	e.Start(t0)

	e.Next(t0.Add(time.Minute))
	if s := e.Snapshot(t0.Add(time.Minute)); s.Mode != ShortBreak || s.Status != Running {
		t.Fatalf("after skipping focus: %v/%v, want short_break/running", s.Mode, s.Status)
	}
	e.Next(t0.Add(2 * time.Minute))
	if s := e.Snapshot(t0.Add(2 * time.Minute)); s.Mode != Focus || s.Status != Running {
		t.Fatalf("after skipping break: %v/%v, want focus/running", s.Mode, s.Status)
	}
}

func TestSkipWhileIdle(t *testing.T) {
	e := New(testSettings())
	tr := e.Next(t0)
	if tr.Actual != 0 || !tr.StartedAt.Equal(t0) {
		t.Fatalf("idle skip: %+v", tr)
	}
}

func TestOvertimeBranch(t *testing.T) {
	cfg := testSettings()
	cfg.Overtime = true
	cfg.Rounds = 1
	e := New(cfg)
	e.Start(t0)

	trs := e.Tick(t0.Add(25 * time.Minute))
	if len(trs) != 1 || trs[0].To != Overtime || trs[0].Rounds != 1 {
		t.Fatalf("focus should enter overtime with the round counted: %+v", trs)
	}

	// Overtime never ends on its own.
	if trs := e.Tick(t0.Add(5 * time.Hour)); len(trs) != 0 {
		t.Fatalf("overtime must wait for Next, got %+v", trs)
	}
	s := e.Snapshot(t0.Add(35 * time.Minute))
	if s.Mode != Overtime || s.Elapsed != 10*time.Minute || s.Remaining != 0 {
		t.Fatalf("unexpected overtime snapshot %+v", s)
	}

	tr := e.Next(t0.Add(35 * time.Minute))
	if tr.From != Overtime || !tr.Completed || tr.Actual != 10*time.Minute {
		t.Fatalf("unexpected overtime end: %+v", tr)
	}
	if tr.To != LongBreak {
		t.Fatalf("with 1 round per cycle the earned break is long, got %v", tr.To)
	}
}

func TestOvertimePause(t *testing.T) {
	cfg := testSettings()
	cfg.Overtime = true
	e := New(cfg)
	e.Start(t0)
	e.Tick(t0.Add(25 * time.Minute))
	e.Pause(t0.Add(30 * time.Minute))
	e.Resume(t0.Add(40 * time.Minute))
	tr := e.Next(t0.Add(42 * time.Minute))
	if tr.Actual != 7*time.Minute {
		t.Fatalf("overtime actual = %v, want 7m", tr.Actual)
	}
	if tr.To != ShortBreak {
		t.Fatalf("first round earns a short break, got %v", tr.To)
	}
}

func TestReset(t *testing.T) {
	e := New(testSettings())
	e.Start(t0)
	e.Tick(t0.Add(25 * time.Minute))
	e.Reset()
	s := e.Snapshot(t0.Add(30 * time.Minute))
	if s.Mode != Focus || s.Status != Idle || s.Rounds != 0 || s.Remaining != 25*time.Minute {
		t.Fatalf("reset should return to idle focus: %+v", s)
	}
}

func TestConfigureIdle(t *testing.T) {
	e := New(testSettings())
	cfg := testSettings()
	cfg.Focus = 50 * time.Minute
	e.Configure(cfg)
	if s := e.Snapshot(t0); s.Remaining != 50*time.Minute {
		t.Fatalf("idle engine should adopt new focus length, got %v", s.Remaining)
	}
}

func TestModeHelpers(t *testing.T) {
	tests := []struct {
		mode    Mode
		isBreak bool
		label   string
	}{
		{Focus, false, "FOCUS"},
		{ShortBreak, true, "SHORT BREAK"},
		{LongBreak, true, "LONG BREAK"},
		{Overtime, false, "OVERTIME"},
	}
	for _, tt := range tests {
		if tt.mode.IsBreak() != tt.isBreak || tt.mode.Label() != tt.label {
			t.Errorf("%s: IsBreak=%v Label=%q", tt.mode, tt.mode.IsBreak(), tt.mode.Label())
		}
	}
}
