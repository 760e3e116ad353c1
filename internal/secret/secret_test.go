package secret

import (
	"errors"
	"testing"
	"time"

	"github.com/sadopc/taskr/internal/store"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestMode(t *testing.T) (*Mode, *store.Store) {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func TestInactiveByDefault(t *testing.T) {
	m, _ := newTestMode(t)
	active, err := m.Active(now)
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Fatal("secret mode should start inactive")
	}
}

func TestTimedCondition(t *testing.T) {
	m, _ := newTestMode(t)
	if err := m.Enable(UntilTime(now.Add(time.Hour)), now); err != nil {
		t.Fatal(err)
	}
	if active, _ := m.Active(now.Add(59 * time.Minute)); !active {
		t.Fatal("should be active before the deadline")
	}
	if active, _ := m.Active(now.Add(time.Hour)); active {
		t.Fatal("should end at the deadline")
	}
	// Stays off even if asked about an earlier instant afterwards.
	if active, _ := m.Active(now); active {
		t.Fatal("expiry should be persisted")
	}
}

func TestEnableRejectsPastDeadline(t *testing.T) {
	m, _ := newTestMode(t)
	if err := m.Enable(UntilTime(now.Add(-time.Second)), now); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline, got %v", err)
	}
	if err := m.Enable(OnEvent(""), now); !errors.Is(err, ErrNoEvent) {
		t.Fatalf("expected ErrNoEvent, got %v", err)
	}
}

func TestEventCondition(t *testing.T) {
	m, _ := newTestMode(t)
	m.Enable(OnEvent(EventSessionEnd), now)

	ended, err := m.Trigger("something_else")
	if err != nil {
		t.Fatal(err)
	}
	if ended {
		t.Fatal("unrelated event must not end secret mode")
	}
	if active, _ := m.Active(now.Add(24 * time.Hour)); !active {
		t.Fatal("event-based mode has no deadline")
	}

	ended, _ = m.Trigger(EventSessionEnd)
	if !ended {
		t.Fatal("matching event should end secret mode")
	}
	if active, _ := m.Active(now); active {
		t.Fatal("should be inactive after event")
	}
}

func TestTriggerIgnoredForManual(t *testing.T) {
	m, _ := newTestMode(t)
	m.Enable(UntilDisabled(), now)
	if ended, _ := m.Trigger(EventSessionEnd); ended {
		t.Fatal("manual mode ignores events")
	}
}

func TestStatusReportsCondition(t *testing.T) {
	m, _ := newTestMode(t)
	until := now.Add(2 * time.Hour)
	m.Enable(UntilTime(until), now)

	st, err := m.Status(now)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Active || st.Condition.Kind != Timed || !st.Condition.Until.Equal(until) || !st.Since.Equal(now) {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	m, s := newTestMode(t)
	m.Enable(UntilDisabled(), now)

	other := New(s, nil)
	if active, _ := other.Active(now); !active {
		t.Fatal("state should live in the store")
	}
}

func TestDisableWithPIN(t *testing.T) {
	m, _ := newTestMode(t)
	if err := m.SetPIN("", "1234"); err != nil {
		t.Fatal(err)
	}
	if has, err := m.HasPIN(); err != nil || !has {
		t.Fatalf("HasPIN = %v, %v; want true", has, err)
	}
	m.Enable(UntilDisabled(), now)

	if err := m.Disable("0000"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("expected ErrWrongPIN, got %v", err)
	}
	if active, _ := m.Active(now); !active {
		t.Fatal("wrong PIN must keep secret mode on")
	}
	if err := m.Disable("1234"); err != nil {
		t.Fatal(err)
	}
	if active, _ := m.Active(now); active {
		t.Fatal("correct PIN should disable")
	}
}

func TestSetPIN(t *testing.T) {
	m, _ := newTestMode(t)
	if err := m.SetPIN("", "12"); !errors.Is(err, ErrWeakPIN) {
		t.Fatalf("expected ErrWeakPIN, got %v", err)
	}
	m.SetPIN("", "1234")
	if err := m.SetPIN("9999", "5678"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("changing PIN needs the old one, got %v", err)
	}
	if err := m.SetPIN("1234", ""); err != nil {
		t.Fatal(err)
	}
	if has, _ := m.HasPIN(); has {
		t.Fatal("empty new PIN should remove it")
	}
}

func TestDisableWithoutPIN(t *testing.T) {
	m, _ := newTestMode(t)
	m.Enable(UntilDisabled(), now)
	if err := m.Disable(""); err != nil {
		t.Fatal(err)
	}
}

// failingKV fails reads of one key and passes everything else to the store.
type failingKV struct {
	*store.Store
	key string
}

func (f failingKV) GetSetting(key string) (string, error) {
	if key == f.key {
		return "", errors.New("database is locked")
	}
	return f.Store.GetSetting(key)
}

func TestReadErrorsAreReturned(t *testing.T) {
	_, s := newTestMode(t)
	if err := New(s, nil).Enable(UntilTime(now.Add(time.Hour)), now); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{keyActive, keyKind, keyUntil, keyEvent, keySince} {
		t.Run(key, func(t *testing.T) {
			m := New(failingKV{Store: s, key: key}, nil)
			if _, err := m.Active(now); err == nil {
				t.Fatal("expected the read error")
			}
			if _, err := m.Trigger(EventSessionEnd); err == nil {
				t.Fatal("Trigger should fail too")
			}
		})
	}

	m := New(failingKV{Store: s, key: keyPIN}, nil)
	if _, err := m.HasPIN(); err == nil {
		t.Fatal("HasPIN should report the read error")
	}
	if err := m.Disable(""); err == nil {
		t.Fatal("Disable must not skip the PIN check on a read error")
	}
	if active, _ := New(s, nil).Active(now); !active {
		t.Fatal("secret mode should still be on")
	}
}
