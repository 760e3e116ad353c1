// Package secret implements secret mode: while it is active, tasks flagged
// as secret are hidden from every listing. Secret mode ends manually, when a
// deadline passes, or when a named event fires.
package secret

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sadopc/taskr/internal/store"
)

// EventSessionEnd fires when an interactive session (the TUI) exits.
const EventSessionEnd = "session_end"

const (
	keyActive = "secret_active"
	keyKind   = "secret_kind"
	keyUntil  = "secret_until"
	keyEvent  = "secret_event"
	keySince  = "secret_since"
	keyPIN    = "secret_pin"
)

var (
	ErrPastDeadline = errors.New("secret mode deadline is in the past")
	ErrNoEvent      = errors.New("secret mode event name is empty")
	ErrWrongPIN     = errors.New("wrong PIN")
	ErrWeakPIN      = errors.New("PIN must have at least 4 characters")
)

type Kind string

const (
	Manual Kind = "manual"
	Timed  Kind = "time"
	Event  Kind = "event"
)

// Condition describes when secret mode ends on its own.
type Condition struct {
	Kind  Kind
	Until time.Time
	Event string
}

func UntilTime(t time.Time) Condition { return Condition{Kind: Timed, Until: t} }
func OnEvent(name string) Condition   { return Condition{Kind: Event, Event: name} }
func UntilDisabled() Condition        { return Condition{Kind: Manual} }

type State struct {
	Active    bool
	Condition Condition
	Since     time.Time
}

// KV is the settings storage secret mode persists to.
type KV interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	SetSettings(values map[string]string) error
	DeleteSetting(key string) error
}

type Mode struct {
	mu  sync.Mutex
	kv  KV
	log *slog.Logger
}

func New(kv KV, logger *slog.Logger) *Mode {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mode{kv: kv, log: logger.With("component", "secret")}
}

func (m *Mode) Enable(cond Condition, now time.Time) error {
	switch cond.Kind {
	case Timed:
		if !cond.Until.After(now) {
			return ErrPastDeadline
		}
	case Event:
		if cond.Event == "" {
			return ErrNoEvent
		}
	case "":
		cond.Kind = Manual
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	values := map[string]string{
		keyActive: "true",
		keyKind:   string(cond.Kind),
		keyUntil:  strconv.FormatInt(cond.Until.UnixMilli(), 10),
		keyEvent:  cond.Event,
		keySince:  strconv.FormatInt(now.UnixMilli(), 10),
	}
	if cond.Until.IsZero() {
		values[keyUntil] = "0"
	}
	if err := m.kv.SetSettings(values); err != nil {
		return fmt.Errorf("enable secret mode: %w", err)
	}
	m.log.Info("secret mode enabled", "kind", cond.Kind, "until", cond.Until, "event", cond.Event)
	return nil
}

// Disable ends secret mode. When a PIN is set it must match.
func (m *Mode) Disable(pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkPIN(pin); err != nil {
		return err
	}
	return m.deactivate("manual")
}

func (m *Mode) deactivate(reason string) error {
	if err := m.kv.SetSetting(keyActive, "false"); err != nil {
		return fmt.Errorf("disable secret mode: %w", err)
	}
	m.log.Info("secret mode ended", "reason", reason)
	return nil
}

// Active reports whether secret mode is on, ending it first when its
// deadline has passed.
func (m *Mode) Active(now time.Time) (bool, error) {
	st, err := m.Status(now)
	if err != nil {
		return false, err
	}
	return st.Active, nil
}

func (m *Mode) Status(now time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.load()
	if err != nil {
		return st, err
	}
	if st.Active && st.Condition.Kind == Timed && !now.Before(st.Condition.Until) {
		if err := m.deactivate("deadline"); err != nil {
			return st, err
		}
		st.Active = false
	}
	return st, nil
}

// Trigger delivers an event. It reports whether secret mode ended because
// of it.
func (m *Mode) Trigger(event string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.load()
	if err != nil {
		return false, err
	}
	if !st.Active || st.Condition.Kind != Event || st.Condition.Event != event {
		return false, nil
	}
	if err := m.deactivate("event " + event); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mode) HasPIN() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, err := m.get(keyPIN)
	return hash != "", err
}

// SetPIN replaces the unlock PIN. An empty newPIN removes it.
func (m *Mode) SetPIN(oldPIN, newPIN string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkPIN(oldPIN); err != nil {
		return err
	}
	if newPIN == "" {
		return m.kv.DeleteSetting(keyPIN)
	}
	if len(newPIN) < 4 {
		return ErrWeakPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	return m.kv.SetSetting(keyPIN, string(hash))
}

func (m *Mode) checkPIN(pin string) error {
	hash, err := m.get(keyPIN)
	if err != nil {
		return err
	}
	if hash == "" {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return ErrWrongPIN
	}
	return nil
}

// load reads the persisted state. Any read error is returned so callers
// can keep secret tasks hidden.
func (m *Mode) load() (State, error) {
	var st State
	active, err := m.get(keyActive)
	if err != nil {
		return st, err
	}
	st.Active = active == "true"
	if !st.Active {
		return st, nil
	}

	vals := make(map[string]string, 4)
	for _, k := range []string{keyKind, keyEvent, keyUntil, keySince} {
		v, err := m.get(k)
		if err != nil {
			// An active state that cannot be read in full still hides.
			return st, err
		}
		vals[k] = v
	}
	st.Condition = Condition{Kind: Kind(vals[keyKind]), Event: vals[keyEvent]}
	if v := vals[keyUntil]; v != "" && v != "0" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.Condition.Until = time.UnixMilli(ms)
		}
	}
	if v := vals[keySince]; v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.Since = time.UnixMilli(ms)
		}
	}
	return st, nil
}

func (m *Mode) get(key string) (string, error) {
	v, err := m.kv.GetSetting(key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read secret mode: %w", err)
	}
	return v, nil
}
