package remote

import (
	"errors"
	"sync"

	"github.com/sadopc/taskr/internal/store"
)

type Tokens struct {
	Access  string
	Refresh string
}

type TokenStore interface {
	Tokens() (Tokens, error)
	SaveTokens(Tokens) error
	ClearTokens() error
}

const (
	keyAccessToken  = "auth_access_token"
	keyRefreshToken = "auth_refresh_token"
)

// SettingsKV is the subset of *store.Store the token store needs.
type SettingsKV interface {
	GetSetting(key string) (string, error)
	SetSettings(values map[string]string) error
	DeleteSetting(key string) error
}

// SettingsTokens keeps the token pair in the local settings table.
type SettingsTokens struct {
	KV SettingsKV
}

func (s SettingsTokens) Tokens() (Tokens, error) {
	var t Tokens
	var err error
	if t.Access, err = s.get(keyAccessToken); err != nil {
		return t, err
	}
	t.Refresh, err = s.get(keyRefreshToken)
	return t, err
}

func (s SettingsTokens) get(key string) (string, error) {
	v, err := s.KV.GetSetting(key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s SettingsTokens) SaveTokens(t Tokens) error {
	return s.KV.SetSettings(map[string]string{
		keyAccessToken:  t.Access,
		keyRefreshToken: t.Refresh,
	})
}

func (s SettingsTokens) ClearTokens() error {
	if err := s.KV.DeleteSetting(keyAccessToken); err != nil {
		return err
	}
	return s.KV.DeleteSetting(keyRefreshToken)
}

// MemoryTokens is an in-process TokenStore.
type MemoryTokens struct {
	mu sync.Mutex
	t  Tokens
}

func (m *MemoryTokens) Tokens() (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t, nil
}

func (m *MemoryTokens) SaveTokens(t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
	return nil
}

func (m *MemoryTokens) ClearTokens() error {
	return m.SaveTokens(Tokens{})
}
