// Package session remembers the active user across restarts using the
// local kv store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"nutricoach/internal/auth"
	"nutricoach/internal/kv"
	"nutricoach/internal/models"
	"nutricoach/pkg/logger"
)

// UserKey holds the JSON-encoded active user.
const UserKey = "user"

// HistoryClearer is called on logout. History is one global collection,
// so logging out wipes it for everyone.
type HistoryClearer interface {
	ClearHistory(ctx context.Context) error
}

type Manager struct {
	kv      kv.Store
	auth    auth.Authenticator
	history HistoryClearer
	logger  *logger.Logger

	mu      sync.RWMutex
	current *models.User
}

func NewManager(store kv.Store, authenticator auth.Authenticator, history HistoryClearer, l *logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		kv:      store,
		auth:    authenticator,
		history: history,
		logger:  l.Named("session"),
	}
}

// Restore loads the persisted user. A record that does not decode is
// removed and the session starts logged out.
func (m *Manager) Restore(ctx context.Context) (*models.User, error) {
	raw, ok, err := m.kv.Get(UserKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		m.setCurrent(nil)
		return nil, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || strings.TrimSpace(user.Email) == "" {
		m.logger.Warnw("Discarding corrupted session record", "error", err)
		if err := m.kv.Remove(UserKey); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted session: %w", err)
		}
		m.setCurrent(nil)
		return nil, nil
	}

	m.setCurrent(&user)
	m.logger.Infow("Session restored", "email", user.Email)
	return m.Current(), nil
}

func (m *Manager) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	user, err := m.auth.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return m.start(user)
}

func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.start(user)
}

func (m *Manager) GoogleLogin(ctx context.Context) (*models.User, error) {
	user, err := m.auth.GoogleLogin(ctx)
	if err != nil {
		return nil, err
	}
	return m.start(user)
}

// Logout forgets the user and clears the history.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.kv.Remove(UserKey); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	m.setCurrent(nil)

	if err := m.history.ClearHistory(ctx); err != nil {
		return fmt.Errorf("failed to clear history on logout: %w", err)
	}
	m.logger.Infow("Logged out")
	return nil
}

// Current returns a copy of the active user, or nil when logged out.
func (m *Manager) Current() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	u := *m.current
	return &u
}

func (m *Manager) start(user *models.User) (*models.User, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.kv.Set(UserKey, string(raw)); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	m.setCurrent(user)
	return m.Current(), nil
}

func (m *Manager) setCurrent(user *models.User) {
	m.mu.Lock()
	if user == nil {
		m.current = nil
	} else {
		u := *user
		m.current = &u
	}
	m.mu.Unlock()
}
