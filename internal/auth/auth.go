// Package auth stands in for an identity provider. Registered users live
// in the local kv store; there is no server-side account system.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nutricoach/internal/kv"
	"nutricoach/internal/models"
	"nutricoach/pkg/logger"
)

// UsersKey is where the registered-user list is stored.
const UsersKey = "users"

var (
	ErrMissingFields   = errors.New("all fields are required")
	ErrAccountExists   = errors.New("an account with this email already exists")
	ErrAccountNotFound = errors.New("no account found with this email")
	ErrInvalidPassword = errors.New("incorrect password")
)

// DemoUser is returned by every simulated Google sign-in.
var DemoUser = models.User{Name: "Demo User", Email: "demo@example.com"}

type Authenticator interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	GoogleLogin(ctx context.Context) (*models.User, error)
}

type Latency struct {
	Min    time.Duration
	Max    time.Duration
	Google time.Duration
}

// DefaultLatency mimics a network round trip.
var DefaultLatency = Latency{Min: 500 * time.Millisecond, Max: time.Second, Google: time.Second}

// Mock accepts any password unless a verifying PasswordVerifier is set.
type Mock struct {
	kv       kv.Store
	verifier PasswordVerifier
	latency  Latency
	logger   *logger.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMock(store kv.Store, verifier PasswordVerifier, latency Latency, l *logger.Logger) *Mock {
	if verifier == nil {
		verifier = AcceptAll{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Mock{
		kv:       store,
		verifier: verifier,
		latency:  latency,
		logger:   l.Named("auth"),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Mock) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if err := sleep(ctx, m.jitter()); err != nil {
		return nil, err
	}
	name, email = strings.TrimSpace(name), normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.users()
	if err != nil {
		return nil, err
	}
	if findUser(users, email) != nil {
		return nil, ErrAccountExists
	}

	user := models.User{Name: name, Email: email}
	if err := m.saveUsers(append(users, user)); err != nil {
		return nil, err
	}
	if err := m.verifier.Enroll(email, password); err != nil {
		if rbErr := m.saveUsers(users); rbErr != nil {
			m.logger.Errorw("Failed to roll back registration", "error", rbErr, "email", email)
		}
		return nil, fmt.Errorf("failed to enroll credentials: %w", err)
	}

	m.logger.Infow("User registered", "email", email)
	return &user, nil
}

func (m *Mock) Login(ctx context.Context, email, password string) (*models.User, error) {
	if err := sleep(ctx, m.jitter()); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	m.mu.Lock()
	users, err := m.users()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	user := findUser(users, email)
	if user == nil {
		return nil, ErrAccountNotFound
	}
	ok, err := m.verifier.Verify(email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}
	if !ok {
		return nil, ErrInvalidPassword
	}

	m.logger.Infow("User logged in", "email", email)
	return user, nil
}

func (m *Mock) GoogleLogin(ctx context.Context) (*models.User, error) {
	if err := sleep(ctx, m.latency.Google); err != nil {
		return nil, err
	}

	// the demo account is created on its first sign-in
	m.mu.Lock()
	defer m.mu.Unlock()
	users, err := m.users()
	if err != nil {
		return nil, err
	}
	if findUser(users, DemoUser.Email) == nil {
		if err := m.saveUsers(append(users, DemoUser)); err != nil {
			return nil, err
		}
	}

	user := DemoUser
	m.logger.Infow("Simulated Google login", "email", user.Email)
	return &user, nil
}

// users reads the registered-user list. A missing key is an empty list.
func (m *Mock) users() ([]models.User, error) {
	raw, ok, err := m.kv.Get(UsersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read user database: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var users []models.User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("failed to decode user database: %w", err)
	}
	return users, nil
}

func (m *Mock) saveUsers(users []models.User) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to encode user database: %w", err)
	}
	if err := m.kv.Set(UsersKey, string(raw)); err != nil {
		return fmt.Errorf("failed to write user database: %w", err)
	}
	return nil
}

func (m *Mock) jitter() time.Duration {
	if m.latency.Max <= m.latency.Min {
		return m.latency.Min
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency.Min + time.Duration(m.rnd.Int63n(int64(m.latency.Max-m.latency.Min)+1))
}

func findUser(users []models.User, email string) *models.User {
	for i := range users {
		if users[i].Email == email {
			u := users[i]
			return &u
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
