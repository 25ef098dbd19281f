// internal/auth/verifier.go
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"nutricoach/internal/kv"
)

// CredentialsKey holds bcrypt hashes when BcryptVerifier is in use.
const CredentialsKey = "credentials"

// PasswordVerifier decides whether a password matches an account.
type PasswordVerifier interface {
	Enroll(email, password string) error
	Verify(email, password string) (bool, error)
}

// AcceptAll never stores a password and accepts any.
type AcceptAll struct{}

func (AcceptAll) Enroll(string, string) error { return nil }
func (AcceptAll) Verify(string, string) (bool, error) { return true, nil }

type BcryptVerifier struct {
	kv   kv.Store
	cost int
	mu   sync.Mutex
}

func NewBcryptVerifier(store kv.Store) *BcryptVerifier {
	return &BcryptVerifier{kv: store, cost: bcrypt.DefaultCost}
}

func (b *BcryptVerifier) Enroll(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	creds, err := b.load()
	if err != nil {
		return err
	}
	creds[email] = string(hash)
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return b.kv.Set(CredentialsKey, string(raw))
}

// Verify reports false for accounts enrolled before verification was on.
func (b *BcryptVerifier) Verify(email, password string) (bool, error) {
	b.mu.Lock()
	creds, err := b.load()
	b.mu.Unlock()
	if err != nil {
		return false, err
	}
	hash, ok := creds[email]
	if !ok {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

func (b *BcryptVerifier) load() (map[string]string, error) {
	creds := make(map[string]string)
	raw, ok, err := b.kv.Get(CredentialsKey)
	if err != nil || !ok || raw == "" {
		return creds, err
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}
