// Package auth checks bearer API keys against configured SHA-256 hashes and
// guards admin routes with a shared secret.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

var (
	ErrInvalidAPIKey        = errors.New("invalid API key")
	ErrAdminSecretNotSet    = errors.New("admin secret is not configured")
	ErrInvalidAdminSecret   = errors.New("invalid admin secret")
	ErrMissingAuthorization = errors.New("missing Authorization header")
)

// User is the identity behind an API key.
type User struct {
	ID          string
	Description string
}

// Authenticator validates API keys. It can be reloaded while serving.
type Authenticator struct {
	mu    sync.RWMutex
	users map[string]*User // keyhash -> user
}

// NewAuthenticator creates an authenticator for the configured keys.
func NewAuthenticator(keys []config.APIKeyConfig) *Authenticator {
	a := &Authenticator{}
	a.Reload(keys)
	return a
}

// Reload replaces the key set.
func (a *Authenticator) Reload(keys []config.APIKeyConfig) {
	users := make(map[string]*User, len(keys))
	for _, key := range keys {
		users[strings.ToLower(key.KeyHash)] = &User{ID: key.UserID, Description: key.Description}
	}

	a.mu.Lock()
	a.users = users
	a.mu.Unlock()
}

// Enabled reports whether any keys are configured.
func (a *Authenticator) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users) > 0
}

// ValidateAPIKey validates an API key and returns the associated user
func (a *Authenticator) ValidateAPIKey(apiKey string) (*User, error) {
	keyHash := HashAPIKey(apiKey)

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Constant-time comparison to prevent timing attacks
	for hash, user := range a.users {
		if subtle.ConstantTimeCompare([]byte(keyHash), []byte(hash)) == 1 {
			return user, nil
		}
	}

	return nil, ErrInvalidAPIKey
}

// CheckAdminSecret compares the presented secret with the configured one.
// An unset configured secret rejects everything with ErrAdminSecretNotSet.
func CheckAdminSecret(configured, presented string) error {
	if configured == "" {
		return ErrAdminSecretNotSet
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
		return ErrInvalidAdminSecret
	}
	return nil
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuthorization
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
