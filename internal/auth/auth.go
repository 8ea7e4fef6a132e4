package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredential means the bearer credential is unknown or malformed.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInactiveUser means the credential maps to a deactivated account.
	ErrInactiveUser = errors.New("user is inactive")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

// Authenticator validates a bearer credential. Implementations must
// return ErrInactiveUser for deactivated accounts so callers can refuse
// them uniformly.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (Identity, error)
}

// TokenAuthenticator validates opaque bearer tokens against an
// in-memory registry. Suitable for single-node deployments and tests;
// a shared-session deployment swaps in its own Authenticator.
type TokenAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

// NewTokenAuthenticator creates an empty token registry.
func NewTokenAuthenticator() *TokenAuthenticator {
	return &TokenAuthenticator{tokens: make(map[string]Identity)}
}

// Issue mints a new opaque token for the identity and registers it.
func (a *TokenAuthenticator) Issue(id Identity) string {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = id
	a.mu.Unlock()
	return token
}

// Register binds a caller-chosen token to an identity.
func (a *TokenAuthenticator) Register(token string, id Identity) {
	a.mu.Lock()
	a.tokens[token] = id
	a.mu.Unlock()
}

// Revoke removes a token from the registry.
func (a *TokenAuthenticator) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

// Authenticate resolves a bearer credential. A "Bearer " prefix is
// stripped if present.
func (a *TokenAuthenticator) Authenticate(_ context.Context, bearer string) (Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if token == "" {
		return Identity{}, ErrInvalidCredential
	}

	a.mu.RLock()
	id, ok := a.tokens[token]
	a.mu.RUnlock()

	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	if !id.IsActive {
		return Identity{}, ErrInactiveUser
	}
	return id, nil
}
