package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryProvider is an in-memory Provider for tests and local development.
type MemoryProvider struct {
	mu      sync.RWMutex
	byUID   map[string]*User
	byEmail map[string]string // email -> uid
}

// NewMemoryProvider creates an empty in-memory identity provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		byUID:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// AddUser registers a user. Intended for test setup.
func (p *MemoryProvider) AddUser(user User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	u := user
	p.byUID[user.UID] = &u
	if user.Email != "" {
		p.byEmail[user.Email] = user.UID
	}
}

// GetUser implements Provider.
func (p *MemoryProvider) GetUser(ctx context.Context, uid string) (*User, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	user, ok := p.byUID[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// GetUserByEmail implements Provider.
func (p *MemoryProvider) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrEmailRequired
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	uid, ok := p.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *p.byUID[uid]
	return &u, nil
}

// SetCustomClaims implements Provider.
func (p *MemoryProvider) SetCustomClaims(ctx context.Context, uid string, claims Claims) error {
	if uid == "" {
		return ErrUIDRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.byUID[uid]
	if !ok {
		return ErrUserNotFound
	}
	user.Claims = claims
	return nil
}
