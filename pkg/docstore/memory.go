package docstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	paidEmails map[string]Record // keyed by EmailKey
	users      map[string]Record // keyed by normalized email
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		paidEmails: make(map[string]Record),
		users:      make(map[string]Record),
	}
}

// GetPaidEmail implements Store.
func (s *MemoryStore) GetPaidEmail(ctx context.Context, email string) (*Record, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.paidEmails[EmailKey(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// SetPaidEmail implements Store.
func (s *MemoryStore) SetPaidEmail(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	rec.Email = email
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paidEmails[EmailKey(email)] = rec
	return nil
}

// MergePaidEmail implements Store. In-memory merge keeps PremiumSince and
// identifier fields when the incoming record omits them, mirroring the
// partial-update semantics of the Mongo implementation.
func (s *MemoryStore) MergePaidEmail(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := EmailKey(email)
	merged := s.paidEmails[key]
	mergeRecord(&merged, rec, email)
	s.paidEmails[key] = merged
	return nil
}

// GetUserByEmail implements Store.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*Record, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// UpdateUserPremium implements Store.
func (s *MemoryStore) UpdateUserPremium(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.users[email]
	mergeRecord(&merged, rec, email)
	s.users[email] = merged
	return nil
}

func mergeRecord(dst *Record, src Record, email string) {
	dst.Email = email
	dst.IsPremium = src.IsPremium
	dst.CancelAtPeriodEnd = src.CancelAtPeriodEnd
	dst.SubscriptionStatus = src.SubscriptionStatus
	if src.PremiumSince != nil {
		dst.PremiumSince = src.PremiumSince
	}
	if src.CustomerID != "" {
		dst.CustomerID = src.CustomerID
	}
	if src.SubscriptionID != "" {
		dst.SubscriptionID = src.SubscriptionID
	}
	dst.UpdatedAt = src.UpdatedAt
	if dst.UpdatedAt.IsZero() {
		dst.UpdatedAt = time.Now().UTC()
	}
}
