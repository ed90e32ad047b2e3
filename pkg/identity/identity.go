package identity

import (
	"context"
	"time"
)

// Claims is the premium-status metadata attached to a user credential.
type Claims struct {
	IsPremium          bool       `json:"isPremium"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	PremiumSince       *time.Time `json:"premiumSince,omitempty"`
}

// User is the identity platform's view of an account.
type User struct {
	UID    string `json:"uid"`
	Email  string `json:"email"`
	Claims Claims `json:"customClaims"`
}

// Provider defines the identity platform operations used by premium-status
// reconciliation.
type Provider interface {
	// GetUser returns the user with the given UID.
	// Returns ErrUserNotFound when no such user exists.
	GetUser(ctx context.Context, uid string) (*User, error)

	// GetUserByEmail returns the user registered under the given email.
	// Returns ErrUserNotFound when no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SetCustomClaims replaces the custom claims on a user credential.
	// Existing sessions keep their old claims until the credential is
	// refreshed; callers must not rely on immediate propagation.
	SetCustomClaims(ctx context.Context, uid string, claims Claims) error
}
