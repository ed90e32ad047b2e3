package docstore

import (
	"context"
	"strings"
	"time"
)

// Record is the cached premium-status document shared by both collections.
// The same logical shape exists on the billing provider and in identity
// custom claims; this package only owns the document-store copy.
type Record struct {
	Email              string     `bson:"email" json:"email"`
	IsPremium          bool       `bson:"isPremium" json:"isPremium"`
	PremiumSince       *time.Time `bson:"premiumSince,omitempty" json:"premiumSince,omitempty"`
	SubscriptionStatus string     `bson:"subscriptionStatus,omitempty" json:"subscriptionStatus,omitempty"`
	CancelAtPeriodEnd  bool       `bson:"cancelAtPeriodEnd" json:"cancelAtPeriodEnd"`
	CustomerID         string     `bson:"customerId,omitempty" json:"customerId,omitempty"`
	SubscriptionID     string     `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	UpdatedAt          time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Store defines document-store access for premium-status reconciliation.
// Emails passed to any method are normalized to lowercase internally, so
// callers may pass user input as-is.
type Store interface {
	// GetPaidEmail returns the paid-emails document for an email.
	// Returns ErrNotFound when no document exists.
	GetPaidEmail(ctx context.Context, email string) (*Record, error)

	// SetPaidEmail replaces the paid-emails document for an email.
	SetPaidEmail(ctx context.Context, email string, rec Record) error

	// MergePaidEmail upserts the given fields into the paid-emails
	// document, preserving fields not present in rec.
	MergePaidEmail(ctx context.Context, email string, rec Record) error

	// GetUserByEmail returns the users-collection document for an email.
	// Returns ErrNotFound when no user document matches.
	GetUserByEmail(ctx context.Context, email string) (*Record, error)

	// UpdateUserPremium merges premium-status fields into the user
	// document for an email. Missing users are not an error; the
	// document is created on first write.
	UpdateUserPremium(ctx context.Context, email string, rec Record) error
}

// emailKeyReplacer substitutes the characters that document keys reject.
var emailKeyReplacer = strings.NewReplacer(
	".", "_",
	"#", "_",
	"$", "_",
	"/", "_",
	"[", "_",
	"]", "_",
)

// EmailKey derives the document key for an email: lowercase, then replace
// the reserved key characters . # $ / [ ] with underscores. Nothing else is
// altered, so distinct emails that differ only in reserved characters map to
// the same key by design of the upstream key format.
func EmailKey(email string) string {
	return emailKeyReplacer.Replace(strings.ToLower(email))
}

// NormalizeEmail lowercases an email for use as a logical lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
