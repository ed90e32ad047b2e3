package billing

import (
	"context"
)

// SubscriptionStatus represents the lifecycle state of a provider
// subscription, normalized across provider-specific vocabularies.
type SubscriptionStatus string

const (
	StatusActive              SubscriptionStatus = "active"
	StatusTrialing            SubscriptionStatus = "trialing"
	StatusCanceled            SubscriptionStatus = "canceled"
	StatusUnpaid              SubscriptionStatus = "unpaid"
	StatusCancellationPending SubscriptionStatus = "cancellation_pending"
	StatusUnknown             SubscriptionStatus = "unknown"
)

// IsActive reports whether the status entitles the customer to premium
// features. Trialing counts as active; a pending cancellation does not,
// even though the provider still bills it as live.
func (s SubscriptionStatus) IsActive() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the provider's view of a recurring subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
}

// Entitled reports whether this subscription, as the provider sees it right
// now, grants premium access.
func (s Subscription) Entitled() bool {
	return s.Status.IsActive() && !s.CancelAtPeriodEnd
}

// CheckoutSession is the provider's record of a completed (or abandoned)
// hosted checkout.
type CheckoutSession struct {
	ID             string
	CustomerEmail  string
	PaymentStatus  string
	SubscriptionID string
	CustomerID     string
}

// Paid reports whether the checkout resulted in a successful payment.
func (cs CheckoutSession) Paid() bool {
	return cs.PaymentStatus == PaymentStatusPaid
}

// PaymentStatusPaid is the normalized payment status for a settled checkout.
const PaymentStatusPaid = "paid"

// Provider defines the payment provider lookups used during premium-status
// reconciliation. All methods are read-only from the provider's perspective.
type Provider interface {
	// RetrieveSubscription returns the live state of a subscription.
	// Returns ErrNotFound when the subscription no longer exists, which
	// callers must treat as "definitively not active".
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// ListSubscriptions returns all subscriptions belonging to a customer,
	// newest first. An empty slice with a nil error means the customer has
	// no subscriptions.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// RetrieveCheckoutSession returns the checkout session created when a
	// customer went through the hosted checkout flow.
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}
