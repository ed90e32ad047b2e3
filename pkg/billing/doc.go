// Package billing abstracts the payment provider behind a small read-mostly
// interface used by the premium-status verifier and the reconciliation queue.
//
// The Provider interface exposes exactly the three lookups the reconciliation
// subsystem needs: a subscription by ID, the subscriptions of a customer, and
// a checkout session by ID. Write operations (checkout creation, portal
// links, plan changes) are intentionally absent; the provider's hosted
// surfaces own those flows.
//
// A concrete adapter backed by the official Paddle SDK is provided via
// NewPaddleProvider. Implementations must translate the provider's
// "resource missing" responses into ErrNotFound, because a missing
// subscription is a definitive negative signal, not a transient failure.
package billing
