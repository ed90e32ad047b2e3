package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/docstore"
	"github.com/lumichat/premium/pkg/identity"
)

// Handlers implements the two task types against the external
// collaborators. Both handlers are idempotent: re-running a completed
// verification or status update writes the same state again.
type Handlers struct {
	provider billing.Provider
	store    docstore.Store
	idp      identity.Provider
	log      *slog.Logger
}

// NewHandlers creates the task handlers.
func NewHandlers(provider billing.Provider, store docstore.Store, idp identity.Provider, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		provider: provider,
		store:    store,
		idp:      idp,
		log:      log,
	}
}

// Register binds both handlers to their task types on the queue.
func (h *Handlers) Register(q *Queue) {
	q.RegisterHandler(TaskTypeVerifySubscription, h.VerifySubscription)
	q.RegisterHandler(TaskTypeUpdatePremiumStatus, h.UpdatePremiumStatus)
}

// VerifySubscription resolves a checkout session with the payment provider
// and persists the resulting premium status everywhere.
//
// Definitive provider answers (session or subscription gone, subscription
// inactive) complete the task; retrying cannot change them. Only transient
// failures return an error and consume a retry.
func (h *Handlers) VerifySubscription(ctx context.Context, payload json.RawMessage) (*TaskResult, error) {
	var p VerifySubscriptionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	email := docstore.NormalizeEmail(p.Email)

	session, err := h.provider.RetrieveCheckoutSession(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return &TaskResult{Email: email, Reason: "checkout session not found"}, nil
		}
		return nil, fmt.Errorf("failed to retrieve checkout session %s: %w", p.SessionID, err)
	}

	if session.CustomerEmail != "" {
		email = docstore.NormalizeEmail(session.CustomerEmail)
	}

	if !session.Paid() {
		// Payment may still settle; let the retry budget cover it.
		return nil, fmt.Errorf("checkout session %s not paid yet (status %q)", p.SessionID, session.PaymentStatus)
	}

	now := time.Now().UTC()
	rec := docstore.Record{
		Email:              email,
		IsPremium:          true,
		PremiumSince:       &now,
		SubscriptionStatus: string(billing.StatusActive),
		CustomerID:         session.CustomerID,
		SubscriptionID:     session.SubscriptionID,
		UpdatedAt:          now,
	}

	// A paid session without a subscription reference is still a valid
	// purchase (one-time or provider-side provisioning lag); the email
	// from the session gets premium. With a reference, the live
	// subscription state wins.
	if session.SubscriptionID != "" {
		sub, err := h.provider.RetrieveSubscription(ctx, session.SubscriptionID)
		switch {
		case errors.Is(err, billing.ErrNotFound):
			rec.IsPremium = false
			rec.PremiumSince = nil
			rec.SubscriptionStatus = string(billing.StatusCanceled)
		case err != nil:
			return nil, fmt.Errorf("failed to retrieve subscription %s: %w", session.SubscriptionID, err)
		default:
			rec.IsPremium = sub.Entitled()
			rec.SubscriptionStatus = string(sub.Status)
			rec.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
			if !rec.IsPremium {
				rec.PremiumSince = nil
			}
		}
	}

	if err := h.applyStatus(ctx, email, rec); err != nil {
		return nil, err
	}

	result := &TaskResult{Success: rec.IsPremium, Email: email, IsPremium: rec.IsPremium}
	if !rec.IsPremium {
		result.Reason = "subscription not active"
	}
	return result, nil
}

// UpdatePremiumStatus writes the desired premium flag to the document store
// and identity claims.
func (h *Handlers) UpdatePremiumStatus(ctx context.Context, payload json.RawMessage) (*TaskResult, error) {
	var p UpdatePremiumStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	email := docstore.NormalizeEmail(p.Email)
	now := time.Now().UTC()

	rec := docstore.Record{
		Email:              email,
		IsPremium:          *p.IsPremium,
		SubscriptionStatus: p.SubscriptionStatus,
		CustomerID:         p.CustomerID,
		SubscriptionID:     p.SubscriptionID,
		UpdatedAt:          now,
	}
	if rec.SubscriptionStatus == "" {
		if rec.IsPremium {
			rec.SubscriptionStatus = string(billing.StatusActive)
		} else {
			rec.SubscriptionStatus = string(billing.StatusCanceled)
		}
	}
	if rec.IsPremium {
		rec.PremiumSince = &now
	}

	if err := h.applyStatus(ctx, email, rec); err != nil {
		return nil, err
	}

	return &TaskResult{Success: true, Email: email, IsPremium: rec.IsPremium}, nil
}

// applyStatus propagates a premium-status record to the paid-emails
// collection, the users collection, and identity custom claims. Any failure
// surfaces as a retryable error; the writes are idempotent so a partial
// application heals on the next attempt.
func (h *Handlers) applyStatus(ctx context.Context, email string, rec docstore.Record) error {
	if err := h.store.MergePaidEmail(ctx, email, rec); err != nil {
		return fmt.Errorf("failed to update paid email document: %w", err)
	}
	if err := h.store.UpdateUserPremium(ctx, email, rec); err != nil {
		return fmt.Errorf("failed to update user document: %w", err)
	}

	user, err := h.idp.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			// Checkout can precede account creation; claims get set
			// on the next verification once the account exists.
			h.log.DebugContext(ctx, "no identity account for email, skipping claims",
				slog.String("email", email))
			return nil
		}
		return fmt.Errorf("failed to look up identity account: %w", err)
	}

	claims := identity.Claims{
		IsPremium:          rec.IsPremium,
		CancelAtPeriodEnd:  rec.CancelAtPeriodEnd,
		SubscriptionStatus: rec.SubscriptionStatus,
		PremiumSince:       rec.PremiumSince,
	}
	if err := h.idp.SetCustomClaims(ctx, user.UID, claims); err != nil {
		return fmt.Errorf("failed to set identity claims: %w", err)
	}

	return nil
}
