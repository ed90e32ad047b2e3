package verifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/docstore"
	"github.com/lumichat/premium/pkg/identity"
)

// defaultProviderTimeout bounds the live payment-provider confirmation.
// On expiry the verifier falls back to the cached sources; the queue-based
// reconciliation path catches up later.
const defaultProviderTimeout = 5 * time.Second

// inactiveStatuses are subscription states that revoke eligibility even when
// a document still says isPremium=true.
var inactiveStatuses = map[string]bool{
	string(billing.StatusCanceled):            true,
	string(billing.StatusUnpaid):              true,
	string(billing.StatusCancellationPending): true,
}

// Verifier reconciles premium status across the document store, identity
// claims, and the payment provider.
type Verifier struct {
	store           docstore.Store
	idp             identity.Provider
	provider        billing.Provider
	log             *slog.Logger
	providerTimeout time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// WithProviderTimeout overrides the live-confirmation timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.providerTimeout = d
		}
	}
}

// New creates a Verifier. All three collaborators are required; the
// identity provider may be a no-op implementation when claims are not in
// use, but must not be nil.
func New(store docstore.Store, idp identity.Provider, provider billing.Provider, opts ...Option) *Verifier {
	if store == nil {
		panic("verifier: docstore.Store is required")
	}
	if idp == nil {
		panic("verifier: identity.Provider is required")
	}
	if provider == nil {
		panic("verifier: billing.Provider is required")
	}

	v := &Verifier{
		store:           store,
		idp:             idp,
		provider:        provider,
		log:             slog.Default(),
		providerTimeout: defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// sourceOutcome is the working state accumulated while walking the checks.
type sourceOutcome struct {
	source Source
	status string
	cancel bool
}

// Verify returns the eligibility verdict for an email. uid is optional and
// only used to consult identity custom claims.
func (v *Verifier) Verify(ctx context.Context, email, uid string) (*Verdict, error) {
	email = docstore.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	diag := make(map[Source]SourceResult)

	var (
		positive       *sourceOutcome
		negative       *sourceOutcome
		customerID     string
		subscriptionID string
		checked        int
		unavailable    int
	)

	observe := func(src Source, rec *docstore.Record, err error) {
		checked++
		result := SourceResult{Checked: true}
		switch {
		case err == nil:
			result.Found = true
			result.IsPremium = rec.IsPremium
			result.SubscriptionStatus = rec.SubscriptionStatus
			result.CancelAtPeriodEnd = rec.CancelAtPeriodEnd
			result.Eligible = recordEligible(rec)
			if rec.CustomerID != "" && customerID == "" {
				customerID = rec.CustomerID
			}
			if rec.SubscriptionID != "" && subscriptionID == "" {
				subscriptionID = rec.SubscriptionID
			}
			if result.Eligible && positive == nil {
				positive = &sourceOutcome{source: src, status: rec.SubscriptionStatus, cancel: rec.CancelAtPeriodEnd}
			}
			if !result.Eligible && negative == nil {
				negative = &sourceOutcome{source: src, status: rec.SubscriptionStatus, cancel: rec.CancelAtPeriodEnd}
			}
		case errors.Is(err, docstore.ErrNotFound), errors.Is(err, identity.ErrUserNotFound):
			// Absence is informative but not an error.
		default:
			unavailable++
			result.Error = err.Error()
			v.log.WarnContext(ctx, "premium status source unavailable",
				slog.String("source", string(src)),
				slog.String("email", email),
				slog.String("error", err.Error()))
		}
		diag[src] = result
	}

	// Checks run in fixed order; only a positive result stops the walk.
	// An explicit isPremium=false document is recorded and the remaining
	// sources still get their say.
	rec, err := v.store.GetPaidEmail(ctx, email)
	observe(SourcePaidEmails, rec, err)

	if positive == nil {
		rec, err = v.store.GetUserByEmail(ctx, email)
		observe(SourceUsersCollection, rec, err)
	}

	if positive == nil && uid != "" {
		user, err := v.idp.GetUser(ctx, uid)
		var claimsRec *docstore.Record
		if err == nil {
			claimsRec = &docstore.Record{
				Email:              email,
				IsPremium:          user.Claims.IsPremium,
				SubscriptionStatus: user.Claims.SubscriptionStatus,
				CancelAtPeriodEnd:  user.Claims.CancelAtPeriodEnd,
			}
		}
		observe(SourceAuthClaims, claimsRec, err)
	}

	hasProviderRef := customerID != "" || subscriptionID != ""
	if unavailable == checked && checked > 0 && !hasProviderRef {
		return nil, ErrAllSourcesUnavailable
	}

	verdict := &Verdict{Diagnostics: diag}

	if hasProviderRef {
		if done := v.confirmWithProvider(ctx, verdict, email, uid, subscriptionID, customerID, positive); done {
			return verdict, nil
		}
	}

	// No provider involvement, or the provider was unreachable: the
	// cached sources decide.
	switch {
	case positive != nil:
		verdict.Eligible = true
		verdict.Source = positive.source
		verdict.SubscriptionStatus = positive.status
		verdict.CancelAtPeriodEnd = positive.cancel
	case negative != nil:
		verdict.Source = SourceNone
		verdict.SubscriptionStatus = negative.status
		verdict.CancelAtPeriodEnd = negative.cancel
	default:
		verdict.Source = SourceNone
	}

	return verdict, nil
}

// confirmWithProvider performs the live payment-provider lookup and, when it
// reaches a definitive answer, fills in the verdict and reports true. A
// transient provider failure reports false so the caller falls back to the
// cached sources.
func (v *Verifier) confirmWithProvider(ctx context.Context, verdict *Verdict, email, uid, subscriptionID, customerID string, positive *sourceOutcome) bool {
	pctx, cancel := context.WithTimeout(ctx, v.providerTimeout)
	defer cancel()

	sub, err := v.lookupSubscription(pctx, subscriptionID, customerID)

	switch {
	case errors.Is(err, billing.ErrNotFound):
		// The subscription no longer exists: a definitive negative.
		verdict.Eligible = false
		verdict.Source = SourceBillingAPINegative
		verdict.SubscriptionStatus = string(billing.StatusCanceled)
		diagEntry(verdict, SourceBillingAPINegative, SourceResult{
			Checked:            true,
			SubscriptionStatus: string(billing.StatusCanceled),
		})
		if positive != nil {
			verdict.Correction = v.correct(ctx, email, uid, nil)
		}
		return true

	case err != nil:
		// Transient failure or timeout: fall back to cached sources.
		v.log.WarnContext(ctx, "billing provider confirmation failed, using cached sources",
			slog.String("email", email),
			slog.String("error", err.Error()))
		diagEntry(verdict, SourceBillingAPI, SourceResult{Checked: true, Error: err.Error()})
		return false

	case sub.Entitled():
		verdict.Eligible = true
		verdict.Source = SourceBillingAPI
		verdict.SubscriptionStatus = string(sub.Status)
		verdict.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		diagEntry(verdict, SourceBillingAPI, SourceResult{
			Checked:            true,
			Found:              true,
			Eligible:           true,
			IsPremium:          true,
			SubscriptionStatus: string(sub.Status),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		})
		return true

	default:
		// Provider disagrees with whatever the cached sources said.
		verdict.Eligible = false
		verdict.Source = SourceBillingAPINegative
		verdict.SubscriptionStatus = string(sub.Status)
		verdict.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		diagEntry(verdict, SourceBillingAPINegative, SourceResult{
			Checked:            true,
			Found:              true,
			SubscriptionStatus: string(sub.Status),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		})
		if positive != nil {
			verdict.Correction = v.correct(ctx, email, uid, sub)
		}
		return true
	}
}

// lookupSubscription resolves the live subscription by ID when known,
// otherwise by listing the customer's subscriptions. A customer with no
// subscriptions at all maps to billing.ErrNotFound.
func (v *Verifier) lookupSubscription(ctx context.Context, subscriptionID, customerID string) (*billing.Subscription, error) {
	if subscriptionID != "" {
		return v.provider.RetrieveSubscription(ctx, subscriptionID)
	}

	subs, err := v.provider.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, billing.ErrNotFound
	}

	// Prefer any entitled subscription; customers can hold a canceled
	// one alongside a newer active one.
	for i := range subs {
		if subs[i].Entitled() {
			return &subs[i], nil
		}
	}
	return &subs[0], nil
}

// correct writes the provider's verdict back to the document store and
// identity claims. Failures are carried in the returned Correction and
// logged, never propagated: a stale cache is tolerable, a failed verify
// call is not.
func (v *Verifier) correct(ctx context.Context, email, uid string, sub *billing.Subscription) *Correction {
	status := string(billing.StatusCanceled)
	cancelAtPeriodEnd := false
	rec := docstore.Record{
		Email:     email,
		IsPremium: false,
		UpdatedAt: time.Now().UTC(),
	}
	if sub != nil {
		status = string(sub.Status)
		cancelAtPeriodEnd = sub.CancelAtPeriodEnd
		rec.CustomerID = sub.CustomerID
		rec.SubscriptionID = sub.ID
	}
	rec.SubscriptionStatus = status
	rec.CancelAtPeriodEnd = cancelAtPeriodEnd

	var errs []error
	if err := v.store.MergePaidEmail(ctx, email, rec); err != nil {
		errs = append(errs, err)
	}
	if err := v.store.UpdateUserPremium(ctx, email, rec); err != nil {
		errs = append(errs, err)
	}

	claimsUID := uid
	if claimsUID == "" {
		if user, err := v.idp.GetUserByEmail(ctx, email); err == nil {
			claimsUID = user.UID
		}
	}
	if claimsUID != "" {
		claims := identity.Claims{
			IsPremium:          false,
			SubscriptionStatus: status,
			CancelAtPeriodEnd:  cancelAtPeriodEnd,
		}
		if err := v.idp.SetCustomClaims(ctx, claimsUID, claims); err != nil {
			errs = append(errs, err)
		}
	}

	correction := &Correction{Attempted: true, Err: errors.Join(errs...)}
	if correction.Err != nil {
		v.log.WarnContext(ctx, "premium status correction incomplete",
			slog.String("email", email),
			slog.String("error", correction.Err.Error()))
	}
	return correction
}

// recordEligible applies the per-source eligibility rule.
func recordEligible(rec *docstore.Record) bool {
	return rec.IsPremium &&
		!inactiveStatuses[rec.SubscriptionStatus] &&
		!rec.CancelAtPeriodEnd
}

func diagEntry(verdict *Verdict, src Source, result SourceResult) {
	if verdict.Diagnostics == nil {
		verdict.Diagnostics = make(map[Source]SourceResult)
	}
	verdict.Diagnostics[src] = result
}
