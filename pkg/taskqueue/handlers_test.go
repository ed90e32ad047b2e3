package taskqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/docstore"
	"github.com/lumichat/premium/pkg/identity"
	"github.com/lumichat/premium/pkg/taskqueue"
)

// providerStub implements billing.Provider for handler tests.
type providerStub struct {
	session    *billing.CheckoutSession
	sessionErr error
	sub        *billing.Subscription
	subErr     error
}

func (p *providerStub) RetrieveSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	return p.sub, nil
}

func (p *providerStub) ListSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	return nil, billing.ErrNotFound
}

func (p *providerStub) RetrieveCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.session, nil
}

func verifyPayload(t *testing.T, sessionID, email string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(taskqueue.VerifySubscriptionPayload{SessionID: sessionID, Email: email})
	require.NoError(t, err)
	return raw
}

func TestVerifySubscription_SessionNotFound(t *testing.T) {
	t.Parallel()

	h := taskqueue.NewHandlers(&providerStub{sessionErr: billing.ErrNotFound},
		docstore.NewMemoryStore(), identity.NewMemoryProvider(), nil)

	result, err := h.VerifySubscription(context.Background(), verifyPayload(t, "cs_missing", "a@b.com"))
	require.NoError(t, err, "a vanished session is definitive, not retryable")
	assert.False(t, result.Success)
	assert.Equal(t, "checkout session not found", result.Reason)
}

func TestVerifySubscription_TransientProviderFailureRetries(t *testing.T) {
	t.Parallel()

	h := taskqueue.NewHandlers(&providerStub{sessionErr: errors.New("gateway timeout")},
		docstore.NewMemoryStore(), identity.NewMemoryProvider(), nil)

	_, err := h.VerifySubscription(context.Background(), verifyPayload(t, "cs_1", "a@b.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to retrieve checkout session")
}

func TestVerifySubscription_UnpaidSessionRetries(t *testing.T) {
	t.Parallel()

	h := taskqueue.NewHandlers(&providerStub{
		session: &billing.CheckoutSession{ID: "cs_1", CustomerEmail: "a@b.com", PaymentStatus: "pending"},
	}, docstore.NewMemoryStore(), identity.NewMemoryProvider(), nil)

	_, err := h.VerifySubscription(context.Background(), verifyPayload(t, "cs_1", "a@b.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not paid yet")
}

func TestVerifySubscription_PaidWithoutSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := docstore.NewMemoryStore()
	idp := identity.NewMemoryProvider()
	idp.AddUser(identity.User{UID: "u1", Email: "a@b.com"})

	h := taskqueue.NewHandlers(&providerStub{
		session: &billing.CheckoutSession{
			ID:            "cs_1",
			CustomerEmail: "a@b.com",
			PaymentStatus: billing.PaymentStatusPaid,
			CustomerID:    "ctm_1",
		},
	}, store, idp, nil)

	result, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "a@b.com"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.IsPremium)
	assert.Equal(t, "a@b.com", result.Email)

	rec, err := store.GetPaidEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, rec.IsPremium)
	assert.NotNil(t, rec.PremiumSince)
	assert.Equal(t, "ctm_1", rec.CustomerID)

	user, err := idp.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.Claims.IsPremium)
}

func TestVerifySubscription_SessionEmailWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := docstore.NewMemoryStore()

	h := taskqueue.NewHandlers(&providerStub{
		session: &billing.CheckoutSession{
			ID:            "cs_1",
			CustomerEmail: "billing@b.com",
			PaymentStatus: billing.PaymentStatusPaid,
		},
	}, store, identity.NewMemoryProvider(), nil)

	result, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "typoed@b.com"))
	require.NoError(t, err)
	assert.Equal(t, "billing@b.com", result.Email)

	_, err = store.GetPaidEmail(ctx, "billing@b.com")
	assert.NoError(t, err)
	_, err = store.GetPaidEmail(ctx, "typoed@b.com")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestVerifySubscription_SubscriptionStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	session := &billing.CheckoutSession{
		ID:             "cs_1",
		CustomerEmail:  "a@b.com",
		PaymentStatus:  billing.PaymentStatusPaid,
		SubscriptionID: "sub_1",
	}

	t.Run("active subscription", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		h := taskqueue.NewHandlers(&providerStub{
			session: session,
			sub:     &billing.Subscription{ID: "sub_1", Status: billing.StatusActive},
		}, store, identity.NewMemoryProvider(), nil)

		result, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "a@b.com"))
		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("canceled subscription", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		h := taskqueue.NewHandlers(&providerStub{
			session: session,
			sub:     &billing.Subscription{ID: "sub_1", Status: billing.StatusCanceled},
		}, store, identity.NewMemoryProvider(), nil)

		result, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "a@b.com"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "subscription not active", result.Reason)

		rec, err := store.GetPaidEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.False(t, rec.IsPremium)
		assert.Equal(t, "canceled", rec.SubscriptionStatus)
	})

	t.Run("subscription gone", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		h := taskqueue.NewHandlers(&providerStub{
			session: session,
			subErr:  billing.ErrNotFound,
		}, store, identity.NewMemoryProvider(), nil)

		result, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "a@b.com"))
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("subscription lookup outage", func(t *testing.T) {
		h := taskqueue.NewHandlers(&providerStub{
			session: session,
			subErr:  errors.New("gateway timeout"),
		}, docstore.NewMemoryStore(), identity.NewMemoryProvider(), nil)

		_, err := h.VerifySubscription(ctx, verifyPayload(t, "cs_1", "a@b.com"))
		require.Error(t, err)
	})
}

func TestUpdatePremiumStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("grant", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		idp := identity.NewMemoryProvider()
		idp.AddUser(identity.User{UID: "u1", Email: "a@b.com"})
		h := taskqueue.NewHandlers(&providerStub{}, store, idp, nil)

		raw, err := json.Marshal(taskqueue.UpdatePremiumStatusPayload{
			Email:     "A@B.com",
			IsPremium: boolPtr(true),
		})
		require.NoError(t, err)

		result, err := h.UpdatePremiumStatus(ctx, raw)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "a@b.com", result.Email)

		rec, err := store.GetPaidEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, "active", rec.SubscriptionStatus)

		user, err := idp.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, user.Claims.IsPremium)
	})

	t.Run("revoke", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		h := taskqueue.NewHandlers(&providerStub{}, store, identity.NewMemoryProvider(), nil)

		raw, err := json.Marshal(taskqueue.UpdatePremiumStatusPayload{
			Email:     "a@b.com",
			IsPremium: boolPtr(false),
		})
		require.NoError(t, err)

		result, err := h.UpdatePremiumStatus(ctx, raw)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.IsPremium)

		rec, err := store.GetPaidEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.False(t, rec.IsPremium)
		assert.Equal(t, "canceled", rec.SubscriptionStatus)
		assert.Nil(t, rec.PremiumSince)
	})
}

func TestApplyStatus_MissingIdentityAccountIsSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := docstore.NewMemoryStore()
	h := taskqueue.NewHandlers(&providerStub{}, store, identity.NewMemoryProvider(), nil)

	raw, err := json.Marshal(taskqueue.UpdatePremiumStatusPayload{
		Email:     "noaccount@b.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)

	// Checkout before signup: document writes land, claims wait for the
	// account to exist.
	result, err := h.UpdatePremiumStatus(ctx, raw)
	require.NoError(t, err)
	assert.True(t, result.Success)

	rec, err := store.GetPaidEmail(ctx, "noaccount@b.com")
	require.NoError(t, err)
	assert.True(t, rec.IsPremium)
}

func TestApplyStatus_StoreFailureRetries(t *testing.T) {
	t.Parallel()

	h := taskqueue.NewHandlers(&providerStub{}, &storeStub{err: errors.New("mongo down")},
		identity.NewMemoryProvider(), nil)

	raw, err := json.Marshal(taskqueue.UpdatePremiumStatusPayload{
		Email:     "a@b.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)

	_, err = h.UpdatePremiumStatus(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update paid email document")
}

// storeStub implements docstore.Store and always errors.
type storeStub struct{ err error }

func (s *storeStub) GetPaidEmail(ctx context.Context, email string) (*docstore.Record, error) {
	return nil, s.err
}
func (s *storeStub) SetPaidEmail(ctx context.Context, email string, rec docstore.Record) error {
	return s.err
}
func (s *storeStub) MergePaidEmail(ctx context.Context, email string, rec docstore.Record) error {
	return s.err
}
func (s *storeStub) GetUserByEmail(ctx context.Context, email string) (*docstore.Record, error) {
	return nil, s.err
}
func (s *storeStub) UpdateUserPremium(ctx context.Context, email string, rec docstore.Record) error {
	return s.err
}
