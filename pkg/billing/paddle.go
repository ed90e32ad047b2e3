package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// PaddleConfig holds configuration for the Paddle billing adapter.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider on top of the official Paddle SDK.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle-backed billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	p := &PaddleProvider{client: client}
	if config.WebhookSecret != "" {
		p.verifier = paddle.NewWebhookVerifier(config.WebhookSecret)
	}

	return p, nil
}

// RetrieveSubscription implements Provider.
func (p *PaddleProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.New("subscription ID is required")
	}

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve paddle subscription %s: %w", subscriptionID, err)
	}

	return mapPaddleSubscription(sub), nil
}

// ListSubscriptions implements Provider.
func (p *PaddleProvider) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	if customerID == "" {
		return nil, errors.New("customer ID is required")
	}

	res, err := p.client.SubscriptionsClient.ListSubscriptions(ctx, &paddle.ListSubscriptionsRequest{
		CustomerID: []string{customerID},
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to list paddle subscriptions for %s: %w", customerID, err)
	}

	var subs []Subscription
	if err := res.Iter(ctx, func(s *paddle.Subscription) (bool, error) {
		subs = append(subs, *mapPaddleSubscription(s))
		return true, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to iterate paddle subscriptions for %s: %w", customerID, err)
	}

	return subs, nil
}

// RetrieveCheckoutSession implements Provider. Paddle models a hosted
// checkout as a transaction; the customer email lives on the customer
// record, so a second lookup resolves it when the transaction carries a
// customer ID.
func (p *PaddleProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	txn, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: sessionID,
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve paddle transaction %s: %w", sessionID, err)
	}

	session := &CheckoutSession{
		ID:            txn.ID,
		PaymentStatus: mapPaddleTransactionStatus(txn.Status),
	}
	if txn.SubscriptionID != nil {
		session.SubscriptionID = *txn.SubscriptionID
	}
	if txn.CustomerID != nil {
		session.CustomerID = *txn.CustomerID

		customer, err := p.client.CustomersClient.GetCustomer(ctx, &paddle.GetCustomerRequest{
			CustomerID: *txn.CustomerID,
		})
		if err == nil {
			session.CustomerEmail = strings.ToLower(customer.Email)
		}
		// A missing customer record is tolerable here: checkout webhooks
		// carry the email in custom data, and the verifier falls back to
		// the email supplied at enqueue time.
	}

	return session, nil
}

// WebhookEvent is a normalized billing webhook relevant to premium-status
// reconciliation.
type WebhookEvent struct {
	ProviderEvent  string
	SessionID      string
	SubscriptionID string
	CustomerID     string
	Email          string
	Status         string
}

// CheckoutCompleted reports whether the event marks a finished checkout that
// should trigger a subscription verification.
func (e *WebhookEvent) CheckoutCompleted() bool {
	return e.ProviderEvent == "transaction.completed" || e.ProviderEvent == "transaction.paid"
}

// SubscriptionChanged reports whether the event mutated a subscription's
// lifecycle state.
func (e *WebhookEvent) SubscriptionChanged() bool {
	return strings.HasPrefix(e.ProviderEvent, "subscription.")
}

// ParseWebhook validates the signature and extracts the fields the
// reconciliation queue needs. Returns ErrMissingWebhookSecret when the
// adapter was built without a secret.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if p.verifier == nil {
		return nil, ErrMissingWebhookSecret
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var raw struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &WebhookEvent{ProviderEvent: raw.EventType}

	if id, ok := raw.Data["id"].(string); ok {
		if strings.HasPrefix(raw.EventType, "transaction.") {
			event.SessionID = id
		} else {
			event.SubscriptionID = id
		}
	}
	if subID, ok := raw.Data["subscription_id"].(string); ok {
		event.SubscriptionID = subID
	}
	if customerID, ok := raw.Data["customer_id"].(string); ok {
		event.CustomerID = customerID
	}
	if status, ok := raw.Data["status"].(string); ok {
		event.Status = string(mapPaddleStatus(status))
	}
	if customData, ok := raw.Data["custom_data"].(map[string]any); ok {
		if email, ok := customData["email"].(string); ok {
			event.Email = strings.ToLower(email)
		}
	}

	return event, nil
}

// mapPaddleSubscription converts a Paddle subscription to the normalized
// shape. A scheduled cancellation maps to CancelAtPeriodEnd because the
// subscription remains billed until the change takes effect.
func mapPaddleSubscription(s *paddle.Subscription) *Subscription {
	sub := &Subscription{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Status:     mapPaddleStatus(string(s.Status)),
	}
	if s.ScheduledChange != nil && s.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		sub.CancelAtPeriodEnd = true
		if sub.Status == StatusActive {
			sub.Status = StatusCancellationPending
		}
	}
	return sub
}

func mapPaddleStatus(status string) SubscriptionStatus {
	switch strings.ToLower(status) {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "canceled", "cancelled":
		return StatusCanceled
	case "past_due", "unpaid", "paused":
		return StatusUnpaid
	default:
		return StatusUnknown
	}
}

func mapPaddleTransactionStatus(status paddle.TransactionStatus) string {
	switch status {
	case paddle.TransactionStatusCompleted, paddle.TransactionStatusPaid:
		return PaymentStatusPaid
	default:
		return string(status)
	}
}

// isPaddleNotFound reports whether the SDK error means the resource does not
// exist, as opposed to a transient API failure.
func isPaddleNotFound(err error) bool {
	var paddleErr *paddleerr.Error
	if errors.As(err, &paddleErr) {
		return strings.Contains(string(paddleErr.Code), "not_found")
	}
	return false
}
