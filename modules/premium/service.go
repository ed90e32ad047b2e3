package premium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/identity"
	"github.com/lumichat/premium/pkg/taskqueue"
	"github.com/lumichat/premium/pkg/verifier"
)

// WebhookParser validates and normalizes a raw billing webhook.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error)
}

// StatusVerifier resolves the premium verdict for an email.
type StatusVerifier interface {
	Verify(ctx context.Context, email, uid string) (*verifier.Verdict, error)
}

// TokenIssuer signs entitlement tokens for eligible users.
type TokenIssuer interface {
	Issue(uid, email string, claims identity.Claims) (string, error)
}

// Service ties the verifier, the reconciliation queue, and the billing
// webhook surface together behind one HTTP-facing API.
type Service struct {
	verifier StatusVerifier
	queue    *taskqueue.Queue
	webhooks WebhookParser
	tokens   TokenIssuer
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWebhookParser enables the billing webhook endpoint.
func WithWebhookParser(p WebhookParser) Option {
	return func(s *Service) { s.webhooks = p }
}

// WithTokenIssuer enables entitlement tokens on successful verifications.
func WithTokenIssuer(t TokenIssuer) Option {
	return func(s *Service) { s.tokens = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the premium status service.
func NewService(v StatusVerifier, queue *taskqueue.Queue, opts ...Option) *Service {
	if v == nil {
		panic("premium: verifier is required")
	}
	if queue == nil {
		panic("premium: task queue is required")
	}

	s := &Service{
		verifier: v,
		queue:    queue,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyStatus runs the eligibility checks and, for eligible users, issues
// an entitlement token when a token issuer is configured.
func (s *Service) VerifyStatus(ctx context.Context, email, uid string) (*VerifyResult, error) {
	verdict, err := s.verifier.Verify(ctx, email, uid)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Verdict: verdict}
	if verdict.Eligible && s.tokens != nil {
		token, err := s.tokens.Issue(uid, email, identity.Claims{
			IsPremium:          true,
			CancelAtPeriodEnd:  verdict.CancelAtPeriodEnd,
			SubscriptionStatus: verdict.SubscriptionStatus,
		})
		if err != nil {
			// The verdict stands on its own; the client just has to
			// re-verify instead of presenting a token.
			s.log.ErrorContext(ctx, "failed to issue entitlement token",
				slog.String("email", email),
				slog.String("error", err.Error()))
		} else {
			result.Token = token
		}
	}
	return result, nil
}

// VerifyResult is a verdict plus an optional signed entitlement token.
type VerifyResult struct {
	Verdict *verifier.Verdict
	Token   string
}

// EnqueueTask submits a reconciliation task and returns its ID for polling.
func (s *Service) EnqueueTask(ctx context.Context, taskType taskqueue.TaskType, payload any) (uuid.UUID, error) {
	return s.queue.Enqueue(ctx, taskType, payload)
}

// Task returns the current state of a task, or nil when unknown.
func (s *Service) Task(id uuid.UUID) *taskqueue.Task {
	return s.queue.GetTaskByID(id)
}

// ErrWebhooksDisabled is returned when no webhook parser is configured.
var ErrWebhooksDisabled = errors.New("billing webhooks are not configured")

// HandleWebhook verifies a billing webhook and enqueues the matching
// reconciliation task. Events that carry nothing actionable (no email to
// reconcile, or an event type the queue does not care about) are accepted
// and dropped so the provider stops redelivering them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	if s.webhooks == nil {
		return nil, ErrWebhooksDisabled
	}

	event, err := s.webhooks.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return nil, err
	}

	outcome := &WebhookOutcome{Event: event.ProviderEvent}

	switch {
	case event.CheckoutCompleted():
		if event.Email == "" {
			s.log.WarnContext(ctx, "checkout webhook without customer email, skipping",
				slog.String("event", event.ProviderEvent),
				slog.String("session_id", event.SessionID))
			return outcome, nil
		}
		id, err := s.queue.Enqueue(ctx, taskqueue.TaskTypeVerifySubscription, taskqueue.VerifySubscriptionPayload{
			SessionID: event.SessionID,
			Email:     event.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue verification: %w", err)
		}
		outcome.TaskID = &id

	case event.SubscriptionChanged():
		if event.Email == "" {
			s.log.WarnContext(ctx, "subscription webhook without customer email, skipping",
				slog.String("event", event.ProviderEvent),
				slog.String("subscription_id", event.SubscriptionID))
			return outcome, nil
		}
		isPremium := billing.SubscriptionStatus(event.Status).IsActive()
		id, err := s.queue.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
			Email:              event.Email,
			IsPremium:          &isPremium,
			SubscriptionStatus: event.Status,
			CustomerID:         event.CustomerID,
			SubscriptionID:     event.SubscriptionID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue status update: %w", err)
		}
		outcome.TaskID = &id

	default:
		s.log.DebugContext(ctx, "ignoring billing webhook event",
			slog.String("event", event.ProviderEvent))
	}

	return outcome, nil
}

// WebhookOutcome reports what a webhook delivery produced.
type WebhookOutcome struct {
	Event  string
	TaskID *uuid.UUID
}
