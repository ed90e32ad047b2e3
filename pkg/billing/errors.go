package billing

import "errors"

var (
	// ErrNotFound is returned when the provider reports the requested
	// resource as missing. For subscriptions this is a definitive
	// negative: the subscription no longer exists and retrying the
	// lookup will not change that.
	ErrNotFound = errors.New("billing resource not found")

	// ErrMissingAPIKey is returned when a provider adapter is constructed
	// without credentials.
	ErrMissingAPIKey = errors.New("billing provider API key is required")

	// ErrMissingWebhookSecret is returned when webhook parsing is
	// requested but no signing secret was configured.
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")

	// ErrInvalidEnvironment is returned for unrecognized provider
	// environment names.
	ErrInvalidEnvironment = errors.New("invalid billing provider environment")

	// ErrWebhookVerificationFailed is returned when a webhook signature
	// does not match the configured secret.
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
)
