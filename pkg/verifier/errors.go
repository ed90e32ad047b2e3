package verifier

import "errors"

var (
	// ErrEmailRequired is returned when Verify is called with an empty
	// email.
	ErrEmailRequired = errors.New("email is required")

	// ErrAllSourcesUnavailable is returned when every status source
	// failed, meaning the verdict would be a guess rather than a fact.
	ErrAllSourcesUnavailable = errors.New("all premium status sources unavailable")
)
