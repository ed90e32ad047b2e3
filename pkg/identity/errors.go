package identity

import "errors"

var (
	// ErrUserNotFound is returned when the identity platform has no user
	// for the requested UID or email.
	ErrUserNotFound = errors.New("identity user not found")

	// ErrUIDRequired is returned when an empty UID is passed to a lookup
	// or claims write.
	ErrUIDRequired = errors.New("user ID is required")

	// ErrEmailRequired is returned when an empty email is passed to a
	// lookup.
	ErrEmailRequired = errors.New("email is required")

	// ErrMissingBaseURL is returned when the admin client is constructed
	// without an API base URL.
	ErrMissingBaseURL = errors.New("identity admin API base URL is required")

	// ErrMissingAPIToken is returned when the admin client is constructed
	// without credentials.
	ErrMissingAPIToken = errors.New("identity admin API token is required")

	// ErrMissingSigningKey is returned when the token service is created
	// without a signing key.
	ErrMissingSigningKey = errors.New("entitlement token signing key is required")

	// ErrInvalidToken is returned when an entitlement token fails
	// validation.
	ErrInvalidToken = errors.New("invalid entitlement token")
)
