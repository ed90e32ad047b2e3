package docstore

import "errors"

var (
	// ErrNotFound is returned when no document exists for the requested
	// key. Callers must not conflate this with a document explicitly
	// marked non-premium.
	ErrNotFound = errors.New("document not found")

	// ErrEmailRequired is returned when an empty email is passed to any
	// store operation.
	ErrEmailRequired = errors.New("email is required")
)
