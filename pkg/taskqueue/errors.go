package taskqueue

import "errors"

var (
	// ErrStorageNil is returned when a queue is constructed without
	// storage.
	ErrStorageNil = errors.New("task storage cannot be nil")

	// ErrInvalidTaskType is returned when enqueueing an unknown task
	// type.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrEmailRequired is returned when a payload is missing its email.
	ErrEmailRequired = errors.New("email is required")

	// ErrSessionIDRequired is returned when a verify_subscription
	// payload has no checkout session identifier.
	ErrSessionIDRequired = errors.New("checkout session ID is required")

	// ErrPremiumFlagRequired is returned when an update_premium_status
	// payload does not state the desired premium flag.
	ErrPremiumFlagRequired = errors.New("desired premium flag is required")

	// ErrInvalidPayload is returned when a payload does not match the
	// task type's expected shape.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrHandlerNotRegistered is returned by Process when a task's type
	// has no handler. Such tasks fail like any other handler error.
	ErrHandlerNotRegistered = errors.New("no handler registered for task type")
)
