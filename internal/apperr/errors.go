package apperr

import "errors"

// Sentinel errors for the failure classes the worker distinguishes.
// Callers classify with errors.Is; wrap with fmt.Errorf("...: %w", Err...)
// to attach context.
var (
	// ErrMalformedPayload marks an inbound message whose body could not be
	// parsed at all. The message is dropped; nothing is persisted.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrValidation marks out-of-range command parameters, rejected before
	// dispatch or persistence.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an operation referencing an unknown device or
	// notification.
	ErrNotFound = errors.New("not found")

	// ErrTransportUnavailable marks an outbound publish attempted while the
	// broker connection is down. Retryable.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrPersistence marks a failed storage operation.
	ErrPersistence = errors.New("persistence failure")
)
