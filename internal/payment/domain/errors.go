package domain

import (
	"errors"
)

var (
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrOrderOwnershipMismatch = errors.New("order_ownership_mismatch")
	ErrOrderNotPayable        = errors.New("order_not_payable")
	ErrCaptureNotSucceeded    = errors.New("capture_not_succeeded")
	ErrAlreadyProcessed       = errors.New("already_processed")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrPartialFulfillment     = errors.New("partial_fulfillment_failure")
	ErrStoreUnavailable       = errors.New("store_unavailable")

	ErrInvalidCapture   = errors.New("invalid_capture")
	ErrCaptureNotFound  = errors.New("capture_not_found")
	ErrConcurrentUpdate = errors.New("concurrent_update")

	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
)

// IsAlreadyProcessed reports the benign duplicate outcome.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}

// IsRetryable reports whether repeating the same capture may succeed.
// Partial fulfillment is retryable because the next attempt resumes it.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrPartialFulfillment) ||
		errors.Is(err, ErrConcurrentUpdate)
}
