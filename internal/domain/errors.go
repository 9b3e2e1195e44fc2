package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyURL       = errors.New("url must not be empty")
	ErrInvalidURL     = errors.New("invalid url")
	ErrBatchTooLarge  = errors.New("batch exceeds maximum of 1000 urls")
	ErrBatchEmpty     = errors.New("batch must contain at least one url")
	ErrInvalidLimit   = errors.New("limit must be greater than zero")
	ErrAlreadyRunning = errors.New("processor is already running")

	// ErrTransientFetch marks fetch failures worth retrying: network errors,
	// timeouts, rate limiting and 5xx responses.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrPermanentFetch marks fetch failures that can never succeed for the
	// item: malformed input, 404/410 and other client errors.
	ErrPermanentFetch = errors.New("permanent fetch error")
	// ErrStorage marks queue and sink I/O faults.
	ErrStorage = errors.New("storage failure")
)

// StorageFailure tags err as a storage fault raised by op.
func StorageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// TransientFetch tags err as retryable.
func TransientFetch(err error) error {
	return fmt.Errorf("%w: %w", ErrTransientFetch, err)
}

// PermanentFetch tags err as not retryable.
func PermanentFetch(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanentFetch, err)
}
