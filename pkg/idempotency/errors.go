package idempotency

import "errors"

var (
	// ErrKeyRequired is returned when an idempotency key is missing
	ErrKeyRequired = errors.New("idempotency key is required")

	// ErrKeyTooLong is returned when an idempotency key exceeds the maximum length
	ErrKeyTooLong = errors.New("idempotency key is too long")

	// ErrKeyInvalid is returned when an idempotency key contains invalid characters
	ErrKeyInvalid = errors.New("idempotency key contains invalid characters")

	// ErrNotFound is returned when an idempotency key does not exist
	ErrNotFound = errors.New("idempotency key not found")
)
