package idempotency

import (
	"context"
	"time"
)

// KeyRepository manages idempotency keys for REST APIs.
// Implementations must ensure thread-safety and atomic operations.
type KeyRepository interface {
	// AcquireLock attempts to acquire a lock for the given idempotency key.
	// Returns the existing or newly created key, a boolean indicating
	// whether the key is new, and an error. The operation must be atomic.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// ReleaseLock releases the lock on an idempotency key
	ReleaseLock(ctx context.Context, keyID string) error

	// StoreResponse stores the final response for a completed request
	StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error

	// Get retrieves an idempotency key by its key string and service ID
	Get(ctx context.Context, key, serviceID string) (*IdempotencyKey, error)

	// Clean removes expired idempotency keys, returning the number deleted
	Clean(ctx context.Context, before time.Time) (int64, error)

	// EnsureIndexes creates required indexes; called on service startup
	EnsureIndexes(ctx context.Context) error
}
