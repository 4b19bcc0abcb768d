package idempotency

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultMaxKeyLength is the maximum length for an idempotency key (Stripe standard)
	DefaultMaxKeyLength = 255

	// DefaultLockTimeout is the default timeout for acquiring a lock
	DefaultLockTimeout = 5 * time.Minute

	// DefaultRetentionPeriod is the default retention period for idempotency keys
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the maximum response size to cache (1MB)
	DefaultMaxResponseSize = 1 * 1024 * 1024
)

// Config holds configuration for the idempotency middleware
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// Repository is the storage backend for idempotency keys
	Repository KeyRepository

	// RequireKey indicates whether an idempotency key is required for
	// all mutating operations. If false, operations without a key
	// proceed normally.
	RequireKey bool

	// OnlyMutating restricts checks to POST, PUT, PATCH and DELETE
	OnlyMutating bool

	// UserIDExtractor optionally scopes keys per user
	UserIDExtractor func(*gin.Context) string

	// MaxKeyLength is the maximum allowed length for an idempotency key
	MaxKeyLength int

	// LockTimeout is the duration after which a lock is considered stale
	LockTimeout time.Duration

	// RetentionPeriod is how long idempotency keys are retained
	RetentionPeriod time.Duration

	// MaxResponseSize is the maximum response size to cache
	MaxResponseSize int
}

// DefaultConfig returns a default configuration for the given service
func DefaultConfig(serviceName string, repository KeyRepository) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		RequireKey:      false,
		OnlyMutating:    true,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}
