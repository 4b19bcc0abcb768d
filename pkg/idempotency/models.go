package idempotency

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdempotencyKey represents a stored idempotency key for REST APIs.
// It stores the request fingerprint and response to enable safe retries.
type IdempotencyKey struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Key                string             `bson:"key"`
	UserID             string             `bson:"userId,omitempty"`
	ServiceID          string             `bson:"serviceId"`
	RequestPath        string             `bson:"requestPath"`
	RequestMethod      string             `bson:"requestMethod"`
	RequestFingerprint string             `bson:"requestFingerprint"` // SHA256 of request body

	// Locking mechanism to prevent concurrent processing
	LockedAt *time.Time `bson:"lockedAt,omitempty"`

	// Response storage for caching
	ResponseCode    int               `bson:"responseCode,omitempty"`
	ResponseBody    []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string `bson:"responseHeaders,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"` // TTL index
}

// IsCompleted returns true if the request has been completed
func (ik *IdempotencyKey) IsCompleted() bool {
	return ik.CompletedAt != nil
}

// IsLocked returns true if the request is currently being processed
func (ik *IdempotencyKey) IsLocked() bool {
	return ik.LockedAt != nil && ik.CompletedAt == nil
}
