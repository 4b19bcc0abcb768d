package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// keyPattern matches valid idempotency key formats.
// Allows alphanumeric characters, hyphens, and underscores.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateKeyWithMaxLength validates an idempotency key with a custom max length
func ValidateKeyWithMaxLength(key string, maxLength int) error {
	if key == "" {
		return ErrKeyRequired
	}

	if len(key) > maxLength {
		return ErrKeyTooLong
	}

	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}

	return nil
}

// ValidateKey validates an idempotency key format and length
func ValidateKey(key string) error {
	return ValidateKeyWithMaxLength(key, DefaultMaxKeyLength)
}

// ComputeFingerprint computes a SHA256 fingerprint of the request body.
// Used to detect retries carrying different parameters.
func ComputeFingerprint(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// NormalizeKey normalizes an idempotency key by trimming whitespace
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}
