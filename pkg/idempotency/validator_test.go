package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid UUID", "550e8400-e29b-41d4-a716-446655440000", nil},
		{"valid alphanumeric", "abc123-def456_ghi789", nil},
		{"empty key", "", ErrKeyRequired},
		{"too long", strings.Repeat("a", 256), ErrKeyTooLong},
		{"spaces", "abc 123", ErrKeyInvalid},
		{"special characters", "abc@123", ErrKeyInvalid},
		{"exactly max length", strings.Repeat("a", 255), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, ValidateKey(tt.key))
		})
	}
}

func TestValidateKeyWithMaxLength(t *testing.T) {
	assert.NoError(t, ValidateKeyWithMaxLength("short-key", 16))
	assert.Equal(t, ErrKeyTooLong, ValidateKeyWithMaxLength("a-key-past-the-limit", 16))
}

func TestComputeFingerprint(t *testing.T) {
	// SHA256 of the empty body is a fixed value
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ComputeFingerprint(nil))

	body := []byte(`{"sku":"SKU-A","quantity":5}`)
	first := ComputeFingerprint(body)
	assert.Len(t, first, 64)
	assert.Equal(t, first, ComputeFingerprint(body))
	assert.NotEqual(t, first, ComputeFingerprint([]byte(`{"sku":"SKU-A","quantity":6}`)))
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"already normalized", "abc123", "abc123"},
		{"leading spaces", "  abc123", "abc123"},
		{"trailing spaces", "abc123  ", "abc123"},
		{"both sides", "  abc123  ", "abc123"},
		{"tabs", "\tabc123\t", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.key))
		})
	}
}
