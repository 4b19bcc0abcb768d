package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the HTTP header name for the idempotency key
const HeaderIdempotencyKey = "Idempotency-Key"

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware returns a Gin middleware for idempotency
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))

		if key == "" {
			if config.RequireKey {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": "Idempotency-Key header is required for this operation",
					"code":  "IDEMPOTENCY_KEY_REQUIRED",
				})
				return
			}
			c.Next()
			return
		}

		if err := ValidateKeyWithMaxLength(key, config.MaxKeyLength); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid idempotency key: %v", err),
				"code":  "IDEMPOTENCY_KEY_INVALID",
			})
			return
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}
		fingerprint := ComputeFingerprint(requestBody)

		processIdempotency(c, config, key, userID, fingerprint)
	}
}

func processIdempotency(c *gin.Context, config *Config, key, userID, fingerprint string) {
	ctx := c.Request.Context()

	idempotencyKey := &IdempotencyKey{
		Key:                key,
		UserID:             userID,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		CreatedAt:          time.Now().UTC(),
		ExpiresAt:          time.Now().UTC().Add(config.RetentionPeriod),
	}

	existingKey, isNew, err := config.Repository.AcquireLock(ctx, idempotencyKey)
	if err != nil {
		slog.Error("Failed to acquire idempotency lock",
			"error", err,
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)

		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "Idempotency storage is temporarily unavailable",
			"code":  "IDEMPOTENCY_STORAGE_UNAVAILABLE",
		})
		return
	}

	if existingKey.IsCompleted() {
		if existingKey.RequestFingerprint != fingerprint {
			slog.Warn("Idempotency parameter mismatch",
				"key", key,
				"service", config.ServiceName,
				"path", c.Request.URL.Path,
			)

			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Request parameters differ from original request with this idempotency key",
				"code":  "IDEMPOTENCY_PARAMETER_MISMATCH",
			})
			return
		}

		slog.Info("Idempotency cache hit",
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"statusCode", existingKey.ResponseCode,
		)

		for k, v := range existingKey.ResponseHeaders {
			c.Header(k, v)
		}

		c.Data(existingKey.ResponseCode, "application/json", existingKey.ResponseBody)
		c.Abort()
		return
	}

	if !isNew && existingKey.IsLocked() {
		lockAge := time.Since(*existingKey.LockedAt)
		if lockAge < config.LockTimeout {
			slog.Warn("Concurrent idempotency request",
				"key", key,
				"service", config.ServiceName,
				"path", c.Request.URL.Path,
				"lockAge", lockAge,
			)

			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "A request with this idempotency key is currently being processed",
				"code":  "IDEMPOTENCY_CONCURRENT_REQUEST",
			})
			return
		}

		slog.Info("Stale lock detected, proceeding",
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"lockAge", lockAge,
		)
	}

	writer := &responseWriter{
		ResponseWriter: c.Writer,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
	}
	c.Writer = writer

	c.Next()

	responseBody := writer.body.Bytes()

	if len(responseBody) > config.MaxResponseSize {
		slog.Warn("Response too large to cache",
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"size", len(responseBody),
		)
		responseBody = []byte(fmt.Sprintf(`{"error":"Response too large to cache","size":%d}`, len(responseBody)))
	}

	headers := extractResponseHeaders(c)

	if err := config.Repository.StoreResponse(ctx, existingKey.ID.Hex(), writer.statusCode, responseBody, headers); err != nil {
		slog.Error("Failed to store idempotency response",
			"error", err,
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

func extractResponseHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Writer.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}
