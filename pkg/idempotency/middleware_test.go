package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockKeyRepository struct {
	mu sync.Mutex

	acquireLockFunc func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	storedKeyID string
	storedCode  int
	storedBody  []byte
	storeCalls  int
}

func (m *mockKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	if m.acquireLockFunc != nil {
		return m.acquireLockFunc(ctx, key)
	}
	key.ID = primitive.NewObjectID()
	return key, true, nil
}

func (m *mockKeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	return nil
}

func (m *mockKeyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storedKeyID = keyID
	m.storedCode = responseCode
	m.storedBody = append([]byte(nil), responseBody...)
	m.storeCalls++
	return nil
}

func (m *mockKeyRepository) Get(ctx context.Context, key, serviceID string) (*IdempotencyKey, error) {
	return nil, ErrNotFound
}

func (m *mockKeyRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockKeyRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func newTestRouter(config *Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/orders", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"message": "created"})
	})
	router.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "listed"})
	})
	return router
}

func postOrders(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddlewareNoKeyOptional(t *testing.T) {
	repo := &mockKeyRepository{}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Zero(t, repo.storeCalls)
}

func TestMiddlewareNoKeyRequired(t *testing.T) {
	repo := &mockKeyRepository{}
	config := DefaultConfig("test-service", repo)
	config.RequireKey = true

	w := postOrders(newTestRouter(config), "", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REQUIRED")
}

func TestMiddlewareInvalidKey(t *testing.T) {
	repo := &mockKeyRepository{}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "key with spaces", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_INVALID")
}

func TestMiddlewareSkipsGET(t *testing.T) {
	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return nil, false, errors.New("should not be called for GET")
		},
	}
	config := DefaultConfig("test-service", repo)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderIdempotencyKey, "key-123")
	w := httptest.NewRecorder()
	newTestRouter(config).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareFirstRequestCapturesResponse(t *testing.T) {
	keyID := primitive.NewObjectID()
	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			key.ID = keyID
			return key, true, nil
		},
	}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "key-123", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 1, repo.storeCalls)
	assert.Equal(t, keyID.Hex(), repo.storedKeyID)
	assert.Equal(t, http.StatusCreated, repo.storedCode)
	assert.JSONEq(t, `{"message":"created"}`, string(repo.storedBody))
}

func TestMiddlewareReplaysCachedResponse(t *testing.T) {
	completedAt := time.Now().UTC()
	cachedBody := []byte(`{"message":"cached"}`)

	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			existing := &IdempotencyKey{
				ID:                 primitive.NewObjectID(),
				Key:                key.Key,
				ServiceID:          key.ServiceID,
				RequestPath:        key.RequestPath,
				RequestMethod:      key.RequestMethod,
				RequestFingerprint: key.RequestFingerprint,
				ResponseCode:       http.StatusCreated,
				ResponseBody:       cachedBody,
				ResponseHeaders:    map[string]string{"Content-Type": "application/json"},
				CompletedAt:        &completedAt,
			}
			return existing, false, nil
		},
	}
	config := DefaultConfig("test-service", repo)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	handlerCalls := 0
	router.POST("/orders", func(c *gin.Context) {
		handlerCalls++
		c.JSON(http.StatusCreated, gin.H{"message": "fresh"})
	})

	w := postOrders(router, "key-123", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, string(cachedBody), w.Body.String())
	assert.Zero(t, handlerCalls, "handler must not run on a replay")
	assert.Zero(t, repo.storeCalls)
}

func TestMiddlewareParameterMismatch(t *testing.T) {
	completedAt := time.Now().UTC()
	originalFingerprint := ComputeFingerprint([]byte(`{"sku":"SKU-A"}`))

	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			existing := &IdempotencyKey{
				ID:                 primitive.NewObjectID(),
				Key:                key.Key,
				ServiceID:          key.ServiceID,
				RequestFingerprint: originalFingerprint,
				ResponseCode:       http.StatusCreated,
				ResponseBody:       []byte(`{"message":"original"}`),
				CompletedAt:        &completedAt,
			}
			return existing, false, nil
		},
	}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "key-123", `{"sku":"SKU-B"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_PARAMETER_MISMATCH")
}

func TestMiddlewareConcurrentRequest(t *testing.T) {
	lockedAt := time.Now().UTC()

	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			existing := &IdempotencyKey{
				ID:                 primitive.NewObjectID(),
				Key:                key.Key,
				ServiceID:          key.ServiceID,
				RequestFingerprint: key.RequestFingerprint,
				LockedAt:           &lockedAt,
			}
			return existing, false, nil
		},
	}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "key-123", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_CONCURRENT_REQUEST")
}

func TestMiddlewareStaleLockProceeds(t *testing.T) {
	lockedAt := time.Now().UTC().Add(-10 * time.Minute)

	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			existing := &IdempotencyKey{
				ID:                 primitive.NewObjectID(),
				Key:                key.Key,
				ServiceID:          key.ServiceID,
				RequestFingerprint: key.RequestFingerprint,
				LockedAt:           &lockedAt,
			}
			return existing, false, nil
		},
	}
	config := DefaultConfig("test-service", repo)
	config.LockTimeout = 5 * time.Minute

	w := postOrders(newTestRouter(config), "key-123", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, repo.storeCalls)
}

func TestMiddlewareStorageFailure(t *testing.T) {
	repo := &mockKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return nil, false, errors.New("database connection failed")
		},
	}
	config := DefaultConfig("test-service", repo)

	w := postOrders(newTestRouter(config), "key-123", `{"sku":"SKU-A"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_STORAGE_UNAVAILABLE")
}
