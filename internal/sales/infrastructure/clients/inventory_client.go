package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/sales/application"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/resilience"
)

const defaultRequestTimeout = 10 * time.Second

// InventoryClient implements application.InventoryGateway over HTTP for
// deployments where the inventory context runs as its own service. Calls go
// through a circuit breaker; there is no client-side retry, reservation
// operations are not safely repeatable on ambiguous failures.
type InventoryClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *resilience.CircuitBreaker
	logger     *logging.Logger
}

// NewInventoryClient creates a new InventoryClient
func NewInventoryClient(baseURL string, logger *logging.Logger, m *metrics.Metrics) *InventoryClient {
	return &InventoryClient{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    baseURL,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("inventory-service"), logger, m),
		logger:     logger.WithComponent("inventory-client"),
	}
}

type reserveStockRequest struct {
	SKU        string     `json:"sku"`
	VariantID  string     `json:"variantId,omitempty"`
	LocationID string     `json:"locationId,omitempty"`
	Quantity   int        `json:"quantity"`
	Reference  string     `json:"reference"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type reservationResponse struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
}

type availabilityResponse struct {
	TotalAvailable int  `json:"totalAvailable"`
	Sufficient     bool `json:"sufficient"`
}

// Reserve earmarks stock and returns the reservation id
func (c *InventoryClient) Reserve(ctx context.Context, req application.ReservationRequest) (string, error) {
	body := reserveStockRequest{
		SKU:        req.SKU,
		VariantID:  req.VariantID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Reference:  req.Reference,
		ExpiresAt:  req.ExpiresAt,
	}

	var resp reservationResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/stock/reservations", body, &resp); err != nil {
		return "", err
	}
	return resp.ReservationID, nil
}

// Release returns a reservation's stock. The inventory side treats release as
// idempotent, so a repeat after a timeout is safe.
func (c *InventoryClient) Release(ctx context.Context, reservationID string) error {
	path := fmt.Sprintf("/api/v1/stock/reservations/%s/release", url.PathEscape(reservationID))
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// Consume converts a reservation into a stock decrement
func (c *InventoryClient) Consume(ctx context.Context, reservationID string) error {
	path := fmt.Sprintf("/api/v1/stock/reservations/%s/consume", url.PathEscape(reservationID))
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// CheckAvailability probes aggregate availability for a SKU
func (c *InventoryClient) CheckAvailability(ctx context.Context, sku, variantID string, quantity int) (*application.AvailabilityCheck, error) {
	query := url.Values{}
	if variantID != "" {
		query.Set("variantId", variantID)
	}
	query.Set("quantity", strconv.Itoa(quantity))
	path := fmt.Sprintf("/api/v1/stock/%s/availability?%s", url.PathEscape(sku), query.Encode())

	var resp availabilityResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &application.AvailabilityCheck{
		TotalAvailable: resp.TotalAvailable,
		Sufficient:     resp.Sufficient,
	}, nil
}

func (c *InventoryClient) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if correlationID := logging.CorrelationIDFromContext(ctx); correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("inventory request %s %s failed with status %d: %s",
				method, path, resp.StatusCode, string(respBody))
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("Inventory request failed", "method", method, "path", path)
	}
	return err
}
