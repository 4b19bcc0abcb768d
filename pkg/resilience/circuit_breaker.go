package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

// Common errors
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // Requests allowed through in half-open state
	Interval              time.Duration // Interval to clear failure counts (0 = never)
	Timeout               time.Duration // Wait before transitioning open -> half-open
	FailureThreshold      uint32        // Consecutive failures to trip
	FailureRatioThreshold float64       // Failure ratio to trip
	MinRequestsToTrip     uint32        // Minimum requests before evaluating the ratio
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           3,
		Interval:              60 * time.Second,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}
}

// CircuitBreaker wraps gobreaker with logging and metrics
type CircuitBreaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.FailureThreshold {
				return true
			}
			if counts.Requests >= config.MinRequestsToTrip {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= config.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if m != nil {
				m.SetCircuitBreakerState(name, int(to))
				if to == gobreaker.StateOpen {
					m.RecordCircuitBreakerTrip(name)
				}
			}
		},
	}

	return &CircuitBreaker{
		cb:      gobreaker.NewCircuitBreaker(settings),
		name:    config.Name,
		logger:  logger,
		metrics: m,
	}
}

// Execute runs a function through the circuit breaker
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err == gobreaker.ErrOpenState {
		c.logger.Warn("Circuit breaker is open", "name", c.name)
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
	}
	if err == gobreaker.ErrTooManyRequests {
		c.logger.Warn("Circuit breaker: too many requests", "name", c.name)
		return nil, fmt.Errorf("service unavailable: too many requests for %s", c.name)
	}

	return result, err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Counts returns the current counts
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
