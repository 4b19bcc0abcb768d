package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all platform metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec
	OutboxPending   prometheus.Gauge
	OutboxDuration  *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Business metrics
	OrdersConfirmed       *prometheus.CounterVec
	OrdersCancelled       *prometheus.CounterVec
	QuotesConverted       *prometheus.CounterVec
	StockReservations     *prometheus.CounterVec
	StockMovements        *prometheus.CounterVec
	StockVersionConflicts *prometheus.CounterVec
	ApprovalDecisions     *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "erp",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events published",
		},
		[]string{"service", "event_type", "status"},
	)

	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "outbox_retries_total",
			Help:      "Total number of outbox publish retries",
		},
		[]string{"service", "event_type"},
	)

	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "outbox_pending_events",
			Help:        "Number of unpublished events in the outbox",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.OutboxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Outbox publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "event_type"},
	)

	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operations_total",
			Help:      "Total number of MongoDB operations",
		},
		[]string{"service", "collection", "operation", "status"},
	)

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.OrdersConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "orders_confirmed_total",
			Help:      "Total number of orders confirmed",
		},
		[]string{"service", "outcome"},
	)

	m.OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "orders_cancelled_total",
			Help:      "Total number of orders cancelled",
		},
		[]string{"service", "from_status"},
	)

	m.QuotesConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "quotes_converted_total",
			Help:      "Total number of quotes converted to orders",
		},
		[]string{"service"},
	)

	m.StockReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stock_reservations_total",
			Help:      "Total number of stock reservation operations",
		},
		[]string{"service", "operation", "status"},
	)

	m.StockMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stock_movements_total",
			Help:      "Total number of stock movements recorded",
		},
		[]string{"service", "movement_type"},
	)

	m.StockVersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stock_version_conflicts_total",
			Help:      "Total number of optimistic locking conflicts on stock levels",
		},
		[]string{"service"},
	)

	m.ApprovalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "approval_decisions_total",
			Help:      "Total number of approval step decisions",
		},
		[]string{"service", "decision"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPublished,
		m.OutboxRetries,
		m.OutboxPending,
		m.OutboxDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.OrdersConfirmed,
		m.OrdersCancelled,
		m.QuotesConverted,
		m.StockReservations,
		m.StockMovements,
		m.StockVersionConflicts,
		m.ApprovalDecisions,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordOutboxPublish records an outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status).Inc()
	m.OutboxDuration.WithLabelValues(m.serviceName, eventType).Observe(duration.Seconds())
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// SetOutboxPending sets the pending outbox events gauge
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordOrderConfirmed records an order confirmation outcome
func (m *Metrics) RecordOrderConfirmed(outcome string) {
	m.OrdersConfirmed.WithLabelValues(m.serviceName, outcome).Inc()
}

// RecordOrderCancelled records an order cancellation
func (m *Metrics) RecordOrderCancelled(fromStatus string) {
	m.OrdersCancelled.WithLabelValues(m.serviceName, fromStatus).Inc()
}

// RecordQuoteConverted records a quote conversion
func (m *Metrics) RecordQuoteConverted() {
	m.QuotesConverted.WithLabelValues(m.serviceName).Inc()
}

// RecordStockReservation records a reservation operation
func (m *Metrics) RecordStockReservation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StockReservations.WithLabelValues(m.serviceName, operation, status).Inc()
}

// RecordStockMovement records a stock movement
func (m *Metrics) RecordStockMovement(movementType string) {
	m.StockMovements.WithLabelValues(m.serviceName, movementType).Inc()
}

// RecordStockVersionConflict records an optimistic locking conflict
func (m *Metrics) RecordStockVersionConflict() {
	m.StockVersionConflicts.WithLabelValues(m.serviceName).Inc()
}

// RecordApprovalDecision records an approval step decision
func (m *Metrics) RecordApprovalDecision(decision string) {
	m.ApprovalDecisions.WithLabelValues(m.serviceName, decision).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
