package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

// MetricsMiddleware creates middleware that records HTTP metrics
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	excludeMap := map[string]bool{
		"/metrics": true,
		"/health":  true,
		"/ready":   true,
	}

	return func(c *gin.Context) {
		if excludeMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		// Use the route pattern, not the raw path, to bound cardinality
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.RecordHTTPRequest(method, path, status, duration)
	}
}

// MetricsEndpoint returns a handler for the /metrics endpoint
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	handler := m.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
