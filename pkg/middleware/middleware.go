// Package middleware holds the gin middleware shared by the service's HTTP
// routes.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
)

// RequestIDKey is the gin context key carrying the per-request ID.
const RequestIDKey = "request_id"

// RequestLogging tags every request with an ID and logs start and
// completion with method, path and status.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		logger.Info(c.Request.Context(), "http request started",
			"method", method,
			"path", path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		logger.Info(c.Request.Context(), "http request completed",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"size", c.Writer.Size(),
			"duration", time.Since(start),
		)
	}
}

// Instrument records request counts and latency into the service metrics.
// The route label uses the matched pattern, not the raw path, to keep
// cardinality bounded.
func Instrument(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(route, statusClass(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
