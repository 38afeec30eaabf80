// metrics.go records request count and latency metrics for every route.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} for each request.
//
// The path label comes from c.FullPath(), the matched route template
// (e.g. /api/applications/:id/status), never the raw URL, so concrete IDs do
// not explode label cardinality. Requests that match no route are recorded
// under the "<no-route>" sentinel for the same reason.
//
// Register after gin.Recovery() so the status written by panic recovery is
// the one recorded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
