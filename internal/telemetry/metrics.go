// Package telemetry provides application-level observability for the back office.
//
// # Prometheus Metrics Endpoint
//
// Every metric here is registered against the default Prometheus registry and
// exposed by the side-channel HTTP server that main.go starts:
//
//	GET http(s)://<host>:<TTB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The default port is 9090. Responses use the Prometheus text exposition
// format and are meant to be scraped every 15–60 seconds. The endpoint is not
// part of the Gin router, so it never appears in the OpenAPI spec and is not
// subject to API rate limiting.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms, labelled by route template
//   - application lifecycle counters (created, status transitions)
//   - staff login attempt counters
//   - audit trail write failure counter
//   - database connection pool gauge, polled every 30 s
//
// # Label Cardinality
//
// HTTP metrics label the Gin route template from c.FullPath() — for example
// /api/applications/:id — never the raw URL. Raw URLs would mint a new label
// value per application ID or tracking number and blow up series cardinality.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequestsTotal counts processed requests by {method, path, status},
// where path is the route template.
//
// Useful queries:
//
//	rate(http_requests_total[5m])
//	sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests processed, by method, route template, and status code.",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration observes request latency by {method, path} with buckets
// from 5 ms to 30 s. Percentiles come out of histogram_quantile, e.g.
//
//	histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Histogram of HTTP request latencies, by method and route template.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"method", "path"},
)

// ApplicationsCreatedTotal counts created applications by {type} (visa,
// tour_package, travel_insurance, ...). Intake rate per type:
//
//	sum by (type) (rate(applications_created_total[1h]))
var ApplicationsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "applications_created_total",
		Help: "Total number of travel applications created, by application type.",
	},
	[]string{"type"},
)

// StatusTransitionsTotal counts successful status transitions by {from, to}.
// The from label is "none" on the initial submission record. Rejection ratio:
//
//	sum(rate(status_transitions_total{to="rejected"}[1h])) / sum(rate(status_transitions_total{to=~"approved|rejected"}[1h]))
var StatusTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "status_transitions_total",
		Help: "Total number of application status transitions, by old and new status.",
	},
	[]string{"from", "to"},
)

// LoginAttemptsTotal counts staff login attempts by {result} ("success" or
// "failure"). A failure spike is an early credential-stuffing signal; a
// reasonable alert is
//
//	increase(login_attempts_total{result="failure"}[15m]) > 50
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of staff login attempts, by result.",
	},
	[]string{"result"},
)

// AuditWriteFailuresTotal counts failed audit log writes. Audit writes are
// fire-and-forget, so this counter is the only signal that the trail has
// gaps; alert on any increase.
var AuditWriteFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Total number of failed audit log writes.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool. It is
// sampled every 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics into DBOpenConnections every
// 30 seconds. The goroutine stops itself once the database becomes
// unreachable, which is what happens after shutdown closes the pool. Call
// once, right after db.Connect succeeds.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
