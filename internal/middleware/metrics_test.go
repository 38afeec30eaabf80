package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Collection helpers
// ---------------------------------------------------------------------------

func labelsMatch(dm *dto.Metric, want prometheus.Labels) bool {
	for name, value := range want {
		found := false
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// counterValue returns the value of the series matching labels, or 0 when the
// series has not been observed yet.
func counterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 32)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if m.Write(&dm) == nil && labelsMatch(&dm, labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

func histogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	ch := make(chan prometheus.Metric, 32)
	hv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if m.Write(&dm) == nil && labelsMatch(&dm, labels) {
			return dm.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func pathLabelSeen(cv *prometheus.CounterVec, path string) bool {
	ch := make(chan prometheus.Metric, 32)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if m.Write(&dm) != nil {
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == "path" && lp.GetValue() == path {
				return true
			}
		}
	}
	return false
}

func serveMetricsRequest(status int, url string) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/test/:id", func(c *gin.Context) { c.Status(status) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, url, nil))
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_CountsByStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusInternalServerError} {
		labels := prometheus.Labels{
			"method": "GET",
			"path":   "/test/:id",
			"status": strconv.Itoa(status),
		}

		before := counterValue(telemetry.HTTPRequestsTotal, labels)
		serveMetricsRequest(status, "/test/42")
		after := counterValue(telemetry.HTTPRequestsTotal, labels)

		if after-before < 1 {
			t.Errorf("status %d: http_requests_total did not increase (before=%.0f after=%.0f)", status, before, after)
		}
	}
}

func TestMetricsMiddleware_ObservesDuration(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/test/:id"}

	before := histogramCount(telemetry.HTTPRequestDuration, labels)
	serveMetricsRequest(http.StatusOK, "/test/99")
	after := histogramCount(telemetry.HTTPRequestDuration, labels)

	if after <= before {
		t.Errorf("duration sample count did not increase (before=%d after=%d)", before, after)
	}
}

func TestMetricsMiddleware_PathLabelIsRouteTemplate(t *testing.T) {
	serveMetricsRequest(http.StatusOK, "/test/42")

	// The concrete URL must never become a label value, or every distinct ID
	// would mint a new series.
	if pathLabelSeen(telemetry.HTTPRequestsTotal, "/test/42") {
		t.Error("raw URL /test/42 used as path label instead of the route template")
	}
	if !pathLabelSeen(telemetry.HTTPRequestsTotal, "/test/:id") {
		t.Error("route template /test/:id not recorded as path label")
	}
}

func TestMetricsMiddleware_UnmatchedRouteUsesSentinel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if !pathLabelSeen(telemetry.HTTPRequestsTotal, "<no-route>") {
		t.Error("unmatched request did not record the <no-route> sentinel")
	}
}
