package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/config"
	"github.com/tarim-tours/backoffice/internal/middleware"
)

func TestMain(m *testing.M) {
	os.Setenv("TTB_JWT_SECRET", "test-router-jwt-secret-that-is-32ch!")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// testConfig returns the minimal configuration NewRouter needs: rate limiting
// and audit shipping off so tests reach neither Redis nor external sinks.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

func newTestRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	router, bg, err := NewRouter(testConfig(), db)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)

	return mock, router
}

// ---------------------------------------------------------------------------
// Health and version
// ---------------------------------------------------------------------------

func TestHealthCheck_Healthy(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

type pingError struct{}

func (pingError) Error() string { return "connection refused" }

func TestHealthCheck_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	router, bg, err := NewRouter(testConfig(), db)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer bg.Shutdown()

	mock.ExpectPing().WillReturnError(pingError{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, `"api_version":"v1"`) {
		t.Errorf("unexpected version body: %s", body)
	}
}

// ---------------------------------------------------------------------------
// Middleware wiring
// ---------------------------------------------------------------------------

func TestRequestIDHeaderSet(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))

	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response missing X-Request-ID header")
	}
}

func TestRequestIDHeaderPropagated(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/version", nil)
	req.Header.Set(middleware.RequestIDHeader, "upstream-id-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(middleware.RequestIDHeader); got != "upstream-id-123" {
		t.Errorf("X-Request-ID = %q, want upstream-id-123", got)
	}
}

func TestSecurityHeadersSet(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/auth/login", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Route protection
// ---------------------------------------------------------------------------

func TestStaffRoutesRequireAuth(t *testing.T) {
	_, router := newTestRouter(t)

	for _, route := range []struct{ method, path string }{
		{"GET", "/api/auth/me"},
		{"GET", "/api/clients"},
		{"GET", "/api/applications"},
		{"GET", "/api/users"},
		{"GET", "/api/roles"},
		{"GET", "/api/audit-logs"},
		{"GET", "/api/stats/dashboard"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", route.method, route.path, w.Code)
		}
	}
}

func TestPortalRoutesRequireAuth(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/portal/applications", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestMalformedTokenRejected(t *testing.T) {
	_, router := newTestRouter(t)

	// A bearer token that does not parse never reaches the database.
	req := httptest.NewRequest("GET", "/portal/applications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestTrackingRouteIsPublic(t *testing.T) {
	mock, router := newTestRouter(t)

	// A well-formed but unknown tracking ID reaches the repository without
	// any authentication.
	mock.ExpectQuery("FROM applications WHERE tracking_id").
		WithArgs("TR20260830AAAAAAAA").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/track/TR20260830AAAAAAAA", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected tracking lookup to hit the database: %v", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/does-not-exist", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
