package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

var statsCountCols = []string{
	"client_count", "user_count", "active_user_count", "app_count",
	"pending_count", "processing_count", "approved_count", "rejected_count",
	"completed_count", "unassigned_count", "urgent_count",
}

func newStatsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewStatsHandlers(sqlx.NewDb(db, "postgres"))

	r := gin.New()
	r.Use(asActor("staff-1"))
	r.GET("/stats/dashboard", h.GetDashboardStatsHandler())

	return mock, r
}

// ---------------------------------------------------------------------------
// GetDashboardStatsHandler
// ---------------------------------------------------------------------------

func TestGetDashboardStatsHandler_Success(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows(statsCountCols).
			AddRow(12, 5, 4, 30, 8, 6, 9, 2, 5, 3, 1))
	mock.ExpectQuery("SELECT application_type").WillReturnRows(
		sqlmock.NewRows([]string{"type", "count"}).
			AddRow("tourist_visa", 18).
			AddRow("work_permit", 12))
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "tracking_id", "application_type", "status", "priority",
			"client_name", "submitted_at",
		}).AddRow("app-1", "TR20260830A1B2C3D4", "tourist_visa", "pending", "urgent",
			"Bob Jones", time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}

	resp := getJSON(w)
	if resp["clients"] != float64(12) {
		t.Errorf("clients = %v, want 12", resp["clients"])
	}
	apps, ok := resp["applications"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing 'applications' object: %s", w.Body.String())
	}
	if apps["total"] != float64(30) {
		t.Errorf("applications.total = %v, want 30", apps["total"])
	}
	if apps["unassigned"] != float64(3) {
		t.Errorf("applications.unassigned = %v, want 3", apps["unassigned"])
	}
	if resp["recent_applications"] == nil {
		t.Error("response missing 'recent_applications' key")
	}
	if resp["by_type"] == nil {
		t.Error("response missing 'by_type' key")
	}
}

func TestGetDashboardStatsHandler_DBError(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("SELECT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
