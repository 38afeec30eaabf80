package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// auditSQLCols are the columns returned by audit log SELECT queries.
var auditSQLCols = []string{
	"id", "user_id", "action", "resource_type", "resource_id",
	"details", "ip_address", "user_agent", "created_at",
}

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditSQLCols).
		AddRow("log-1", "user-1", "client.created", "client", "client-1",
			[]byte(`{"email":"bob@example.com"}`), "10.0.0.1", "curl/8.0", time.Now())
}

func emptyAuditRows() *sqlmock.Rows {
	return sqlmock.NewRows(auditSQLCols)
}

// newAuditLogRouter creates a gin router with the audit log routes registered.
func newAuditLogRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuditLogHandlers(db)

	r := gin.New()
	r.Use(asActor("auditor-1"))
	r.GET("/audit-logs", h.ListAuditLogsHandler())
	r.GET("/audit-logs/:id", h.GetAuditLogHandler())

	return mock, r
}

// ---------------------------------------------------------------------------
// ListAuditLogsHandler
// ---------------------------------------------------------------------------

func TestListAuditLogsHandler_Success(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT").WithArgs(50, 0).
		WillReturnRows(sampleAuditRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["audit_logs"] == nil {
		t.Error("response missing 'audit_logs' key")
	}
	if resp["pagination"] == nil {
		t.Error("response missing 'pagination' key")
	}
}

func TestListAuditLogsHandler_ActionFilter(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT").WithArgs("client.created").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT").WithArgs("client.created", 50, 0).
		WillReturnRows(sampleAuditRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs?action=client.created", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestListAuditLogsHandler_DateFilters(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT").
		WillReturnRows(emptyAuditRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET",
		"/audit-logs?start_date=2026-01-01T00:00:00Z&end_date=2026-02-01T00:00:00Z", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestListAuditLogsHandler_InvalidStartDate(t *testing.T) {
	_, r := newAuditLogRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs?start_date=yesterday", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if getJSON(w)["error"] != "Invalid start_date: must be RFC3339" {
		t.Errorf("unexpected error message: %s", w.Body.String())
	}
}

func TestListAuditLogsHandler_InvalidEndDate(t *testing.T) {
	_, r := newAuditLogRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs?end_date=2026-13-45", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListAuditLogsHandler_DBError(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetAuditLogHandler
// ---------------------------------------------------------------------------

func TestGetAuditLogHandler_Success(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("log-1").
		WillReturnRows(sampleAuditRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs/log-1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["audit_log"] == nil {
		t.Error("response missing 'audit_log' key")
	}
}

func TestGetAuditLogHandler_NotFound(t *testing.T) {
	mock, r := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyAuditRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
