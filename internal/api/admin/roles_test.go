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

// roleSQLCols are the columns returned by the aggregated role SELECT. The
// permissions column is a Postgres array literal because it scans through
// pq.StringArray.
var roleSQLCols = []string{
	"id", "name", "display_name", "description", "is_system",
	"created_at", "updated_at", "permissions",
}

func sampleRoleRows() *sqlmock.Rows {
	return sqlmock.NewRows(roleSQLCols).
		AddRow("role-1", "reviewer", "Reviewer", nil, false,
			time.Now(), time.Now(), "{applications.view,clients.view}")
}

func systemRoleRows() *sqlmock.Rows {
	return sqlmock.NewRows(roleSQLCols).
		AddRow("role-admin", "admin", "Administrator", nil, true,
			time.Now(), time.Now(), "{admin}")
}

func emptyRoleRows() *sqlmock.Rows {
	return sqlmock.NewRows(roleSQLCols)
}

// newRoleRouter creates a gin router with all RoleHandlers routes registered.
func newRoleRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewRoleHandlers(sqlx.NewDb(db, "postgres"), testRecorder())

	r := gin.New()
	r.Use(asActor("admin-1"))
	r.GET("/roles", h.ListRolesHandler())
	r.GET("/roles/:id", h.GetRoleHandler())
	r.POST("/roles", h.CreateRoleHandler())
	r.PUT("/roles/:id", h.UpdateRoleHandler())
	r.DELETE("/roles/:id", h.DeleteRoleHandler())
	r.GET("/permissions", h.ListPermissionsHandler())

	return mock, r
}

// ---------------------------------------------------------------------------
// ListRolesHandler / GetRoleHandler
// ---------------------------------------------------------------------------

func TestListRolesHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sampleRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/roles", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["roles"] == nil {
		t.Error("response missing 'roles' key")
	}
}

func TestGetRoleHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("role-1").
		WillReturnRows(sampleRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/roles/role-1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["role"] == nil {
		t.Error("response missing 'role' key")
	}
}

func TestGetRoleHandler_NotFound(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/roles/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateRoleHandler
// ---------------------------------------------------------------------------

func TestCreateRoleHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("reviewer").
		WillReturnRows(emptyRoleRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/roles", jsonBody(map[string]interface{}{
		"name":         "reviewer",
		"display_name": "Reviewer",
		"permissions":  []string{"applications.view", "clients.view"},
	})))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["role"] == nil {
		t.Error("response missing 'role' key")
	}
}

func TestCreateRoleHandler_UnknownPermission(t *testing.T) {
	_, r := newRoleRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/roles", jsonBody(map[string]interface{}{
		"name":         "reviewer",
		"display_name": "Reviewer",
		"permissions":  []string{"applications.fly"},
	})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: body=%s", w.Code, w.Body.String())
	}
}

func TestCreateRoleHandler_NameConflict(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("reviewer").
		WillReturnRows(sampleRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/roles", jsonBody(map[string]interface{}{
		"name":         "reviewer",
		"display_name": "Reviewer",
		"permissions":  []string{"applications.view"},
	})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestCreateRoleHandler_MissingFields(t *testing.T) {
	_, r := newRoleRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/roles",
		jsonBody(map[string]string{"name": "reviewer"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// UpdateRoleHandler
// ---------------------------------------------------------------------------

func TestUpdateRoleHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("role-1").
		WillReturnRows(sampleRoleRows())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE roles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM role_permissions").WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/roles/role-1", jsonBody(map[string]interface{}{
		"display_name": "Case Reviewer",
		"permissions":  []string{"applications.view"},
	})))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateRoleHandler_SystemRoleRejected(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("role-admin").
		WillReturnRows(systemRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/roles/role-admin", jsonBody(map[string]interface{}{
		"display_name": "Renamed",
	})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if getJSON(w)["error"] != "System roles cannot be modified" {
		t.Errorf("unexpected error message: %s", w.Body.String())
	}
}

func TestUpdateRoleHandler_NotFound(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/roles/missing", jsonBody(map[string]interface{}{
		"display_name": "Renamed",
	})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DeleteRoleHandler
// ---------------------------------------------------------------------------

func TestDeleteRoleHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("role-1").
		WillReturnRows(sampleRoleRows())
	mock.ExpectExec("DELETE FROM roles").WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/roles/role-1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteRoleHandler_SystemRoleRejected(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("role-admin").
		WillReturnRows(systemRoleRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/roles/role-admin", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if getJSON(w)["error"] != "System roles cannot be deleted" {
		t.Errorf("unexpected error message: %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// ListPermissionsHandler
// ---------------------------------------------------------------------------

func TestListPermissionsHandler_Success(t *testing.T) {
	mock, r := newRoleRouter(t)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "code", "module", "action", "description"}).
			AddRow("perm-1", "applications.view", "applications", "view", "View applications").
			AddRow("perm-2", "clients.view", "clients", "view", "View clients"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/permissions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["permissions"] == nil {
		t.Error("response missing 'permissions' key")
	}
}
