package repositories

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/db/models"
)

var applicationCols = []string{
	"id", "tracking_id", "client_id", "application_type", "status", "priority",
	"application_data", "assigned_to", "processing_notes", "estimated_completion", "actual_completion",
	"submitted_at", "updated_at",
}

var historyCols = []string{
	"id", "application_id", "old_status", "new_status", "changed_by", "notes", "changed_at",
}

func sampleApplicationRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(applicationCols).
		AddRow("app-1", "TR20260830A41F09BC", "client-1", "visa", status, "normal",
			[]byte(`{"destination":"Istanbul"}`), nil, nil, nil, nil, time.Now(), time.Now())
}

func newApplicationRepo(t *testing.T) (*ApplicationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewApplicationRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateApplication
// ---------------------------------------------------------------------------

func TestCreateApplication_Success(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := &models.Application{
		ClientID:        "client-1",
		ApplicationType: "visa",
		ApplicationData: map[string]interface{}{"destination": "Istanbul"},
	}
	if err := repo.CreateApplication(context.Background(), app, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.ID == "" {
		t.Error("expected generated ID")
	}
	if !strings.HasPrefix(app.TrackingID, "TR") || len(app.TrackingID) != 18 {
		t.Errorf("TrackingID = %q, want TR + date + 8 chars", app.TrackingID)
	}
	if app.Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", app.Status)
	}
	if app.Priority != models.PriorityNormal {
		t.Errorf("Priority = %s, want normal", app.Priority)
	}
}

func TestCreateApplication_RetriesOnTrackingIDCollision(t *testing.T) {
	repo, mock := newApplicationRepo(t)

	collision := &pq.Error{Code: "23505", Constraint: "applications_tracking_id_key"}

	// First attempt collides on the tracking id
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnError(collision)
	mock.ExpectRollback()

	// Second attempt succeeds with a fresh id
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := &models.Application{ClientID: "client-1", ApplicationType: "visa"}
	if err := repo.CreateApplication(context.Background(), app, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateApplication_RecordsCreatorInHistory(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO application_status_history").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", "user-1", "Application submitted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := &models.Application{ClientID: "client-1", ApplicationType: "visa"}
	if err := repo.CreateApplication(context.Background(), app, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("initial history entry not attributed to the creator: %v", err)
	}
}

func TestCreateApplication_OtherUniqueViolationNotRetried(t *testing.T) {
	repo, mock := newApplicationRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "applications_client_id_fkey"})
	mock.ExpectRollback()

	app := &models.Application{ClientID: "nope", ApplicationType: "visa"}
	if err := repo.CreateApplication(context.Background(), app, "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestCreateApplication_HistoryInsertFailsRollsBack(t *testing.T) {
	repo, mock := newApplicationRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnError(errDB)
	mock.ExpectRollback()

	app := &models.Application{ClientID: "client-1", ApplicationType: "visa"}
	if err := repo.CreateApplication(context.Background(), app, "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetApplicationByID / GetApplicationByTrackingID
// ---------------------------------------------------------------------------

func TestGetApplicationByID_Found(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT.*FROM applications WHERE id").
		WithArgs("app-1").
		WillReturnRows(sampleApplicationRow("pending"))

	app, err := repo.GetApplicationByID(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app == nil {
		t.Fatal("expected application, got nil")
	}
	if app.ApplicationData["destination"] != "Istanbul" {
		t.Errorf("ApplicationData = %v, want destination Istanbul", app.ApplicationData)
	}
}

func TestGetApplicationByID_NotFound(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT.*FROM applications WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(applicationCols))

	app, err := repo.GetApplicationByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app != nil {
		t.Errorf("expected nil application, got %v", app)
	}
}

func TestGetApplicationByTrackingID_Found(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT.*FROM applications WHERE tracking_id").
		WithArgs("TR20260830A41F09BC").
		WillReturnRows(sampleApplicationRow("processing"))

	app, err := repo.GetApplicationByTrackingID(context.Background(), "TR20260830A41F09BC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app == nil {
		t.Fatal("expected application, got nil")
	}
	if app.Status != "processing" {
		t.Errorf("Status = %s, want processing", app.Status)
	}
}

// ---------------------------------------------------------------------------
// ListApplications
// ---------------------------------------------------------------------------

func TestListApplications_NoFilters(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM applications").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM applications.*ORDER BY submitted_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sampleApplicationRow("pending"))

	apps, total, err := repo.ListApplications(context.Background(), ApplicationFilters{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(apps) != 1 {
		t.Errorf("got total=%d len=%d, want 1/1", total, len(apps))
	}
}

func TestListApplications_StatusAndClientFilter(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	clientID := "client-1"
	status := "pending"

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM applications.*client_id.*status").
		WithArgs(clientID, status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM applications.*client_id.*status.*ORDER BY submitted_at DESC").
		WithArgs(clientID, status, 20, 0).
		WillReturnRows(sampleApplicationRow("pending"))

	filters := ApplicationFilters{ClientID: &clientID, Status: &status}
	apps, total, err := repo.ListApplications(context.Background(), filters, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(apps) != 1 {
		t.Errorf("got total=%d len=%d, want 1/1", total, len(apps))
	}
}

// ---------------------------------------------------------------------------
// TransitionStatus
// ---------------------------------------------------------------------------

func TestTransitionStatus_Success(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM applications WHERE id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(sampleApplicationRow("pending"))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	app, oldStatus, err := repo.TransitionStatus(context.Background(), "app-1", "processing", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != "processing" {
		t.Errorf("Status = %s, want processing", app.Status)
	}
	if oldStatus != "pending" {
		t.Errorf("old status = %s, want pending from the locked row", oldStatus)
	}
	if app.ActualCompletion != nil {
		t.Error("ActualCompletion should not be set for non-terminal status")
	}
}

func TestTransitionStatus_TerminalStampsCompletion(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM applications WHERE id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(sampleApplicationRow("processing"))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	app, oldStatus, err := repo.TransitionStatus(context.Background(), "app-1", "completed", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldStatus != "processing" {
		t.Errorf("old status = %s, want processing from the locked row", oldStatus)
	}
	if app.ActualCompletion == nil {
		t.Error("expected ActualCompletion to be stamped on completion")
	}
}

func TestTransitionStatus_CompletionSetOnce(t *testing.T) {
	repo, mock := newApplicationRepo(t)

	completed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(applicationCols).
		AddRow("app-1", "TR20260801AAAA1111", "client-1", "visa", "completed", "normal",
			[]byte(`{}`), nil, nil, nil, completed, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM applications WHERE id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	app, _, err := repo.TransitionStatus(context.Background(), "app-1", "approved", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.ActualCompletion == nil || !app.ActualCompletion.Equal(completed) {
		t.Errorf("ActualCompletion = %v, want original %v preserved", app.ActualCompletion, completed)
	}
}

func TestTransitionStatus_InvalidStatus(t *testing.T) {
	repo, _ := newApplicationRepo(t)

	_, _, err := repo.TransitionStatus(context.Background(), "app-1", "cancelled", "user-1", nil)
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("kind = %v, want InvalidArgument", apperr.KindOf(err))
	}
}

func TestTransitionStatus_NotFound(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM applications WHERE id.*FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(applicationCols))
	mock.ExpectRollback()

	_, _, err := repo.TransitionStatus(context.Background(), "missing", "processing", "user-1", nil)
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestTransitionStatus_HistoryInsertFails(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM applications WHERE id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(sampleApplicationRow("pending"))
	mock.ExpectExec("INSERT INTO application_status_history").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if _, _, err := repo.TransitionStatus(context.Background(), "app-1", "processing", "user-1", nil); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// AssignApplication
// ---------------------------------------------------------------------------

func TestAssignApplication_Success(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectExec("UPDATE applications SET assigned_to").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignee := "user-2"
	if err := repo.AssignApplication(context.Background(), "app-1", &assignee); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssignApplication_Unassign(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectExec("UPDATE applications SET assigned_to").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AssignApplication(context.Background(), "app-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssignApplication_NotFound(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectExec("UPDATE applications SET assigned_to").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignApplication(context.Background(), "missing", nil)
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("kind = %v, want NotFound", apperr.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// GetStatusHistory
// ---------------------------------------------------------------------------

func TestGetStatusHistory_AscendingOrder(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	pending := "pending"
	mock.ExpectQuery("SELECT.*FROM application_status_history.*ORDER BY changed_at ASC, id").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(historyCols).
			AddRow("h-1", "app-1", nil, "pending", nil, "Application submitted", time.Now().Add(-time.Hour)).
			AddRow("h-2", "app-1", &pending, "processing", "user-1", nil, time.Now()))

	history, err := repo.GetStatusHistory(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].OldStatus != nil {
		t.Error("first entry should have nil old_status")
	}
	if history[1].NewStatus != "processing" {
		t.Errorf("second entry NewStatus = %s, want processing", history[1].NewStatus)
	}
}

func TestGetStatusHistory_Empty(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT.*FROM application_status_history").
		WithArgs("app-x").
		WillReturnRows(sqlmock.NewRows(historyCols))

	history, err := repo.GetStatusHistory(context.Background(), "app-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("len(history) = %d, want 0", len(history))
	}
}

// ---------------------------------------------------------------------------
// CountByStatus
// ---------------------------------------------------------------------------

func TestCountByStatus(t *testing.T) {
	repo, mock := newApplicationRepo(t)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM applications GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("completed", 7))

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["pending"] != 3 || counts["completed"] != 7 {
		t.Errorf("counts = %v, want pending=3 completed=7", counts)
	}
}
