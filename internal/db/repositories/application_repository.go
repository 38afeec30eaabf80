// application_repository.go implements ApplicationRepository, covering case
// creation with tracking ID allocation, the transactional status transition
// engine, assignment, and status history retrieval.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/tracking"
)

// ApplicationRepository handles application database operations
type ApplicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates a new ApplicationRepository
func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// ApplicationFilters contains filters for querying applications
type ApplicationFilters struct {
	ClientID        *string
	Status          *string
	Priority        *string
	ApplicationType *string
	AssignedTo      *string
	Search          *string
}

const applicationColumns = `id, tracking_id, client_id, application_type, status, priority,
	application_data, assigned_to, processing_notes, estimated_completion, actual_completion,
	submitted_at, updated_at`

func scanApplication(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Application, error) {
	app := &models.Application{}
	var dataJSON []byte
	err := scanner.Scan(
		&app.ID,
		&app.TrackingID,
		&app.ClientID,
		&app.ApplicationType,
		&app.Status,
		&app.Priority,
		&dataJSON,
		&app.AssignedTo,
		&app.ProcessingNotes,
		&app.EstimatedCompletion,
		&app.ActualCompletion,
		&app.SubmittedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &app.ApplicationData); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// trackingIDAttempts bounds the retry loop on tracking ID collisions
const trackingIDAttempts = 5

// CreateApplication submits a new application. The application row and its
// initial status history entry ("nothing" -> pending) are written in one
// transaction so a case can never exist without a trail; createdBy is recorded
// as the initial entry's changed_by. Tracking ID collisions are retried with a
// fresh random suffix.
func (r *ApplicationRepository) CreateApplication(ctx context.Context, app *models.Application, createdBy string) error {
	if app.Status == "" {
		app.Status = models.StatusPending
	}
	if app.Priority == "" {
		app.Priority = models.PriorityNormal
	}
	if app.ApplicationData == nil {
		app.ApplicationData = map[string]interface{}{}
	}

	dataJSON, err := json.Marshal(app.ApplicationData)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < trackingIDAttempts; attempt++ {
		app.ID = uuid.New().String()
		app.SubmittedAt = time.Now()
		app.UpdatedAt = app.SubmittedAt

		app.TrackingID, err = tracking.NewID(app.SubmittedAt)
		if err != nil {
			return err
		}

		err = r.insertWithHistory(ctx, app, dataJSON, createdBy)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err, "applications_tracking_id_key") {
			return err
		}
		// Collision on the random suffix, try again with a new one
	}

	return fmt.Errorf("failed to allocate a unique tracking id after %d attempts", trackingIDAttempts)
}

func (r *ApplicationRepository) insertWithHistory(ctx context.Context, app *models.Application, dataJSON []byte, createdBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO applications (id, tracking_id, client_id, application_type, status, priority,
			application_data, assigned_to, processing_notes, estimated_completion, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecContext(ctx, insertQuery,
		app.ID,
		app.TrackingID,
		app.ClientID,
		app.ApplicationType,
		app.Status,
		app.Priority,
		dataJSON,
		app.AssignedTo,
		app.ProcessingNotes,
		app.EstimatedCompletion,
		app.SubmittedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return err
	}

	var changedBy *string
	if createdBy != "" {
		changedBy = &createdBy
	}

	historyQuery := `
		INSERT INTO application_status_history (id, application_id, old_status, new_status, changed_by, notes, changed_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, historyQuery,
		uuid.New().String(),
		app.ID,
		app.Status,
		changedBy,
		"Application submitted",
		app.SubmittedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
}

// GetApplicationByID retrieves an application by ID
func (r *ApplicationRepository) GetApplicationByID(ctx context.Context, appID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRowContext(ctx, query, appID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// GetApplicationByTrackingID retrieves an application by its public tracking ID
func (r *ApplicationRepository) GetApplicationByTrackingID(ctx context.Context, trackingID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE tracking_id = $1`

	app, err := scanApplication(r.db.QueryRowContext(ctx, query, trackingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications retrieves applications with optional filters and pagination
func (r *ApplicationRepository) ListApplications(ctx context.Context, filters ApplicationFilters, limit, offset int) ([]*models.Application, int, error) {
	// Build query with filters
	countQuery := `SELECT COUNT(*) FROM applications WHERE 1=1`
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	// Apply filters
	if filters.ClientID != nil {
		countQuery += fmt.Sprintf(` AND client_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND client_id = $%d`, paramIndex)
		args = append(args, *filters.ClientID)
		paramIndex++
	}

	if filters.Status != nil {
		countQuery += fmt.Sprintf(` AND status = $%d`, paramIndex)
		query += fmt.Sprintf(` AND status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}

	if filters.Priority != nil {
		countQuery += fmt.Sprintf(` AND priority = $%d`, paramIndex)
		query += fmt.Sprintf(` AND priority = $%d`, paramIndex)
		args = append(args, *filters.Priority)
		paramIndex++
	}

	if filters.ApplicationType != nil {
		countQuery += fmt.Sprintf(` AND application_type = $%d`, paramIndex)
		query += fmt.Sprintf(` AND application_type = $%d`, paramIndex)
		args = append(args, *filters.ApplicationType)
		paramIndex++
	}

	if filters.AssignedTo != nil {
		countQuery += fmt.Sprintf(` AND assigned_to = $%d`, paramIndex)
		query += fmt.Sprintf(` AND assigned_to = $%d`, paramIndex)
		args = append(args, *filters.AssignedTo)
		paramIndex++
	}

	if filters.Search != nil {
		countQuery += fmt.Sprintf(` AND tracking_id ILIKE $%d`, paramIndex)
		query += fmt.Sprintf(` AND tracking_id ILIKE $%d`, paramIndex)
		args = append(args, "%"+*filters.Search+"%")
		paramIndex++
	}

	// Get total count
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// Add ordering and pagination
	query += fmt.Sprintf(` ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	apps := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
	}

	return apps, total, rows.Err()
}

// TransitionStatus moves an application to a new status and records the change
// in the history table, all in one transaction. The application row is locked
// for the duration so concurrent transitions serialize: each history entry's
// old_status is the status the application really had when the change applied.
// Any status may move to any other. The first transition into a terminal
// status stamps actual_completion; later transitions never overwrite it.
// The status the locked row held before the change is returned alongside the
// updated application so callers report the same from-status the history
// recorded.
func (r *ApplicationRepository) TransitionStatus(ctx context.Context, appID, newStatus, changedBy string, notes *string) (*models.Application, string, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, "", apperr.E(apperr.InvalidArgument, fmt.Sprintf("invalid status: %s", newStatus))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	lockQuery := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	app, err := scanApplication(tx.QueryRowContext(ctx, lockQuery, appID))
	if err == sql.ErrNoRows {
		return nil, "", apperr.E(apperr.NotFound, "application not found")
	}
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	oldStatus := app.Status

	historyQuery := `
		INSERT INTO application_status_history (id, application_id, old_status, new_status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, historyQuery,
		uuid.New().String(), app.ID, oldStatus, newStatus, changedBy, notes, now)
	if err != nil {
		return nil, "", err
	}

	if models.IsTerminalStatus(newStatus) && app.ActualCompletion == nil {
		app.ActualCompletion = &now
	}

	updateQuery := `
		UPDATE applications
		SET status = $2, actual_completion = $3, updated_at = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, app.ID, newStatus, app.ActualCompletion, now); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}

	app.Status = newStatus
	app.UpdatedAt = now
	return app, oldStatus, nil
}

// AssignApplication sets or clears the staff member responsible for a case
func (r *ApplicationRepository) AssignApplication(ctx context.Context, appID string, assignedTo *string) error {
	query := `UPDATE applications SET assigned_to = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, appID, assignedTo, time.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.E(apperr.NotFound, "application not found")
	}
	return nil
}

// UpdateDetails updates the mutable case fields that do not touch status
func (r *ApplicationRepository) UpdateDetails(ctx context.Context, app *models.Application) error {
	dataJSON, err := json.Marshal(app.ApplicationData)
	if err != nil {
		return err
	}
	app.UpdatedAt = time.Now()

	query := `
		UPDATE applications
		SET application_type = $2, priority = $3, application_data = $4,
			processing_notes = $5, estimated_completion = $6, updated_at = $7
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query,
		app.ID,
		app.ApplicationType,
		app.Priority,
		dataJSON,
		app.ProcessingNotes,
		app.EstimatedCompletion,
		app.UpdatedAt,
	)
	return err
}

// GetStatusHistory returns an application's status changes, oldest first.
// Entries sharing a changed_at timestamp are ordered by id so the trail reads
// the same on every request.
func (r *ApplicationRepository) GetStatusHistory(ctx context.Context, appID string) ([]*models.StatusHistory, error) {
	query := `
		SELECT id, application_id, old_status, new_status, changed_by, notes, changed_at
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY changed_at ASC, id
	`

	rows, err := r.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]*models.StatusHistory, 0)
	for rows.Next() {
		h := &models.StatusHistory{}
		err := rows.Scan(
			&h.ID,
			&h.ApplicationID,
			&h.OldStatus,
			&h.NewStatus,
			&h.ChangedBy,
			&h.Notes,
			&h.ChangedAt,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// CountByStatus returns application counts grouped by status
func (r *ApplicationRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM applications GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
