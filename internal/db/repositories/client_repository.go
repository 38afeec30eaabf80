// client_repository.go implements ClientRepository for customer records,
// including the guarded delete that refuses to remove clients with open
// applications.
package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/db/models"
)

// ClientRepository handles client database operations
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new ClientRepository
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `id, first_name, last_name, email, phone, date_of_birth, nationality,
	passport_number, address, emergency_contact_name, emergency_contact_phone, notes,
	password_hash, created_at, updated_at`

func scanClient(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Client, error) {
	client := &models.Client{}
	err := scanner.Scan(
		&client.ID,
		&client.FirstName,
		&client.LastName,
		&client.Email,
		&client.Phone,
		&client.DateOfBirth,
		&client.Nationality,
		&client.PassportNumber,
		&client.Address,
		&client.EmergencyContactName,
		&client.EmergencyContactPhone,
		&client.Notes,
		&client.PasswordHash,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// CreateClient creates a new client. The email is lowercased before storage
// so lookups stay case-insensitive. A concurrent insert of the same email
// loses the race on the unique index and reports Conflict.
func (r *ClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	client.ID = uuid.New().String()
	client.Email = strings.ToLower(strings.TrimSpace(client.Email))
	client.CreatedAt = time.Now()
	client.UpdatedAt = time.Now()

	query := `
		INSERT INTO clients (id, first_name, last_name, email, phone, date_of_birth, nationality,
			passport_number, address, emergency_contact_name, emergency_contact_phone, notes,
			password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.FirstName,
		client.LastName,
		client.Email,
		client.Phone,
		client.DateOfBirth,
		client.Nationality,
		client.PassportNumber,
		client.Address,
		client.EmergencyContactName,
		client.EmergencyContactPhone,
		client.Notes,
		client.PasswordHash,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if isUniqueViolation(err, "idx_clients_email_lower") {
		return apperr.E(apperr.Conflict, "client with this email already exists")
	}

	return err
}

// GetClientByID retrieves a client by ID
func (r *ClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

	client, err := scanClient(r.db.QueryRowContext(ctx, query, clientID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// GetClientByEmail retrieves a client by email, case-insensitively
func (r *ClientRepository) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE LOWER(email) = LOWER($1)`

	client, err := scanClient(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// UpdateClient updates a client's record
func (r *ClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	client.Email = strings.ToLower(strings.TrimSpace(client.Email))
	client.UpdatedAt = time.Now()

	query := `
		UPDATE clients
		SET first_name = $2, last_name = $3, email = $4, phone = $5, date_of_birth = $6,
			nationality = $7, passport_number = $8, address = $9,
			emergency_contact_name = $10, emergency_contact_phone = $11, notes = $12,
			updated_at = $13
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.FirstName,
		client.LastName,
		client.Email,
		client.Phone,
		client.DateOfBirth,
		client.Nationality,
		client.PassportNumber,
		client.Address,
		client.EmergencyContactName,
		client.EmergencyContactPhone,
		client.Notes,
		client.UpdatedAt,
	)
	if isUniqueViolation(err, "idx_clients_email_lower") {
		return apperr.E(apperr.Conflict, "email already in use by another client")
	}

	return err
}

// SetClientPassword sets or replaces a client's portal password hash
func (r *ClientRepository) SetClientPassword(ctx context.Context, clientID, passwordHash string) error {
	query := `UPDATE clients SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, clientID, passwordHash, time.Now())
	return err
}

// DeleteClient deletes a client. Deletion is refused while the client has
// applications still in flight so case history never loses its subject.
func (r *ClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var open int
	countQuery := `
		SELECT COUNT(*) FROM applications
		WHERE client_id = $1 AND status IN ('pending', 'processing')
	`
	if err := tx.QueryRowContext(ctx, countQuery, clientID).Scan(&open); err != nil {
		return err
	}
	if open > 0 {
		return apperr.E(apperr.Conflict, "client has applications in progress")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListClients retrieves a paginated list of clients, newest first, optionally
// filtered by a search term matched against name, email, and passport number.
func (r *ClientRepository) ListClients(ctx context.Context, search string, limit, offset int) ([]*models.Client, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR passport_number ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM clients` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + clientColumns + ` FROM clients` + where +
		` ORDER BY created_at DESC`
	if search != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clients := make([]*models.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, client)
	}

	return clients, total, rows.Err()
}

// Count returns the total number of clients
func (r *ClientRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&total)
	return total, err
}
