// rbac_repository.go implements RBACRepository, providing database queries for
// role CRUD, the permission catalogue, user role assignment, and the permission
// resolution used by the authorization gate.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tarim-tours/backoffice/internal/db/models"
)

// RBACRepository handles database operations for access control features
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository creates a new RBAC repository
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// ============================================================================
// Roles
// ============================================================================

// roleSelect aggregates permission codes per role so a role always carries its
// full permission list in one round trip.
const roleSelect = `
	SELECT r.id, r.name, r.display_name, r.description, r.is_system, r.created_at, r.updated_at,
	       COALESCE(ARRAY_AGG(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}') AS permissions
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
`

func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Role, error) {
	var role models.Role
	var perms pq.StringArray
	err := scanner.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description,
		&role.IsSystem, &role.CreatedAt, &role.UpdatedAt, &perms)
	if err != nil {
		return nil, err
	}
	role.Permissions = []string(perms)
	return &role, nil
}

// ListRoles returns all roles with their permissions
func (r *RBACRepository) ListRoles(ctx context.Context) ([]*models.Role, error) {
	query := roleSelect + ` GROUP BY r.id ORDER BY r.name`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// GetRole retrieves a role by ID
func (r *RBACRepository) GetRole(ctx context.Context, id string) (*models.Role, error) {
	query := roleSelect + ` WHERE r.id = $1 GROUP BY r.id`

	role, err := scanRole(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetRoleByName retrieves a role by name
func (r *RBACRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	query := roleSelect + ` WHERE r.name = $1 GROUP BY r.id`

	role, err := scanRole(r.db.QueryRowxContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// CreateRole creates a new role and links the given permission codes
func (r *RBACRepository) CreateRole(ctx context.Context, role *models.Role) error {
	role.ID = uuid.New().String()
	role.CreatedAt = time.Now()
	role.UpdatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO roles (id, name, display_name, description, is_system, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, query,
		role.ID, role.Name, role.DisplayName, role.Description, role.IsSystem, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return err
	}

	if err := setRolePermissionsTx(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateRole updates an existing role and replaces its permission links.
// System roles cannot be modified.
func (r *RBACRepository) UpdateRole(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE roles SET display_name = $2, description = $3, updated_at = $4
			  WHERE id = $1 AND is_system = false`
	res, err := tx.ExecContext(ctx, query, role.ID, role.DisplayName, role.Description, role.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
		return err
	}
	if err := setRolePermissionsTx(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRole deletes a role (only non-system roles)
func (r *RBACRepository) DeleteRole(ctx context.Context, id string) error {
	query := `DELETE FROM roles WHERE id = $1 AND is_system = false`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func setRolePermissionsTx(ctx context.Context, tx *sqlx.Tx, roleID string, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	query := `INSERT INTO role_permissions (role_id, permission_id)
			  SELECT $1, id FROM permissions WHERE code = ANY($2)`
	_, err := tx.ExecContext(ctx, query, roleID, pq.Array(codes))
	return err
}

// ============================================================================
// Permission catalogue
// ============================================================================

// ListPermissions returns the full permission catalogue
func (r *RBACRepository) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	query := `SELECT id, code, module, action, description FROM permissions ORDER BY module, action`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, &p)
	}

	return perms, rows.Err()
}

// ============================================================================
// User role assignment
// ============================================================================

// AssignRole assigns a role to a user. Assigning an already-held role is a no-op.
func (r *RBACRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	query := `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			  ON CONFLICT (user_id, role_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, userID, roleID)
	return err
}

// RemoveRole removes a role from a user
func (r *RBACRepository) RemoveRole(ctx context.Context, userID, roleID string) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	_, err := r.db.ExecContext(ctx, query, userID, roleID)
	return err
}

// SetUserRoles replaces a user's role assignments with the given role IDs
func (r *RBACRepository) SetUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if len(roleIDs) > 0 {
		query := `INSERT INTO user_roles (user_id, role_id)
				  SELECT $1, id FROM roles WHERE id = ANY($2)`
		if _, err := tx.ExecContext(ctx, query, userID, pq.Array(roleIDs)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetUserRoles returns the roles assigned to a user
func (r *RBACRepository) GetUserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	query := roleSelect + `
	JOIN user_roles ur ON ur.role_id = r.id
	WHERE ur.user_id = $1
	GROUP BY r.id
	ORDER BY r.name`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// GetUserPermissions resolves the distinct permission codes a user holds
// through active role assignments. This is the lookup behind every
// authorization decision, so it stays a single indexed query.
func (r *RBACRepository) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.code`

	var perms []string
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, code)
	}

	return perms, rows.Err()
}
