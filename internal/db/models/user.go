// Package models - user.go defines the User model for staff accounts with email,
// name, and activation state, along with helpers for aggregating role permissions.
package models

import "time"

// User represents a staff member in the system
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FullName returns the user's display name
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserWithRoles represents a user with their assigned roles
type UserWithRoles struct {
	User
	Roles []Role `json:"roles"`
}

// GetPermissions returns all unique permission codes across all assigned roles
func (u *UserWithRoles) GetPermissions() []string {
	permSet := make(map[string]bool)
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			permSet[p] = true
		}
	}
	perms := make([]string, 0, len(permSet))
	for p := range permSet {
		perms = append(perms, p)
	}
	return perms
}

// HasAdminRole returns true if any assigned role carries the admin permission
func (u *UserWithRoles) HasAdminRole() bool {
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if p == "admin" {
				return true
			}
		}
	}
	return false
}
