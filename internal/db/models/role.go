// Package models - role.go defines the Role model for named permission sets
// used in access control, along with the predefined system roles.
package models

import "time"

// Role represents a named set of permissions assignable to staff users
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Permissions []string  `db:"permissions" json:"permissions"`
	IsSystem    bool      `db:"is_system" json:"is_system"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Permission represents a single grantable permission in the catalogue
type Permission struct {
	ID          string  `db:"id" json:"id"`
	Code        string  `db:"code" json:"code"`
	Module      string  `db:"module" json:"module"`
	Action      string  `db:"action" json:"action"`
	Description *string `db:"description" json:"description,omitempty"`
}

// PredefinedRoles returns the default system roles
func PredefinedRoles() []Role {
	adminDesc := "Full access to every back office feature"
	opsDesc := "Processes applications, manages clients, assigns work"
	frontDeskDesc := "Registers clients and submits applications"
	auditorDesc := "Read-only access plus the audit log"

	return []Role{
		{
			Name:        "admin",
			DisplayName: "Administrator",
			Description: &adminDesc,
			Permissions: []string{"admin"},
			IsSystem:    true,
		},
		{
			Name:        "operations_manager",
			DisplayName: "Operations Manager",
			Description: &opsDesc,
			Permissions: []string{
				"clients.view", "clients.create", "clients.edit",
				"applications.view", "applications.create", "applications.process", "applications.assign",
				"users.view",
			},
			IsSystem: true,
		},
		{
			Name:        "front_desk",
			DisplayName: "Front Desk",
			Description: &frontDeskDesc,
			Permissions: []string{
				"clients.view", "clients.create", "clients.edit",
				"applications.view", "applications.create",
			},
			IsSystem: true,
		},
		{
			Name:        "auditor",
			DisplayName: "Auditor",
			Description: &auditorDesc,
			Permissions: []string{
				"clients.view", "applications.view", "users.view", "system.audit",
			},
			IsSystem: true,
		},
	}
}
