// Package auth - permissions.go defines permission constants for all back
// office resources and provides HasPermission, HasAnyPermission, and
// HasAllPermissions helper functions for permission checking.
package auth

import (
	"errors"
	"fmt"
)

// Permission represents a named permission granted through a role
type Permission string

const (
	// Client management permissions
	PermClientsView   Permission = "clients.view"
	PermClientsCreate Permission = "clients.create"
	PermClientsEdit   Permission = "clients.edit"
	PermClientsDelete Permission = "clients.delete"

	// Application processing permissions
	PermApplicationsView    Permission = "applications.view"
	PermApplicationsCreate  Permission = "applications.create"
	PermApplicationsProcess Permission = "applications.process" // Transition status, record processing notes
	PermApplicationsAssign  Permission = "applications.assign"  // Assign applications to staff

	// User management permissions
	PermUsersView   Permission = "users.view"
	PermUsersCreate Permission = "users.create"
	PermUsersEdit   Permission = "users.edit"
	PermUsersDelete Permission = "users.delete"

	// System permissions
	PermSystemAudit    Permission = "system.audit"    // Browse the audit log
	PermSystemSettings Permission = "system.settings" // Manage roles and system configuration

	// Admin permission (wildcard - all permissions)
	PermAdmin Permission = "admin"
)

// AllPermissions returns all valid permissions
func AllPermissions() []Permission {
	return []Permission{
		PermClientsView,
		PermClientsCreate,
		PermClientsEdit,
		PermClientsDelete,
		PermApplicationsView,
		PermApplicationsCreate,
		PermApplicationsProcess,
		PermApplicationsAssign,
		PermUsersView,
		PermUsersCreate,
		PermUsersEdit,
		PermUsersDelete,
		PermSystemAudit,
		PermSystemSettings,
		PermAdmin,
	}
}

// ValidPermissions returns a map of valid permission strings
func ValidPermissions() map[string]bool {
	valid := make(map[string]bool)
	for _, perm := range AllPermissions() {
		valid[string(perm)] = true
	}
	return valid
}

// ValidatePermissions checks if all provided permission strings are valid
func ValidatePermissions(perms []string) error {
	valid := ValidPermissions()

	for _, perm := range perms {
		if !valid[perm] {
			return fmt.Errorf("invalid permission: %s", perm)
		}
	}

	return nil
}

// HasPermission checks if a user has a required permission
// Supports wildcard admin permission
func HasPermission(userPerms []string, required Permission) bool {
	requiredStr := string(required)

	for _, perm := range userPerms {
		// Check for exact match
		if perm == requiredStr {
			return true
		}

		// Check for admin wildcard
		if perm == string(PermAdmin) {
			return true
		}

		// Stronger permissions imply the view permission for the same resource
		if required == PermClientsView &&
			(perm == string(PermClientsEdit) || perm == string(PermClientsCreate) || perm == string(PermClientsDelete)) {
			return true
		}
		if required == PermApplicationsView &&
			(perm == string(PermApplicationsProcess) || perm == string(PermApplicationsCreate) || perm == string(PermApplicationsAssign)) {
			return true
		}
		if required == PermUsersView &&
			(perm == string(PermUsersEdit) || perm == string(PermUsersCreate) || perm == string(PermUsersDelete)) {
			return true
		}
	}

	return false
}

// HasAnyPermission checks if a user has at least one of the required permissions
func HasAnyPermission(userPerms []string, required []Permission) bool {
	for _, perm := range required {
		if HasPermission(userPerms, perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if a user has all of the required permissions
func HasAllPermissions(userPerms []string, required []Permission) bool {
	for _, perm := range required {
		if !HasPermission(userPerms, perm) {
			return false
		}
	}
	return true
}

// ValidatePermissionString validates a single permission string
func ValidatePermissionString(perm string) error {
	valid := ValidPermissions()
	if !valid[perm] {
		return errors.New("invalid permission")
	}
	return nil
}
