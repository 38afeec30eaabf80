// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events, capturing actor, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"user_id,omitempty"`       // Nullable for system actions
	Action       string                 `json:"action"`                  // "application.transition", "client.delete", "user.create"
	ResourceType *string                `json:"resource_type,omitempty"` // "application", "client", "user", "role"
	ResourceID   *string                `json:"resource_id,omitempty"`   // UUID of affected resource
	Details      map[string]interface{} `json:"details,omitempty"`       // JSONB: additional context
	IPAddress    *string                `json:"ip_address,omitempty"`    // Client IP
	UserAgent    *string                `json:"user_agent,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
