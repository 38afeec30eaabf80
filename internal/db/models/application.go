// Package models - application.go defines the Application model for travel
// service cases (visas, tours, flights), its status and priority vocabulary,
// and the status history entries that form the case audit trail.
package models

import "time"

// Application statuses. Any status may transition to any other; the history
// table records every change.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCompleted  = "completed"
)

// Application priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidStatuses returns the accepted application statuses
func ValidStatuses() []string {
	return []string{StatusPending, StatusProcessing, StatusApproved, StatusRejected, StatusCompleted}
}

// ValidPriorities returns the accepted application priorities
func ValidPriorities() []string {
	return []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// IsValidStatus reports whether s is an accepted status
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// IsValidPriority reports whether p is an accepted priority
func IsValidPriority(p string) bool {
	for _, v := range ValidPriorities() {
		if p == v {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether s marks the case as finished.
// Terminal cases stamp actual_completion the first time they are reached.
func IsTerminalStatus(s string) bool {
	return s == StatusApproved || s == StatusCompleted
}

// Application represents a travel service case
type Application struct {
	ID              string `json:"id"`
	TrackingID      string `json:"tracking_id"`
	ClientID        string `json:"client_id"`
	ApplicationType string `json:"application_type"`
	Status          string `json:"status"`
	Priority        string `json:"priority"`
	// ApplicationData holds service-specific fields (destination, dates,
	// passenger counts). Stored as JSONB.
	ApplicationData     map[string]interface{} `json:"application_data"`
	AssignedTo          *string                `json:"assigned_to,omitempty"`
	ProcessingNotes     *string                `json:"processing_notes,omitempty"`
	EstimatedCompletion *time.Time             `json:"estimated_completion,omitempty"`
	ActualCompletion    *time.Time             `json:"actual_completion,omitempty"`
	SubmittedAt         time.Time              `json:"submitted_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// StatusHistory represents one status change of an application.
// OldStatus is nil for the initial submission entry.
type StatusHistory struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	OldStatus     *string   `json:"old_status"`
	NewStatus     string    `json:"new_status"`
	ChangedBy     *string   `json:"changed_by,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}
