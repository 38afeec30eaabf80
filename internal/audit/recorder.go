// recorder.go provides the Recorder used by handlers to persist audit events.
// Recording is asynchronous and fire-and-forget: the audit write must never
// add latency to, or fail, the request that triggered it. Write failures are
// logged and counted but otherwise swallowed.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/safego"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

// writeTimeout bounds each background audit write
const writeTimeout = 5 * time.Second

// Store persists audit log entries. Satisfied by repositories.AuditRepository.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Event describes one auditable action
type Event struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
	IPAddress    string
	UserAgent    string
}

// Recorder writes audit events to the database and, when configured, ships
// them to external destinations.
type Recorder struct {
	store   Store
	shipper Shipper
}

// NewRecorder creates a Recorder. shipper may be nil when no external
// destinations are configured.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper}
}

// Record persists an audit event in the background. It returns immediately;
// the caller's request context is never used because the write must survive
// the request ending.
func (r *Recorder) Record(event Event) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		entry := &models.AuditLog{
			Action:  event.Action,
			Details: event.Details,
		}
		if event.UserID != "" {
			entry.UserID = &event.UserID
		}
		if event.ResourceType != "" {
			entry.ResourceType = &event.ResourceType
		}
		if event.ResourceID != "" {
			entry.ResourceID = &event.ResourceID
		}
		if event.IPAddress != "" {
			entry.IPAddress = &event.IPAddress
		}
		if event.UserAgent != "" {
			entry.UserAgent = &event.UserAgent
		}

		if err := r.store.CreateAuditLog(ctx, entry); err != nil {
			telemetry.AuditWriteFailuresTotal.Inc()
			slog.Error("failed to write audit log",
				"action", event.Action,
				"resource_type", event.ResourceType,
				"error", err)
		}

		if r.shipper != nil {
			shipEntry := &LogEntry{
				Timestamp:    time.Now(),
				Action:       event.Action,
				UserID:       event.UserID,
				ResourceType: event.ResourceType,
				ResourceID:   event.ResourceID,
				IPAddress:    event.IPAddress,
				UserAgent:    event.UserAgent,
				Details:      event.Details,
			}
			if err := r.shipper.Ship(ctx, shipEntry); err != nil {
				slog.Error("failed to ship audit log", "action", event.Action, "error", err)
			}
		}
	})
}
