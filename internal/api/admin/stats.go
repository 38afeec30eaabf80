// stats.go implements handlers for aggregating dashboard statistics across
// clients, applications, and staff.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// StatsHandlers handles dashboard statistics endpoints
type StatsHandlers struct {
	db *sqlx.DB
}

// NewStatsHandlers creates a new StatsHandlers instance
func NewStatsHandlers(database *sqlx.DB) *StatsHandlers {
	return &StatsHandlers{
		db: database,
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Clients      int64                  `json:"clients"`
	Users        int64                  `json:"users"`
	ActiveUsers  int64                  `json:"active_users"`
	Applications ApplicationStats       `json:"applications"`
	Recent       []RecentApplication    `json:"recent_applications"`
	ByType       []ApplicationTypeCount `json:"by_type"`
}

// ApplicationStats breaks the caseload down by status
type ApplicationStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Approved   int64 `json:"approved"`
	Rejected   int64 `json:"rejected"`
	Completed  int64 `json:"completed"`
	Unassigned int64 `json:"unassigned"` // open cases with no staff member
	Urgent     int64 `json:"urgent"`     // open cases with urgent priority
}

// ApplicationTypeCount is the caseload for a single application type
type ApplicationTypeCount struct {
	Type  string `json:"type" db:"type"`
	Count int64  `json:"count" db:"count"`
}

// RecentApplication is a summary row for the dashboard's recent activity list
type RecentApplication struct {
	ID              string    `json:"id"`
	TrackingID      string    `json:"tracking_id"`
	ApplicationType string    `json:"application_type"`
	Status          string    `json:"status"`
	Priority        string    `json:"priority"`
	ClientName      string    `json:"client_name"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// @Summary      Get dashboard statistics
// @Description  Returns aggregated statistics for the back office dashboard: client and staff counts, the caseload broken down by status and type, and the most recent submissions. Requires applications.view permission.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/stats/dashboard [get]
// GetDashboardStatsHandler returns dashboard statistics
// GET /api/stats/dashboard
func (h *StatsHandlers) GetDashboardStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// Core counts in a single round-trip.
		query := `
			SELECT
				(SELECT COUNT(*) FROM clients) AS client_count,
				(SELECT COUNT(*) FROM users) AS user_count,
				(SELECT COUNT(*) FROM users WHERE is_active = true) AS active_user_count,
				(SELECT COUNT(*) FROM applications) AS app_count,
				(SELECT COUNT(*) FROM applications WHERE status = 'pending') AS pending_count,
				(SELECT COUNT(*) FROM applications WHERE status = 'processing') AS processing_count,
				(SELECT COUNT(*) FROM applications WHERE status = 'approved') AS approved_count,
				(SELECT COUNT(*) FROM applications WHERE status = 'rejected') AS rejected_count,
				(SELECT COUNT(*) FROM applications WHERE status = 'completed') AS completed_count,
				(SELECT COUNT(*) FROM applications
					WHERE assigned_to IS NULL AND status IN ('pending', 'processing')) AS unassigned_count,
				(SELECT COUNT(*) FROM applications
					WHERE priority = 'urgent' AND status IN ('pending', 'processing')) AS urgent_count
		`

		var counts struct {
			ClientCount     int64 `db:"client_count"`
			UserCount       int64 `db:"user_count"`
			ActiveUserCount int64 `db:"active_user_count"`
			AppCount        int64 `db:"app_count"`
			PendingCount    int64 `db:"pending_count"`
			ProcessingCount int64 `db:"processing_count"`
			ApprovedCount   int64 `db:"approved_count"`
			RejectedCount   int64 `db:"rejected_count"`
			CompletedCount  int64 `db:"completed_count"`
			UnassignedCount int64 `db:"unassigned_count"`
			UrgentCount     int64 `db:"urgent_count"`
		}
		if err := h.db.GetContext(ctx, &counts, query); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load dashboard statistics",
			})
			return
		}

		byTypeQuery := `
			SELECT application_type AS type, COUNT(*) AS count
			FROM applications
			GROUP BY application_type
			ORDER BY count DESC
		`
		byType := []ApplicationTypeCount{}
		if err := h.db.SelectContext(ctx, &byType, byTypeQuery); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load application type statistics",
			})
			return
		}

		recentQuery := `
			SELECT a.id, a.tracking_id, a.application_type, a.status, a.priority,
				c.first_name || ' ' || c.last_name AS client_name, a.submitted_at
			FROM applications a
			JOIN clients c ON c.id = a.client_id
			ORDER BY a.submitted_at DESC
			LIMIT 10
		`
		recent := []RecentApplication{}
		rows, err := h.db.QueryContext(ctx, recentQuery)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load recent applications",
			})
			return
		}
		defer rows.Close()
		for rows.Next() {
			var r RecentApplication
			if err := rows.Scan(&r.ID, &r.TrackingID, &r.ApplicationType, &r.Status, &r.Priority, &r.ClientName, &r.SubmittedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load recent applications",
				})
				return
			}
			recent = append(recent, r)
		}

		c.JSON(http.StatusOK, DashboardStats{
			Clients:     counts.ClientCount,
			Users:       counts.UserCount,
			ActiveUsers: counts.ActiveUserCount,
			Applications: ApplicationStats{
				Total:      counts.AppCount,
				Pending:    counts.PendingCount,
				Processing: counts.ProcessingCount,
				Approved:   counts.ApprovedCount,
				Rejected:   counts.RejectedCount,
				Completed:  counts.CompletedCount,
				Unassigned: counts.UnassignedCount,
				Urgent:     counts.UrgentCount,
			},
			Recent: recent,
			ByType: byType,
		})
	}
}
