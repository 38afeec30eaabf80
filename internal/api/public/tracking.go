// Package public implements the unauthenticated tracking endpoint and the
// customer portal (registration, login, and a customer's own applications).
// These routes expose deliberately narrow views: the tracking endpoint never
// returns internal fields like processing notes or staff assignments.
package public

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/tracking"
)

// TrackingHandlers handles the public application tracking endpoint
type TrackingHandlers struct {
	appRepo    *repositories.ApplicationRepository
	clientRepo *repositories.ClientRepository
}

// NewTrackingHandlers creates a new TrackingHandlers instance
func NewTrackingHandlers(db *sql.DB) *TrackingHandlers {
	return &TrackingHandlers{
		appRepo:    repositories.NewApplicationRepository(db),
		clientRepo: repositories.NewClientRepository(db),
	}
}

// @Summary      Track application
// @Description  Look up an application by its public tracking ID. No authentication required. Returns the application status, a minimal client view, and the status history, oldest first.
// @Tags         Tracking
// @Produce      json
// @Param        tracking_id  path  string  true  "Tracking ID, e.g. TR20260830A1B2C3D4"
// @Success      200  {object}  map[string]interface{}  "application, client, history"
// @Failure      404  {object}  map[string]interface{}  "No application with this tracking ID"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /track/{tracking_id} [get]
// TrackHandler looks up an application by tracking ID
// GET /track/:tracking_id
func (h *TrackingHandlers) TrackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trackingID := strings.ToUpper(strings.TrimSpace(c.Param("tracking_id")))

		// Reject malformed IDs without touching the database. The endpoint is
		// anonymous, so it sees plenty of junk input.
		if !tracking.IsValid(trackingID) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No application found with this tracking ID",
			})
			return
		}

		app, err := h.appRepo.GetApplicationByTrackingID(c.Request.Context(), trackingID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up application",
			})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No application found with this tracking ID",
			})
			return
		}

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), app.ClientID)
		if err != nil || client == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up application",
			})
			return
		}

		history, err := h.appRepo.GetStatusHistory(c.Request.Context(), app.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up application",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"application": gin.H{
				"tracking_id":          app.TrackingID,
				"application_type":     app.ApplicationType,
				"status":               app.Status,
				"priority":             app.Priority,
				"submitted_at":         app.SubmittedAt,
				"estimated_completion": app.EstimatedCompletion,
				"actual_completion":    app.ActualCompletion,
			},
			"client":  client.Public(),
			"history": history,
		})
	}
}
