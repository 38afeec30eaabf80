// applications.go implements handlers for the application (case) lifecycle:
// submission, lookup, listing, status transitions, assignment, and the status
// history audit trail.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

// ApplicationHandlers handles application lifecycle endpoints
type ApplicationHandlers struct {
	appRepo    *repositories.ApplicationRepository
	clientRepo *repositories.ClientRepository
	userRepo   *repositories.UserRepository
	recorder   *audit.Recorder
}

// NewApplicationHandlers creates a new ApplicationHandlers instance
func NewApplicationHandlers(db *sql.DB, recorder *audit.Recorder) *ApplicationHandlers {
	return &ApplicationHandlers{
		appRepo:    repositories.NewApplicationRepository(db),
		clientRepo: repositories.NewClientRepository(db),
		userRepo:   repositories.NewUserRepository(db),
		recorder:   recorder,
	}
}

// CreateApplicationRequest represents an application submission
type CreateApplicationRequest struct {
	ClientID            string                 `json:"client_id" binding:"required"`
	ApplicationType     string                 `json:"application_type" binding:"required"`
	Priority            string                 `json:"priority"`
	ApplicationData     map[string]interface{} `json:"application_data"`
	EstimatedCompletion *time.Time             `json:"estimated_completion"`
}

// @Summary      Submit application
// @Description  Submit a new application for a client. A unique tracking ID is generated and the initial pending status is recorded in the history. Requires applications.create permission.
// @Tags         Applications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateApplicationRequest  true  "Application submission"
// @Success      201  {object}  map[string]interface{}  "application"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown priority"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Client not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications [post]
// CreateApplicationHandler submits a new application
// POST /api/applications
func (h *ApplicationHandlers) CreateApplicationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if req.Priority != "" && !models.IsValidPriority(req.Priority) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid priority: " + req.Priority,
			})
			return
		}

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), req.ClientID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve client",
			})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Client not found",
			})
			return
		}

		actor := middleware.ActorFromContext(c)

		app := &models.Application{
			ClientID:            req.ClientID,
			ApplicationType:     req.ApplicationType,
			Priority:            req.Priority,
			ApplicationData:     req.ApplicationData,
			EstimatedCompletion: req.EstimatedCompletion,
		}

		if err := h.appRepo.CreateApplication(c.Request.Context(), app, actor.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create application",
			})
			return
		}

		telemetry.ApplicationsCreatedTotal.WithLabelValues(app.ApplicationType).Inc()
		telemetry.StatusTransitionsTotal.WithLabelValues("none", app.Status).Inc()

		h.recorder.Record(audit.Event{
			UserID:       actor.ID,
			Action:       "application.created",
			ResourceType: "application",
			ResourceID:   app.ID,
			Details: map[string]interface{}{
				"tracking_id": app.TrackingID,
				"client_id":   app.ClientID,
				"type":        app.ApplicationType,
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.JSON(http.StatusCreated, gin.H{
			"application": app,
		})
	}
}

// @Summary      Get application
// @Description  Get an application by ID. Requires applications.view permission.
// @Tags         Applications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Application ID"
// @Success      200  {object}  map[string]interface{}  "application"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications/{id} [get]
// GetApplicationHandler retrieves an application by ID
// GET /api/applications/:id
func (h *ApplicationHandlers) GetApplicationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := h.appRepo.GetApplicationByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve application",
			})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Application not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"application": app,
		})
	}
}

// @Summary      List applications
// @Description  Get a paginated list of applications with optional filters. Requires applications.view permission.
// @Tags         Applications
// @Security     Bearer
// @Produce      json
// @Param        client_id    query  string  false  "Filter by client"
// @Param        status       query  string  false  "Filter by status"
// @Param        priority     query  string  false  "Filter by priority"
// @Param        type         query  string  false  "Filter by application type"
// @Param        assigned_to  query  string  false  "Filter by assigned staff member"
// @Param        search       query  string  false  "Search by tracking ID or client name"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "applications, pagination"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications [get]
// ListApplicationsHandler lists applications with filters
// GET /api/applications?status=pending&priority=urgent&page=1
func (h *ApplicationHandlers) ListApplicationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage

		var filters repositories.ApplicationFilters
		if v := c.Query("client_id"); v != "" {
			filters.ClientID = &v
		}
		if v := c.Query("status"); v != "" {
			filters.Status = &v
		}
		if v := c.Query("priority"); v != "" {
			filters.Priority = &v
		}
		if v := c.Query("type"); v != "" {
			filters.ApplicationType = &v
		}
		if v := c.Query("assigned_to"); v != "" {
			filters.AssignedTo = &v
		}
		if v := c.Query("search"); v != "" {
			filters.Search = &v
		}

		apps, total, err := h.appRepo.ListApplications(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list applications",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"applications": apps,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// TransitionStatusRequest represents a status change request
type TransitionStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

// @Summary      Transition application status
// @Description  Move an application to a new status. Every change is appended to the status history; reaching approved or completed stamps the completion time once. Requires applications.process permission.
// @Tags         Applications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true  "Application ID"
// @Param        body  body  TransitionStatusRequest  true  "Status change request"
// @Success      200  {object}  map[string]interface{}  "application"
// @Failure      400  {object}  map[string]interface{}  "Invalid status"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications/{id}/status [post]
// TransitionStatusHandler changes an application's status
// POST /api/applications/:id/status
func (h *ApplicationHandlers) TransitionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("id")
		actor := middleware.ActorFromContext(c)

		var req TransitionStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		app, oldStatus, err := h.appRepo.TransitionStatus(c.Request.Context(), appID, req.Status, actor.ID, req.Notes)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.InvalidArgument:
				c.JSON(http.StatusBadRequest, gin.H{"error": apperr.MessageOf(err)})
			case apperr.NotFound:
				c.JSON(http.StatusNotFound, gin.H{"error": apperr.MessageOf(err)})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to transition status"})
			}
			return
		}

		// oldStatus came from the locked row, so the metric and audit entry
		// report the same from-status the history recorded.
		telemetry.StatusTransitionsTotal.WithLabelValues(oldStatus, app.Status).Inc()

		h.recorder.Record(audit.Event{
			UserID:       actor.ID,
			Action:       "application.status_changed",
			ResourceType: "application",
			ResourceID:   app.ID,
			Details: map[string]interface{}{
				"tracking_id": app.TrackingID,
				"from":        oldStatus,
				"to":          app.Status,
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"application": app,
		})
	}
}

// AssignApplicationRequest represents an assignment change. A null assigned_to
// clears the assignment.
type AssignApplicationRequest struct {
	AssignedTo *string `json:"assigned_to"`
}

// @Summary      Assign application
// @Description  Assign an application to a staff member or clear the assignment. Requires applications.assign permission.
// @Tags         Applications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "Application ID"
// @Param        body  body  AssignApplicationRequest  true  "Assignment request"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Assignee not found or deactivated"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications/{id}/assign [post]
// AssignApplicationHandler assigns or unassigns an application
// POST /api/applications/:id/assign
func (h *ApplicationHandlers) AssignApplicationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("id")

		var req AssignApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if req.AssignedTo != nil {
			assignee, err := h.userRepo.GetUserByID(c.Request.Context(), *req.AssignedTo)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to retrieve assignee",
				})
				return
			}
			if assignee == nil || !assignee.IsActive {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Assignee not found or deactivated",
				})
				return
			}
		}

		if err := h.appRepo.AssignApplication(c.Request.Context(), appID, req.AssignedTo); err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				c.JSON(http.StatusNotFound, gin.H{
					"error": apperr.MessageOf(err),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to assign application",
			})
			return
		}

		details := map[string]interface{}{}
		if req.AssignedTo != nil {
			details["assigned_to"] = *req.AssignedTo
		}
		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "application.assigned",
			ResourceType: "application",
			ResourceID:   appID,
			Details:      details,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "Application assignment updated",
		})
	}
}

// UpdateApplicationRequest represents updates to the mutable case fields.
// Status is deliberately absent; it only changes through the transition
// endpoint so the history stays complete.
type UpdateApplicationRequest struct {
	ApplicationType     *string                `json:"application_type"`
	Priority            *string                `json:"priority"`
	ApplicationData     map[string]interface{} `json:"application_data"`
	ProcessingNotes     *string                `json:"processing_notes"`
	EstimatedCompletion *time.Time             `json:"estimated_completion"`
}

// @Summary      Update application details
// @Description  Update an application's type, priority, data, notes, or estimated completion. Status changes go through the transition endpoint. Requires applications.process permission.
// @Tags         Applications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "Application ID"
// @Param        body  body  UpdateApplicationRequest  true  "Application update request"
// @Success      200  {object}  map[string]interface{}  "application"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown priority"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications/{id} [put]
// UpdateApplicationHandler updates an application's mutable details
// PUT /api/applications/:id
func (h *ApplicationHandlers) UpdateApplicationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("id")

		var req UpdateApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		app, err := h.appRepo.GetApplicationByID(c.Request.Context(), appID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve application",
			})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Application not found",
			})
			return
		}

		if req.ApplicationType != nil {
			app.ApplicationType = *req.ApplicationType
		}
		if req.Priority != nil {
			if !models.IsValidPriority(*req.Priority) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid priority: " + *req.Priority,
				})
				return
			}
			app.Priority = *req.Priority
		}
		if req.ApplicationData != nil {
			app.ApplicationData = req.ApplicationData
		}
		if req.ProcessingNotes != nil {
			app.ProcessingNotes = req.ProcessingNotes
		}
		if req.EstimatedCompletion != nil {
			app.EstimatedCompletion = req.EstimatedCompletion
		}

		if err := h.appRepo.UpdateDetails(c.Request.Context(), app); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update application",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "application.updated",
			ResourceType: "application",
			ResourceID:   app.ID,
			Details:      map[string]interface{}{"tracking_id": app.TrackingID},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"application": app,
		})
	}
}

// @Summary      Get application status history
// @Description  Get the full status change trail for an application, oldest first. Requires applications.view permission.
// @Tags         Applications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Application ID"
// @Success      200  {object}  map[string]interface{}  "history"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/applications/{id}/history [get]
// GetStatusHistoryHandler returns an application's status history
// GET /api/applications/:id/history
func (h *ApplicationHandlers) GetStatusHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("id")

		app, err := h.appRepo.GetApplicationByID(c.Request.Context(), appID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve application",
			})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Application not found",
			})
			return
		}

		history, err := h.appRepo.GetStatusHistory(c.Request.Context(), appID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve status history",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"history": history,
		})
	}
}
