// portal.go implements the customer portal: self-service registration, login,
// and access to the customer's own applications. Portal tokens carry the
// customer actor kind, so they can never reach staff endpoints.
package public

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/config"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

// PortalHandlers handles customer portal endpoints
type PortalHandlers struct {
	cfg        *config.Config
	clientRepo *repositories.ClientRepository
	appRepo    *repositories.ApplicationRepository
	recorder   *audit.Recorder
}

// NewPortalHandlers creates a new PortalHandlers instance
func NewPortalHandlers(cfg *config.Config, db *sql.DB, recorder *audit.Recorder) *PortalHandlers {
	return &PortalHandlers{
		cfg:        cfg,
		clientRepo: repositories.NewClientRepository(db),
		appRepo:    repositories.NewApplicationRepository(db),
		recorder:   recorder,
	}
}

// RegisterRequest represents a portal account registration
type RegisterRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required"`
	FirstName string  `json:"first_name" binding:"required"`
	LastName  string  `json:"last_name" binding:"required"`
	Phone     *string `json:"phone"`
}

// @Summary      Register portal account
// @Description  Create a portal account. If the agency already has a client record for the email without portal access, the account is attached to it; otherwise a new client record is created.
// @Tags         Portal
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Registration request"
// @Success      201  {object}  map[string]interface{}  "token, expires_in, client"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or password too short"
// @Failure      409  {object}  map[string]interface{}  "An account with this email already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /portal/register [post]
// RegisterHandler creates a customer portal account
// POST /portal/register
func (h *PortalHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		client, err := h.clientRepo.GetClientByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing account",
			})
			return
		}

		switch {
		case client != nil && client.HasPortalAccount():
			c.JSON(http.StatusConflict, gin.H{
				"error": "An account with this email already exists",
			})
			return

		case client != nil:
			// Existing agency client without portal access: attach the login
			// to the record the staff already maintain.
			if err := h.clientRepo.SetClientPassword(c.Request.Context(), client.ID, hash); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to create portal account",
				})
				return
			}
			client.PasswordHash = &hash

		default:
			client = &models.Client{
				FirstName:    req.FirstName,
				LastName:     req.LastName,
				Email:        email,
				Phone:        req.Phone,
				PasswordHash: &hash,
			}
			if err := h.clientRepo.CreateClient(c.Request.Context(), client); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to create portal account",
				})
				return
			}
		}

		token, err := auth.GenerateJWT(client.ID, client.Email, auth.ActorCustomer, h.cfg.Auth.CustomerTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       client.ID,
			Action:       "portal.registered",
			ResourceType: "client",
			ResourceID:   client.ID,
			Details:      map[string]interface{}{"email": client.Email},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusCreated, gin.H{
			"token":      token,
			"expires_in": int(h.cfg.Auth.CustomerTokenTTL.Seconds()),
			"client":     client,
		})
	}
}

// PortalLoginRequest represents a portal login
type PortalLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Portal login
// @Description  Authenticate a customer with email and password. Returns a customer JWT valid for portal endpoints only.
// @Tags         Portal
// @Accept       json
// @Produce      json
// @Param        body  body  PortalLoginRequest  true  "Login credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_in, client"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /portal/login [post]
// LoginHandler authenticates a customer
// POST /portal/login
func (h *PortalHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PortalLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		client, err := h.clientRepo.GetClientByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up account",
			})
			return
		}

		// One response for unknown email, no portal account, and wrong
		// password, so the endpoint does not leak which emails are clients.
		if client == nil || !client.HasPortalAccount() || !auth.CheckPassword(*client.PasswordHash, req.Password) {
			telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid email or password",
			})
			return
		}

		token, err := auth.GenerateJWT(client.ID, client.Email, auth.ActorCustomer, h.cfg.Auth.CustomerTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(h.cfg.Auth.CustomerTokenTTL.Seconds()),
			"client":     client,
		})
	}
}

// @Summary      List my applications
// @Description  List the authenticated customer's applications, newest first.
// @Tags         Portal
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "applications"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /portal/applications [get]
// MyApplicationsHandler lists the authenticated customer's applications
// GET /portal/applications
func (h *PortalHandlers) MyApplicationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		apps, _, err := h.appRepo.ListApplications(c.Request.Context(),
			repositories.ApplicationFilters{ClientID: &actor.ID}, 100, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list applications",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"applications": apps,
		})
	}
}

// @Summary      Get my application
// @Description  Get one of the authenticated customer's applications with its status history. Requests for another client's application return 404.
// @Tags         Portal
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Application ID"
// @Success      200  {object}  map[string]interface{}  "application, history"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Application not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /portal/applications/{id} [get]
// MyApplicationHandler returns one of the customer's applications with history
// GET /portal/applications/:id
func (h *PortalHandlers) MyApplicationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		app, err := h.appRepo.GetApplicationByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve application",
			})
			return
		}
		// Ownership failures look identical to missing applications so the
		// endpoint cannot be used to probe for valid IDs.
		if app == nil || app.ClientID != actor.ID {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Application not found",
			})
			return
		}

		history, err := h.appRepo.GetStatusHistory(c.Request.Context(), app.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve status history",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"application": app,
			"history":     history,
		})
	}
}
