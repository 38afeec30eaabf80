// clients.go implements handlers for client (customer) record management.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
)

// ClientHandlers handles client management endpoints
type ClientHandlers struct {
	clientRepo *repositories.ClientRepository
	appRepo    *repositories.ApplicationRepository
	recorder   *audit.Recorder
}

// NewClientHandlers creates a new ClientHandlers instance
func NewClientHandlers(db *sql.DB, recorder *audit.Recorder) *ClientHandlers {
	return &ClientHandlers{
		clientRepo: repositories.NewClientRepository(db),
		appRepo:    repositories.NewApplicationRepository(db),
		recorder:   recorder,
	}
}

// @Summary      List clients
// @Description  Get a paginated list of clients, optionally filtered by a search term over name, email, and passport number. Requires clients.view permission.
// @Tags         Clients
// @Security     Bearer
// @Produce      json
// @Param        search    query  string  false  "Search term"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "clients, pagination"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/clients [get]
// ListClientsHandler lists clients with optional search
// GET /api/clients?search=...&page=1&per_page=20
func (h *ClientHandlers) ListClientsHandler() gin.HandlerFunc {
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

		clients, total, err := h.clientRepo.ListClients(c.Request.Context(), c.Query("search"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list clients",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"clients": clients,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get client
// @Description  Get a client by ID together with their applications. Requires clients.view permission.
// @Tags         Clients
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Client ID"
// @Success      200  {object}  map[string]interface{}  "client, applications"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Client not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/clients/{id} [get]
// GetClientHandler retrieves a client with their applications
// GET /api/clients/:id
func (h *ClientHandlers) GetClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Param("id")

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), clientID)
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

		apps, _, err := h.appRepo.ListApplications(c.Request.Context(),
			repositories.ApplicationFilters{ClientID: &clientID}, 100, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve client applications",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"client":       client,
			"applications": apps,
		})
	}
}

// CreateClientRequest represents the request to register a new client
type CreateClientRequest struct {
	FirstName             string     `json:"first_name" binding:"required"`
	LastName              string     `json:"last_name" binding:"required"`
	Email                 string     `json:"email" binding:"required,email"`
	Phone                 *string    `json:"phone"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Nationality           *string    `json:"nationality"`
	PassportNumber        *string    `json:"passport_number"`
	Address               *string    `json:"address"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	Notes                 *string    `json:"notes"`
}

// @Summary      Create client
// @Description  Register a new client. Email must be unique (case-insensitive). Requires clients.create permission.
// @Tags         Clients
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateClientRequest  true  "Client registration request"
// @Success      201  {object}  map[string]interface{}  "client"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Client with this email already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/clients [post]
// CreateClientHandler registers a new client
// POST /api/clients
func (h *ClientHandlers) CreateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		existing, err := h.clientRepo.GetClientByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing client",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Client with this email already exists",
			})
			return
		}

		client := &models.Client{
			FirstName:             req.FirstName,
			LastName:              req.LastName,
			Email:                 email,
			Phone:                 req.Phone,
			DateOfBirth:           req.DateOfBirth,
			Nationality:           req.Nationality,
			PassportNumber:        req.PassportNumber,
			Address:               req.Address,
			EmergencyContactName:  req.EmergencyContactName,
			EmergencyContactPhone: req.EmergencyContactPhone,
			Notes:                 req.Notes,
		}

		if err := h.clientRepo.CreateClient(c.Request.Context(), client); err != nil {
			// A concurrent create can slip past the existence check above and
			// trip the unique email index instead.
			if apperr.KindOf(err) == apperr.Conflict {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Client with this email already exists",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create client",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "client.created",
			ResourceType: "client",
			ResourceID:   client.ID,
			Details:      map[string]interface{}{"email": client.Email},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusCreated, gin.H{
			"client": client,
		})
	}
}

// UpdateClientRequest represents the request to update a client record
type UpdateClientRequest struct {
	FirstName             *string    `json:"first_name"`
	LastName              *string    `json:"last_name"`
	Email                 *string    `json:"email"`
	Phone                 *string    `json:"phone"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Nationality           *string    `json:"nationality"`
	PassportNumber        *string    `json:"passport_number"`
	Address               *string    `json:"address"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	Notes                 *string    `json:"notes"`
}

// @Summary      Update client
// @Description  Update a client's contact or travel document details. Requires clients.edit permission.
// @Tags         Clients
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "Client ID"
// @Param        body  body  UpdateClientRequest  true  "Client update request"
// @Success      200  {object}  map[string]interface{}  "client"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Client not found"
// @Failure      409  {object}  map[string]interface{}  "Email already in use by another client"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/clients/{id} [put]
// UpdateClientHandler updates a client record
// PUT /api/clients/:id
func (h *ClientHandlers) UpdateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Param("id")

		var req UpdateClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), clientID)
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

		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))

			existing, err := h.clientRepo.GetClientByEmail(c.Request.Context(), email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check email availability",
				})
				return
			}
			if existing != nil && existing.ID != clientID {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another client",
				})
				return
			}

			client.Email = email
		}

		if req.FirstName != nil {
			client.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			client.LastName = *req.LastName
		}
		if req.Phone != nil {
			client.Phone = req.Phone
		}
		if req.DateOfBirth != nil {
			client.DateOfBirth = req.DateOfBirth
		}
		if req.Nationality != nil {
			client.Nationality = req.Nationality
		}
		if req.PassportNumber != nil {
			client.PassportNumber = req.PassportNumber
		}
		if req.Address != nil {
			client.Address = req.Address
		}
		if req.EmergencyContactName != nil {
			client.EmergencyContactName = req.EmergencyContactName
		}
		if req.EmergencyContactPhone != nil {
			client.EmergencyContactPhone = req.EmergencyContactPhone
		}
		if req.Notes != nil {
			client.Notes = req.Notes
		}

		if err := h.clientRepo.UpdateClient(c.Request.Context(), client); err != nil {
			if apperr.KindOf(err) == apperr.Conflict {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another client",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update client",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "client.updated",
			ResourceType: "client",
			ResourceID:   client.ID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"client": client,
		})
	}
}

// @Summary      Delete client
// @Description  Delete a client. Refused while the client has pending or processing applications. Requires clients.delete permission.
// @Tags         Clients
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Client ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Client not found"
// @Failure      409  {object}  map[string]interface{}  "Client has applications in progress"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/clients/{id} [delete]
// DeleteClientHandler deletes a client
// DELETE /api/clients/:id
func (h *ClientHandlers) DeleteClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Param("id")

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), clientID)
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

		if err := h.clientRepo.DeleteClient(c.Request.Context(), clientID); err != nil {
			if apperr.KindOf(err) == apperr.Conflict {
				c.JSON(http.StatusConflict, gin.H{
					"error": apperr.MessageOf(err),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete client",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "client.deleted",
			ResourceType: "client",
			ResourceID:   clientID,
			Details:      map[string]interface{}{"email": client.Email},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "Client deleted successfully",
		})
	}
}
