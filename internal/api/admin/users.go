// users.go implements handlers for staff account management: listing, creating,
// updating, deactivating, and role assignment.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/tarim-tours/backoffice/internal/apperr"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
)

// UserHandlers handles staff user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
	rbacRepo *repositories.RBACRepository
	recorder *audit.Recorder
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB, sqlxDB *sqlx.DB, recorder *audit.Recorder) *UserHandlers {
	return &UserHandlers{
		userRepo: repositories.NewUserRepository(db),
		rbacRepo: repositories.NewRBACRepository(sqlxDB),
		recorder: recorder,
	}
}

// @Summary      List users
// @Description  Get a paginated list of staff users. Requires users.view permission.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users, pagination"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users [get]
// ListUsersHandler lists all staff users with pagination
// GET /api/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
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

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Description  Get a staff user by ID with their assigned roles. Requires users.view permission.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user, roles"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [get]
// GetUserHandler retrieves a specific staff user by ID
// GET /api/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		roles, err := h.rbacRepo.GetUserRoles(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user roles",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":  user,
			"roles": roles,
		})
	}
}

// CreateUserRequest represents the request to create a new staff user
type CreateUserRequest struct {
	Email     string   `json:"email" binding:"required,email"`
	Password  string   `json:"password" binding:"required"`
	FirstName string   `json:"first_name" binding:"required"`
	LastName  string   `json:"last_name" binding:"required"`
	RoleIDs   []string `json:"role_ids"`
}

// @Summary      Create user
// @Description  Create a new staff user, optionally assigning roles. Requires users.create permission.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Success      201  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or password too short"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "User with this email already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users [post]
// CreateUserHandler creates a new staff user
// POST /api/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing user",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "User with this email already exists",
			})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		user := &models.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			IsActive:     true,
		}

		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			// A concurrent create can slip past the existence check above and
			// trip the unique email index instead.
			if apperr.KindOf(err) == apperr.Conflict {
				c.JSON(http.StatusConflict, gin.H{
					"error": "User with this email already exists",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}

		if len(req.RoleIDs) > 0 {
			if err := h.rbacRepo.SetUserRoles(c.Request.Context(), user.ID, req.RoleIDs); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "User created but role assignment failed",
				})
				return
			}
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "user.created",
			ResourceType: "user",
			ResourceID:   user.ID,
			Details:      map[string]interface{}{"email": user.Email},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusCreated, gin.H{
			"user": user,
		})
	}
}

// UpdateUserRequest represents the request to update a staff user
type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// @Summary      Update user
// @Description  Update a staff user's name, email, or activation state. Requires users.edit permission.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "User update request"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Email already in use by another user"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [put]
// UpdateUserHandler updates a staff user
// PUT /api/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if req.FirstName != nil {
			user.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			user.LastName = *req.LastName
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}

		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))

			existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check email availability",
				})
				return
			}
			if existing != nil && existing.ID != userID {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another user",
				})
				return
			}

			user.Email = email
		}

		if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
			if apperr.KindOf(err) == apperr.Conflict {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another user",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update user",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "user.updated",
			ResourceType: "user",
			ResourceID:   user.ID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"user": user,
		})
	}
}

// @Summary      Deactivate user
// @Description  Deactivate a staff user. Accounts are never hard-deleted so that audit history stays attributable. Requires users.delete permission.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Cannot deactivate your own account"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [delete]
// DeactivateUserHandler deactivates a staff user
// DELETE /api/users/:id
func (h *UserHandlers) DeactivateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		actor := middleware.ActorFromContext(c)

		if userID == actor.ID {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Cannot deactivate your own account",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if err := h.userRepo.DeactivateUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to deactivate user",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       actor.ID,
			Action:       "user.deactivated",
			ResourceType: "user",
			ResourceID:   userID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "User deactivated successfully",
		})
	}
}

// SetUserRolesRequest replaces a user's role assignments
type SetUserRolesRequest struct {
	RoleIDs []string `json:"role_ids" binding:"required"`
}

// @Summary      Set user roles
// @Description  Replace a staff user's role assignments with the given set. Requires users.edit permission.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "User ID"
// @Param        body  body  SetUserRolesRequest  true  "Role assignment request"
// @Success      200  {object}  map[string]interface{}  "roles"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id}/roles [put]
// SetUserRolesHandler replaces a user's role assignments
// PUT /api/users/:id/roles
func (h *UserHandlers) SetUserRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req SetUserRolesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if err := h.rbacRepo.SetUserRoles(c.Request.Context(), userID, req.RoleIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to set user roles",
			})
			return
		}

		roles, err := h.rbacRepo.GetUserRoles(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user roles",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "user.roles_changed",
			ResourceType: "user",
			ResourceID:   userID,
			Details:      map[string]interface{}{"role_ids": req.RoleIDs},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"roles": roles,
		})
	}
}

// @Summary      Search users
// @Description  Search staff users by email or name. Requires users.view permission.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        q         query  string  true   "Search query"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users, pagination"
// @Failure      400  {object}  map[string]interface{}  "Search query is required"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/search [get]
// SearchUsersHandler searches staff users by email or name
// GET /api/users/search?q=query&page=1&per_page=20
func (h *UserHandlers) SearchUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Search query is required",
			})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage

		users, err := h.userRepo.Search(c.Request.Context(), query, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to search users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}
