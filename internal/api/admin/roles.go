// roles.go implements handlers for role management and the permission
// catalogue. System roles (admin, operations_manager, front_desk, auditor)
// are seeded by migration and cannot be modified or deleted.
package admin

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
)

// RoleHandlers handles role and permission catalogue endpoints
type RoleHandlers struct {
	rbacRepo *repositories.RBACRepository
	recorder *audit.Recorder
}

// NewRoleHandlers creates a new RoleHandlers instance
func NewRoleHandlers(sqlxDB *sqlx.DB, recorder *audit.Recorder) *RoleHandlers {
	return &RoleHandlers{
		rbacRepo: repositories.NewRBACRepository(sqlxDB),
		recorder: recorder,
	}
}

// @Summary      List roles
// @Description  Get all roles with their permissions. Requires users.view permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "roles"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/roles [get]
// ListRolesHandler lists all roles
// GET /api/roles
func (h *RoleHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := h.rbacRepo.ListRoles(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list roles",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"roles": roles,
		})
	}
}

// @Summary      Get role
// @Description  Get a role by ID with its permissions. Requires users.view permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Role ID"
// @Success      200  {object}  map[string]interface{}  "role"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/roles/{id} [get]
// GetRoleHandler retrieves a role by ID
// GET /api/roles/:id
func (h *RoleHandlers) GetRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := h.rbacRepo.GetRole(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve role",
			})
			return
		}
		if role == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Role not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"role": role,
		})
	}
}

// CreateRoleRequest represents the request to create a new role
type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	DisplayName string   `json:"display_name" binding:"required"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions" binding:"required"`
}

// @Summary      Create role
// @Description  Create a custom role with a set of permissions. Requires system.settings permission.
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRoleRequest  true  "Role creation request"
// @Success      201  {object}  map[string]interface{}  "role"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown permission code"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Role with this name already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/roles [post]
// CreateRoleHandler creates a custom role
// POST /api/roles
func (h *RoleHandlers) CreateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if err := auth.ValidatePermissions(req.Permissions); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		existing, err := h.rbacRepo.GetRoleByName(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing role",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Role with this name already exists",
			})
			return
		}

		role := &models.Role{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			Description: req.Description,
			Permissions: req.Permissions,
		}

		if err := h.rbacRepo.CreateRole(c.Request.Context(), role); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create role",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "role.created",
			ResourceType: "role",
			ResourceID:   role.ID,
			Details:      map[string]interface{}{"name": role.Name, "permissions": role.Permissions},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusCreated, gin.H{
			"role": role,
		})
	}
}

// UpdateRoleRequest represents the request to update a role
type UpdateRoleRequest struct {
	DisplayName *string  `json:"display_name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// @Summary      Update role
// @Description  Update a custom role's display name, description, or permissions. System roles cannot be modified. Requires system.settings permission.
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "Role ID"
// @Param        body  body  UpdateRoleRequest  true  "Role update request"
// @Success      200  {object}  map[string]interface{}  "role"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or system role"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/roles/{id} [put]
// UpdateRoleHandler updates a custom role
// PUT /api/roles/:id
func (h *RoleHandlers) UpdateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID := c.Param("id")

		var req UpdateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		role, err := h.rbacRepo.GetRole(c.Request.Context(), roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve role",
			})
			return
		}
		if role == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Role not found",
			})
			return
		}
		if role.IsSystem {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "System roles cannot be modified",
			})
			return
		}

		if req.DisplayName != nil {
			role.DisplayName = *req.DisplayName
		}
		if req.Description != nil {
			role.Description = req.Description
		}
		if req.Permissions != nil {
			if err := auth.ValidatePermissions(req.Permissions); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
				return
			}
			role.Permissions = req.Permissions
		}

		if err := h.rbacRepo.UpdateRole(c.Request.Context(), role); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Role not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update role",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "role.updated",
			ResourceType: "role",
			ResourceID:   role.ID,
			Details:      map[string]interface{}{"permissions": role.Permissions},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"role": role,
		})
	}
}

// @Summary      Delete role
// @Description  Delete a custom role. System roles cannot be deleted. Requires system.settings permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Role ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "System role"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/roles/{id} [delete]
// DeleteRoleHandler deletes a custom role
// DELETE /api/roles/:id
func (h *RoleHandlers) DeleteRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID := c.Param("id")

		role, err := h.rbacRepo.GetRole(c.Request.Context(), roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve role",
			})
			return
		}
		if role == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Role not found",
			})
			return
		}
		if role.IsSystem {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "System roles cannot be deleted",
			})
			return
		}

		if err := h.rbacRepo.DeleteRole(c.Request.Context(), roleID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete role",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       middleware.ActorFromContext(c).ID,
			Action:       "role.deleted",
			ResourceType: "role",
			ResourceID:   roleID,
			Details:      map[string]interface{}{"name": role.Name},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "Role deleted successfully",
		})
	}
}

// @Summary      List permissions
// @Description  Get the full permission catalogue, grouped by module, for building role editors. Requires users.view permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "permissions"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/permissions [get]
// ListPermissionsHandler lists the permission catalogue
// GET /api/permissions
func (h *RoleHandlers) ListPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, err := h.rbacRepo.ListPermissions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list permissions",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"permissions": perms,
		})
	}
}
