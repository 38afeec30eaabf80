// auth.go implements HTTP handlers for staff login, token refresh, the current
// user profile, and password changes.
package admin

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/config"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

// AuthHandlers handles staff authentication endpoints
type AuthHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
	rbacRepo *repositories.RBACRepository
	recorder *audit.Recorder
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sql.DB, sqlxDB *sqlx.DB, recorder *audit.Recorder) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
		rbacRepo: repositories.NewRBACRepository(sqlxDB),
		recorder: recorder,
	}
}

// LoginRequest represents the staff login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Staff login
// @Description  Authenticate a staff member with email and password. Returns a JWT for use on /api endpoints.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Login credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_in, user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials or deactivated account"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/auth/login [post]
// LoginHandler authenticates a staff member and issues a JWT
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up user",
			})
			return
		}

		// Same response for unknown email and wrong password so the endpoint
		// does not leak which emails have accounts.
		if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid email or password",
			})
			return
		}

		if !user.IsActive {
			telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Account is deactivated",
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, auth.ActorStaff, h.cfg.Auth.StaffTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		// The last-login timestamp is informational; a failed update must not
		// fail the login.
		if err := h.userRepo.RecordLogin(c.Request.Context(), user.ID); err != nil {
			slog.Warn("failed to record login time", "user_id", user.ID, "error", err)
		}

		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
		h.recorder.Record(audit.Event{
			UserID:       user.ID,
			Action:       "auth.login",
			ResourceType: "user",
			ResourceID:   user.ID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(h.cfg.Auth.StaffTokenTTL.Seconds()),
			"user":       user,
		})
	}
}

// @Summary      Refresh JWT token
// @Description  Exchange an existing staff JWT for a fresh one with extended expiration
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "token, expires_in"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal error during token generation"
// @Router       /api/auth/refresh [post]
// RefreshHandler refreshes an existing JWT token
// POST /api/auth/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), actor.ID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, auth.ActorStaff, h.cfg.Auth.StaffTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate new token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(h.cfg.Auth.StaffTokenTTL.Seconds()),
		})
	}
}

// @Summary      Get current user
// @Description  Retrieve the currently authenticated staff member with their roles and effective permissions
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, roles, permissions"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/auth/me [get]
// MeHandler returns the current authenticated user's profile with roles
// GET /api/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), actor.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user information",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		roles, err := h.rbacRepo.GetUserRoles(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user roles",
			})
			return
		}

		perms, err := h.rbacRepo.GetUserPermissions(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user permissions",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":        user,
			"roles":       roles,
			"permissions": perms,
		})
	}
}

// ChangePasswordRequest represents a password change for the current user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// @Summary      Change password
// @Description  Change the current staff member's password. Requires the current password.
// @Tags         Authentication
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ChangePasswordRequest  true  "Password change request"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or password too short"
// @Failure      401  {object}  map[string]interface{}  "Current password is incorrect"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/auth/password [put]
// ChangePasswordHandler changes the current user's password
// PUT /api/auth/password
func (h *AuthHandlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), actor.ID)
		if err != nil || user == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user information",
			})
			return
		}

		if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Current password is incorrect",
			})
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		if err := h.userRepo.UpdatePassword(c.Request.Context(), user.ID, hash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update password",
			})
			return
		}

		h.recorder.Record(audit.Event{
			UserID:       user.ID,
			Action:       "auth.password_changed",
			ResourceType: "user",
			ResourceID:   user.ID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "Password updated successfully",
		})
	}
}
